package config

import (
	"path/filepath"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// Default values for configuration options. These represent "layer 0" of
// the override chain and work without any config file.
const (
	defaultTimeout         = "0"
	defaultMaxRetries      = 0
	defaultRetryBaseDelay  = "1s"
	defaultRetryMaxDelay   = "60s"
	defaultParallelUploads = 4
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	tokenFileName          = "token.json"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		DriveConfig:     defaultDriveConfig(),
		NetworkConfig:   defaultNetworkConfig(),
		TransfersConfig: TransfersConfig{ParallelUploads: defaultParallelUploads},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

func defaultDriveConfig() DriveConfig {
	return DriveConfig{
		TokenFile:     DefaultTokenPath(),
		APIURL:        gdrive.DefaultBaseURL,
		UploadURL:     gdrive.DefaultUploadURL,
		DefaultFolder: gdrive.RootFolderID,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Timeout:        defaultTimeout,
		MaxRetries:     defaultMaxRetries,
		RetryBaseDelay: defaultRetryBaseDelay,
		RetryMaxDelay:  defaultRetryMaxDelay,
	}
}

// DefaultTokenPath returns the token file location inside the data directory.
func DefaultTokenPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, tokenFileName)
}
