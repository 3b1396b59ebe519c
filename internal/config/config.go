// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// All keys are flat; the sub-config structs below only group them in code.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	DriveConfig
	NetworkConfig
	TransfersConfig
	LoggingConfig
}

// DriveConfig locates the API and the stored credential.
type DriveConfig struct {
	TokenFile     string `toml:"token_file" json:"token_file"`
	APIURL        string `toml:"api_url" json:"api_url"`
	UploadURL     string `toml:"upload_url" json:"upload_url"`
	DefaultFolder string `toml:"default_folder" json:"default_folder"`
	LiteralSearch bool   `toml:"literal_search" json:"literal_search"`
}

// NetworkConfig controls the HTTP client: timeout, opt-in retries, and user
// agent. A timeout of "0" means none.
type NetworkConfig struct {
	Timeout        string `toml:"timeout" json:"timeout"`
	MaxRetries     int    `toml:"max_retries" json:"max_retries"`
	RetryBaseDelay string `toml:"retry_base_delay" json:"retry_base_delay"`
	RetryMaxDelay  string `toml:"retry_max_delay" json:"retry_max_delay"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
}

// TransfersConfig controls concurrency of multi-file commands.
type TransfersConfig struct {
	ParallelUploads int `toml:"parallel_uploads" json:"parallel_uploads"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	TokenFile  *string // --token-file flag
	LogLevel   *string // derived from --verbose / --quiet
}

// Durations returns the parsed network durations. Callers must have validated
// the config first; unparseable values come back as zero.
func (n *NetworkConfig) Durations() (timeout, base, maxDelay time.Duration) {
	timeout, _ = time.ParseDuration(n.Timeout)
	base, _ = time.ParseDuration(n.RetryBaseDelay)
	maxDelay, _ = time.ParseDuration(n.RetryMaxDelay)

	return timeout, base, maxDelay
}
