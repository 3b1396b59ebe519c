package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "GDRIVE_GO_CONFIG"
	EnvToken     = "GDRIVE_GO_TOKEN"
	EnvTokenFile = "GDRIVE_GO_TOKEN_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // GDRIVE_GO_CONFIG: override config file path
	Token      string // GDRIVE_GO_TOKEN: raw access token, wins over the token file
	TokenFile  string // GDRIVE_GO_TOKEN_FILE: token file path override
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Token:      os.Getenv(EnvToken),
		TokenFile:  os.Getenv(EnvTokenFile),
	}
}
