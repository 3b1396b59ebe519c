package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minRetries         = 0
	maxRetries         = 10
	minParallelUploads = 1
	maxParallelUploads = 16
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDrive(&cfg.DriveConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateTransfers(&cfg.TransfersConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	errs = append(errs, validateBaseURL("api_url", d.APIURL)...)
	errs = append(errs, validateBaseURL("upload_url", d.UploadURL)...)

	if d.DefaultFolder == "" {
		errs = append(errs, errors.New("default_folder: must not be empty"))
	}

	return errs
}

func validateBaseURL(field, value string) []error {
	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, value, err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, value)}
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return []error{fmt.Errorf("%s: must not contain a query or fragment, got %q", field, value)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationNonNeg("timeout", n.Timeout)...)

	if n.MaxRetries < minRetries || n.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between %d and %d, got %d",
			minRetries, maxRetries, n.MaxRetries))
	}

	base, baseErr := parsePositiveDuration("retry_base_delay", n.RetryBaseDelay)
	if baseErr != nil {
		errs = append(errs, baseErr)
	}

	maxDelay, maxErr := parsePositiveDuration("retry_max_delay", n.RetryMaxDelay)
	if maxErr != nil {
		errs = append(errs, maxErr)
	}

	if baseErr == nil && maxErr == nil && maxDelay < base {
		errs = append(errs, fmt.Errorf("retry_max_delay: must be >= retry_base_delay (%s), got %s", base, maxDelay))
	}

	return errs
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0, got %s", field, d)
	}

	return d, nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		return []error{fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
