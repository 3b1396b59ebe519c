package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive-go/internal/config"
	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagToken      string
	flagTokenFile  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gdrive-go",
		Short:   "Google Drive CLI client",
		Long:    "A thin Google Drive v3 client: download, upload, delete, create folders, and search by name.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			markInFlight(cmd.CommandPath())

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "access token (overrides "+config.EnvToken+" and the token file)")
	cmd.PersistentFlags().StringVar(&flagTokenFile, "token-file", "", "token file path (overrides token_file)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmdirCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer override
// chain and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	if cmd.Flags().Changed("token-file") {
		cli.TokenFile = &flagTokenFile
	}

	// CLI flags override the config-file log level.
	if level := flagLogLevel(); level != "" {
		cli.LogLevel = &level
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// flagLogLevel maps --verbose / --quiet to a level name. --quiet wins.
func flagLogLevel() string {
	switch {
	case flagQuiet:
		return "error"
	case flagVerbose:
		return "debug"
	default:
		return ""
	}
}

// buildLogger creates an slog.Logger writing to w, configured by the resolved
// config. log_format "auto" picks text on a terminal and JSON otherwise.
func buildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns the HTTP client for Drive requests. A zero timeout
// means requests may block indefinitely.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// newDriveClient resolves the access token and builds a client from the
// resolved config. An expired stored token is used as-is after a warning.
func newDriveClient(cmd *cobra.Command) (*gdrive.Client, *slog.Logger, error) {
	logger := buildLogger(cmd.ErrOrStderr())

	tf, source, err := config.ResolveToken(flagToken, config.ReadEnvOverrides(), resolvedCfg.TokenFile)
	if err != nil {
		return nil, nil, err
	}

	if tf.Expired(time.Now()) {
		logger.Warn("stored access token has expired; requests will likely fail with 401",
			slog.Time("expiry", tf.Token.Expiry),
		)
	}

	logger.Debug("using access token",
		slog.String("source", string(source)),
		slog.Any("token", gdrive.AccessToken(tf.Token.AccessToken)),
	)

	timeout, base, maxDelay := resolvedCfg.Durations()

	client := gdrive.NewClientWithToken(tf.Token,
		gdrive.WithBaseURL(resolvedCfg.APIURL),
		gdrive.WithUploadURL(resolvedCfg.UploadURL),
		gdrive.WithHTTPClient(newHTTPClient(timeout)),
		gdrive.WithLogger(logger),
		gdrive.WithRetryPolicy(gdrive.RetryPolicy{
			MaxRetries: resolvedCfg.MaxRetries,
			BaseDelay:  base,
			MaxDelay:   maxDelay,
		}),
		gdrive.WithLiteralSearch(resolvedCfg.LiteralSearch),
		gdrive.WithUserAgent(resolvedCfg.UserAgent),
	)

	return client, logger, nil
}

// statusMu serializes status lines from concurrent uploads.
var statusMu sync.Mutex

// statusf prints a status message to the command's stderr unless quiet mode
// is set.
func statusf(cmd *cobra.Command, format string, args ...any) {
	if flagQuiet {
		return
	}

	statusMu.Lock()
	defer statusMu.Unlock()

	fmt.Fprintf(cmd.ErrOrStderr(), format, args...)
}

// exitOnError prints a user-friendly error message to stderr and exits with
// code.
func exitOnError(err error, code int) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
