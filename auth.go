package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
	"github.com/tonimelisma/gdrive-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for later commands",
		Long: `Store a Drive access token in the token file. The token is taken from
--token, an interactive prompt, or the first line of stdin. Tokens are not
obtained or refreshed here; use an OAuth tool of your choice to mint one.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().Duration("expires-in", 0, "token lifetime, used to warn about expiry (e.g. 1h)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored access token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

// readToken obtains the token to store and names where it came from.
func readToken(cmd *cobra.Command) (string, string, error) {
	if flagToken != "" {
		return flagToken, "flag", nil
	}

	if stdinInteractive() {
		tok, err := defaultPrompter.Password("Access token:")
		if err != nil {
			return "", "", fmt.Errorf("reading token: %w", err)
		}

		return strings.TrimSpace(tok), "prompt", nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", "", fmt.Errorf("reading token from stdin: %w", err)
	}

	return strings.TrimSpace(line), "stdin", nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())

	expiresIn, err := cmd.Flags().GetDuration("expires-in")
	if err != nil {
		return err
	}

	if expiresIn < 0 {
		return errors.New("--expires-in must not be negative")
	}

	raw, source, err := readToken(cmd)
	if err != nil {
		return err
	}

	if raw == "" {
		return errors.New("no access token given")
	}

	now := time.Now()
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}

	if expiresIn > 0 {
		tok.Expiry = now.Add(expiresIn)
	}

	path := resolvedCfg.TokenFile

	logger.Info("saving access token",
		slog.String("path", path),
		slog.String("source", source),
		slog.Any("token", gdrive.AccessToken(raw)),
	)

	tf := &tokenfile.File{
		Token: tok,
		Meta: map[string]string{
			tokenfile.MetaSavedAt: now.UTC().Format(time.RFC3339),
			tokenfile.MetaSource:  source,
		},
	}

	if err := tokenfile.Save(path, tf); err != nil {
		return err
	}

	statusf(cmd, "Token saved to %s\n", path)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())
	path := resolvedCfg.TokenFile

	removed, err := tokenfile.Remove(path)
	if err != nil {
		return err
	}

	logger.Debug("logout", slog.String("path", path), slog.Bool("removed", removed))

	if removed {
		statusf(cmd, "Removed token file %s\n", path)
	} else {
		statusf(cmd, "No token file at %s\n", path)
	}

	return nil
}
