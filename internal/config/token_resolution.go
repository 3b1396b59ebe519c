package config

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/gdrive-go/internal/tokenfile"
)

// TokenSource names where the access token came from.
type TokenSource string

// Token sources, in precedence order.
const (
	TokenFromFlag TokenSource = "flag"
	TokenFromEnv  TokenSource = "env"
	TokenFromFile TokenSource = "file"
)

// ErrNoToken is returned when no layer supplies an access token.
var ErrNoToken = errors.New("config: no access token; run 'gdrive-go login' or set " + EnvToken)

// ResolveToken picks the access token: --token flag, then GDRIVE_GO_TOKEN,
// then the token file. The token is never validated or refreshed.
func ResolveToken(flagToken string, env EnvOverrides, tokenPath string) (*tokenfile.File, TokenSource, error) {
	if flagToken != "" {
		return &tokenfile.File{Token: &oauth2.Token{AccessToken: flagToken}}, TokenFromFlag, nil
	}

	if env.Token != "" {
		return &tokenfile.File{Token: &oauth2.Token{AccessToken: env.Token}}, TokenFromEnv, nil
	}

	if tokenPath == "" {
		return nil, "", ErrNoToken
	}

	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, "", fmt.Errorf("config: loading token: %w", err)
	}

	if tf == nil {
		return nil, "", ErrNoToken
	}

	return tf, TokenFromFile, nil
}
