package gdrive

import (
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// AccessToken is a bearer credential. It renders as [REDACTED] in logs.
type AccessToken string

// LogValue implements slog.LogValuer so tokens never reach log output.
func (AccessToken) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Session owns the credential of a Client and the base header map derived
// from it. It is immutable after NewSession returns and safe for concurrent use.
type Session struct {
	token  AccessToken
	header http.Header
}

// NewSession derives the Authorization header from tok. The token type
// defaults to "Bearer" (oauth2.Token.Type). The token is not validated.
func NewSession(tok *oauth2.Token) *Session {
	h := make(http.Header, 1)
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)

	return &Session{
		token:  AccessToken(tok.AccessToken),
		header: h,
	}
}

// Header returns a copy of the base headers sent with every request.
// Callers may add to the copy without affecting the session.
func (s *Session) Header() http.Header {
	return s.header.Clone()
}

// Token returns the access token the session was built from.
func (s *Session) Token() AccessToken {
	return s.token
}
