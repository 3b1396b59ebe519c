package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Default endpoints of the Drive v3 API.
const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// Backoff constants used when a RetryPolicy leaves delays unset.
const (
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 60 * time.Second
	backoffFactor    = 2.0
	jitterFraction   = 0.25
	userAgent        = "gdrive-go/0.1"
)

// RetryPolicy controls opt-in retries of transient failures. The zero value
// disables retries, so each operation issues exactly one request.
// A server Retry-After (429 or 5xx) overrides the computed delay and is
// not clamped to MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client is an HTTP client for the Google Drive v3 API.
// It is safe for concurrent use once constructed.
type Client struct {
	baseURL       string
	uploadURL     string
	httpClient    *http.Client
	session       *Session
	logger        *slog.Logger
	retry         RetryPolicy
	workDir       string
	literalSearch bool
	userAgent     string

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport. Any request timeout belongs on hc;
// the default client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUploadURL overrides the upload base URL.
func WithUploadURL(u string) Option {
	return func(c *Client) { c.uploadURL = u }
}

// WithLogger sets the structured logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryPolicy enables retries of transient failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithWorkDir sets the directory relative download names resolve against.
// By default the process working directory at call time is used.
func WithWorkDir(dir string) Option {
	return func(c *Client) { c.workDir = dir }
}

// WithLiteralSearch disables escaping of the search term, so the term is
// interpolated into name='...' exactly as given.
func WithLiteralSearch(literal bool) Option {
	return func(c *Client) { c.literalSearch = literal }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a Drive client authorised with a bearer access token.
// The token is neither validated nor refreshed, and no I/O happens here.
func NewClient(accessToken string, opts ...Option) *Client {
	return NewClientWithToken(&oauth2.Token{AccessToken: accessToken}, opts...)
}

// NewClientWithToken is like NewClient but takes a stored oauth2.Token, whose
// TokenType (default "Bearer") prefixes the Authorization header.
func NewClientWithToken(tok *oauth2.Token, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		uploadURL:  DefaultUploadURL,
		httpClient: http.DefaultClient,
		session:    NewSession(tok),
		logger:     slog.Default(),
		userAgent:  userAgent,
		sleepFunc:  timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Session returns the client's immutable credential holder.
func (c *Client) Session() *Session {
	return c.session
}

// apiURL joins the API base, path and optional query.
func (c *Client) apiURL(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	return u
}

// doRetry executes a request whose body can be replayed, retrying transient
// failures according to the client's RetryPolicy. The returned response has
// an unread body; the caller owns closing it.
func (c *Client) doRetry(
	ctx context.Context, method, rawURL, path string, body []byte, extra http.Header,
) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}

		resp, err := c.send(ctx, method, rawURL, rdr, extra)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
			}

			if attempt < c.retry.MaxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("gdrive: request canceled: %w", sleepErr)
				}

				continue
			}

			return nil, fmt.Errorf("gdrive: %s %s: %w", method, path, err)
		}

		if isRetryable(resp.StatusCode) && attempt < c.retry.MaxRetries {
			backoff := c.retryBackoff(resp, attempt)

			// Drain so the connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", err)
			}

			continue
		}

		return resp, nil
	}
}

// send executes a single HTTP request with the session headers, any extra
// headers, and the User-Agent.
func (c *Client) send(
	ctx context.Context, method, rawURL string, body io.Reader, extra http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header = c.session.Header()
	for k, vs := range extra {
		req.Header.Del(k)

		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("User-Agent", c.userAgent)

	return c.httpClient.Do(req)
}

// finish buffers and closes resp.Body. A non-2xx status yields the Response
// together with an *APIError.
func (c *Client) finish(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gdrive: reading response body: %w", err)
	}

	r := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}

	if !r.OK() {
		return r, newAPIError(r)
	}

	return r, nil
}

// retryBackoff returns the backoff duration for a retryable response.
// A Retry-After header on any retryable status wins over the computed
// backoff, in either delta-seconds or HTTP-date form.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		return d
	}

	return c.calcBackoff(attempt)
}

// parseRetryAfter reads a Retry-After value. Dates in the past and
// non-positive delays are rejected.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}

	t, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}

	d := time.Until(t)

	return d, d > 0
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	base := c.retry.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}

	maxDelay := c.retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	backoff := float64(base) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
