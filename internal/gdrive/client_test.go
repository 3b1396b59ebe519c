package gdrive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient creates a Client whose API and upload bases both point at the
// given httptest server, with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithBaseURL(url),
		WithUploadURL(url),
		WithLogger(discardLogger()),
		WithUserAgent("test-agent"),
	}

	c := NewClient("test-token", append(base, opts...)...)
	c.sleepFunc = noopSleep

	return c
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("tok")

	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultUploadURL, c.uploadURL)
	assert.Equal(t, http.DefaultClient, c.httpClient)
	assert.Zero(t, c.retry.MaxRetries)
	assert.Equal(t, userAgent, c.userAgent)
	assert.Empty(t, c.workDir)
	assert.False(t, c.literalSearch)
	assert.Equal(t, "Bearer tok", c.Session().Header().Get("Authorization"))
}

func TestNewClient_NilOptionsKeepDefaults(t *testing.T) {
	c := NewClient("tok", WithHTTPClient(nil), WithLogger(nil), WithUserAgent(""))

	assert.Equal(t, http.DefaultClient, c.httpClient)
	assert.NotNil(t, c.logger)
	assert.Equal(t, userAgent, c.userAgent)
}

func TestNewClientWithToken_TokenType(t *testing.T) {
	tests := []struct {
		name      string
		tokenType string
		want      string
	}{
		{"empty defaults to bearer", "", "Bearer abc"},
		{"lowercase bearer", "bearer", "Bearer abc"},
		{"custom type", "Custom", "Custom abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClientWithToken(&oauth2.Token{AccessToken: "abc", TokenType: tt.tokenType})
			assert.Equal(t, tt.want, c.Session().Header().Get("Authorization"))
		})
	}
}

func TestSend_SetsSessionHeadersAndUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.DeleteFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDoRetry_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	resp, err := client.SearchFile(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerError)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetry_RetryOn5xx(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"files":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 3}))
	resp, err := client.SearchFile(context.Background(), "x")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRetry_RetryOn429WithRetryAfter(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n <= 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 1}))
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()

		sleeps = append(sleeps, d)

		return nil
	}

	resp, err := client.DeleteFile(context.Background(), "f1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{7 * time.Second}, sleeps)
}

// retryAfterSleeps runs one DeleteFile against a server that answers the
// first request with status and Retry-After value ra, and returns the
// recorded retry delays.
func retryAfterSleeps(t *testing.T, status int, ra string) []time.Duration {
	t.Helper()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", ra)
			w.WriteHeader(status)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 1}))
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()

		sleeps = append(sleeps, d)

		return nil
	}

	resp, err := client.DeleteFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())

	return sleeps
}

func TestDoRetry_RetryAfterOn503(t *testing.T) {
	sleeps := retryAfterSleeps(t, http.StatusServiceUnavailable, "3")
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeps)
}

func TestDoRetry_RetryAfterHTTPDate(t *testing.T) {
	at := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)

	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		sleeps := retryAfterSleeps(t, status, at)
		require.Len(t, sleeps, 1)
		assert.Greater(t, sleeps[0], 25*time.Second, "status %d", status)
		assert.LessOrEqual(t, sleeps[0], 31*time.Second, "status %d", status)
	}
}

func TestDoRetry_RetryAfterUnusableFallsBack(t *testing.T) {
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)

	for _, ra := range []string{past, "soon", "0", "-5"} {
		sleeps := retryAfterSleeps(t, http.StatusServiceUnavailable, ra)
		require.Len(t, sleeps, 1, "Retry-After %q", ra)
		// attempt 0 of the default 1s base with 25% jitter
		assert.GreaterOrEqual(t, sleeps[0], 750*time.Millisecond, "Retry-After %q", ra)
		assert.LessOrEqual(t, sleeps[0], 1250*time.Millisecond, "Retry-After %q", ra)
	}
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("12")
	assert.True(t, ok)
	assert.Equal(t, 12*time.Second, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)

	_, ok = parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT")
	assert.False(t, ok)

	d, ok = parseRetryAfter(time.Now().Add(time.Minute).UTC().Format(time.RFC850))
	assert.True(t, ok)
	assert.Greater(t, d, 50*time.Second)
}

func TestDoRetry_MaxRetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 2}))
	resp, err := client.DeleteFile(context.Background(), "f1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.NotNil(t, resp)
	assert.Equal(t, "unavailable", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoRetry_NonRetryableStatusNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 5}))
	_, err := client.DeleteFile(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoRetry_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url, WithRetryPolicy(RetryPolicy{MaxRetries: 2}))
	resp, err := client.DeleteFile(context.Background(), "f1")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "gdrive: DELETE /files/f1")

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestDoRetry_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	resp, err := client.SearchFile(ctx, "x")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoRetry_SleepCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, WithRetryPolicy(RetryPolicy{MaxRetries: 3}))
	client.sleepFunc = func(context.Context, time.Duration) error {
		return context.DeadlineExceeded
	}

	resp, err := client.SearchFile(context.Background(), "x")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalcBackoff_Bounds(t *testing.T) {
	c := NewClient("tok", WithRetryPolicy(RetryPolicy{
		MaxRetries: 10,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}))

	for i := 0; i < 50; i++ {
		d := c.calcBackoff(0)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)

		capped := c.calcBackoff(20)
		assert.GreaterOrEqual(t, capped, 750*time.Millisecond)
		assert.LessOrEqual(t, capped, 1250*time.Millisecond)
	}
}

func TestCalcBackoff_DefaultDelays(t *testing.T) {
	c := NewClient("tok")

	d := c.calcBackoff(0)
	assert.GreaterOrEqual(t, d, 750*time.Millisecond)
	assert.LessOrEqual(t, d, 1250*time.Millisecond)
}

func TestTimeSleep_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeSleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeSleep_Elapses(t *testing.T) {
	assert.NoError(t, timeSleep(context.Background(), time.Millisecond))
}
