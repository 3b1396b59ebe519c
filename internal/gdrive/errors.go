// Package gdrive provides a thin HTTP client for the Google Drive v3 REST API.
// Every public operation issues exactly one request (plus opt-in retries) and
// surfaces the raw response alongside a classified error.
package gdrive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gdrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gdrive: bad request")
	ErrUnauthorized = errors.New("gdrive: unauthorized")
	ErrForbidden    = errors.New("gdrive: forbidden")
	ErrNotFound     = errors.New("gdrive: not found")
	ErrConflict     = errors.New("gdrive: conflict")
	ErrThrottled    = errors.New("gdrive: throttled")
	ErrServerError  = errors.New("gdrive: server error")
)

// ErrLocalFileNotFound is returned by UploadFile when the source path does not
// exist. No request is sent in that case.
var ErrLocalFileNotFound = errors.New("gdrive: local file not found")

// APIError describes a non-2xx response. The Response returned next to it
// carries the same status and the raw body.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string           // first reason of the Google error envelope, if any
	Google     *googleapi.Error // decoded envelope; Message is empty when the body was not JSON
	Err        error            // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gdrive: HTTP %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}

	return fmt.Sprintf("gdrive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a buffered non-2xx response. The body is
// decoded through googleapi.CheckResponse so the Drive error envelope
// ({"error":{"code":..,"message":..,"errors":[..]}}) is understood.
func newAPIError(r *Response) *APIError {
	apiErr := &APIError{
		StatusCode: r.StatusCode,
		Err:        classifyStatus(r.StatusCode),
	}

	raw := &http.Response{
		StatusCode: r.StatusCode,
		Header:     r.Header,
		Body:       io.NopCloser(bytes.NewReader(r.Body)),
	}

	var gerr *googleapi.Error
	if errors.As(googleapi.CheckResponse(raw), &gerr) {
		apiErr.Google = gerr
		apiErr.Message = gerr.Message

		if len(gerr.Errors) > 0 {
			apiErr.Reason = gerr.Errors[0].Reason
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(r.Body))
	}

	return apiErr
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code may be retried when
// the client has a non-zero RetryPolicy.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
