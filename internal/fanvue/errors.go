package fanvue

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrUnauthorized is matched by every 401 response. The access token is no
// longer accepted and must be refreshed.
var ErrUnauthorized = errors.New("fanvue: unauthorized")

// APIError is a non-2xx response other than 429.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fanvue: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Temporary reports whether the request may succeed when repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// RateLimit is the quota information read from one response.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
	// Known is false when the upstream sent no rate-limit headers.
	Known bool
}

// RateLimitError is returned once a 429 persisted through every retry. The
// affected unit of work should pause, not fail permanently.
type RateLimitError struct {
	Path      string
	RateLimit RateLimit
	Wait      time.Duration
	Attempts  int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("fanvue: rate limited on %s after %d attempts (remaining %d, retry in %s)",
		e.Path, e.Attempts, e.RateLimit.Remaining, e.Wait)
}

// RetryAfter lets the retry policy wait for the announced reset.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Wait
}

// PartialError reports a paginated fetch that failed after some pages had
// already been delivered to the caller.
type PartialError struct {
	Pages   int
	Records int
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("fanvue: fetch stopped after %d pages (%d records): %v", e.Pages, e.Records, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err carries an exhausted 429.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsTemporary reports whether err is a transient upstream or network error.
func IsTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
