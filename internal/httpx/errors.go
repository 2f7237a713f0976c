package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Headers    http.Header
	Body       string
}

// Error implements the error interface. Bodies are truncated so vendor
// HTML error pages don't flood logs.
func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// RetryAfter returns the vendor-suggested wait, when present. GitHub-style
// X-RateLimit-Reset epochs are also honored.
func (e *StatusError) RetryAfter() time.Duration {
	if v := e.Headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if e.Headers.Get("X-RateLimit-Remaining") == "0" {
		if v := e.Headers.Get("X-RateLimit-Reset"); v != "" {
			if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
				wait := time.Until(time.Unix(reset, 0)) + time.Second
				if wait < time.Minute {
					wait = time.Minute
				}
				return wait
			}
		}
	}
	return 0
}

// isRateLimit reports whether the response is a throttling signal: either
// a plain 429 or GitHub's 403-with-exhausted-quota variant.
func (e *StatusError) isRateLimit() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode == http.StatusForbidden && e.Headers.Get("X-RateLimit-Remaining") == "0"
}

// WrapError maps an HTTP-level failure into the connector error taxonomy.
// Non-StatusError failures (transport errors) pass through wrapped as
// upstream errors.
func WrapError(connector, op, bucket, key string, err error) error {
	ce := &datasource.ConnectorError{
		Connector: connector,
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Err:       datasource.ErrUpstream,
	}

	var se *StatusError
	if !errors.As(err, &se) {
		if errors.Is(err, datasource.ErrAuthExpired) {
			ce.Err = datasource.ErrAuthExpired
			return ce
		}
		ce.Detail = err.Error()
		return ce
	}

	ce.Detail = se.Error()
	switch {
	case se.StatusCode == http.StatusUnauthorized:
		ce.Err = datasource.ErrAuthExpired
	case se.StatusCode == http.StatusNotFound:
		ce.Err = datasource.ErrNotFound
	case se.isRateLimit():
		ce.Err = datasource.ErrRateLimited
		ce.RetryAfter = se.RetryAfter()
	}
	return ce
}
