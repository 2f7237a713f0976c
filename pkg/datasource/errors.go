package datasource

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for connector operations.
var (
	// ErrConfiguration indicates a required credential field is missing or
	// malformed. Raised before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidCredentials indicates a live credential probe failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAuthExpired indicates the vendor rejected the token (401). Never
	// retried automatically; the user must re-authenticate.
	ErrAuthExpired = errors.New("authentication expired, please re-authenticate")

	// ErrNotFound indicates the container, path, file, or page does not
	// exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the vendor throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrIntegrity indicates downloaded bytes do not match the declared
	// size.
	ErrIntegrity = errors.New("size mismatch")

	// ErrUnsupportedState indicates the object cannot be served in its
	// current vendor-side state (for example an archive-tier blob that
	// needs rehydration).
	ErrUnsupportedState = errors.New("object state does not permit download")

	// ErrUpstream indicates any other non-2xx response or SDK failure.
	ErrUpstream = errors.New("upstream error")
)

// ConnectorError wraps connector failures with identifying context.
type ConnectorError struct {
	// Connector is the connector name (e.g., "azure_blob").
	Connector string

	// Op is the operation that failed (e.g., "BrowseFiles").
	Op string

	// Bucket and Key identify the object, when applicable.
	Bucket string
	Key    string

	// RetryAfter is the vendor-suggested wait, when provided (rate
	// limits). Zero when unknown.
	RetryAfter time.Duration

	// Detail is the vendor status code and truncated response body, when
	// available.
	Detail string

	// Err is the sentinel (or underlying) error.
	Err error
}

// Error implements the error interface.
func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Connector, e.Op)
	if e.Bucket != "" {
		msg += ": " + e.Bucket
	}
	if e.Key != "" {
		msg += "/" + e.Key
	}
	msg += fmt.Sprintf(": %v", e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInvalidCredentials reports whether err is a credential-probe failure.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsAuthExpired reports whether err is an expired-authentication error.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsIntegrity reports whether err is a size-mismatch error.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// ConfigErrorf builds a configuration ConnectorError naming the offending
// field or value.
func ConfigErrorf(connector, format string, args ...any) error {
	return &ConnectorError{
		Connector: connector,
		Op:        "Configure",
		Detail:    fmt.Sprintf(format, args...),
		Err:       ErrConfiguration,
	}
}
