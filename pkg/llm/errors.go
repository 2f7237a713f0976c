package llm

import (
	"errors"
	"fmt"
)

// Invoke-error taxonomy. Every vendor failure is classified into exactly
// one of these before reaching the host.
var (
	// ErrConnection covers timeouts, TLS failures, and refused
	// connections.
	ErrConnection = errors.New("connection error")

	// ErrAuthorization covers invalid or expired API keys and tokens.
	ErrAuthorization = errors.New("authorization error")

	// ErrBadRequest covers malformed parameters and unsupported features.
	ErrBadRequest = errors.New("bad request")

	// ErrRateLimit covers 429 and quota-exhausted signals.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrServerUnavailable covers 5xx and vendor-declared outages.
	ErrServerUnavailable = errors.New("server unavailable")
)

// InvokeError wraps a classified model invocation failure.
type InvokeError struct {
	// Provider is the adapter name.
	Provider string

	// Model is the requested model, when known.
	Model string

	// Kind is one of the taxonomy sentinels above.
	Kind error

	// Err is the underlying vendor error.
	Err error
}

// Error implements the error interface.
func (e *InvokeError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Provider, e.Model, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

// Unwrap exposes the taxonomy sentinel so errors.Is works against Kind.
func (e *InvokeError) Unwrap() error {
	return e.Kind
}

// IsConnection reports whether err classifies as a connection failure.
func IsConnection(err error) bool { return errors.Is(err, ErrConnection) }

// IsAuthorization reports whether err classifies as an auth failure.
func IsAuthorization(err error) bool { return errors.Is(err, ErrAuthorization) }

// IsBadRequest reports whether err classifies as a bad request.
func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }

// IsRateLimit reports whether err classifies as a rate limit.
func IsRateLimit(err error) bool { return errors.Is(err, ErrRateLimit) }

// IsServerUnavailable reports whether err classifies as a vendor outage.
func IsServerUnavailable(err error) bool { return errors.Is(err, ErrServerUnavailable) }
