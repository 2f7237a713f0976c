// Package handlers implements the HTTP connector service endpoints.
// Handlers return errors; the adapter maps them onto the connector error
// taxonomy and renders one uniform JSON error envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/output"
)

// HTTPErrorResponse is the JSON error envelope.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// HTTPError carries the machine-readable code and the human message.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIFunc is a handler that reports failure by returning an error.
type APIFunc func(w http.ResponseWriter, r *http.Request) error

// Adapt converts an APIFunc into an http.Handler, translating returned
// errors into status codes and the JSON envelope.
func Adapt(logger *zap.Logger, fn APIFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		status := StatusFor(err)
		if status >= 500 {
			logger.Error("Request failed",
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Error(err))
		}

		var ce *datasource.ConnectorError
		if errors.As(err, &ce) && ce.RetryAfter > 0 {
			w.Header().Set("Retry-After", retryAfterSeconds(ce.RetryAfter))
		}
		WriteJSONError(w, status, output.ErrorCode(err), err.Error())
	})
}

// StatusFor maps a connector error onto an HTTP status code.
func StatusFor(err error) int {
	switch output.ErrorCode(err) {
	case output.ErrCodeConfiguration:
		return http.StatusBadRequest
	case output.ErrCodeAuthExpired:
		return http.StatusUnauthorized
	case output.ErrCodeNotFound:
		return http.StatusNotFound
	case output.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case output.ErrCodeUnsupported:
		return http.StatusConflict
	case output.ErrCodeIntegrity, output.ErrCodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSONError renders the error envelope.
func WriteJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{Code: code, Message: message},
	})
}

// NotFound is the router's fallback handler.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteJSONError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
}

// MethodNotAllowed is the router's wrong-method handler.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
