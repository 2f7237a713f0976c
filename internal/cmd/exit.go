package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
)

// codedError carries a foundry exit code from a command's RunE back to
// main without losing the underlying error chain.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// exitError wraps err so the process exits with the given foundry code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, err: fmt.Errorf("%s: %w", message, err)}
}

// ExitCode maps a command error onto the foundry exit-code taxonomy. An
// explicit exitError wins; otherwise the connector and invoke error
// classes decide. Unclassified failures exit 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case datasource.IsConfiguration(err), llm.IsBadRequest(err):
		return foundry.ExitInvalidArgument
	case datasource.IsNotFound(err):
		return foundry.ExitFileNotFound
	case datasource.IsAuthExpired(err), datasource.IsInvalidCredentials(err),
		datasource.IsRateLimited(err), errors.Is(err, datasource.ErrUpstream),
		llm.IsAuthorization(err), llm.IsRateLimit(err),
		llm.IsServerUnavailable(err), llm.IsConnection(err):
		return foundry.ExitExternalServiceUnavailable
	}
	return 1
}
