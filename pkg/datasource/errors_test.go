package datasource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectorErrorMessage(t *testing.T) {
	err := &ConnectorError{
		Connector: "azure_blob",
		Op:        "DownloadFile",
		Bucket:    "docs",
		Key:       "report.pdf",
		Detail:    "BlobNotFound (HTTP 404)",
		Err:       ErrNotFound,
	}
	msg := err.Error()
	assert.Contains(t, msg, "azure_blob DownloadFile")
	assert.Contains(t, msg, "docs/report.pdf")
	assert.Contains(t, msg, "not found")
	assert.Contains(t, msg, "BlobNotFound")
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name      string
		sentinel  error
		predicate func(error) bool
	}{
		{"configuration", ErrConfiguration, IsConfiguration},
		{"invalid credentials", ErrInvalidCredentials, IsInvalidCredentials},
		{"auth expired", ErrAuthExpired, IsAuthExpired},
		{"not found", ErrNotFound, IsNotFound},
		{"rate limited", ErrRateLimited, IsRateLimited},
		{"integrity", ErrIntegrity, IsIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := &ConnectorError{Connector: "x", Op: "Op", Err: tt.sentinel}
			assert.True(t, tt.predicate(wrapped))
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.False(t, tt.predicate(errors.New("other")))
		})
	}
}

func TestConfigErrorf(t *testing.T) {
	err := ConfigErrorf("dropbox", "missing field %q", "access_token")
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `missing field "access_token"`)
	assert.Contains(t, err.Error(), "dropbox")
}
