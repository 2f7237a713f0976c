package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

func TestStatusFor(t *testing.T) {
	wrap := func(sentinel error) error {
		return &datasource.ConnectorError{Connector: "s3", Op: "BrowseFiles", Err: sentinel}
	}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", datasource.ConfigErrorf("s3", "missing key"), http.StatusBadRequest},
		{"auth expired", wrap(datasource.ErrAuthExpired), http.StatusUnauthorized},
		{"not found", wrap(datasource.ErrNotFound), http.StatusNotFound},
		{"rate limited", wrap(datasource.ErrRateLimited), http.StatusTooManyRequests},
		{"unsupported state", wrap(datasource.ErrUnsupportedState), http.StatusConflict},
		{"integrity", wrap(datasource.ErrIntegrity), http.StatusBadGateway},
		{"upstream", wrap(datasource.ErrUpstream), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestAdaptEnvelope(t *testing.T) {
	h := Adapt(zap.NewNop(), func(http.ResponseWriter, *http.Request) error {
		return &datasource.ConnectorError{
			Connector: "s3", Op: "DownloadFile", Key: "a.csv",
			Err: datasource.ErrNotFound,
		}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Contains(t, body.Error.Message, "a.csv")
}

func TestAdaptRetryAfter(t *testing.T) {
	h := Adapt(zap.NewNop(), func(http.ResponseWriter, *http.Request) error {
		return &datasource.ConnectorError{
			Connector: "s3", Op: "BrowseFiles",
			RetryAfter: 30 * time.Second,
			Err:        datasource.ErrRateLimited,
		}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestAdaptSuccessWritesNothingExtra(t *testing.T) {
	h := Adapt(zap.NewNop(), func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
