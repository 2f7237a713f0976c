package azureblob

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "account key ok",
			cfg:  Config{AuthMethod: AuthAccountKey, AccountName: "acct", AccountKey: "key"},
		},
		{
			name:    "account key missing key",
			cfg:     Config{AuthMethod: AuthAccountKey, AccountName: "acct"},
			wantErr: true,
		},
		{
			name: "sas ok",
			cfg:  Config{AuthMethod: AuthSASToken, AccountName: "acct", SASToken: "sv=2024"},
		},
		{
			name:    "sas missing account",
			cfg:     Config{AuthMethod: AuthSASToken, SASToken: "sv=2024"},
			wantErr: true,
		},
		{
			name: "connection string ok",
			cfg:  Config{AuthMethod: AuthConnectionString, ConnectionString: "DefaultEndpointsProtocol=https;AccountName=a;AccountKey=k"},
		},
		{
			name: "oauth ok",
			cfg:  Config{AuthMethod: AuthOAuth, AccountName: "acct", AccessToken: "tok"},
		},
		{
			name:    "missing method",
			cfg:     Config{AccountName: "acct"},
			wantErr: true,
		},
		{
			name:    "unknown method",
			cfg:     Config{AuthMethod: "managed_identity", AccountName: "acct"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, datasource.IsConfiguration(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNormalizeSAS(t *testing.T) {
	assert.Equal(t, "?sv=2024&sig=x", normalizeSAS("sv=2024&sig=x"))
	assert.Equal(t, "?sv=2024&sig=x", normalizeSAS("?sv=2024&sig=x"))
	assert.Equal(t, "", normalizeSAS(""))
}

func TestNewRejectsExpiringOAuthToken(t *testing.T) {
	creds := datasource.Credentials{
		"auth_method":  "oauth",
		"account_name": "acct",
		"access_token": "tok",
		"expires_at":   fmt.Sprintf("%d", time.Now().Add(2*time.Minute).Unix()),
	}
	_, err := New(creds, nil)
	require.Error(t, err)
	assert.True(t, datasource.IsAuthExpired(err))
}

func TestNewAcceptsFreshOAuthToken(t *testing.T) {
	creds := datasource.Credentials{
		"auth_method":  "oauth",
		"account_name": "acct",
		"access_token": "tok",
		"expires_at":   fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()),
	}
	conn, err := New(creds, nil)
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestChildSegment(t *testing.T) {
	tests := []struct {
		full, prefix, want string
	}{
		{"docs/", "", "docs"},
		{"docs/reports/", "docs/", "reports"},
		{"docs/reports/2024/", "docs/", "reports"},
		{"docs/", "docs/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, childSegment(tt.full, tt.prefix), "childSegment(%q, %q)", tt.full, tt.prefix)
	}
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", guessMimeType("report.pdf"))
	assert.Equal(t, "application/octet-stream", guessMimeType("data.unknownext"))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "401 maps to auth expired",
			err:  &azcore.ResponseError{StatusCode: http.StatusUnauthorized, ErrorCode: "InvalidAuthenticationInfo"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsAuthExpired(err))
			},
		},
		{
			name: "403 AuthenticationFailed maps to auth expired",
			err:  &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: "AuthenticationFailed"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsAuthExpired(err))
			},
		},
		{
			name: "404 maps to not found",
			err:  &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "BlobNotFound"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsNotFound(err))
			},
		},
		{
			name: "429 maps to rate limited",
			err:  &azcore.ResponseError{StatusCode: http.StatusTooManyRequests, ErrorCode: "ServerBusy"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsRateLimited(err))
			},
		},
		{
			name: "expired token from credential plumbing passes through",
			err:  fmt.Errorf("running Prepare: %w", datasource.ErrAuthExpired),
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsAuthExpired(err))
			},
		},
		{
			name: "other errors stay upstream",
			err:  errors.New("dial tcp: connection refused"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, datasource.ErrUpstream)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapError("DownloadFile", "docs", "a.txt", tt.err)
			var ce *datasource.ConnectorError
			require.ErrorAs(t, wrapped, &ce)
			assert.Equal(t, Name, ce.Connector)
			assert.Equal(t, "docs", ce.Bucket)
			tt.check(t, wrapped)
		})
	}
}

// wellKnownKey is the Azurite development account key.
const wellKnownKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="

func newEndpointConnector(t *testing.T, endpoint string) *Connector {
	t.Helper()
	creds := datasource.Credentials{
		"auth_method": "connection_string",
		"connection_string": fmt.Sprintf(
			"DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=%s;BlobEndpoint=%s/devstoreaccount1;",
			wellKnownKey, endpoint),
	}
	conn, err := New(creds, nil)
	require.NoError(t, err)
	return conn
}

func TestResolveScopeReparsesPrefixIntoContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/devstoreaccount1/mycontainer" && r.URL.Query().Get("restype") == "container" {
			w.Header().Set("ETag", `"0x1"`)
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("x-ms-error-code", "ContainerNotFound")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	conn := newEndpointConnector(t, srv.URL)
	bucket, prefix := conn.resolveScope(t.Context(), "", "mycontainer/docs/reports/")
	assert.Equal(t, "mycontainer", bucket)
	assert.Equal(t, "docs/reports/", prefix)
}

func TestResolveScopeKeepsLiteralWhenProbeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", "ContainerNotFound")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	conn := newEndpointConnector(t, srv.URL)
	bucket, prefix := conn.resolveScope(t.Context(), "", "mycontainer/docs/")
	assert.Equal(t, "", bucket)
	assert.Equal(t, "mycontainer/docs/", prefix)
}

func TestResolveScopeSkipsProbeWithExplicitBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	}))
	defer srv.Close()

	conn := newEndpointConnector(t, srv.URL)
	bucket, prefix := conn.resolveScope(t.Context(), "docs", "reports/")
	assert.Equal(t, "docs", bucket)
	assert.Equal(t, "reports/", prefix)
}

func TestDownloadFileRejectsBareContainerID(t *testing.T) {
	c := &Connector{}
	_, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "justacontainer"})
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}
