package s3

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// mockAPIError implements smithy.APIError for error-mapping tests.
type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.code + ": " + e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestConfigValidate(t *testing.T) {
	cfg := Config{AccessKeyID: "AKIA", SecretAccessKey: "secret"}
	assert.NoError(t, cfg.Validate())

	cfg = Config{AccessKeyID: "AKIA"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestResolveRegion(t *testing.T) {
	tests := []struct {
		name             string
		region, endpoint string
		want             string
	}{
		{"explicit wins", "eu-west-1", "", "eu-west-1"},
		{"aws defaults", "", "", DefaultRegion},
		{"compatible store gets none", "", "https://minio.local:9000", ""},
		{"explicit with endpoint", "ap-east-1", "https://minio.local:9000", "ap-east-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRegion(tt.region, tt.endpoint))
		})
	}
}

func TestClampMaxKeys(t *testing.T) {
	assert.Equal(t, DefaultMaxKeys, clampMaxKeys(0))
	assert.Equal(t, DefaultMaxKeys, clampMaxKeys(-5))
	assert.Equal(t, 250, clampMaxKeys(250))
	assert.Equal(t, MaxAllowedKeys, clampMaxKeys(5000))
}

func TestCleanETag(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", cleanETag(`"d41d8cd98f00b204e9800998ecf8427e"`))
	assert.Equal(t, "abc", cleanETag("abc"))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{
			name: "NoSuchKey maps to not found",
			err:  &mockAPIError{code: "NoSuchKey", message: "key missing"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsNotFound(err))
			},
		},
		{
			name: "NoSuchBucket maps to not found",
			err:  &mockAPIError{code: "NoSuchBucket", message: "bucket missing"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsNotFound(err))
			},
		},
		{
			name: "bad signature maps to invalid credentials",
			err:  &mockAPIError{code: "SignatureDoesNotMatch", message: "bad signature"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsInvalidCredentials(err))
			},
		},
		{
			name: "expired token maps to auth expired",
			err:  &mockAPIError{code: "ExpiredToken", message: "token expired"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsAuthExpired(err))
			},
		},
		{
			name: "throttling maps to rate limited",
			err:  &mockAPIError{code: "SlowDown", message: "slow down"},
			check: func(t *testing.T, err error) {
				assert.True(t, datasource.IsRateLimited(err))
			},
		},
		{
			name: "unknown code stays upstream",
			err:  &mockAPIError{code: "WhoKnows", message: "???"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, datasource.ErrUpstream)
			},
		},
		{
			name: "transport error stays upstream",
			err:  errors.New("dial tcp: i/o timeout"),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, datasource.ErrUpstream)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapError("BrowseFiles", "mybucket", "a/b.txt", tt.err)
			var ce *datasource.ConnectorError
			require.ErrorAs(t, wrapped, &ce)
			assert.Equal(t, Name, ce.Connector)
			assert.Equal(t, "mybucket", ce.Bucket)
			tt.check(t, wrapped)
		})
	}
}

func TestDownloadFileRejectsBareBucketID(t *testing.T) {
	c := &Connector{}
	_, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "mybucket"})
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}
