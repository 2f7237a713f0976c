package onedrive

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

func newTestConnector(t *testing.T, handler http.Handler) (*Connector, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: srv.URL,
			Auth:    httpx.Bearer{Token: "tok"},
		}),
		logger: zap.NewNop(),
	}, srv
}

func TestBrowseFilesRoot(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("$top"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []any{
				map[string]any{"id": "item1", "name": "docs", "folder": map[string]any{"childCount": 3}},
				map[string]any{"id": "item2", "name": "a.txt", "size": 7, "file": map[string]any{"mimeType": "text/plain"}},
			},
			"@odata.nextLink": srvURL + "/me/drive/root/children?$skiptoken=abc",
		})
	})

	c, srv := newTestConnector(t, mux)
	srvURL = srv.URL

	resp, err := c.BrowseFiles(t.Context(), datasource.BrowseFilesRequest{MaxKeys: 2})
	require.NoError(t, err)
	bucket := resp.Buckets[0]
	require.Len(t, bucket.Files, 2)
	assert.Equal(t, datasource.EntryFolder, bucket.Files[0].Type)
	assert.Equal(t, datasource.EntryFile, bucket.Files[1].Type)
	assert.Equal(t, "text/plain", bucket.Files[1].Metadata["mime_type"])
	assert.True(t, bucket.IsTruncated)
	assert.Contains(t, bucket.NextPageParameters["next_link"], "$skiptoken=abc")
}

func TestBrowseFilesFollowsNextLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("$skiptoken"))
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	})

	c, srv := newTestConnector(t, mux)
	resp, err := c.BrowseFiles(t.Context(), datasource.BrowseFilesRequest{
		NextPageParameters: map[string]string{
			"next_link": srv.URL + "/me/drive/root/children?$skiptoken=abc",
		},
	})
	require.NoError(t, err)
	assert.False(t, resp.Buckets[0].IsTruncated)
}

func TestDownloadSmallFile(t *testing.T) {
	content := []byte("hello graph")
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/items/item2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "item2", "name": "a.txt", "size": len(content),
			"file": map[string]any{"mimeType": "text/plain"},
		})
	})
	mux.HandleFunc("/me/drive/items/item2/content", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})

	c, _ := newTestConnector(t, mux)
	stream, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "item2"})
	require.NoError(t, err)
	require.True(t, stream.Next())
	blob := stream.Blob()
	assert.Equal(t, content, blob.Data)
	assert.Equal(t, "text/plain", blob.Meta.MimeType)
	assert.False(t, blob.Meta.IsPartial)
	assert.False(t, stream.Next())
}

func TestDownloadChunkedRanges(t *testing.T) {
	// Just past the small-file limit so the ranged path is taken.
	total := int64(datasource.SmallFileLimit) + 2*int64(datasource.RangeSize)
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/items/big", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "big", "name": "big.bin", "size": total,
			"file": map[string]any{"mimeType": "application/octet-stream"},
		})
	})
	mux.HandleFunc("/me/drive/items/big/content", func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		require.True(t, strings.HasPrefix(rangeHeader, "bytes="))
		var start, end int64
		_, err := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		require.NoError(t, err)
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, end-start+1))
	})

	c, _ := newTestConnector(t, mux)
	stream, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "big"})
	require.NoError(t, err)

	var sum int64
	var blobs []datasource.BlobMeta
	for stream.Next() {
		blob := stream.Blob()
		sum += int64(len(blob.Data))
		blobs = append(blobs, blob.Meta)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, total, sum)
	require.NotEmpty(t, blobs)
	assert.False(t, blobs[len(blobs)-1].IsPartial)
}

func TestDownloadFolderIDFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/items/item1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "item1", "name": "docs", "folder": map[string]any{"childCount": 3},
		})
	})

	c, _ := newTestConnector(t, mux)
	_, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "item1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a file")
}

func TestDownloadNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/items/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
	})

	c, _ := newTestConnector(t, mux)
	_, err := c.DownloadFile(t.Context(), datasource.DownloadFileRequest{ID: "gone"})
	require.Error(t, err)
	assert.True(t, datasource.IsNotFound(err))
}

func TestPageSizeDefault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		top, err := strconv.Atoi(r.URL.Query().Get("$top"))
		require.NoError(t, err)
		assert.Equal(t, DefaultPageSize, top)
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	})

	c, _ := newTestConnector(t, mux)
	_, err := c.BrowseFiles(t.Context(), datasource.BrowseFilesRequest{})
	require.NoError(t, err)
}

func TestExpiredTokenRejectedBeforeRequest(t *testing.T) {
	creds := datasource.Credentials{
		"access_token": "tok",
		"expires_at":   fmt.Sprintf("%d", time.Now().Add(-time.Minute).Unix()),
	}
	c, err := New(creds, nil)
	require.NoError(t, err)

	// The lapsed token fails before any request reaches Graph.
	_, err = c.BrowseFiles(t.Context(), datasource.BrowseFilesRequest{})
	require.Error(t, err)
	assert.True(t, datasource.IsAuthExpired(err))
}
