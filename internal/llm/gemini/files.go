package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/internal/uploadcache"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// uploadTTL is slightly under the Files API's 48-hour handle lifetime so a
// cached handle never outlives the upload it points at.
const uploadTTL = 47 * time.Hour

// activePollInterval and activePollLimit bound the wait for an uploaded
// file to finish server-side processing.
const (
	activePollInterval = 500 * time.Millisecond
	activePollLimit    = 20
)

type fileResource struct {
	Name  string `json:"name"`
	URI   string `json:"uri"`
	State string `json:"state"`
}

// uploadFile pushes raw bytes to the Files API and returns the file URI.
// Content-identical uploads within the handle lifetime are served from the
// cache.
func (a *Adapter) uploadFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	key := uploadcache.ContentKey(data)
	if uri, ok := a.cache.Get(key); ok {
		a.logger.Debug("upload cache hit", zap.String("key", key[:12]))
		return uri, nil
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	resp, err := a.client.Do(ctx, &httpx.Request{
		Method: "POST",
		Path:   a.baseURL + "/upload/" + apiVersion + "/files",
		Headers: map[string]string{
			"X-Goog-Upload-Protocol": "raw",
			"Content-Type":           mimeType,
		},
		Body: bytes.NewReader(data),
	})
	if err != nil {
		return "", a.wrapError("", err)
	}
	var result struct {
		File fileResource `json:"file"`
	}
	if err := resp.JSON(&result); err != nil {
		return "", a.wrapError("", err)
	}
	if result.File.URI == "" {
		return "", &datasource.ConnectorError{
			Connector: Name,
			Op:        "uploadFile",
			Detail:    "upload response missing file URI",
			Err:       datasource.ErrUpstream,
		}
	}

	if err := a.waitActive(ctx, &result.File); err != nil {
		return "", err
	}

	a.cache.Set(key, result.File.URI, uploadTTL)
	return result.File.URI, nil
}

// waitActive polls until an uploaded file leaves the PROCESSING state.
func (a *Adapter) waitActive(ctx context.Context, file *fileResource) error {
	for i := 0; file.State == "PROCESSING" && i < activePollLimit; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(activePollInterval):
		}
		resp, err := a.client.Get(ctx, file.Name, nil)
		if err != nil {
			return a.wrapError("", err)
		}
		if err := resp.JSON(file); err != nil {
			return a.wrapError("", err)
		}
	}
	if file.State == "FAILED" {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "uploadFile",
			Detail:    "file processing failed upstream",
			Err:       datasource.ErrUpstream,
		}
	}
	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, "cirrus")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "gemini-uploads.json")
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func unmarshal(payload string, target any) error {
	return json.Unmarshal([]byte(payload), target)
}
