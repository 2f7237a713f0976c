package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Datasources serves browse and download for drive connectors. Each
// request carries the credentials it should run with; the server holds
// no credential state.
type Datasources struct {
	registry *connector.Registry
	logger   *zap.Logger
}

// NewDatasources builds the handler group.
func NewDatasources(registry *connector.Registry, logger *zap.Logger) *Datasources {
	return &Datasources{registry: registry, logger: logger}
}

// BrowseRequest is the browse endpoint body.
type BrowseRequest struct {
	Credentials        map[string]string `json:"credentials"`
	Bucket             string            `json:"bucket,omitempty"`
	Prefix             string            `json:"prefix,omitempty"`
	MaxKeys            int               `json:"max_keys,omitempty"`
	NextPageParameters map[string]string `json:"next_page_parameters,omitempty"`
}

// BrowseResponse mirrors the connector browse result.
type BrowseResponse struct {
	Buckets []BrowseBucket `json:"buckets"`
}

// BrowseBucket is one bucket's entries plus pagination state.
type BrowseBucket struct {
	Bucket             string            `json:"bucket,omitempty"`
	Files              []BrowseEntry     `json:"files"`
	IsTruncated        bool              `json:"is_truncated"`
	NextPageParameters map[string]string `json:"next_page_parameters,omitempty"`
}

// BrowseEntry is one listing entry.
type BrowseEntry struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Size      int64          `json:"size"`
	EntryType string         `json:"entry_type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DownloadRequest is the download endpoint body.
type DownloadRequest struct {
	Credentials map[string]string `json:"credentials"`
	ID          string            `json:"id"`
}

// Browse handles POST /v1/datasources/{name}/browse.
func (h *Datasources) Browse(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")

	var req BrowseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return datasource.ConfigErrorf(name, "malformed request body: %v", err)
	}

	drive, err := h.registry.Drive(name, credentials(req.Credentials), h.logger)
	if err != nil {
		return err
	}

	resp, err := drive.BrowseFiles(r.Context(), datasource.BrowseFilesRequest{
		Bucket:             req.Bucket,
		Prefix:             req.Prefix,
		MaxKeys:            req.MaxKeys,
		NextPageParameters: req.NextPageParameters,
	})
	if err != nil {
		return err
	}

	out := BrowseResponse{Buckets: make([]BrowseBucket, 0, len(resp.Buckets))}
	for _, bucket := range resp.Buckets {
		entries := make([]BrowseEntry, 0, len(bucket.Files))
		for _, f := range bucket.Files {
			entries = append(entries, BrowseEntry{
				ID:        f.ID,
				Name:      f.Name,
				Size:      f.Size,
				EntryType: string(f.Type),
				Metadata:  f.Metadata,
			})
		}
		out.Buckets = append(out.Buckets, BrowseBucket{
			Bucket:             bucket.Bucket,
			Files:              entries,
			IsTruncated:        bucket.IsTruncated,
			NextPageParameters: bucket.NextPageParameters,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(out)
}

// Download handles POST /v1/datasources/{name}/download. Content is
// streamed chunk by chunk as it arrives from the vendor; headers carry
// the file name and MIME type from the first chunk.
func (h *Datasources) Download(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return datasource.ConfigErrorf(name, "malformed request body: %v", err)
	}
	if req.ID == "" {
		return datasource.ConfigErrorf(name, "id is required")
	}

	drive, err := h.registry.Drive(name, credentials(req.Credentials), h.logger)
	if err != nil {
		return err
	}

	stream, err := drive.DownloadFile(r.Context(), datasource.DownloadFileRequest{ID: req.ID})
	if err != nil {
		return err
	}

	started := false
	for stream.Next() {
		blob := stream.Blob()
		if !started {
			started = true
			mime := blob.Meta.MimeType
			if mime == "" {
				mime = "application/octet-stream"
			}
			w.Header().Set("Content-Type", mime)
			if blob.Meta.FileName != "" {
				w.Header().Set("Content-Disposition",
					fmt.Sprintf("attachment; filename=%s", strconv.Quote(blob.Meta.FileName)))
			}
			if !blob.Meta.IsPartial {
				w.Header().Set("Content-Length", strconv.FormatInt(int64(len(blob.Data)), 10))
			}
		}
		if _, err := w.Write(blob.Data); err != nil {
			// Client went away; nothing sensible left to send.
			return nil
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	if err := stream.Err(); err != nil {
		if started {
			// Headers are gone; the truncated body is the only signal.
			h.logger.Error("Download stream failed mid-body",
				zap.String("connector", name), zap.String("id", req.ID), zap.Error(err))
			return nil
		}
		return err
	}
	if !started {
		return datasource.ConfigErrorf(name, "download produced no content")
	}
	return nil
}

func credentials(m map[string]string) datasource.Credentials {
	creds := make(datasource.Credentials, len(m))
	for k, v := range m {
		creds[k] = v
	}
	return creds
}
