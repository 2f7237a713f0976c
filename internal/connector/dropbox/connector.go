// Package dropbox implements the online-drive contract for Dropbox. All
// calls go through the RPC-style v2 API; entry IDs are Dropbox "id:"
// values, which the download path resolves back through files/get_metadata.
package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "dropbox"

// DefaultLimit is the page size when the host does not request one.
const DefaultLimit = 100

const (
	apiBaseURL     = "https://api.dropboxapi.com/2"
	contentBaseURL = "https://content.dropboxapi.com/2"
)

// Config is the decoded credentials mapping for one Dropbox account.
type Config struct {
	AccessToken string `mapstructure:"access_token"`

	// ExpiresAt is the token's absolute expiry (unix seconds), when the
	// host reports one. Zero means unknown.
	ExpiresAt int64 `mapstructure:"expires_at"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return datasource.ConfigErrorf(Name, "access_token is required")
	}
	return nil
}

// Connector implements datasource.OnlineDrive for Dropbox.
type Connector struct {
	api     *httpx.Client
	content *httpx.Client
	logger  *zap.Logger
}

var _ datasource.OnlineDrive = (*Connector)(nil)

// New builds a connector from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*Connector, error) {
	var cfg Config
	if err := connector.DecodeCredentials(Name, creds, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var expiresAt time.Time
	if cfg.ExpiresAt > 0 {
		expiresAt = time.Unix(cfg.ExpiresAt, 0)
	}
	auth := httpx.ExpiringBearer{Token: httpx.NewStaticToken(cfg.AccessToken, expiresAt)}
	return &Connector{
		api:     httpx.NewClient(httpx.Config{BaseURL: apiBaseURL, Auth: auth}),
		content: httpx.NewClient(httpx.Config{BaseURL: contentBaseURL, Auth: auth, Timeout: httpx.DownloadTimeout}),
		logger:  logger,
	}, nil
}

// entry is the subset of Dropbox metadata the connector consumes.
type entry struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size"`
	ServerModified string `json:"server_modified"`
}

func (e *entry) isFolder() bool { return e.Tag == "folder" }

type listFolderResponse struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// ValidateCredentials probes the token with a current-account lookup.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.api.Post(ctx, "users/get_current_account", nil); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists one page of a folder. The prefix may be a display path
// or an "id:" value; either way browsing a file ID is rejected.
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	var out listFolderResponse

	if cursor := req.NextPageParameters["cursor"]; cursor != "" {
		resp, err := c.api.Post(ctx, "files/list_folder/continue", map[string]any{"cursor": cursor})
		if err != nil {
			return nil, wrapError("BrowseFiles", "", req.Prefix, err)
		}
		if err := resp.JSON(&out); err != nil {
			return nil, wrapError("BrowseFiles", "", req.Prefix, err)
		}
		return c.browsePage(req, out), nil
	}

	folderPath := req.Prefix
	if folderPath != "" {
		meta, err := c.getMetadata(ctx, folderPath)
		if err != nil {
			return nil, err
		}
		if !meta.isFolder() {
			return nil, datasource.ConfigErrorf(Name, "cannot browse %q: not a folder", folderPath)
		}
	}

	limit := req.MaxKeys
	if limit <= 0 {
		limit = DefaultLimit
	}
	resp, err := c.api.Post(ctx, "files/list_folder", map[string]any{
		"path":  folderPath,
		"limit": limit,
	})
	if err != nil {
		return nil, wrapError("BrowseFiles", "", req.Prefix, err)
	}
	if err := resp.JSON(&out); err != nil {
		return nil, wrapError("BrowseFiles", "", req.Prefix, err)
	}
	return c.browsePage(req, out), nil
}

func (c *Connector) browsePage(req datasource.BrowseFilesRequest, out listFolderResponse) *datasource.BrowseFilesResponse {
	files := make([]datasource.File, 0, len(out.Entries))
	for _, e := range out.Entries {
		kind := datasource.EntryFile
		if e.isFolder() {
			kind = datasource.EntryFolder
		}
		meta := map[string]any{
			"path": e.PathDisplay,
		}
		if e.ServerModified != "" {
			meta["last_modified"] = e.ServerModified
		}
		files = append(files, datasource.File{
			ID:       e.ID,
			Name:     e.Name,
			Size:     e.Size,
			Type:     kind,
			Metadata: meta,
		})
	}

	result := datasource.FileBucket{Bucket: req.Bucket, Files: files}
	if out.HasMore && out.Cursor != "" {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"cursor": out.Cursor}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}
}

func (c *Connector) getMetadata(ctx context.Context, id string) (*entry, error) {
	resp, err := c.api.Post(ctx, "files/get_metadata", map[string]any{"path": id})
	if err != nil {
		return nil, wrapError("GetMetadata", "", id, err)
	}
	var meta entry
	if err := resp.JSON(&meta); err != nil {
		return nil, wrapError("GetMetadata", "", id, err)
	}
	return &meta, nil
}

// DownloadFile resolves an "id:" value and fetches the file content in one
// piece through the content endpoint.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	meta, err := c.getMetadata(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if meta.isFolder() {
		return nil, datasource.ConfigErrorf(Name, "the specified ID is not a file: %s", req.ID)
	}

	arg, err := json.Marshal(map[string]string{"path": req.ID})
	if err != nil {
		return nil, wrapError("DownloadFile", "", req.ID, err)
	}
	resp, err := c.content.Do(ctx, &httpx.Request{
		Method: http.MethodPost,
		Path:   "files/download",
		Headers: map[string]string{
			"Dropbox-API-Arg": string(arg),
			"Content-Type":    "application/octet-stream",
		},
	})
	if err != nil {
		return nil, wrapError("DownloadFile", "", req.ID, err)
	}

	data := resp.Body
	if int64(len(data)) != meta.Size {
		c.logger.Warn("downloaded size differs from metadata",
			zap.String("id", req.ID),
			zap.Int64("expected", meta.Size), zap.Int("actual", len(data)))
	}
	return datasource.BlobStreamOf(&datasource.Blob{
		Data: data,
		Meta: datasource.BlobMeta{
			FileName: meta.Name,
			MimeType: guessMimeType(meta.Name),
			Size:     int64(len(data)),
		},
	}), nil
}

func guessMimeType(fileName string) string {
	if mt := mime.TypeByExtension(path.Ext(fileName)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// wrapError maps Dropbox failures. Dropbox signals path errors as HTTP 409
// with an error_summary, so that case is folded into not-found before the
// generic status mapping runs.
func wrapError(op, bucket, key string, err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		if strings.Contains(se.Body, "not_found") {
			return &datasource.ConnectorError{
				Connector: Name,
				Op:        op,
				Bucket:    bucket,
				Key:       key,
				Detail:    errorSummary(se.Body),
				Err:       datasource.ErrNotFound,
			}
		}
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        op,
			Bucket:    bucket,
			Key:       key,
			Detail:    errorSummary(se.Body),
			Err:       datasource.ErrUpstream,
		}
	}
	return httpx.WrapError(Name, op, bucket, key, err)
}

func errorSummary(body string) string {
	var payload struct {
		ErrorSummary string `json:"error_summary"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil && payload.ErrorSummary != "" {
		return payload.ErrorSummary
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}
