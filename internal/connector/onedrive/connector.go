// Package onedrive implements the online-drive contract for OneDrive and
// SharePoint personal drives through the Microsoft Graph v1.0 API. Entry
// IDs are Graph item IDs; continuation uses the opaque @odata.nextLink.
package onedrive

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "onedrive"

// DefaultPageSize is the $top value when the host does not request one.
const DefaultPageSize = 100

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Config is the decoded credentials mapping for one OneDrive account.
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

// Connector implements datasource.OnlineDrive for OneDrive.
type Connector struct {
	client *httpx.Client
	logger *zap.Logger
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
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: graphBaseURL,
			Auth:    httpx.ExpiringBearer{Token: httpx.NewStaticToken(cfg.AccessToken, expiresAt)},
			Timeout: httpx.DownloadTimeout,
		}),
		logger: logger,
	}, nil
}

// folderFacet marks a Graph item as a folder.
type folderFacet struct {
	ChildCount int `json:"childCount"`
}

// fileFacet carries the Graph-detected MIME type.
type fileFacet struct {
	MimeType string `json:"mimeType"`
}

// driveItem is the subset of Graph item metadata the connector consumes.
type driveItem struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Size                 int64        `json:"size"`
	LastModifiedDateTime string       `json:"lastModifiedDateTime"`
	Folder               *folderFacet `json:"folder"`
	File                 *fileFacet   `json:"file"`
}

func (i *driveItem) isFolder() bool { return i.Folder != nil }

type childrenResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ValidateCredentials probes the token with a drive lookup.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.client.Get(ctx, "me/drive", nil); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists one page of children under the prefix item ID (drive
// root when empty). The @odata.nextLink continuation is passed through
// opaquely.
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	var resp *httpx.Response
	var err error

	if next := req.NextPageParameters["next_link"]; next != "" {
		// Absolute continuation URL from the previous page.
		resp, err = c.client.Get(ctx, next, nil)
	} else {
		listPath := "me/drive/root/children"
		if req.Prefix != "" {
			listPath = fmt.Sprintf("me/drive/items/%s/children", req.Prefix)
		}
		pageSize := req.MaxKeys
		if pageSize <= 0 {
			pageSize = DefaultPageSize
		}
		query := url.Values{"$top": []string{strconv.Itoa(pageSize)}}
		resp, err = c.client.Get(ctx, listPath, query)
	}
	if err != nil {
		return nil, httpx.WrapError(Name, "BrowseFiles", req.Bucket, req.Prefix, err)
	}

	var out childrenResponse
	if err := resp.JSON(&out); err != nil {
		return nil, httpx.WrapError(Name, "BrowseFiles", req.Bucket, req.Prefix, err)
	}

	files := make([]datasource.File, 0, len(out.Value))
	for _, item := range out.Value {
		kind := datasource.EntryFile
		meta := map[string]any{}
		if item.isFolder() {
			kind = datasource.EntryFolder
		} else if item.File != nil && item.File.MimeType != "" {
			meta["mime_type"] = item.File.MimeType
		}
		if item.LastModifiedDateTime != "" {
			meta["last_modified"] = item.LastModifiedDateTime
		}
		files = append(files, datasource.File{
			ID:       item.ID,
			Name:     item.Name,
			Size:     item.Size,
			Type:     kind,
			Metadata: meta,
		})
	}

	result := datasource.FileBucket{Bucket: req.Bucket, Files: files}
	if out.NextLink != "" {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"next_link": out.NextLink}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

// DownloadFile fetches item metadata, then the content endpoint. Large
// files are fetched in ranged reads.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("me/drive/items/%s", req.ID), nil)
	if err != nil {
		return nil, httpx.WrapError(Name, "DownloadFile", "", req.ID, err)
	}
	var item driveItem
	if err := resp.JSON(&item); err != nil {
		return nil, httpx.WrapError(Name, "DownloadFile", "", req.ID, err)
	}
	if item.isFolder() {
		return nil, datasource.ConfigErrorf(Name, "the specified ID is not a file: %s", req.ID)
	}

	mimeType := ""
	if item.File != nil {
		mimeType = item.File.MimeType
	}
	if mimeType == "" {
		mimeType = guessMimeType(item.Name)
	}
	contentPath := fmt.Sprintf("me/drive/items/%s/content", req.ID)

	if item.Size < datasource.SmallFileLimit {
		return c.downloadSmall(ctx, contentPath, req.ID, item.Name, mimeType, item.Size)
	}
	return c.downloadChunked(ctx, contentPath, req.ID, item.Name, mimeType, item.Size), nil
}

func (c *Connector) downloadSmall(ctx context.Context, contentPath, id, name, mimeType string, size int64) (*datasource.BlobStream, error) {
	resp, err := c.client.Get(ctx, contentPath, nil)
	if err != nil {
		return nil, httpx.WrapError(Name, "DownloadFile", "", id, err)
	}
	data := resp.Body
	if int64(len(data)) != size {
		c.logger.Warn("downloaded size differs from item metadata",
			zap.String("id", id),
			zap.Int64("expected", size), zap.Int("actual", len(data)))
	}
	return datasource.BlobStreamOf(&datasource.Blob{
		Data: data,
		Meta: datasource.BlobMeta{
			FileName: name,
			MimeType: mimeType,
			Size:     int64(len(data)),
		},
	}), nil
}

func (c *Connector) downloadChunked(ctx context.Context, contentPath, id, name, mimeType string, size int64) *datasource.BlobStream {
	buf := datasource.NewChunkBuffer(name, mimeType, size, 0)
	var offset, received int64
	finished := false

	return datasource.NewBlobStream(func() (*datasource.Blob, error) {
		if finished {
			return nil, nil
		}
		for offset < size {
			end := offset + datasource.RangeSize - 1
			if end >= size {
				end = size - 1
			}
			resp, err := c.client.Do(ctx, &httpx.Request{
				Method: http.MethodGet,
				Path:   contentPath,
				Headers: map[string]string{
					"Range": fmt.Sprintf("bytes=%d-%d", offset, end),
				},
			})
			if err != nil {
				return nil, httpx.WrapError(Name, "DownloadFile", "", id, err)
			}
			offset = end + 1
			received += int64(len(resp.Body))
			if blob := buf.Add(resp.Body); blob != nil {
				return blob, nil
			}
		}
		finished = true
		if received != size {
			return nil, &datasource.ConnectorError{
				Connector: Name,
				Op:        "DownloadFile",
				Key:       id,
				Detail:    fmt.Sprintf("received %d of %d bytes", received, size),
				Err:       datasource.ErrIntegrity,
			}
		}
		return buf.Finish(), nil
	})
}

func guessMimeType(fileName string) string {
	if mt := mime.TypeByExtension(path.Ext(fileName)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
