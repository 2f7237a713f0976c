// Package googledrive implements the online-drive contract for Google
// Drive. Listing is parent-scoped through the drive/v3 query language;
// Google-native documents are exported to Office formats on download.
package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "google_drive"

// DefaultPageSize is the page size when the host does not request one.
const DefaultPageSize = 100

const folderMimeType = "application/vnd.google-apps.folder"

// exportFormat is the target format for one Google-native document type.
type exportFormat struct {
	MimeType  string
	Extension string
}

// exportFormats maps Google-native document types to the Office format
// used when downloading them, plus the extension appended to the name.
var exportFormats = map[string]exportFormat{
	"application/vnd.google-apps.document": {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	"application/vnd.google-apps.spreadsheet": {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
	"application/vnd.google-apps.drawing": {
		MimeType:  "image/png",
		Extension: ".png",
	},
}

// Config is the decoded credentials mapping for one Drive account.
type Config struct {
	AccessToken string `mapstructure:"access_token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return datasource.ConfigErrorf(Name, "access_token is required")
	}
	return nil
}

// Connector implements datasource.OnlineDrive for Google Drive.
type Connector struct {
	service *drive.Service
	logger  *zap.Logger
}

var _ datasource.OnlineDrive = (*Connector)(nil)

// New builds a connector from host credentials. The token is host-managed
// and used as a static source; refresh happens upstream.
func New(creds datasource.Credentials, logger *zap.Logger) (*Connector, error) {
	var cfg Config
	if err := connector.DecodeCredentials(Name, creds, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	service, err := drive.NewService(context.Background(), option.WithTokenSource(ts))
	if err != nil {
		return nil, datasource.ConfigErrorf(Name, "create drive service: %v", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{service: service, logger: logger}, nil
}

// newWithService wires a prebuilt service (tests).
func newWithService(service *drive.Service, logger *zap.Logger) *Connector {
	return &Connector{service: service, logger: logger}
}

// ValidateCredentials probes the token with an About lookup.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.service.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists one page of children under the prefix folder ID (root
// when empty).
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	parent := req.Prefix
	if parent == "" {
		parent = "root"
	}
	pageSize := req.MaxKeys
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	call := c.service.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", parent)).
		PageSize(int64(pageSize)).
		Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime)").
		Context(ctx)
	if token := req.NextPageParameters["page_token"]; token != "" {
		call = call.PageToken(token)
	}

	out, err := call.Do()
	if err != nil {
		return nil, wrapError("BrowseFiles", "", parent, err)
	}

	files := make([]datasource.File, 0, len(out.Files))
	for _, f := range out.Files {
		kind := datasource.EntryFile
		if f.MimeType == folderMimeType {
			kind = datasource.EntryFolder
		}
		files = append(files, datasource.File{
			ID:   f.Id,
			Name: f.Name,
			Size: f.Size,
			Type: kind,
			Metadata: map[string]any{
				"mime_type":     f.MimeType,
				"last_modified": f.ModifiedTime,
			},
		})
	}

	result := datasource.FileBucket{Bucket: req.Bucket, Files: files}
	if out.NextPageToken != "" {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"page_token": out.NextPageToken}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

// DownloadFile fetches a file by ID. Google-native documents are exported;
// binary files are streamed and chunked above the small-file limit.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	meta, err := c.service.Files.Get(req.ID).
		Fields("id, name, mimeType, size").
		Context(ctx).Do()
	if err != nil {
		return nil, wrapError("DownloadFile", "", req.ID, err)
	}
	if meta.MimeType == folderMimeType {
		return nil, datasource.ConfigErrorf(Name, "the specified ID is not a file: %s", req.ID)
	}

	if format, ok := exportFormats[meta.MimeType]; ok {
		return c.exportNative(ctx, req.ID, meta.Name, format)
	}
	return c.downloadBinary(ctx, req.ID, meta.Name, meta.MimeType, meta.Size)
}

func (c *Connector) exportNative(ctx context.Context, id, name string, format exportFormat) (*datasource.BlobStream, error) {
	resp, err := c.service.Files.Export(id, format.MimeType).Context(ctx).Download()
	if err != nil {
		return nil, wrapError("DownloadFile", "", id, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError("DownloadFile", "", id, err)
	}
	fileName := name
	if !strings.HasSuffix(strings.ToLower(fileName), format.Extension) {
		fileName += format.Extension
	}
	return datasource.BlobStreamOf(&datasource.Blob{
		Data: data,
		Meta: datasource.BlobMeta{
			FileName: fileName,
			MimeType: format.MimeType,
			Size:     int64(len(data)),
		},
	}), nil
}

func (c *Connector) downloadBinary(ctx context.Context, id, name, mimeType string, size int64) (*datasource.BlobStream, error) {
	resp, err := c.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, wrapError("DownloadFile", "", id, err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if size < datasource.SmallFileLimit {
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, wrapError("DownloadFile", "", id, err)
		}
		if size > 0 && int64(len(data)) != size {
			c.logger.Warn("downloaded size differs from metadata",
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

	// Large file: read the open body in range-sized pieces and flush
	// partial blobs as the buffer fills.
	buf := datasource.NewChunkBuffer(name, mimeType, size, 0)
	var received int64
	finished := false

	return datasource.NewBlobStream(func() (*datasource.Blob, error) {
		if finished {
			return nil, nil
		}
		piece := make([]byte, datasource.RangeSize)
		for {
			n, err := io.ReadFull(resp.Body, piece)
			if n > 0 {
				received += int64(n)
				if blob := buf.Add(piece[:n]); blob != nil {
					return blob, nil
				}
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				finished = true
				resp.Body.Close()
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
			}
			if err != nil {
				resp.Body.Close()
				return nil, wrapError("DownloadFile", "", id, err)
			}
		}
	}), nil
}

// wrapError maps googleapi failures into the connector error taxonomy.
func wrapError(op, bucket, key string, err error) error {
	ce := &datasource.ConnectorError{
		Connector: Name,
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Err:       datasource.ErrUpstream,
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		ce.Detail = err.Error()
		return ce
	}

	ce.Detail = fmt.Sprintf("HTTP %d: %s", apiErr.Code, apiErr.Message)
	switch apiErr.Code {
	case http.StatusUnauthorized:
		ce.Err = datasource.ErrAuthExpired
	case http.StatusNotFound:
		ce.Err = datasource.ErrNotFound
	case http.StatusTooManyRequests:
		ce.Err = datasource.ErrRateLimited
	case http.StatusForbidden:
		if strings.Contains(apiErr.Message, "rate") || strings.Contains(apiErr.Message, "quota") {
			ce.Err = datasource.ErrRateLimited
		}
	}
	return ce
}
