// Package cos implements the online-drive contract for Tencent Cloud
// Object Storage through its S3-compatible XML API. Entry IDs are
// "bucket/key" composites; bucket names carry the Tencent appid suffix.
package cos

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "tencent_cos"

// DefaultMaxKeys is the page size when the host does not request one.
const DefaultMaxKeys = 100

// Config is the decoded credentials mapping for one COS account.
type Config struct {
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.SecretID == "" || c.SecretKey == "" {
		return datasource.ConfigErrorf(Name, "secret_id and secret_key are required")
	}
	if c.Region == "" {
		return datasource.ConfigErrorf(Name, "region is required")
	}
	return nil
}

func (c *Config) endpoint() string {
	return fmt.Sprintf("cos.%s.myqcloud.com", c.Region)
}

// Connector implements datasource.OnlineDrive for Tencent COS.
type Connector struct {
	client *minio.Client
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

	client, err := minio.New(cfg.endpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.SecretID, cfg.SecretKey, ""),
		Secure: true,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, datasource.ConfigErrorf(Name, "create client: %v", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{client: client, logger: logger}, nil
}

// ValidateCredentials probes the account with a bucket listing.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.client.ListBuckets(ctx); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists buckets (empty bucket) or one page of the delimited
// object listing under the requested prefix.
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	if req.Bucket == "" {
		return c.listBuckets(ctx)
	}
	return c.listObjects(ctx, req)
}

func (c *Connector) listBuckets(ctx context.Context) (*datasource.BrowseFilesResponse, error) {
	buckets, err := c.client.ListBuckets(ctx)
	if err != nil {
		return nil, wrapError("BrowseFiles", "", "", err)
	}
	files := make([]datasource.File, 0, len(buckets))
	for _, b := range buckets {
		files = append(files, datasource.File{
			ID:   b.Name,
			Name: b.Name,
			Type: datasource.EntryFolder,
		})
	}
	return &datasource.BrowseFilesResponse{
		Buckets: []datasource.FileBucket{{Files: files}},
	}, nil
}

func (c *Connector) listObjects(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	maxKeys := req.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	// The listing channel is abandoned via cancel once the page is full.
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectCh := c.client.ListObjects(listCtx, req.Bucket, minio.ListObjectsOptions{
		Prefix:     req.Prefix,
		Recursive:  false,
		StartAfter: req.NextPageParameters["start_after"],
	})

	var files []datasource.File
	var lastKey string
	truncated := false

	for obj := range objectCh {
		if obj.Err != nil {
			return nil, wrapError("BrowseFiles", req.Bucket, req.Prefix, obj.Err)
		}
		if len(files) >= maxKeys {
			truncated = true
			break
		}
		lastKey = obj.Key
		rel := strings.TrimPrefix(obj.Key, req.Prefix)
		if rel == "" {
			continue
		}
		if strings.HasSuffix(rel, "/") {
			// Non-recursive listings deliver common prefixes as
			// trailing-slash entries.
			child := strings.TrimSuffix(rel, "/")
			if child == "" || strings.Contains(child, "/") {
				continue
			}
			files = append(files, datasource.File{
				ID:   req.Bucket + "/" + obj.Key,
				Name: child,
				Type: datasource.EntryFolder,
				Metadata: map[string]any{
					"prefix": obj.Key,
				},
			})
			continue
		}
		if strings.Contains(rel, "/") {
			continue
		}
		meta := map[string]any{
			"etag": strings.Trim(obj.ETag, "\""),
		}
		if !obj.LastModified.IsZero() {
			meta["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
		}
		files = append(files, datasource.File{
			ID:       req.Bucket + "/" + obj.Key,
			Name:     rel,
			Size:     obj.Size,
			Type:     datasource.EntryFile,
			Metadata: meta,
		})
	}

	result := datasource.FileBucket{Bucket: req.Bucket, Files: files}
	if truncated {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"start_after": lastKey}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

// DownloadFile resolves a "bucket/key" ID and streams the object.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	bucket, key, found := strings.Cut(req.ID, "/")
	if !found || key == "" {
		return nil, datasource.ConfigErrorf(Name, "file ID %q is not bucket/key", req.ID)
	}

	stat, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}

	size := stat.Size
	fileName := path.Base(key)
	mimeType := stat.ContentType
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}

	if size < datasource.SmallFileLimit {
		return c.downloadSmall(ctx, bucket, key, fileName, mimeType, size)
	}
	return c.downloadChunked(ctx, bucket, key, fileName, mimeType, size), nil
}

func (c *Connector) downloadSmall(ctx context.Context, bucket, key, fileName, mimeType string, size int64) (*datasource.BlobStream, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	if int64(len(data)) != size {
		c.logger.Warn("downloaded size differs from object stat",
			zap.String("bucket", bucket), zap.String("key", key),
			zap.Int64("expected", size), zap.Int("actual", len(data)))
	}
	return datasource.BlobStreamOf(&datasource.Blob{
		Data: data,
		Meta: datasource.BlobMeta{
			FileName: fileName,
			MimeType: mimeType,
			Size:     int64(len(data)),
		},
	}), nil
}

func (c *Connector) downloadChunked(ctx context.Context, bucket, key, fileName, mimeType string, size int64) *datasource.BlobStream {
	buf := datasource.NewChunkBuffer(fileName, mimeType, size, 0)
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
			opts := minio.GetObjectOptions{}
			if err := opts.SetRange(offset, end); err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			obj, err := c.client.GetObject(ctx, bucket, key, opts)
			if err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			data, err := io.ReadAll(obj)
			obj.Close()
			if err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			offset = end + 1
			received += int64(len(data))
			if blob := buf.Add(data); blob != nil {
				return blob, nil
			}
		}
		finished = true
		if received != size {
			return nil, &datasource.ConnectorError{
				Connector: Name,
				Op:        "DownloadFile",
				Bucket:    bucket,
				Key:       key,
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

// wrapError maps minio failures into the connector error taxonomy via the
// S3 error code carried in the XML error response.
func wrapError(op, bucket, key string, err error) error {
	ce := &datasource.ConnectorError{
		Connector: Name,
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Err:       datasource.ErrUpstream,
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "" {
		ce.Detail = err.Error()
		return ce
	}

	ce.Detail = resp.Code
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		ce.Err = datasource.ErrNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		ce.Err = datasource.ErrInvalidCredentials
	case "ExpiredToken":
		ce.Err = datasource.ErrAuthExpired
	case "SlowDown", "RequestLimitExceeded":
		ce.Err = datasource.ErrRateLimited
	}
	return ce
}
