// Package s3 implements the online-drive contract for AWS S3 and
// S3-compatible object stores. Entry IDs are "bucket/key" composites.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Connector implements datasource.OnlineDrive for S3.
type Connector struct {
	client *awss3.Client
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

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, datasource.ConfigErrorf(Name, "load AWS config: %v", err)
	}
	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint)

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{client: client, logger: logger}, nil
}

// ValidateCredentials probes the account with a bucket listing.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.client.ListBuckets(ctx, &awss3.ListBucketsInput{}); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists buckets (empty bucket) or one ListObjectsV2 page with
// "/" delimiting so common prefixes surface as folders.
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	if req.Bucket == "" {
		return c.listBuckets(ctx)
	}
	return c.listObjects(ctx, req)
}

func (c *Connector) listBuckets(ctx context.Context) (*datasource.BrowseFilesResponse, error) {
	out, err := c.client.ListBuckets(ctx, &awss3.ListBucketsInput{})
	if err != nil {
		return nil, wrapError("BrowseFiles", "", "", err)
	}

	files := make([]datasource.File, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		files = append(files, datasource.File{
			ID:   name,
			Name: name,
			Type: datasource.EntryFolder,
		})
	}
	return &datasource.BrowseFilesResponse{
		Buckets: []datasource.FileBucket{{Files: files}},
	}, nil
}

func (c *Connector) listObjects(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	input := &awss3.ListObjectsV2Input{
		Bucket:    aws.String(req.Bucket),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(int32(clampMaxKeys(req.MaxKeys))),
	}
	if req.Prefix != "" {
		input.Prefix = aws.String(req.Prefix)
	}
	if token := req.NextPageParameters["continuation_token"]; token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapError("BrowseFiles", req.Bucket, req.Prefix, err)
	}

	var files []datasource.File
	for _, p := range out.CommonPrefixes {
		full := aws.ToString(p.Prefix)
		child := strings.TrimSuffix(strings.TrimPrefix(full, req.Prefix), "/")
		if child == "" {
			continue
		}
		files = append(files, datasource.File{
			ID:   req.Bucket + "/" + full,
			Name: child,
			Type: datasource.EntryFolder,
			Metadata: map[string]any{
				"prefix": full,
			},
		})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		rel := strings.TrimPrefix(key, req.Prefix)
		if rel == "" {
			// The prefix placeholder object itself.
			continue
		}
		size := aws.ToInt64(obj.Size)
		if strings.HasSuffix(rel, "/") && size == 0 {
			child := strings.TrimSuffix(rel, "/")
			if child == "" || strings.Contains(child, "/") {
				continue
			}
			files = append(files, datasource.File{
				ID:   req.Bucket + "/" + key,
				Name: child,
				Type: datasource.EntryFolder,
				Metadata: map[string]any{
					"prefix": key,
				},
			})
			continue
		}
		meta := map[string]any{
			"etag": cleanETag(aws.ToString(obj.ETag)),
		}
		if obj.LastModified != nil {
			meta["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
		}
		files = append(files, datasource.File{
			ID:       req.Bucket + "/" + key,
			Name:     rel,
			Size:     size,
			Type:     datasource.EntryFile,
			Metadata: meta,
		})
	}

	result := datasource.FileBucket{Bucket: req.Bucket, Files: files}
	if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{
			"continuation_token": *out.NextContinuationToken,
		}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

// DownloadFile resolves a "bucket/key" ID and streams the object.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	bucket, key, found := strings.Cut(req.ID, "/")
	if !found || key == "" {
		return nil, datasource.ConfigErrorf(Name, "file ID %q is not bucket/key", req.ID)
	}

	head, err := c.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}

	size := aws.ToInt64(head.ContentLength)
	fileName := path.Base(key)
	mimeType := aws.ToString(head.ContentType)
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}

	if size < datasource.SmallFileLimit {
		return c.downloadSmall(ctx, bucket, key, fileName, mimeType, size)
	}
	return c.downloadChunked(ctx, bucket, key, fileName, mimeType, size), nil
}

func (c *Connector) downloadSmall(ctx context.Context, bucket, key, fileName, mimeType string, size int64) (*datasource.BlobStream, error) {
	out, err := c.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	if int64(len(data)) != size {
		c.logger.Warn("downloaded size differs from object metadata",
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
			out, err := c.client.GetObject(ctx, &awss3.GetObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
				Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
			})
			if err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			data, err := io.ReadAll(out.Body)
			out.Body.Close()
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

// cleanETag removes the quotes S3 wraps around ETag values.
func cleanETag(etag string) string {
	return strings.Trim(etag, "\"")
}

func clampMaxKeys(requested int) int {
	if requested <= 0 {
		requested = DefaultMaxKeys
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// wrapError maps SDK failures into the connector error taxonomy. Typed S3
// errors are checked first, then smithy error codes.
func wrapError(op, bucket, key string, err error) error {
	ce := &datasource.ConnectorError{
		Connector: Name,
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Err:       datasource.ErrUpstream,
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey), errors.As(err, &noSuchBucket):
		ce.Err = datasource.ErrNotFound
		return ce
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ce.Detail = apiErr.ErrorCode()
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			ce.Err = datasource.ErrNotFound
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied":
			ce.Err = datasource.ErrInvalidCredentials
		case "ExpiredToken", "TokenRefreshRequired":
			ce.Err = datasource.ErrAuthExpired
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			ce.Err = datasource.ErrRateLimited
		}
		return ce
	}

	ce.Detail = err.Error()
	return ce
}
