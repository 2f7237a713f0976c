// Package azureblob implements the online-drive contract for Azure Blob
// Storage. Browsing is hierarchical (containers, then a "/"-delimited blob
// listing); entry IDs are "container/path" composites so downloads need no
// extra state.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// DefaultMaxKeys is the page size when the host does not request one.
const DefaultMaxKeys = 100

// Connector implements datasource.OnlineDrive for Azure Blob Storage.
type Connector struct {
	client *azblob.Client
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
	client, err := buildClient(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{client: client, logger: logger}, nil
}

func buildClient(cfg Config) (*azblob.Client, error) {
	switch cfg.AuthMethod {
	case AuthAccountKey:
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, datasource.ConfigErrorf(Name, "shared key credential: %v", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, nil)
		if err != nil {
			return nil, datasource.ConfigErrorf(Name, "create client: %v", err)
		}
		return client, nil

	case AuthSASToken:
		client, err := azblob.NewClientWithNoCredential(cfg.serviceURL()+normalizeSAS(cfg.SASToken), nil)
		if err != nil {
			return nil, datasource.ConfigErrorf(Name, "create SAS client: %v", err)
		}
		return client, nil

	case AuthConnectionString:
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, datasource.ConfigErrorf(Name, "create client from connection string: %v", err)
		}
		return client, nil

	case AuthOAuth:
		var expiresAt time.Time
		if cfg.ExpiresAt > 0 {
			expiresAt = time.Unix(cfg.ExpiresAt, 0)
		}
		tok := httpx.NewStaticToken(cfg.AccessToken, expiresAt)
		if _, err := tok.Get(context.Background()); err != nil {
			return nil, &datasource.ConnectorError{
				Connector: Name,
				Op:        "Configure",
				Err:       datasource.ErrAuthExpired,
			}
		}
		cred := staticTokenCredential{token: tok, expiresOn: expiresAt}
		client, err := azblob.NewClient(cfg.serviceURL(), cred, nil)
		if err != nil {
			return nil, datasource.ConfigErrorf(Name, "create OAuth client: %v", err)
		}
		return client, nil
	}
	return nil, datasource.ConfigErrorf(Name, "unknown auth_method %q", cfg.AuthMethod)
}

// staticTokenCredential serves a host-managed bearer token. The connector
// cannot refresh it; once the token lapses every request fails with
// ErrAuthExpired instead of a vendor 401.
type staticTokenCredential struct {
	token     *httpx.ExpiringToken
	expiresOn time.Time
}

func (c staticTokenCredential) GetToken(ctx context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.token.Get(ctx)
	if err != nil {
		return azcore.AccessToken{}, err
	}
	return azcore.AccessToken{Token: tok, ExpiresOn: c.expiresOn}, nil
}

// ValidateCredentials probes the account with a one-container listing.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	pager := c.client.ServiceClient().NewListContainersPager(&service.ListContainersOptions{
		MaxResults: to.Ptr(int32(1)),
	})
	if _, err := pager.NextPage(ctx); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// BrowseFiles lists containers (empty bucket) or one page of the
// "/"-delimited blob hierarchy under the requested prefix.
func (c *Connector) BrowseFiles(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	bucket, prefix := c.resolveScope(ctx, req.Bucket, req.Prefix)
	if bucket == "" {
		return c.listContainers(ctx, req)
	}
	return c.listBlobs(ctx, bucket, prefix, req)
}

// resolveScope handles the empty-bucket-with-prefix case: hosts sometimes
// pack "container/path" into the prefix field. The first path segment is
// probed as a container; when the probe fails the literal values stand.
func (c *Connector) resolveScope(ctx context.Context, bucket, prefix string) (string, string) {
	if bucket != "" || prefix == "" {
		return bucket, prefix
	}
	head, rest, _ := strings.Cut(prefix, "/")
	containerClient := c.client.ServiceClient().NewContainerClient(head)
	if _, err := containerClient.GetProperties(ctx, nil); err != nil {
		c.logger.Debug("prefix reparse probe failed, keeping literal scope",
			zap.String("candidate", head), zap.Error(err))
		return bucket, prefix
	}
	return head, rest
}

func (c *Connector) listContainers(ctx context.Context, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	opts := &service.ListContainersOptions{
		MaxResults: to.Ptr(int32(pageSize(req.MaxKeys))),
	}
	if marker := req.NextPageParameters["marker"]; marker != "" {
		opts.Marker = to.Ptr(marker)
	}

	pager := c.client.ServiceClient().NewListContainersPager(opts)
	page, err := pager.NextPage(ctx)
	if err != nil {
		return nil, wrapError("BrowseFiles", "", "", err)
	}

	files := make([]datasource.File, 0, len(page.ContainerItems))
	for _, item := range page.ContainerItems {
		name := strVal(item.Name)
		files = append(files, datasource.File{
			ID:   name,
			Name: name,
			Type: datasource.EntryFolder,
		})
	}

	result := datasource.FileBucket{Files: files}
	if next := strVal(page.NextMarker); next != "" {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"marker": next}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

func (c *Connector) listBlobs(ctx context.Context, bucket, prefix string, req datasource.BrowseFilesRequest) (*datasource.BrowseFilesResponse, error) {
	opts := &container.ListBlobsHierarchyOptions{
		MaxResults: to.Ptr(int32(pageSize(req.MaxKeys))),
	}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	if marker := req.NextPageParameters["marker"]; marker != "" {
		opts.Marker = to.Ptr(marker)
	}

	containerClient := c.client.ServiceClient().NewContainerClient(bucket)
	pager := containerClient.NewListBlobsHierarchyPager("/", opts)
	page, err := pager.NextPage(ctx)
	if err != nil {
		return nil, wrapError("BrowseFiles", bucket, prefix, err)
	}

	var files []datasource.File
	seenFolders := map[string]bool{}

	for _, p := range page.Segment.BlobPrefixes {
		full := strVal(p.Name)
		child := childSegment(full, prefix)
		if child == "" || seenFolders[child] {
			continue
		}
		seenFolders[child] = true
		files = append(files, datasource.File{
			ID:   bucket + "/" + full,
			Name: child,
			Type: datasource.EntryFolder,
			Metadata: map[string]any{
				"prefix": full,
			},
		})
	}

	for _, item := range page.Segment.BlobItems {
		full := strVal(item.Name)
		rel := strings.TrimPrefix(full, prefix)
		if rel == "" {
			continue
		}
		size := i64Val(item.Properties.ContentLength)
		if strings.HasSuffix(rel, "/") && size == 0 {
			// Zero-size trailing-slash placeholders are folder markers.
			child := childSegment(full, prefix)
			if child == "" || seenFolders[child] {
				continue
			}
			seenFolders[child] = true
			files = append(files, datasource.File{
				ID:   bucket + "/" + full,
				Name: child,
				Type: datasource.EntryFolder,
				Metadata: map[string]any{
					"prefix": full,
				},
			})
			continue
		}
		if strings.Contains(rel, "/") {
			// Deeper than the browsed level; the BlobPrefix entry covers it.
			continue
		}
		meta := map[string]any{}
		if ct := item.Properties.ContentType; ct != nil {
			meta["content_type"] = *ct
		}
		if lm := item.Properties.LastModified; lm != nil {
			meta["last_modified"] = lm.UTC().Format(time.RFC3339)
		}
		if et := item.Properties.ETag; et != nil {
			meta["etag"] = string(*et)
		}
		files = append(files, datasource.File{
			ID:       bucket + "/" + full,
			Name:     rel,
			Size:     size,
			Type:     datasource.EntryFile,
			Metadata: meta,
		})
	}

	result := datasource.FileBucket{Bucket: bucket, Files: files}
	if next := strVal(page.NextMarker); next != "" {
		result.IsTruncated = true
		result.NextPageParameters = map[string]string{"marker": next}
	}
	return &datasource.BrowseFilesResponse{Buckets: []datasource.FileBucket{result}}, nil
}

// childSegment reduces a full blob-prefix path to the immediate child name
// under the browsed prefix. Empty means the path is the prefix itself.
func childSegment(full, prefix string) string {
	rel := strings.TrimPrefix(full, prefix)
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return ""
	}
	head, _, _ := strings.Cut(rel, "/")
	return head
}

// DownloadFile resolves a "container/path" ID and streams the blob. Small
// blobs arrive as one chunk; large blobs are fetched in ranged reads and
// flushed as partial chunks.
func (c *Connector) DownloadFile(ctx context.Context, req datasource.DownloadFileRequest) (*datasource.BlobStream, error) {
	bucket, key, found := strings.Cut(req.ID, "/")
	if !found || key == "" {
		return nil, datasource.ConfigErrorf(Name, "file ID %q is not container/path", req.ID)
	}

	blobClient := c.client.ServiceClient().NewContainerClient(bucket).NewBlobClient(key)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}

	if tier := strVal(props.AccessTier); strings.EqualFold(tier, "Archive") {
		return nil, &datasource.ConnectorError{
			Connector: Name,
			Op:        "DownloadFile",
			Bucket:    bucket,
			Key:       key,
			Detail:    "archive tier requires rehydration before download",
			Err:       datasource.ErrUnsupportedState,
		}
	}

	size := i64Val(props.ContentLength)
	fileName := path.Base(key)
	mimeType := strVal(props.ContentType)
	if mimeType == "" {
		mimeType = guessMimeType(fileName)
	}

	if size < datasource.SmallFileLimit {
		return c.downloadSmall(ctx, blobClient, bucket, key, fileName, mimeType, size)
	}
	return c.downloadChunked(ctx, blobClient, bucket, key, fileName, mimeType, size), nil
}

func (c *Connector) downloadSmall(ctx context.Context, blobClient *blob.Client, bucket, key, fileName, mimeType string, size int64) (*datasource.BlobStream, error) {
	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError("DownloadFile", bucket, key, err)
	}
	if int64(len(data)) != size {
		// Delivered anyway: the caller sees the bytes that actually arrived.
		c.logger.Warn("downloaded size differs from blob properties",
			zap.String("container", bucket), zap.String("blob", key),
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

func (c *Connector) downloadChunked(ctx context.Context, blobClient *blob.Client, bucket, key, fileName, mimeType string, size int64) *datasource.BlobStream {
	buf := datasource.NewChunkBuffer(fileName, mimeType, size, 0)
	var offset, received int64
	finished := false

	return datasource.NewBlobStream(func() (*datasource.Blob, error) {
		if finished {
			return nil, nil
		}
		for offset < size {
			count := int64(datasource.RangeSize)
			if remaining := size - offset; remaining < count {
				count = remaining
			}
			resp, err := blobClient.DownloadStream(ctx, &blob.DownloadStreamOptions{
				Range: blob.HTTPRange{Offset: offset, Count: count},
			})
			if err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, wrapError("DownloadFile", bucket, key, err)
			}
			offset += count
			received += int64(len(data))
			if out := buf.Add(data); out != nil {
				return out, nil
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

func pageSize(requested int) int {
	if requested <= 0 {
		return DefaultMaxKeys
	}
	return requested
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func i64Val(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func guessMimeType(fileName string) string {
	if mt := mime.TypeByExtension(path.Ext(fileName)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// wrapError maps Azure SDK failures into the connector error taxonomy.
func wrapError(op, bucket, key string, err error) error {
	ce := &datasource.ConnectorError{
		Connector: Name,
		Op:        op,
		Bucket:    bucket,
		Key:       key,
		Err:       datasource.ErrUpstream,
	}

	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		// Credential failures from the token plumbing arrive without an
		// HTTP response.
		if errors.Is(err, datasource.ErrAuthExpired) {
			ce.Err = datasource.ErrAuthExpired
			return ce
		}
		ce.Detail = err.Error()
		return ce
	}

	ce.Detail = fmt.Sprintf("%s (HTTP %d)", respErr.ErrorCode, respErr.StatusCode)
	switch {
	case respErr.StatusCode == http.StatusUnauthorized:
		ce.Err = datasource.ErrAuthExpired
	case respErr.StatusCode == http.StatusForbidden && respErr.ErrorCode == "AuthenticationFailed":
		// Expired or invalid SAS surfaces as 403 AuthenticationFailed.
		ce.Err = datasource.ErrAuthExpired
	case respErr.StatusCode == http.StatusNotFound:
		ce.Err = datasource.ErrNotFound
	case respErr.StatusCode == http.StatusTooManyRequests:
		ce.Err = datasource.ErrRateLimited
	}
	return ce
}
