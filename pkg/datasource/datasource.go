// Package datasource defines the host-facing contract implemented by
// vendor connectors.
//
// Two connector families share this package:
//
//   - Online-drive connectors (object stores, file-sync drives) implement
//     OnlineDrive: browse a bucket/folder hierarchy page by page, then
//     download individual files as a stream of blob chunks.
//   - Online-document connectors (wikis, code forges) implement
//     OnlineDocument: enumerate pages in a workspace, then fetch one page's
//     content as variable messages.
//
// Connectors are stateless per invocation. Credentials arrive as a flat
// mapping owned by the host; connectors decode the fields they need and
// never persist anything.
package datasource

import "context"

// Credentials is the host-supplied configuration mapping for one connector
// account. Values are opaque to the host; each connector decodes its own
// fields (tokens, account names, endpoints).
type Credentials map[string]string

// Get returns the value for key, or the empty string when absent.
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

// EntryType classifies a browse entry.
type EntryType string

const (
	// EntryFile is a downloadable leaf object.
	EntryFile EntryType = "file"

	// EntryFolder is a browsable container; its ID is a valid Prefix for a
	// subsequent BrowseFiles call.
	EntryFolder EntryType = "folder"
)

// BrowseFilesRequest asks a drive connector for one page of entries.
type BrowseFilesRequest struct {
	// Bucket is the container/bucket name. Empty selects the top level
	// (for vendors that have a "list containers" call).
	Bucket string

	// Prefix scopes the listing to a folder path or parent ID.
	Prefix string

	// MaxKeys limits the page size. Zero uses the connector default.
	MaxKeys int

	// NextPageParameters is the opaque continuation state returned by a
	// previous page. Empty or nil starts from the beginning.
	NextPageParameters map[string]string
}

// File is one entry in a browse page.
type File struct {
	// ID is the connector-scoped identifier. The round-trip contract
	// requires that every ID returned here is accepted by the same
	// connector's DownloadFile.
	ID string

	// Name is the display name relative to the browsed prefix.
	Name string

	// Size is the byte size; zero for folders.
	Size int64

	// Type tags the entry as file or folder.
	Type EntryType

	// Metadata carries vendor-specific extras (etag, storage tier, paths).
	Metadata map[string]any
}

// FileBucket is one bucket's worth of entries plus its pagination state.
type FileBucket struct {
	Bucket             string
	Files              []File
	IsTruncated        bool
	NextPageParameters map[string]string
}

// BrowseFilesResponse is the result of one BrowseFiles call.
type BrowseFilesResponse struct {
	Buckets []FileBucket
}

// DownloadFileRequest identifies one file to download.
type DownloadFileRequest struct {
	// ID is an identifier previously returned by BrowseFiles. Several
	// connectors encode the container name into the ID ("container/path")
	// so no extra state is needed to resolve it.
	ID string
}

// OnlineDrive is the browse/download contract for object-store and
// file-drive connectors.
type OnlineDrive interface {
	// BrowseFiles returns one page of entries under the requested scope.
	BrowseFiles(ctx context.Context, req BrowseFilesRequest) (*BrowseFilesResponse, error)

	// DownloadFile resolves an entry ID and returns its content as a lazy,
	// finite stream of blob chunks. The stream must be fully consumed or
	// abandoned; it cannot be restarted.
	DownloadFile(ctx context.Context, req DownloadFileRequest) (*BlobStream, error)
}

// CredentialValidator is implemented by connectors that can probe their
// credentials with a live call before any real operation. A probe failure
// maps to ErrInvalidCredentials, distinct from downstream operational
// errors.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context, creds Credentials) error
}
