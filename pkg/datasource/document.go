package datasource

import "context"

// Page is one document surfaced by an online-document connector. PageID is
// connector-scoped and may encode a composite coordinate (for example
// "repo:owner/name" or "file:owner/name:README.md").
type Page struct {
	PageID         string
	PageName       string
	Type           string
	ParentID       string
	LastEditedTime string
	URL            string
	Metadata       map[string]any
}

// DocumentInfo groups pages under the workspace they belong to.
type DocumentInfo struct {
	WorkspaceName string
	WorkspaceID   string
	WorkspaceIcon string
	Pages         []Page
	Total         int
}

// GetPagesResponse is the result of a page enumeration.
type GetPagesResponse struct {
	Infos []DocumentInfo
}

// PageContentRequest identifies one page whose content should be fetched.
type PageContentRequest struct {
	WorkspaceID string
	PageID      string
	Type        string
}

// OnlineDocument is the pages/content contract for wiki and forge
// connectors.
type OnlineDocument interface {
	// GetPages enumerates every page reachable with the given parameters.
	// Vendor pagination is followed internally; the full set is returned.
	GetPages(ctx context.Context, params map[string]any) (*GetPagesResponse, error)

	// GetContent fetches one page's content as a stream of variable
	// messages (content, title, page_id, workspace_id).
	GetContent(ctx context.Context, req PageContentRequest) (*VariableStream, error)
}
