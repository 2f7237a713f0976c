// Package confluence implements the online-document contract for
// Confluence Cloud through its v2 REST API. Page bodies are requested in
// storage format and reduced to plain text.
package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "confluence"

// DefaultLimit is the listing page size requested from the API.
const DefaultLimit = 50

// Config is the decoded credentials mapping for one Confluence site.
type Config struct {
	// BaseURL is the site root, e.g. https://example.atlassian.net.
	BaseURL  string `mapstructure:"base_url"`
	Email    string `mapstructure:"email"`
	APIToken string `mapstructure:"api_token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return datasource.ConfigErrorf(Name, "base_url is required")
	}
	if c.Email == "" || c.APIToken == "" {
		return datasource.ConfigErrorf(Name, "email and api_token are required")
	}
	return nil
}

// Connector implements datasource.OnlineDocument for Confluence.
type Connector struct {
	client  *httpx.Client
	baseURL string
	logger  *zap.Logger
}

var _ datasource.OnlineDocument = (*Connector)(nil)

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
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: cfg.BaseURL + "/wiki/api/v2",
			Auth:    httpx.Basic{Username: cfg.Email, Password: cfg.APIToken},
		}),
		baseURL: cfg.BaseURL,
		logger:  logger,
	}, nil
}

type pageResult struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	ParentID string `json:"parentId"`
	SpaceID  string `json:"spaceId"`
	Version  struct {
		CreatedAt string `json:"createdAt"`
	} `json:"version"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
}

type pagesResponse struct {
	Results []pageResult `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// ValidateCredentials probes the token with a one-page listing.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	query := url.Values{"limit": []string{"1"}}
	if _, err := c.client.Get(ctx, "pages", query); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// GetPages enumerates every page on the site, following the _links.next
// cursor until exhausted.
func (c *Connector) GetPages(ctx context.Context, _ map[string]any) (*datasource.GetPagesResponse, error) {
	var pages []datasource.Page
	cursor := ""

	for {
		query := url.Values{"limit": []string{strconv.Itoa(DefaultLimit)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		resp, err := c.client.Get(ctx, "pages", query)
		if err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}
		var out pagesResponse
		if err := resp.JSON(&out); err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}

		for _, p := range out.Results {
			pages = append(pages, datasource.Page{
				PageID:         p.ID,
				PageName:       p.Title,
				Type:           "page",
				ParentID:       p.ParentID,
				LastEditedTime: p.Version.CreatedAt,
				URL:            c.baseURL + "/wiki" + p.Links.WebUI,
				Metadata: map[string]any{
					"space_id": p.SpaceID,
					"status":   p.Status,
				},
			})
		}

		cursor = nextCursor(out.Links.Next)
		if cursor == "" {
			break
		}
	}

	return &datasource.GetPagesResponse{
		Infos: []datasource.DocumentInfo{{
			WorkspaceName: c.baseURL,
			WorkspaceID:   c.baseURL,
			Pages:         pages,
			Total:         len(pages),
		}},
	}, nil
}

// nextCursor extracts the cursor parameter from a _links.next value, which
// is a site-relative URL like /wiki/api/v2/pages?cursor=abc.
func nextCursor(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return u.Query().Get("cursor")
}

// GetContent fetches one page's storage-format body and reduces it to
// plain text variables.
func (c *Connector) GetContent(ctx context.Context, req datasource.PageContentRequest) (*datasource.VariableStream, error) {
	query := url.Values{"body-format": []string{"storage"}}
	resp, err := c.client.Get(ctx, fmt.Sprintf("pages/%s", req.PageID), query)
	if err != nil {
		return nil, httpx.WrapError(Name, "GetContent", "", req.PageID, err)
	}
	var page pageResult
	if err := resp.JSON(&page); err != nil {
		return nil, httpx.WrapError(Name, "GetContent", "", req.PageID, err)
	}

	text, err := htmlToText(page.Body.Storage.Value)
	if err != nil {
		return nil, &datasource.ConnectorError{
			Connector: Name,
			Op:        "GetContent",
			Key:       req.PageID,
			Detail:    fmt.Sprintf("parse storage body: %v", err),
			Err:       datasource.ErrUpstream,
		}
	}

	return datasource.VariableStreamOf(
		datasource.Variable{Name: "content", Value: text},
		datasource.Variable{Name: "title", Value: page.Title},
		datasource.Variable{Name: "page_id", Value: page.ID},
		datasource.Variable{Name: "workspace_id", Value: req.WorkspaceID},
	), nil
}
