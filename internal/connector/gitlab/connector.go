// Package gitlab implements the online-document contract for GitLab. The
// user's projects surface as pages; repository files are fetched through
// the repository/files API, which returns base64 content. Pagination uses
// the X-Next-Page header GitLab attaches to list responses.
package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "gitlab"

// perPage is the page size used against the GitLab API.
const perPage = 100

const defaultBaseURL = "https://gitlab.com"

// Config is the decoded credentials mapping for one GitLab account.
// Either a private token or an OAuth access token must be present.
type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	PrivateToken string `mapstructure:"private_token"`
	AccessToken  string `mapstructure:"access_token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.PrivateToken == "" && c.AccessToken == "" {
		return datasource.ConfigErrorf(Name, "one of private_token or access_token is required")
	}
	return nil
}

func (c *Config) auth() httpx.Auth {
	if c.PrivateToken != "" {
		return httpx.APIKey{Key: c.PrivateToken, Header: "PRIVATE-TOKEN"}
	}
	return httpx.Bearer{Token: c.AccessToken}
}

// Connector implements datasource.OnlineDocument for GitLab.
type Connector struct {
	client *httpx.Client
	logger *zap.Logger
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
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: strings.TrimSuffix(baseURL, "/") + "/api/v4",
			Auth:    cfg.auth(),
		}),
		logger: logger,
	}, nil
}

type projectInfo struct {
	ID                int    `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	WebURL            string `json:"web_url"`
	DefaultBranch     string `json:"default_branch"`
	LastActivityAt    string `json:"last_activity_at"`
}

type fileInfo struct {
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	Ref      string `json:"ref"`
}

// ValidateCredentials probes the token with a current-user lookup.
func (c *Connector) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := c.client.Get(ctx, "user", nil); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// GetPages enumerates the user's projects, following the X-Next-Page
// header until exhausted.
func (c *Connector) GetPages(ctx context.Context, _ map[string]any) (*datasource.GetPagesResponse, error) {
	var pages []datasource.Page
	page := "1"

	for page != "" {
		query := url.Values{
			"membership": []string{"true"},
			"per_page":   []string{strconv.Itoa(perPage)},
			"page":       []string{page},
		}
		resp, err := c.client.Get(ctx, "projects", query)
		if err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}
		var batch []projectInfo
		if err := resp.JSON(&batch); err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}

		for _, p := range batch {
			pages = append(pages, datasource.Page{
				PageID:         fmt.Sprintf("project:%d", p.ID),
				PageName:       p.PathWithNamespace,
				Type:           "project",
				LastEditedTime: p.LastActivityAt,
				URL:            p.WebURL,
				Metadata: map[string]any{
					"description":    p.Description,
					"default_branch": p.DefaultBranch,
				},
			})
		}

		page = resp.Headers.Get("X-Next-Page")
	}

	return &datasource.GetPagesResponse{
		Infos: []datasource.DocumentInfo{{
			WorkspaceName: "gitlab",
			WorkspaceID:   "gitlab",
			Pages:         pages,
			Total:         len(pages),
		}},
	}, nil
}

// GetContent fetches a project's README or a specific repository file,
// depending on the page ID ("project:<id>" or "file:<id>:<path>").
func (c *Connector) GetContent(ctx context.Context, req datasource.PageContentRequest) (*datasource.VariableStream, error) {
	kind, rest, found := strings.Cut(req.PageID, ":")
	if !found || rest == "" {
		return nil, datasource.ConfigErrorf(Name, "malformed page ID %q", req.PageID)
	}

	var projectID, filePath string
	switch kind {
	case "project":
		projectID, filePath = rest, "README.md"
	case "file":
		var ok bool
		projectID, filePath, ok = strings.Cut(rest, ":")
		if !ok || filePath == "" {
			return nil, datasource.ConfigErrorf(Name, "page ID %q is missing its file path", req.PageID)
		}
	default:
		return nil, datasource.ConfigErrorf(Name, "unknown page type in ID %q", req.PageID)
	}

	file, err := c.getFile(ctx, projectID, filePath)
	if err != nil {
		return nil, err
	}
	content, err := decodeContent(file)
	if err != nil {
		return nil, err
	}

	return datasource.VariableStreamOf(
		datasource.Variable{Name: "content", Value: content},
		datasource.Variable{Name: "title", Value: file.FileName},
		datasource.Variable{Name: "page_id", Value: req.PageID},
		datasource.Variable{Name: "workspace_id", Value: req.WorkspaceID},
	), nil
}

func (c *Connector) getFile(ctx context.Context, projectID, filePath string) (*fileInfo, error) {
	ref, err := c.defaultBranch(ctx, projectID)
	if err != nil {
		return nil, err
	}
	encodedPath := url.PathEscape(filePath)
	query := url.Values{"ref": []string{ref}}
	resp, err := c.client.Get(ctx, fmt.Sprintf("projects/%s/repository/files/%s", projectID, encodedPath), query)
	if err != nil {
		return nil, httpx.WrapError(Name, "GetContent", projectID, filePath, err)
	}
	var file fileInfo
	if err := resp.JSON(&file); err != nil {
		return nil, httpx.WrapError(Name, "GetContent", projectID, filePath, err)
	}
	return &file, nil
}

func (c *Connector) defaultBranch(ctx context.Context, projectID string) (string, error) {
	resp, err := c.client.Get(ctx, "projects/"+projectID, nil)
	if err != nil {
		return "", httpx.WrapError(Name, "GetContent", projectID, "", err)
	}
	var project projectInfo
	if err := resp.JSON(&project); err != nil {
		return "", httpx.WrapError(Name, "GetContent", projectID, "", err)
	}
	if project.DefaultBranch == "" {
		return "main", nil
	}
	return project.DefaultBranch, nil
}

func decodeContent(file *fileInfo) (string, error) {
	if file.Encoding != "base64" {
		return file.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", &datasource.ConnectorError{
			Connector: Name,
			Op:        "GetContent",
			Key:       file.FilePath,
			Detail:    fmt.Sprintf("decode base64 content: %v", err),
			Err:       datasource.ErrUpstream,
		}
	}
	return string(decoded), nil
}
