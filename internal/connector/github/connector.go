// Package github implements the online-document contract for GitHub. A
// user's repositories surface as typed pages: the repository itself, its
// README, and its issues and pull requests. Page IDs carry the type as a
// prefix ("repo:", "file:", "issue:", "pr:") so content fetches dispatch
// without extra lookups.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
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
const Name = "github"

// perPage is the page size used against the GitHub API.
const perPage = 100

const apiBaseURL = "https://api.github.com"

// Config is the decoded credentials mapping for one GitHub account.
type Config struct {
	Token string `mapstructure:"token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Token == "" {
		return datasource.ConfigErrorf(Name, "token is required")
	}
	return nil
}

// Connector implements datasource.OnlineDocument for GitHub.
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
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: apiBaseURL,
			// GitHub documents the "token" scheme for classic PATs.
			Auth: httpx.TokenHeader{Scheme: "token", Token: cfg.Token},
			Headers: map[string]string{
				"Accept": "application/vnd.github+json",
			},
		}),
		logger: logger,
	}, nil
}

// Page ID scheme. Coordinates after the type prefix are
// "owner/repo[:path-or-number]".
const (
	kindRepo  = "repo"
	kindFile  = "file"
	kindIssue = "issue"
	kindPR    = "pr"
)

func formatPageID(kind, repo, coordinate string) string {
	if coordinate == "" {
		return kind + ":" + repo
	}
	return kind + ":" + repo + ":" + coordinate
}

// parsePageID splits a typed page ID into its kind, repository full name,
// and coordinate (file path or issue/PR number).
func parsePageID(id string) (kind, repo, coordinate string, err error) {
	kind, rest, found := strings.Cut(id, ":")
	if !found || rest == "" {
		return "", "", "", datasource.ConfigErrorf(Name, "malformed page ID %q", id)
	}
	switch kind {
	case kindRepo:
		return kind, rest, "", nil
	case kindFile, kindIssue, kindPR:
		repo, coordinate, found = strings.Cut(rest, ":")
		if !found || coordinate == "" {
			return "", "", "", datasource.ConfigErrorf(Name, "page ID %q is missing its coordinate", id)
		}
		return kind, repo, coordinate, nil
	}
	return "", "", "", datasource.ConfigErrorf(Name, "unknown page type in ID %q", id)
}

type userInfo struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type repoInfo struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	UpdatedAt   string `json:"updated_at"`
	Private     bool   `json:"private"`
}

type issueInfo struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	State       string          `json:"state"`
	Body        string          `json:"body"`
	HTMLURL     string          `json:"html_url"`
	UpdatedAt   string          `json:"updated_at"`
	PullRequest json.RawMessage `json:"pull_request"`
}

func (i *issueInfo) isPullRequest() bool { return len(i.PullRequest) > 0 }

type contentInfo struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	HTMLURL  string `json:"html_url"`
}

type commentInfo struct {
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
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

// GetPages enumerates the user's repositories and, per repository, its
// README, issues, and pull requests as typed pages.
func (c *Connector) GetPages(ctx context.Context, _ map[string]any) (*datasource.GetPagesResponse, error) {
	var user userInfo
	resp, err := c.client.Get(ctx, "user", nil)
	if err != nil {
		return nil, httpx.WrapError(Name, "GetPages", "", "", err)
	}
	if err := resp.JSON(&user); err != nil {
		return nil, httpx.WrapError(Name, "GetPages", "", "", err)
	}

	repos, err := c.listRepos(ctx)
	if err != nil {
		return nil, err
	}

	var pages []datasource.Page
	for _, repo := range repos {
		pages = append(pages, datasource.Page{
			PageID:         formatPageID(kindRepo, repo.FullName, ""),
			PageName:       repo.FullName,
			Type:           kindRepo,
			LastEditedTime: repo.UpdatedAt,
			URL:            repo.HTMLURL,
			Metadata: map[string]any{
				"description": repo.Description,
				"private":     repo.Private,
			},
		})

		if readme, err := c.getReadme(ctx, repo.FullName); err == nil && readme != nil {
			pages = append(pages, datasource.Page{
				PageID:   formatPageID(kindFile, repo.FullName, readme.Path),
				PageName: repo.FullName + "/" + readme.Path,
				Type:     kindFile,
				ParentID: formatPageID(kindRepo, repo.FullName, ""),
				URL:      readme.HTMLURL,
			})
		} else if err != nil && !datasource.IsNotFound(err) {
			return nil, err
		}

		issuePages, err := c.listIssuePages(ctx, repo.FullName)
		if err != nil {
			return nil, err
		}
		pages = append(pages, issuePages...)
	}

	return &datasource.GetPagesResponse{
		Infos: []datasource.DocumentInfo{{
			WorkspaceName: user.Login,
			WorkspaceID:   user.Login,
			WorkspaceIcon: user.AvatarURL,
			Pages:         pages,
			Total:         len(pages),
		}},
	}, nil
}

func (c *Connector) listRepos(ctx context.Context) ([]repoInfo, error) {
	var repos []repoInfo
	for page := 1; ; page++ {
		query := url.Values{
			"per_page": []string{strconv.Itoa(perPage)},
			"page":     []string{strconv.Itoa(page)},
			"sort":     []string{"updated"},
		}
		resp, err := c.client.Get(ctx, "user/repos", query)
		if err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}
		var batch []repoInfo
		if err := resp.JSON(&batch); err != nil {
			return nil, httpx.WrapError(Name, "GetPages", "", "", err)
		}
		repos = append(repos, batch...)
		if len(batch) < perPage {
			return repos, nil
		}
	}
}

func (c *Connector) getReadme(ctx context.Context, repo string) (*contentInfo, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s/readme", repo), nil)
	if err != nil {
		return nil, httpx.WrapError(Name, "GetPages", repo, "readme", err)
	}
	var readme contentInfo
	if err := resp.JSON(&readme); err != nil {
		return nil, httpx.WrapError(Name, "GetPages", repo, "readme", err)
	}
	return &readme, nil
}

func (c *Connector) listIssuePages(ctx context.Context, repo string) ([]datasource.Page, error) {
	var pages []datasource.Page
	for page := 1; ; page++ {
		query := url.Values{
			"state":    []string{"all"},
			"per_page": []string{strconv.Itoa(perPage)},
			"page":     []string{strconv.Itoa(page)},
		}
		resp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s/issues", repo), query)
		if err != nil {
			return nil, httpx.WrapError(Name, "GetPages", repo, "issues", err)
		}
		var batch []issueInfo
		if err := resp.JSON(&batch); err != nil {
			return nil, httpx.WrapError(Name, "GetPages", repo, "issues", err)
		}

		for _, issue := range batch {
			kind := kindIssue
			if issue.isPullRequest() {
				kind = kindPR
			}
			pages = append(pages, datasource.Page{
				PageID:         formatPageID(kind, repo, strconv.Itoa(issue.Number)),
				PageName:       issue.Title,
				Type:           kind,
				ParentID:       formatPageID(kindRepo, repo, ""),
				LastEditedTime: issue.UpdatedAt,
				URL:            issue.HTMLURL,
				Metadata: map[string]any{
					"state": issue.State,
				},
			})
		}
		if len(batch) < perPage {
			return pages, nil
		}
	}
}

// GetContent fetches one page's content according to its type prefix.
func (c *Connector) GetContent(ctx context.Context, req datasource.PageContentRequest) (*datasource.VariableStream, error) {
	kind, repo, coordinate, err := parsePageID(req.PageID)
	if err != nil {
		return nil, err
	}

	var title, content string
	switch kind {
	case kindRepo:
		title = repo
		content, err = c.repoContent(ctx, repo)
	case kindFile:
		title = coordinate
		content, err = c.fileContent(ctx, repo, coordinate)
	case kindIssue, kindPR:
		title, content, err = c.issueContent(ctx, repo, coordinate)
	}
	if err != nil {
		return nil, err
	}

	return datasource.VariableStreamOf(
		datasource.Variable{Name: "content", Value: content},
		datasource.Variable{Name: "title", Value: title},
		datasource.Variable{Name: "page_id", Value: req.PageID},
		datasource.Variable{Name: "workspace_id", Value: req.WorkspaceID},
	), nil
}

func (c *Connector) repoContent(ctx context.Context, repo string) (string, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s", repo), nil)
	if err != nil {
		return "", httpx.WrapError(Name, "GetContent", repo, "", err)
	}
	var info repoInfo
	if err := resp.JSON(&info); err != nil {
		return "", httpx.WrapError(Name, "GetContent", repo, "", err)
	}
	return info.FullName + "\n\n" + info.Description, nil
}

func (c *Connector) fileContent(ctx context.Context, repo, filePath string) (string, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s/contents/%s", repo, filePath), nil)
	if err != nil {
		return "", httpx.WrapError(Name, "GetContent", repo, filePath, err)
	}
	var info contentInfo
	if err := resp.JSON(&info); err != nil {
		return "", httpx.WrapError(Name, "GetContent", repo, filePath, err)
	}
	if info.Type != "file" {
		return "", datasource.ConfigErrorf(Name, "%s/%s is not a file", repo, filePath)
	}
	return decodeContent(info)
}

// decodeContent handles the base64 payload the contents API returns. The
// encoded text contains embedded newlines that must be stripped first.
func decodeContent(info contentInfo) (string, error) {
	if info.Encoding != "base64" {
		return info.Content, nil
	}
	raw := strings.ReplaceAll(info.Content, "\n", "")
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", &datasource.ConnectorError{
			Connector: Name,
			Op:        "GetContent",
			Key:       info.Path,
			Detail:    fmt.Sprintf("decode base64 content: %v", err),
			Err:       datasource.ErrUpstream,
		}
	}
	return string(decoded), nil
}

func (c *Connector) issueContent(ctx context.Context, repo, number string) (string, string, error) {
	resp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s/issues/%s", repo, number), nil)
	if err != nil {
		return "", "", httpx.WrapError(Name, "GetContent", repo, number, err)
	}
	var issue issueInfo
	if err := resp.JSON(&issue); err != nil {
		return "", "", httpx.WrapError(Name, "GetContent", repo, number, err)
	}

	var b strings.Builder
	b.WriteString(issue.Body)

	commentsResp, err := c.client.Get(ctx, fmt.Sprintf("repos/%s/issues/%s/comments", repo, number), nil)
	if err != nil {
		return "", "", httpx.WrapError(Name, "GetContent", repo, number, err)
	}
	var comments []commentInfo
	if err := commentsResp.JSON(&comments); err != nil {
		return "", "", httpx.WrapError(Name, "GetContent", repo, number, err)
	}
	for _, comment := range comments {
		b.WriteString("\n\n")
		b.WriteString(comment.User.Login)
		b.WriteString(": ")
		b.WriteString(comment.Body)
	}
	return issue.Title, b.String(), nil
}
