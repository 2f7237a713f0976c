package github

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Connector{
		client: httpx.NewClient(httpx.Config{
			BaseURL: srv.URL,
			Auth:    httpx.TokenHeader{Scheme: "token", Token: "ghp_test"},
		}),
		logger: zap.NewNop(),
	}
}

func TestParsePageID(t *testing.T) {
	tests := []struct {
		id         string
		kind       string
		repo       string
		coordinate string
		wantErr    bool
	}{
		{id: "repo:octocat/hello", kind: "repo", repo: "octocat/hello"},
		{id: "file:octocat/hello:README.md", kind: "file", repo: "octocat/hello", coordinate: "README.md"},
		{id: "issue:octocat/hello:42", kind: "issue", repo: "octocat/hello", coordinate: "42"},
		{id: "pr:octocat/hello:7", kind: "pr", repo: "octocat/hello", coordinate: "7"},
		{id: "repo:", wantErr: true},
		{id: "file:octocat/hello", wantErr: true},
		{id: "wiki:octocat/hello", wantErr: true},
		{id: "plainstring", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			kind, repo, coordinate, err := parsePageID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, datasource.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.coordinate, coordinate)
		})
	}
}

func TestPageIDRoundTrip(t *testing.T) {
	id := formatPageID(kindFile, "octocat/hello", "docs/guide.md")
	kind, repo, coordinate, err := parsePageID(id)
	require.NoError(t, err)
	assert.Equal(t, kindFile, kind)
	assert.Equal(t, "octocat/hello", repo)
	assert.Equal(t, "docs/guide.md", coordinate)
}

func TestGetPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token ghp_test", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(userInfo{Login: "octocat", AvatarURL: "https://a/img.png"})
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]repoInfo{
			{FullName: "octocat/hello", Description: "demo", HTMLURL: "https://gh/octocat/hello"},
		})
	})
	mux.HandleFunc("/repos/octocat/hello/readme", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(contentInfo{Type: "file", Path: "README.md"})
	})
	mux.HandleFunc("/repos/octocat/hello/issues", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]issueInfo{
			{Number: 1, Title: "bug", State: "open"},
			{Number: 2, Title: "feature", State: "open", PullRequest: json.RawMessage(`{"url":"x"}`)},
		})
	})

	c := newTestConnector(t, mux)
	resp, err := c.GetPages(t.Context(), nil)
	require.NoError(t, err)

	require.Len(t, resp.Infos, 1)
	info := resp.Infos[0]
	assert.Equal(t, "octocat", info.WorkspaceName)

	var ids []string
	for _, p := range info.Pages {
		ids = append(ids, p.PageID)
	}
	assert.Equal(t, []string{
		"repo:octocat/hello",
		"file:octocat/hello:README.md",
		"issue:octocat/hello:1",
		"pr:octocat/hello:2",
	}, ids)
}

func TestGetPagesWithoutReadme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(userInfo{Login: "octocat"})
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]repoInfo{{FullName: "octocat/empty"}})
	})
	mux.HandleFunc("/repos/octocat/empty/readme", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/repos/octocat/empty/issues", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]issueInfo{})
	})

	c := newTestConnector(t, mux)
	resp, err := c.GetPages(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, resp.Infos[0].Pages, 1)
	assert.Equal(t, "repo:octocat/empty", resp.Infos[0].Pages[0].PageID)
}

func TestGetContentFile(t *testing.T) {
	content := "# Hello\n\nWorld"
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(contentInfo{
			Type:     "file",
			Path:     "README.md",
			Content:  base64.StdEncoding.EncodeToString([]byte(content)) + "\n",
			Encoding: "base64",
		})
	})

	c := newTestConnector(t, mux)
	stream, err := c.GetContent(t.Context(), datasource.PageContentRequest{
		PageID: "file:octocat/hello:README.md", WorkspaceID: "octocat",
	})
	require.NoError(t, err)
	vars := stream.Collect()
	assert.Equal(t, content, vars["content"])
	assert.Equal(t, "README.md", vars["title"])
}

func TestGetContentIssueWithComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello/issues/42", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(issueInfo{Number: 42, Title: "crash on start", Body: "it crashes"})
	})
	mux.HandleFunc("/repos/octocat/hello/issues/42/comments", func(w http.ResponseWriter, r *http.Request) {
		comments := []map[string]any{
			{"body": "same here", "user": map[string]any{"login": "alice"}},
		}
		json.NewEncoder(w).Encode(comments)
	})

	c := newTestConnector(t, mux)
	stream, err := c.GetContent(t.Context(), datasource.PageContentRequest{
		PageID: "issue:octocat/hello:42",
	})
	require.NoError(t, err)
	vars := stream.Collect()
	assert.Equal(t, "crash on start", vars["title"])
	assert.Contains(t, vars["content"], "it crashes")
	assert.Contains(t, vars["content"], "alice: same here")
}

func TestRateLimitMapping(t *testing.T) {
	reset := time.Now().Add(5 * time.Minute).Unix()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message":"API rate limit exceeded"}`)
	})

	c := newTestConnector(t, mux)
	_, err := c.GetPages(t.Context(), nil)
	require.Error(t, err)
	assert.True(t, datasource.IsRateLimited(err))

	var ce *datasource.ConnectorError
	require.ErrorAs(t, err, &ce)
	assert.GreaterOrEqual(t, ce.RetryAfter, time.Minute)
}
