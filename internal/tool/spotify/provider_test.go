package spotify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Provider{
		client: httpx.NewClient(httpx.Config{
			BaseURL: srv.URL,
			Auth:    httpx.Bearer{Token: "sp_test"},
		}),
		logger: zap.NewNop(),
	}
}

func TestFlow(t *testing.T) {
	f := Flow("client-id", "client-secret")
	authURL, state := f.AuthorizationURL("https://host/callback")
	assert.NotEmpty(t, state)
	assert.Contains(t, authURL, "accounts.spotify.com/authorize")
	assert.Contains(t, authURL, "show_dialog=false")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "user-read-playback-state")
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(datasource.Credentials{}, nil)
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sp_test", r.Header.Get("Authorization"))
		assert.Equal(t, "beatles", r.URL.Query().Get("q"))
		assert.Equal(t, "track,album,artist", r.URL.Query().Get("type"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"total": 1,
				"items": []any{map[string]any{
					"id": "t1", "name": "Let It Be", "duration_ms": 243000,
					"artists": []any{map[string]any{"name": "The Beatles"}},
					"album":   map[string]any{"name": "Let It Be"},
				}},
			},
			"artists": map[string]any{
				"total": 1,
				"items": []any{map[string]any{"id": "a1", "name": "The Beatles"}},
			},
		})
	})

	p := newTestProvider(t, mux)
	search := findTool(t, p, "search")
	stream, err := search.Invoke(t.Context(), map[string]any{"query": "beatles"})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, tool.MessageJSON, msgs[0].Type)
	assert.Equal(t, 2, msgs[0].JSON["total_results"])
	results := msgs[0].JSON["results"].(map[string]any)
	tracks := results["tracks"].(map[string]any)
	items := tracks["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Let It Be", items[0]["name"])
	assert.Equal(t, []string{"The Beatles"}, items[0]["artists"])

	assert.Equal(t, tool.MessageText, msgs[1].Type)
	assert.Contains(t, msgs[1].Text, "2 results")
}

func TestSearchRequiresQuery(t *testing.T) {
	p := newTestProvider(t, http.NewServeMux())
	search := findTool(t, p, "search")
	_, err := search.Invoke(t.Context(), map[string]any{})
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestSearchClampsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"), "out-of-range limit resets to default")
		json.NewEncoder(w).Encode(map[string]any{})
	})
	p := newTestProvider(t, mux)
	search := findTool(t, p, "search")
	_, err := search.Invoke(t.Context(), map[string]any{"query": "x", "limit": float64(500)})
	require.NoError(t, err)
}

func TestGetTrack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "t1", "name": "Come Together",
			"artists": []any{map[string]any{"name": "The Beatles"}},
			"album":   map[string]any{"name": "Abbey Road"},
		})
	})

	p := newTestProvider(t, mux)
	getTrack := findTool(t, p, "get-track")
	stream, err := getTrack.Invoke(t.Context(), map[string]any{"track_id": "t1"})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "t1", msgs[0].JSON["id"])
	assert.True(t, strings.HasPrefix(msgs[1].Text, "Come Together by The Beatles"))
}

func TestGetTrackAuthExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	p := newTestProvider(t, mux)
	getTrack := findTool(t, p, "get-track")
	_, err := getTrack.Invoke(t.Context(), map[string]any{"track_id": "t1"})
	require.Error(t, err)
	assert.True(t, datasource.IsAuthExpired(err))
}

func findTool(t *testing.T, p *Provider, name string) tool.Tool {
	t.Helper()
	for _, op := range p.Tools() {
		if op.Name() == name {
			return op
		}
	}
	t.Fatalf("tool %q not found", name)
	return nil
}

func collect(s *tool.MessageStream) []tool.Message {
	var msgs []tool.Message
	for s.Next() {
		msgs = append(msgs, s.Message())
	}
	return msgs
}
