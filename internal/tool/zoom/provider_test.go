package zoom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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
			Auth:    httpx.Bearer{Token: "zm_test"},
		}),
		logger: zap.NewNop(),
	}
}

func TestFlow(t *testing.T) {
	f := Flow("cid", "secret")
	authURL, state := f.AuthorizationURL("https://host/cb")
	assert.Contains(t, authURL, "zoom.us/oauth/authorize")
	assert.Contains(t, authURL, "state="+state)
}

func TestCreateMeeting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer zm_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "standup", body["topic"])
		assert.Equal(t, float64(2), body["type"])
		assert.Equal(t, float64(60), body["duration"])
		assert.Equal(t, "2026-09-01T10:00:00Z", body["start_time"])
		assert.Equal(t, "UTC", body["timezone"])
		settings := body["settings"].(map[string]any)
		assert.Equal(t, true, settings["waiting_room"])
		assert.Equal(t, false, settings["join_before_host"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(meetingInfo{
			ID: 123456, Topic: "standup", Duration: 60,
			JoinURL: "https://zoom.us/j/123456", StartURL: "https://zoom.us/s/123456",
		})
	})

	p := newTestProvider(t, mux)
	create := findTool(t, p, "create-meeting")
	stream, err := create.Invoke(t.Context(), map[string]any{
		"topic":      "standup",
		"start_time": "2026-09-01T10:00:00Z",
	})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(123456), msgs[0].JSON["meeting_id"])
	assert.Contains(t, msgs[1].Text, "standup")
	assert.Equal(t, "join_url", msgs[2].Name)
	assert.Equal(t, "https://zoom.us/j/123456", msgs[2].Value)
}

func TestCreateMeetingRequiresTopic(t *testing.T) {
	p := newTestProvider(t, http.NewServeMux())
	create := findTool(t, p, "create-meeting")
	_, err := create.Invoke(t.Context(), map[string]any{})
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestListMeetings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "scheduled", r.URL.Query().Get("type"))
		assert.Equal(t, "300", r.URL.Query().Get("page_size"), "page size clamps at the API maximum")
		json.NewEncoder(w).Encode(map[string]any{
			"meetings": []any{
				map[string]any{"id": 1, "topic": "a"},
				map[string]any{"id": 2, "topic": "b"},
			},
			"total_records": 2,
			"page_count":    1,
		})
	})

	p := newTestProvider(t, mux)
	list := findTool(t, p, "list-meetings")
	stream, err := list.Invoke(t.Context(), map[string]any{"page_size": float64(1000)})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 2)
	meetings := msgs[0].JSON["meetings"].([]map[string]any)
	assert.Len(t, meetings, 2)
	assert.Equal(t, 2, msgs[0].JSON["total_records"])
	assert.Contains(t, msgs[1].Text, "2 meetings")
}

func TestListMeetingsAuthExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	p := newTestProvider(t, mux)
	list := findTool(t, p, "list-meetings")
	_, err := list.Invoke(t.Context(), nil)
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
