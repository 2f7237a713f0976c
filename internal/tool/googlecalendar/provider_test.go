package googlecalendar

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
			Auth:    httpx.Bearer{Token: "gc_test"},
		}),
		logger: zap.NewNop(),
	}
}

func TestFlow(t *testing.T) {
	f := Flow("cid", "secret")
	authURL, state := f.AuthorizationURL("https://host/cb")
	assert.NotEmpty(t, state)
	assert.Contains(t, authURL, "accounts.google.com")
	assert.Contains(t, authURL, "access_type=offline")
	assert.Contains(t, authURL, "prompt=consent")
}

func TestListEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gc_test", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "10", q.Get("maxResults"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2026-08-01T00:00:00Z", q.Get("timeMin"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []any{
				map[string]any{
					"id": "ev1", "summary": "Standup", "status": "confirmed",
					"start": map[string]any{"dateTime": "2026-08-24T10:00:00Z"},
					"end":   map[string]any{"dateTime": "2026-08-24T10:15:00Z"},
				},
				map[string]any{
					"id": "ev2", "summary": "Holiday",
					"start": map[string]any{"date": "2026-08-25"},
					"end":   map[string]any{"date": "2026-08-26"},
				},
			},
		})
	})

	p := newTestProvider(t, mux)
	list := findTool(t, p, "list-events")
	stream, err := list.Invoke(t.Context(), map[string]any{
		"time_min": "2026-08-01T00:00:00Z",
	})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 2)
	events := msgs[0].JSON["events"].([]map[string]any)
	require.Len(t, events, 2)
	assert.Equal(t, "2026-08-24T10:00:00Z", events[0]["start"])
	assert.Equal(t, "2026-08-25", events[1]["start"], "all-day events fall back to the date field")
	assert.Contains(t, msgs[1].Text, "2 events")
}

func TestListEventsNoOrderByWithoutSingleEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("orderBy"))
		json.NewEncoder(w).Encode(map[string]any{})
	})
	p := newTestProvider(t, mux)
	list := findTool(t, p, "list-events")
	_, err := list.Invoke(t.Context(), map[string]any{"single_events": false})
	require.NoError(t, err)
}

func TestCreateEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("sendNotifications"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Design review", body["summary"])
		start := body["start"].(map[string]any)
		assert.Equal(t, "2026-09-01T14:00:00Z", start["dateTime"])
		attendees := body["attendees"].([]any)
		require.Len(t, attendees, 1)

		json.NewEncoder(w).Encode(map[string]any{
			"id": "ev9", "summary": "Design review", "status": "confirmed",
			"htmlLink": "https://calendar.google.com/event?eid=ev9",
			"start":    map[string]any{"dateTime": "2026-09-01T14:00:00Z"},
			"end":      map[string]any{"dateTime": "2026-09-01T15:00:00Z"},
		})
	})

	p := newTestProvider(t, mux)
	create := findTool(t, p, "create-event")
	stream, err := create.Invoke(t.Context(), map[string]any{
		"title":      "Design review",
		"start_time": "2026-09-01T14:00:00Z",
		"end_time":   "2026-09-01T15:00:00Z",
		"attendees":  []any{"dev@co.com"},
	})
	require.NoError(t, err)

	msgs := collect(stream)
	require.Len(t, msgs, 3)
	assert.Equal(t, "ev9", msgs[0].JSON["id"])
	assert.Equal(t, "event_id", msgs[2].Name)
	assert.Equal(t, "ev9", msgs[2].Value)
}

func TestCreateEventAllDay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		start := body["start"].(map[string]any)
		assert.Equal(t, "2026-09-01", start["date"])
		assert.Nil(t, start["dateTime"])
		json.NewEncoder(w).Encode(map[string]any{"id": "ev10"})
	})

	p := newTestProvider(t, mux)
	create := findTool(t, p, "create-event")
	_, err := create.Invoke(t.Context(), map[string]any{
		"title":      "Offsite",
		"start_time": "2026-09-01T00:00:00Z",
		"all_day":    true,
	})
	require.NoError(t, err)
}

func TestCreateEventRequiredParams(t *testing.T) {
	p := newTestProvider(t, http.NewServeMux())
	create := findTool(t, p, "create-event")
	for _, params := range []map[string]any{
		{},
		{"title": "x"},
	} {
		_, err := create.Invoke(t.Context(), params)
		require.Error(t, err)
		assert.True(t, datasource.IsConfiguration(err))
	}
}

func TestDatePart(t *testing.T) {
	assert.Equal(t, "2026-09-01", datePart("2026-09-01T10:00:00Z"))
	assert.Equal(t, "2026-09-01", datePart("2026-09-01"))
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
