package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/internal/uploadcache"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Adapter{
		cfg:     Config{APIKey: "gm_test"},
		baseURL: srv.URL,
		client: httpx.NewClient(httpx.Config{
			BaseURL: srv.URL + "/" + apiVersion,
			Auth:    httpx.APIKey{Key: "gm_test", Header: "x-goog-api-key"},
		}),
		httpc:  srv.Client(),
		cache:  uploadcache.New(filepath.Join(t.TempDir(), "uploads.json")),
		logger: zap.NewNop(),
	}
}

func TestBuildRequest(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())
	req, err := a.buildRequest(t.Context(), llm.InvokeRequest{
		Model: "gemini-2.0-flash",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be terse"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hello"},
			{Role: llm.RoleUser, Content: "bye"},
		},
		Parameters: map[string]any{"temperature": 0.2, "max_tokens": float64(100)},
		Stop:       []string{"END"},
	})
	require.NoError(t, err)

	require.NotNil(t, req.SystemInstruction)
	assert.Equal(t, "be terse", req.SystemInstruction.Parts[0].Text)

	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)

	require.NotNil(t, req.GenerationConfig)
	assert.InDelta(t, 0.2, *req.GenerationConfig.Temperature, 0.001)
	assert.Equal(t, 100, req.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, req.GenerationConfig.StopSequences)
}

func TestSmallImageGoesInline(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())
	part, err := a.mediaPart(t.Context(), llm.ContentPart{
		Kind: llm.ContentImage, Data: []byte("img"), MimeType: "image/png",
	})
	require.NoError(t, err)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, "image/png", part.InlineData.MimeType)
	assert.Nil(t, part.FileData)
}

func TestInvokeSingleShot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/gemini-2.0-flash:generateContent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gm_test", r.Header.Get("x-goog-api-key"))
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": "pong"}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount": 3, "candidatesTokenCount": 1, "totalTokenCount": 4,
			},
		})
	})

	a := newTestAdapter(t, mux)
	stream, err := a.Invoke(t.Context(), llm.InvokeRequest{
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
	})
	require.NoError(t, err)

	require.True(t, stream.Next())
	chunk := stream.Chunk()
	assert.Equal(t, "pong", chunk.Delta.Content)
	assert.Equal(t, "stop", chunk.FinishReason)
	assert.Equal(t, 4, chunk.Usage.TotalTokens)
	assert.False(t, stream.Next())
}

func TestInvokeStreaming(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1beta/models/gemini-2.0-flash:streamGenerateContent", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		events := []string{
			`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":5}}`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	})

	a := newTestAdapter(t, mux)
	stream, err := a.Invoke(t.Context(), llm.InvokeRequest{
		Model:    "gemini-2.0-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Stream:   true,
	})
	require.NoError(t, err)

	var content string
	var total int
	for stream.Next() {
		content += stream.Chunk().Delta.Content
		if stream.Chunk().Usage != nil {
			total = stream.Chunk().Usage.TotalTokens
		}
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Hello", content)
	assert.Equal(t, 5, total)
}

func TestUploadFileCached(t *testing.T) {
	uploads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		uploads++
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("pdf-bytes"), body)
		json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{
				"name": "files/abc", "uri": "https://files.example/files/abc", "state": "ACTIVE",
			},
		})
	})

	a := newTestAdapter(t, mux)
	uri, err := a.uploadFile(t.Context(), []byte("pdf-bytes"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/files/abc", uri)

	uri2, err := a.uploadFile(t.Context(), []byte("pdf-bytes"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, uri, uri2)
	assert.Equal(t, 1, uploads, "identical content served from the handle cache")
}

func TestUploadWaitsForProcessing(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]any{
				"name": "files/vid", "uri": "https://files.example/files/vid", "state": "PROCESSING",
			},
		})
	})
	mux.HandleFunc("/v1beta/files/vid", func(w http.ResponseWriter, r *http.Request) {
		polls++
		state := "PROCESSING"
		if polls >= 2 {
			state = "ACTIVE"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name": "files/vid", "uri": "https://files.example/files/vid", "state": state,
		})
	})

	a := newTestAdapter(t, mux)
	uri, err := a.uploadFile(t.Context(), bytes.Repeat([]byte("v"), 10), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/files/vid", uri)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestWrapErrorPromotesBadAPIKey(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())
	err := a.wrapError("m", &httpx.StatusError{
		StatusCode: 400,
		Body:       `{"error":{"message":"API key not valid"}}`,
	})
	assert.True(t, llm.IsAuthorization(err))

	err = a.wrapError("m", &httpx.StatusError{StatusCode: 400, Body: `{"error":{"message":"bad schema"}}`})
	assert.True(t, llm.IsBadRequest(err))

	err = a.wrapError("m", &httpx.StatusError{StatusCode: 429})
	assert.True(t, llm.IsRateLimit(err))
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(datasource.Credentials{}, nil)
	require.Error(t, err)
	assert.True(t, datasource.IsConfiguration(err))
}

func TestMessageText(t *testing.T) {
	got := messageText(llm.Message{Parts: []llm.ContentPart{
		{Kind: llm.ContentText, Text: "a"},
		{Kind: llm.ContentImage, URL: "https://x"},
		{Kind: llm.ContentText, Text: "b"},
	}})
	assert.Equal(t, "ab", got)
}
