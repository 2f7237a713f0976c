// Package gemini adapts the Google Generative Language REST API:
// generateContent for single-shot calls, streamGenerateContent over SSE
// for streaming, and the Files API side-channel for large attachments.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/internal/uploadcache"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
)

// Name is the registry name of this adapter.
const Name = "gemini"

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"

	// inlineLimit is the largest attachment sent inline as base64; bigger
	// payloads go through the Files API.
	inlineLimit = 4 << 20
)

// Config is the decoded credentials mapping for one Gemini API key.
type Config struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	UploadCachePath string `mapstructure:"upload_cache_path"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return datasource.ConfigErrorf(Name, "api_key is required")
	}
	return nil
}

// Adapter implements llm.Adapter for Gemini.
type Adapter struct {
	cfg     Config
	baseURL string
	client  *httpx.Client
	httpc   *http.Client
	cache   *uploadcache.Cache
	logger  *zap.Logger
}

var _ llm.Adapter = (*Adapter)(nil)

// New builds the adapter from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*Adapter, error) {
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
	cachePath := cfg.UploadCachePath
	if cachePath == "" {
		cachePath = defaultCachePath()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: httpx.NewClient(httpx.Config{
			BaseURL: strings.TrimSuffix(baseURL, "/") + "/" + apiVersion,
			Auth:    httpx.APIKey{Key: cfg.APIKey, Header: "x-goog-api-key"},
		}),
		httpc:  &http.Client{Timeout: httpx.DownloadTimeout},
		cache:  uploadcache.New(cachePath),
		logger: logger,
	}, nil
}

// Name implements llm.Adapter.
func (a *Adapter) Name() string { return Name }

// ValidateCredentials fetches the model's metadata.
func (a *Adapter) ValidateCredentials(ctx context.Context, _ datasource.Credentials, model string) error {
	if _, err := a.client.Get(ctx, "models/"+model, nil); err != nil {
		return a.wrapError(model, err)
	}
	return nil
}

// Wire shapes for the generateContent API.

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
	FileData   *wireFileData   `json:"file_data,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wireFileData struct {
	MimeType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Invoke implements llm.Adapter.
func (a *Adapter) Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.ChunkStream, error) {
	wireReq, err := a.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		return a.invokeStream(ctx, req.Model, wireReq)
	}
	return a.invokeOnce(ctx, req.Model, wireReq)
}

func (a *Adapter) invokeOnce(ctx context.Context, model string, wireReq *wireRequest) (*llm.ChunkStream, error) {
	resp, err := a.client.Post(ctx, "models/"+model+":generateContent", wireReq)
	if err != nil {
		return nil, a.wrapError(model, err)
	}
	var result wireResponse
	if err := resp.JSON(&result); err != nil {
		return nil, a.wrapError(model, err)
	}
	chunk, err := a.chunkFromResponse(model, &result)
	if err != nil {
		return nil, err
	}
	return llm.ChunkStreamOf(chunk), nil
}

func (a *Adapter) chunkFromResponse(model string, result *wireResponse) (*llm.ResultChunk, error) {
	if len(result.Candidates) == 0 {
		return nil, &llm.InvokeError{
			Provider: Name, Model: model,
			Kind: llm.ErrServerUnavailable,
			Err:  errors.New("response contained no candidates"),
		}
	}
	candidate := result.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	chunk := &llm.ResultChunk{
		Delta:        llm.Message{Role: llm.RoleAssistant, Content: text.String()},
		FinishReason: strings.ToLower(candidate.FinishReason),
	}
	if result.UsageMetadata != nil {
		chunk.Usage = &llm.Usage{
			PromptTokens:     result.UsageMetadata.PromptTokenCount,
			CompletionTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      result.UsageMetadata.TotalTokenCount,
		}
	}
	return chunk, nil
}

// invokeStream calls streamGenerateContent with alt=sse and parses the
// event stream incrementally.
func (a *Adapter) invokeStream(ctx context.Context, model string, wireReq *wireRequest) (*llm.ChunkStream, error) {
	body, err := jsonBody(wireReq)
	if err != nil {
		return nil, a.wrapError(model, err)
	}
	url := fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse", a.baseURL, apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, a.wrapError(model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)

	resp, err := a.httpc.Do(httpReq)
	if err != nil {
		return nil, a.wrapError(model, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, a.wrapError(model, &httpx.StatusError{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       buf.String(),
		})
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	index := 0

	return llm.NewChunkStream(func() (*llm.ResultChunk, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var event wireResponse
			if err := unmarshal(payload, &event); err != nil {
				resp.Body.Close()
				return nil, a.wrapError(model, err)
			}
			chunk, err := a.chunkFromResponse(model, &event)
			if err != nil {
				// Usage-only trailing events carry no candidates.
				if event.UsageMetadata != nil {
					chunk = &llm.ResultChunk{
						Usage: &llm.Usage{
							PromptTokens:     event.UsageMetadata.PromptTokenCount,
							CompletionTokens: event.UsageMetadata.CandidatesTokenCount,
							TotalTokens:      event.UsageMetadata.TotalTokenCount,
						},
					}
				} else {
					continue
				}
			}
			chunk.Index = index
			index++
			return chunk, nil
		}
		resp.Body.Close()
		if err := scanner.Err(); err != nil {
			return nil, a.wrapError(model, err)
		}
		return nil, nil
	}), nil
}

// buildRequest maps the generic invocation onto the Gemini request shape.
// System messages become the systemInstruction block; assistant turns use
// the "model" role.
func (a *Adapter) buildRequest(ctx context.Context, req llm.InvokeRequest) (*wireRequest, error) {
	out := &wireRequest{}
	var systemParts []wirePart

	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			systemParts = append(systemParts, wirePart{Text: messageText(m)})
			continue
		}
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		parts, err := a.mapParts(ctx, m)
		if err != nil {
			return nil, err
		}
		out.Contents = append(out.Contents, wireContent{Role: role, Parts: parts})
	}
	if len(systemParts) > 0 {
		out.SystemInstruction = &wireContent{Parts: systemParts}
	}

	genCfg := &wireGenerationConfig{StopSequences: req.Stop}
	if v, ok := floatParam(req.Parameters, "temperature"); ok {
		genCfg.Temperature = &v
	}
	if v, ok := floatParam(req.Parameters, "top_p"); ok {
		genCfg.TopP = &v
	}
	if v, ok := floatParam(req.Parameters, "max_tokens"); ok {
		genCfg.MaxOutputTokens = int(v)
	}
	if genCfg.Temperature != nil || genCfg.TopP != nil || genCfg.MaxOutputTokens > 0 || len(genCfg.StopSequences) > 0 {
		out.GenerationConfig = genCfg
	}
	return out, nil
}

func (a *Adapter) mapParts(ctx context.Context, m llm.Message) ([]wirePart, error) {
	if len(m.Parts) == 0 {
		return []wirePart{{Text: m.Content}}, nil
	}
	parts := make([]wirePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case llm.ContentText:
			parts = append(parts, wirePart{Text: p.Text})
		case llm.ContentImage, llm.ContentDocument:
			part, err := a.mediaPart(ctx, p)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		default:
			return nil, datasource.ConfigErrorf(Name, "unsupported content part kind %q", p.Kind)
		}
	}
	return parts, nil
}

// mediaPart turns a media attachment into inline data or a Files API
// reference. Vendor file URIs pass through; small images go inline; the
// rest is uploaded (with the handle cache short-circuiting re-uploads).
func (a *Adapter) mediaPart(ctx context.Context, p llm.ContentPart) (wirePart, error) {
	if p.URL != "" {
		return wirePart{FileData: &wireFileData{FileURI: p.URL, MimeType: p.MimeType}}, nil
	}
	if len(p.Data) == 0 {
		return wirePart{}, datasource.ConfigErrorf(Name, "media part has neither URL nor data")
	}
	if p.Kind == llm.ContentImage && len(p.Data) <= inlineLimit {
		return wirePart{InlineData: &wireInlineData{
			MimeType: p.MimeType,
			Data:     base64.StdEncoding.EncodeToString(p.Data),
		}}, nil
	}
	uri, err := a.uploadFile(ctx, p.Data, p.MimeType)
	if err != nil {
		return wirePart{}, err
	}
	return wirePart{FileData: &wireFileData{FileURI: uri, MimeType: p.MimeType}}, nil
}

func messageText(m llm.Message) string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == llm.ContentText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// wrapError classifies a vendor failure into the invoke taxonomy. Gemini
// reports invalid API keys as 400 INVALID_ARGUMENT, so those are promoted
// to authorization errors.
func (a *Adapter) wrapError(model string, err error) error {
	kind := llm.ErrConnection

	var se *httpx.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			kind = llm.ErrAuthorization
		case se.StatusCode == 429:
			kind = llm.ErrRateLimit
		case se.StatusCode >= 500:
			kind = llm.ErrServerUnavailable
		case se.StatusCode == 400 && strings.Contains(se.Body, "API key"):
			kind = llm.ErrAuthorization
		case se.StatusCode >= 400:
			kind = llm.ErrBadRequest
		}
	}

	return &llm.InvokeError{Provider: Name, Model: model, Kind: kind, Err: err}
}
