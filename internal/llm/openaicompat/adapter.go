// Package openaicompat is the shared adapter for OpenAI-compatible chat
// APIs. The OpenAI, Azure OpenAI, OpenRouter and Lemonade adapters are all
// configurations of this package; only endpoints, headers and a few
// response quirks differ.
package openaicompat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
)

// Name is the registry name of the plain OpenAI adapter.
const Name = "openai"

// Options configures one OpenAI-compatible vendor.
type Options struct {
	// Name is the adapter name used in errors and the registry.
	Name string

	// BaseURL overrides the vendor endpoint. Empty uses api.openai.com.
	BaseURL string

	// Azure switches to Azure auth and URL conventions; BaseURL is then
	// the resource endpoint and APIVersion is appended to requests.
	Azure      bool
	APIVersion string

	// Headers are added to every request (e.g., OpenRouter attribution).
	Headers map[string]string

	// WrapReasoning emits reasoning deltas wrapped in <think> tags ahead
	// of the visible content.
	WrapReasoning bool
}

// Credentials is the decoded credentials mapping shared by the
// OpenAI-compatible adapters.
type Credentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Adapter implements llm.Adapter for OpenAI-compatible APIs.
type Adapter struct {
	opts   Options
	client *openai.Client
	logger *zap.Logger
}

var _ llm.Adapter = (*Adapter)(nil)

// New builds the plain OpenAI adapter from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*Adapter, error) {
	return NewWithOptions(creds, Options{Name: Name}, logger)
}

// NewWithOptions builds an adapter for any OpenAI-compatible vendor.
func NewWithOptions(creds datasource.Credentials, opts Options, logger *zap.Logger) (*Adapter, error) {
	var cfg Credentials
	if err := connector.DecodeCredentials(opts.Name, creds, &cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" && !opts.Azure {
		// Local servers (Lemonade) accept any key; remote vendors do not.
		if opts.BaseURL == "" && cfg.BaseURL == "" {
			return nil, datasource.ConfigErrorf(opts.Name, "api_key is required")
		}
		cfg.APIKey = "not-needed"
	}

	baseURL := opts.BaseURL
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	var clientCfg openai.ClientConfig
	if opts.Azure {
		if cfg.APIKey == "" {
			return nil, datasource.ConfigErrorf(opts.Name, "api_key is required")
		}
		if baseURL == "" {
			return nil, datasource.ConfigErrorf(opts.Name, "base_url (resource endpoint) is required")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, baseURL)
		if opts.APIVersion != "" {
			clientCfg.APIVersion = opts.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if baseURL != "" {
			clientCfg.BaseURL = baseURL
		}
	}
	if len(opts.Headers) > 0 {
		clientCfg.HTTPClient = &http.Client{
			Transport: headerTransport{headers: opts.Headers},
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		opts:   opts,
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger,
	}, nil
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	headers map[string]string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return http.DefaultTransport.RoundTrip(req)
}

// Name implements llm.Adapter.
func (a *Adapter) Name() string { return a.opts.Name }

// ValidateCredentials runs a one-token completion against the model.
func (a *Adapter) ValidateCredentials(ctx context.Context, _ datasource.Credentials, model string) error {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
		MaxTokens: 1,
	}
	if _, err := a.client.CreateChatCompletion(ctx, req); err != nil {
		return a.wrapError(model, err)
	}
	return nil
}

// Invoke implements llm.Adapter.
func (a *Adapter) Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.ChunkStream, error) {
	chatReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		return a.invokeStream(ctx, req.Model, chatReq)
	}
	return a.invokeOnce(ctx, req.Model, chatReq)
}

func (a *Adapter) invokeOnce(ctx context.Context, model string, chatReq openai.ChatCompletionRequest) (*llm.ChunkStream, error) {
	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, a.wrapError(model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.InvokeError{
			Provider: a.opts.Name, Model: model,
			Kind: llm.ErrServerUnavailable,
			Err:  errors.New("response contained no choices"),
		}
	}

	choice := resp.Choices[0]
	content := choice.Message.Content
	if a.opts.WrapReasoning && choice.Message.ReasoningContent != "" {
		content = "<think>" + choice.Message.ReasoningContent + "</think>" + content
	}

	return llm.ChunkStreamOf(&llm.ResultChunk{
		Delta: llm.Message{Role: llm.RoleAssistant, Content: content},
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
	}), nil
}

func (a *Adapter) invokeStream(ctx context.Context, model string, chatReq openai.ChatCompletionRequest) (*llm.ChunkStream, error) {
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, a.wrapError(model, err)
	}

	index := 0
	thinking := false
	return llm.NewChunkStream(func() (*llm.ResultChunk, error) {
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				stream.Close()
				if thinking {
					thinking = false
					return &llm.ResultChunk{
						Index: index,
						Delta: llm.Message{Role: llm.RoleAssistant, Content: "</think>"},
					}, nil
				}
				return nil, nil
			}
			if err != nil {
				stream.Close()
				return nil, a.wrapError(model, err)
			}

			chunk := &llm.ResultChunk{Index: index}
			if resp.Usage != nil {
				chunk.Usage = &llm.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				if chunk.Usage == nil {
					continue
				}
				index++
				return chunk, nil
			}

			choice := resp.Choices[0]
			content := choice.Delta.Content
			if a.opts.WrapReasoning && choice.Delta.ReasoningContent != "" {
				reasoning := choice.Delta.ReasoningContent
				if !thinking {
					thinking = true
					reasoning = "<think>" + reasoning
				}
				content = reasoning + content
			} else if thinking && content != "" {
				thinking = false
				content = "</think>" + content
			}

			chunk.Delta = llm.Message{Role: llm.RoleAssistant, Content: content}
			chunk.FinishReason = string(choice.FinishReason)
			index++
			return chunk, nil
		}
	}), nil
}

// buildRequest maps the generic invocation onto the OpenAI request shape.
func (a *Adapter) buildRequest(req llm.InvokeRequest) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		mapped, err := mapMessage(a.opts.Name, m)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		messages = append(messages, mapped)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stop:     req.Stop,
	}
	applyParameters(&chatReq, req.Parameters)
	return chatReq, nil
}

func mapMessage(adapter string, m llm.Message) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		ToolCallID: m.ToolCallID,
	}
	if len(m.Parts) == 0 {
		out.Content = m.Content
		return out, nil
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case llm.ContentText:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: p.Text,
			})
		case llm.ContentImage:
			url := p.URL
			if url == "" {
				if len(p.Data) == 0 {
					return out, datasource.ConfigErrorf(adapter, "image part has neither URL nor data")
				}
				url = dataURL(p.MimeType, p.Data)
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		default:
			return out, datasource.ConfigErrorf(adapter, "unsupported content part kind %q", p.Kind)
		}
	}
	out.MultiContent = parts
	return out, nil
}

// dataURL encodes raw bytes as a base64 data URL.
func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func applyParameters(req *openai.ChatCompletionRequest, params map[string]any) {
	if params == nil {
		return
	}
	if v, ok := floatParam(params, "temperature"); ok {
		req.Temperature = float32(v)
	}
	if v, ok := floatParam(params, "top_p"); ok {
		req.TopP = float32(v)
	}
	if v, ok := floatParam(params, "frequency_penalty"); ok {
		req.FrequencyPenalty = float32(v)
	}
	if v, ok := floatParam(params, "presence_penalty"); ok {
		req.PresencePenalty = float32(v)
	}
	if v, ok := floatParam(params, "max_tokens"); ok {
		req.MaxTokens = int(v)
	}
	if v, ok := params["reasoning_effort"].(string); ok && v != "" {
		req.ReasoningEffort = v
	}
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

// wrapError classifies a vendor failure into the invoke taxonomy.
func (a *Adapter) wrapError(model string, err error) error {
	kind := llm.ErrConnection

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		kind = classifyStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		kind = classifyStatus(reqErr.HTTPStatusCode)
	}

	return &llm.InvokeError{
		Provider: a.opts.Name,
		Model:    model,
		Kind:     kind,
		Err:      err,
	}
}

func classifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return llm.ErrAuthorization
	case status == 429:
		return llm.ErrRateLimit
	case status >= 500:
		return llm.ErrServerUnavailable
	case status >= 400:
		return llm.ErrBadRequest
	default:
		return llm.ErrConnection
	}
}
