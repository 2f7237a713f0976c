// Package oci adapts the Oracle Generative AI inference service. Requests
// go to the REST actions/chat endpoint in the GENERIC chat format and are
// signed with the SDK's raw-key configuration provider.
//
// The service streams over SSE, but this adapter invokes synchronously and
// delivers one terminal chunk; the host contract permits that for vendors
// whose streaming transport is not wired.
package oci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
)

// Name is the registry name of this adapter.
const Name = "oci"

// apiDate is the Generative AI inference API version in the request path.
const apiDate = "20231130"

// Config is the decoded credentials mapping for one OCI tenancy.
type Config struct {
	TenancyOCID     string `mapstructure:"tenancy_ocid"`
	UserOCID        string `mapstructure:"user_ocid"`
	Region          string `mapstructure:"region"`
	Fingerprint     string `mapstructure:"fingerprint"`
	PrivateKey      string `mapstructure:"private_key"`
	Passphrase      string `mapstructure:"passphrase"`
	CompartmentOCID string `mapstructure:"compartment_ocid"`
	Endpoint        string `mapstructure:"endpoint"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch {
	case c.TenancyOCID == "":
		return datasource.ConfigErrorf(Name, "tenancy_ocid is required")
	case c.UserOCID == "":
		return datasource.ConfigErrorf(Name, "user_ocid is required")
	case c.Region == "":
		return datasource.ConfigErrorf(Name, "region is required")
	case c.Fingerprint == "":
		return datasource.ConfigErrorf(Name, "fingerprint is required")
	case c.PrivateKey == "":
		return datasource.ConfigErrorf(Name, "private_key is required")
	case c.CompartmentOCID == "":
		return datasource.ConfigErrorf(Name, "compartment_ocid is required")
	}
	return nil
}

func (c *Config) endpoint() string {
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://inference.generativeai.%s.oci.oraclecloud.com", c.Region)
}

// Adapter implements llm.Adapter for OCI Generative AI.
type Adapter struct {
	cfg    Config
	signer common.HTTPRequestSigner
	httpc  *http.Client
	logger *zap.Logger
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

	var passphrase *string
	if cfg.Passphrase != "" {
		passphrase = &cfg.Passphrase
	}
	provider := common.NewRawConfigurationProvider(
		cfg.TenancyOCID, cfg.UserOCID, cfg.Region, cfg.Fingerprint, cfg.PrivateKey, passphrase)
	if _, err := provider.PrivateRSAKey(); err != nil {
		return nil, datasource.ConfigErrorf(Name, "invalid signing key: %v", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg,
		signer: common.DefaultRequestSigner(provider),
		httpc:  &http.Client{Timeout: httpx.APITimeout},
		logger: logger,
	}, nil
}

// Name implements llm.Adapter.
func (a *Adapter) Name() string { return Name }

// Wire shapes for the GENERIC chat format.

type wireTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireMessage struct {
	Role    string            `json:"role"`
	Content []wireTextContent `json:"content"`
}

type wireChatRequest struct {
	CompartmentID string `json:"compartmentId"`
	ServingMode   struct {
		ServingType string `json:"servingType"`
		ModelID     string `json:"modelId"`
	} `json:"servingMode"`
	ChatRequest struct {
		APIFormat   string        `json:"apiFormat"`
		Messages    []wireMessage `json:"messages"`
		MaxTokens   int           `json:"maxTokens,omitempty"`
		Temperature *float64      `json:"temperature,omitempty"`
		TopP        *float64      `json:"topP,omitempty"`
		Stop        []string      `json:"stop,omitempty"`
		IsStream    bool          `json:"isStream"`
	} `json:"chatRequest"`
}

type wireChatResponse struct {
	ChatResponse struct {
		Choices []struct {
			Message struct {
				Content []wireTextContent `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finishReason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"promptTokens"`
			CompletionTokens int `json:"completionTokens"`
			TotalTokens      int `json:"totalTokens"`
		} `json:"usage"`
	} `json:"chatResponse"`
}

// ValidateCredentials runs a one-token completion against the model.
func (a *Adapter) ValidateCredentials(ctx context.Context, _ datasource.Credentials, model string) error {
	req := llm.InvokeRequest{
		Model:      model,
		Messages:   []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
		Parameters: map[string]any{"max_tokens": 1},
	}
	_, err := a.Invoke(ctx, req)
	return err
}

// Invoke implements llm.Adapter.
func (a *Adapter) Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.ChunkStream, error) {
	body, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, a.wrapError(req.Model, err)
	}

	url := a.cfg.endpoint() + "/" + apiDate + "/actions/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, a.wrapError(req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.ContentLength = int64(len(payload))

	if err := a.signer.Sign(httpReq); err != nil {
		return nil, &llm.InvokeError{
			Provider: Name, Model: req.Model,
			Kind: llm.ErrAuthorization,
			Err:  fmt.Errorf("sign request: %w", err),
		}
	}

	resp, err := a.httpc.Do(httpReq)
	if err != nil {
		return nil, a.wrapError(req.Model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a.wrapError(req.Model, err)
	}
	if resp.StatusCode >= 400 {
		return nil, a.wrapError(req.Model, &httpx.StatusError{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       string(respBody),
		})
	}

	var result wireChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, a.wrapError(req.Model, err)
	}
	if len(result.ChatResponse.Choices) == 0 {
		return nil, &llm.InvokeError{
			Provider: Name, Model: req.Model,
			Kind: llm.ErrServerUnavailable,
			Err:  errors.New("response contained no choices"),
		}
	}

	choice := result.ChatResponse.Choices[0]
	var text strings.Builder
	for _, part := range choice.Message.Content {
		text.WriteString(part.Text)
	}

	return llm.ChunkStreamOf(&llm.ResultChunk{
		Delta: llm.Message{Role: llm.RoleAssistant, Content: text.String()},
		Usage: &llm.Usage{
			PromptTokens:     result.ChatResponse.Usage.PromptTokens,
			CompletionTokens: result.ChatResponse.Usage.CompletionTokens,
			TotalTokens:      result.ChatResponse.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}), nil
}

// buildRequest maps the generic invocation onto the GENERIC chat format.
// Roles are uppercased; multimodal parts are flattened to their text.
func (a *Adapter) buildRequest(req llm.InvokeRequest) (*wireChatRequest, error) {
	out := &wireChatRequest{CompartmentID: a.cfg.CompartmentOCID}
	out.ServingMode.ServingType = "ON_DEMAND"
	out.ServingMode.ModelID = req.Model
	out.ChatRequest.APIFormat = "GENERIC"

	for _, m := range req.Messages {
		text := m.Content
		if len(m.Parts) > 0 {
			var b strings.Builder
			for _, p := range m.Parts {
				if p.Kind != llm.ContentText {
					return nil, datasource.ConfigErrorf(Name, "unsupported content part kind %q", p.Kind)
				}
				b.WriteString(p.Text)
			}
			text = b.String()
		}
		out.ChatRequest.Messages = append(out.ChatRequest.Messages, wireMessage{
			Role:    strings.ToUpper(string(m.Role)),
			Content: []wireTextContent{{Type: "TEXT", Text: text}},
		})
	}

	out.ChatRequest.Stop = req.Stop
	if v, ok := floatParam(req.Parameters, "temperature"); ok {
		out.ChatRequest.Temperature = &v
	}
	if v, ok := floatParam(req.Parameters, "top_p"); ok {
		out.ChatRequest.TopP = &v
	}
	if v, ok := floatParam(req.Parameters, "max_tokens"); ok {
		out.ChatRequest.MaxTokens = int(v)
	}
	return out, nil
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
		case se.StatusCode >= 400:
			kind = llm.ErrBadRequest
		}
	}

	return &llm.InvokeError{Provider: Name, Model: model, Kind: kind, Err: err}
}
