// Package openrouter adapts the OpenRouter aggregation API. The wire
// format is OpenAI-compatible; OpenRouter additionally wants attribution
// headers and reports model reasoning as separate deltas, which this
// adapter folds into the visible stream inside <think> tags.
package openrouter

import (
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/llm/openaicompat"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this adapter.
const Name = "openrouter"

const baseURL = "https://openrouter.ai/api/v1"

// Attribution headers shown on the OpenRouter usage dashboard.
const (
	refererHeader = "https://github.com/cirrushq/cirrus"
	titleHeader   = "cirrus"
)

// New builds the adapter from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*openaicompat.Adapter, error) {
	return openaicompat.NewWithOptions(creds, openaicompat.Options{
		Name:    Name,
		BaseURL: baseURL,
		Headers: map[string]string{
			"HTTP-Referer": refererHeader,
			"X-Title":      titleHeader,
		},
		WrapReasoning: true,
	}, logger)
}
