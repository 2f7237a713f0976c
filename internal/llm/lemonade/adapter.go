// Package lemonade adapts a local Lemonade inference server, which speaks
// the OpenAI chat API. No API key is needed; the base URL is configurable
// for non-default ports.
package lemonade

import (
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/llm/openaicompat"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this adapter.
const Name = "lemonade"

const defaultBaseURL = "http://localhost:8000/api/v1"

// New builds the adapter from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*openaicompat.Adapter, error) {
	return openaicompat.NewWithOptions(creds, openaicompat.Options{
		Name:    Name,
		BaseURL: defaultBaseURL,
	}, logger)
}
