// Package azureopenai adapts Azure-hosted OpenAI deployments. Azure
// addresses models by deployment name, so the requested model doubles as
// the deployment.
package azureopenai

import (
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/llm/openaicompat"
	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this adapter.
const Name = "azure_openai"

const defaultAPIVersion = "2024-02-01"

// Config is the decoded credentials mapping for one Azure OpenAI resource.
type Config struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	APIVersion string `mapstructure:"api_version"`
}

// New builds the adapter from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*openaicompat.Adapter, error) {
	var cfg Config
	if err := connector.DecodeCredentials(Name, creds, &cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, datasource.ConfigErrorf(Name, "endpoint is required")
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	return openaicompat.NewWithOptions(
		datasource.Credentials{"api_key": cfg.APIKey, "base_url": cfg.Endpoint},
		openaicompat.Options{
			Name:       Name,
			Azure:      true,
			APIVersion: apiVersion,
		},
		logger,
	)
}
