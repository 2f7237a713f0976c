// Package frontapp implements a tool provider over the Front API:
// conversation search and outbound email through a channel.
//
// This is the one provider that enables the shared client's retry policy;
// Front's rate limits are aggressive enough that a bounded retry on
// 429/5xx is part of its integration contract.
package frontapp

import (
	"context"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

// Name is the registry name of this provider.
const Name = "frontapp"

const apiBaseURL = "https://api2.frontapp.com"

// maxRetries bounds the client-level retry on 429 and 5xx.
const maxRetries = 3

// Config is the decoded credentials mapping for one Front workspace.
type Config struct {
	AccessToken string `mapstructure:"access_token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return datasource.ConfigErrorf(Name, "access_token is required")
	}
	return nil
}

// Provider implements tool.Provider for Front.
type Provider struct {
	client *httpx.Client
	logger *zap.Logger
}

var _ tool.Provider = (*Provider)(nil)

// New builds a provider from host credentials.
func New(creds datasource.Credentials, logger *zap.Logger) (*Provider, error) {
	var cfg Config
	if err := connector.DecodeCredentials(Name, creds, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client: httpx.NewClient(httpx.Config{
			BaseURL:    apiBaseURL,
			Auth:       httpx.Bearer{Token: cfg.AccessToken},
			MaxRetries: maxRetries,
			Headers:    map[string]string{"Accept": "application/json"},
		}),
		logger: logger,
	}, nil
}

// Name implements tool.Provider.
func (p *Provider) Name() string { return Name }

// ValidateCredentials probes the token with a token-details lookup.
func (p *Provider) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := p.client.Get(ctx, "me", nil); err != nil {
		return &datasource.ConnectorError{
			Connector: Name,
			Op:        "ValidateCredentials",
			Detail:    err.Error(),
			Err:       datasource.ErrInvalidCredentials,
		}
	}
	return nil
}

// Tools implements tool.Provider.
func (p *Provider) Tools() []tool.Tool {
	return []tool.Tool{
		&listConversationsTool{provider: p},
		&sendMessageTool{provider: p},
	}
}
