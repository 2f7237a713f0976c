// Package zoom implements a tool provider over the Zoom API: OAuth
// authorization-code flow plus meeting creation and listing.
package zoom

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/oauthflow"
	"github.com/cirrushq/cirrus/pkg/tool"
)

// Name is the registry name of this provider.
const Name = "zoom"

const apiBaseURL = "https://api.zoom.us/v2"

// Flow builds the OAuth flow for this provider.
func Flow(clientID, clientSecret string) *oauthflow.Flow {
	return &oauthflow.Flow{
		Name:         Name,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://zoom.us/oauth/authorize",
			TokenURL: "https://zoom.us/oauth/token",
		},
		Identity: &oauthflow.IdentityProbe{
			URL: apiBaseURL + "/users/me",
			Map: func(body map[string]any) (string, string) {
				name, _ := body["display_name"].(string)
				if name == "" {
					name, _ = body["email"].(string)
				}
				avatar, _ := body["pic_url"].(string)
				return name, avatar
			},
		},
	}
}

// Config is the decoded credentials mapping for one Zoom account.
type Config struct {
	AccessToken string `mapstructure:"access_token"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return datasource.ConfigErrorf(Name, "access_token is required, please authorize first")
	}
	return nil
}

// Provider implements tool.Provider for Zoom.
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
			BaseURL: apiBaseURL,
			Auth:    httpx.Bearer{Token: cfg.AccessToken},
		}),
		logger: logger,
	}, nil
}

// Name implements tool.Provider.
func (p *Provider) Name() string { return Name }

// ValidateCredentials probes the token with a profile lookup.
func (p *Provider) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := p.client.Get(ctx, "users/me", nil); err != nil {
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
		&createMeetingTool{provider: p},
		&listMeetingsTool{provider: p},
	}
}
