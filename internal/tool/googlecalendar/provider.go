// Package googlecalendar implements a tool provider over the Google
// Calendar REST API: event listing and creation. The OAuth flow shares
// Google's endpoints with the Drive connector; only the scopes differ.
package googlecalendar

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/oauthflow"
	"github.com/cirrushq/cirrus/pkg/tool"
)

// Name is the registry name of this provider.
const Name = "google_calendar"

const apiBaseURL = "https://www.googleapis.com/calendar/v3"

// Flow builds the OAuth flow for this provider.
func Flow(clientID, clientSecret string) *oauthflow.Flow {
	return &oauthflow.Flow{
		Name:         Name,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
		AuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		Identity: &oauthflow.IdentityProbe{
			URL: "https://www.googleapis.com/oauth2/v2/userinfo",
			Map: func(body map[string]any) (string, string) {
				name, _ := body["email"].(string)
				avatar, _ := body["picture"].(string)
				return name, avatar
			},
		},
	}
}

// Config is the decoded credentials mapping for one Google account.
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

// Provider implements tool.Provider for Google Calendar.
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
			Headers: map[string]string{"Accept": "application/json"},
		}),
		logger: logger,
	}, nil
}

// Name implements tool.Provider.
func (p *Provider) Name() string { return Name }

// ValidateCredentials probes the token with a calendar-list lookup.
func (p *Provider) ValidateCredentials(ctx context.Context, _ datasource.Credentials) error {
	if _, err := p.client.Get(ctx, "users/me/calendarList", nil); err != nil {
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
		&listEventsTool{provider: p},
		&createEventTool{provider: p},
	}
}
