// Package oauthflow implements the three-legged OAuth2 lifecycle shared by
// connectors that authenticate with authorization-code grants: build the
// authorization URL, exchange the code, refresh the token.
//
// Each call is a single independent HTTP round trip; no state is shared
// across calls. Failures surface as *OAuthError so hosts can route the
// user back into the authorization flow instead of treating them as
// generic connector failures.
package oauthflow

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// tokenTimeout bounds every token-endpoint round trip.
const tokenTimeout = 30 * time.Second

// Flow describes one vendor's OAuth2 integration.
type Flow struct {
	// Name identifies the provider in errors (e.g., "spotify").
	Name string

	// ClientID and ClientSecret are the host's registered app
	// credentials.
	ClientID     string
	ClientSecret string

	// Endpoint holds the vendor's authorization and token URLs.
	Endpoint oauth2.Endpoint

	// Scopes requested during authorization.
	Scopes []string

	// AuthParams are extra query parameters for the authorization URL
	// (e.g., access_type=offline, prompt=consent).
	AuthParams map[string]string

	// Identity optionally configures a "who am I" probe run after a
	// successful exchange or refresh.
	Identity *IdentityProbe

	// HTTPClient overrides the token-endpoint client (tests). Nil uses a
	// client with the fixed token timeout.
	HTTPClient *http.Client
}

// IdentityProbe fetches the connected account's display identity.
type IdentityProbe struct {
	// URL is the vendor's userinfo endpoint.
	URL string

	// Map extracts the display name and avatar from the decoded response.
	Map func(body map[string]any) (name, avatarURL string)
}

// Grant is the credential material produced by an exchange or refresh,
// handed back to the host for storage.
type Grant struct {
	AccessToken  string
	RefreshToken string

	// ExpiresAt is the access token expiry as a Unix timestamp. Zero when
	// the vendor does not report one.
	ExpiresAt int64

	// Account is the connected account identity, when an IdentityProbe is
	// configured.
	Account ConnectedAccount

	// Extra retains vendor-specific token-response fields the flow was
	// configured to keep.
	Extra map[string]string
}

// ConnectedAccount is the display identity of the authorized account.
type ConnectedAccount struct {
	Name      string
	AvatarURL string
}

// AuthorizationURL returns the vendor authorization URL and the
// anti-forgery state token embedded in it. A fresh state is generated per
// call.
func (f *Flow) AuthorizationURL(redirectURI string) (authURL, state string) {
	state = uuid.NewString()
	opts := []oauth2.AuthCodeOption{}
	for k, v := range f.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	cfg := f.config(redirectURI)
	return cfg.AuthCodeURL(state, opts...), state
}

// Exchange trades an authorization code for a grant.
func (f *Flow) Exchange(ctx context.Context, code, redirectURI string) (*Grant, error) {
	if code == "" {
		return nil, &OAuthError{Provider: f.Name, Op: "exchange", Err: errors.New("no authorization code provided")}
	}
	cfg := f.config(redirectURI)
	tok, err := cfg.Exchange(f.httpContext(ctx), code)
	if err != nil {
		return nil, f.wrap("exchange", err)
	}
	return f.grantFromToken(ctx, tok, "")
}

// Refresh trades a refresh token for a new grant. When the vendor does not
// rotate refresh tokens the prior token is preserved in the result.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, &OAuthError{Provider: f.Name, Op: "refresh", Err: errors.New("no refresh token available, please re-authorize")}
	}
	cfg := f.config("")
	src := cfg.TokenSource(f.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, f.wrap("refresh", err)
	}
	return f.grantFromToken(ctx, tok, refreshToken)
}

func (f *Flow) grantFromToken(ctx context.Context, tok *oauth2.Token, priorRefresh string) (*Grant, error) {
	// Some vendors return HTTP 200 with an empty access_token field.
	if tok.AccessToken == "" {
		return nil, &OAuthError{Provider: f.Name, Op: "token", Err: errors.New("token response missing access_token")}
	}

	grant := &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if grant.RefreshToken == "" {
		grant.RefreshToken = priorRefresh
	}
	if !tok.Expiry.IsZero() {
		grant.ExpiresAt = tok.Expiry.Unix()
	}

	if f.Identity != nil {
		account, err := f.probeIdentity(ctx, tok.AccessToken)
		if err != nil {
			return nil, err
		}
		grant.Account = account
	}
	return grant, nil
}

func (f *Flow) probeIdentity(ctx context.Context, accessToken string) (ConnectedAccount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Identity.URL, nil)
	if err != nil {
		return ConnectedAccount{}, &OAuthError{Provider: f.Name, Op: "identity", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client().Do(req)
	if err != nil {
		return ConnectedAccount{}, f.wrap("identity", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ConnectedAccount{}, &OAuthError{
			Provider: f.Name,
			Op:       "identity",
			Err:      fmt.Errorf("userinfo returned HTTP %d", resp.StatusCode),
		}
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ConnectedAccount{}, &OAuthError{Provider: f.Name, Op: "identity", Err: fmt.Errorf("decode userinfo: %w", err)}
	}

	name, avatar := f.Identity.Map(body)
	return ConnectedAccount{Name: name, AvatarURL: avatar}, nil
}

func (f *Flow) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		Endpoint:     f.Endpoint,
		RedirectURL:  redirectURI,
		Scopes:       f.Scopes,
	}
}

func (f *Flow) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{Timeout: tokenTimeout}
}

// httpContext injects the flow's HTTP client into the oauth2 transport.
func (f *Flow) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.client())
}

// wrap classifies a token-endpoint failure into a user-facing OAuthError.
// Network-layer failures get distinct messages; HTTP errors keep the
// vendor's error body.
func (f *Flow) wrap(op string, err error) error {
	oe := &OAuthError{Provider: f.Name, Op: op, Err: err}

	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		oe.StatusCode = retrieve.Response.StatusCode
		oe.Body = string(retrieve.Body)
		return oe
	}

	var certErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	switch {
	case errors.As(err, &certErr), errors.As(err, &hostErr):
		oe.Hint = "TLS verification failed; check network proxy or firewall settings"
	case isTimeout(err):
		oe.Hint = "request timed out; the authorization server may be slow or unreachable"
	case errors.Is(err, syscall.ECONNREFUSED):
		oe.Hint = "connection refused; check your network connection"
	}
	return oe
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// OAuthError is the distinct error type for OAuth lifecycle failures.
type OAuthError struct {
	Provider string
	Op       string

	// StatusCode and Body carry the vendor token-endpoint response, when
	// one was received.
	StatusCode int
	Body       string

	// Hint is a network-layer classification for failures with no HTTP
	// response.
	Hint string

	Err error
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	msg := fmt.Sprintf("oauth %s %s: %v", e.Provider, e.Op, e.Err)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d: %s)", e.StatusCode, truncate(e.Body, 200))
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *OAuthError) Unwrap() error { return e.Err }

// IsOAuthError reports whether err is an OAuth lifecycle failure.
func IsOAuthError(err error) bool {
	var oe *OAuthError
	return errors.As(err, &oe)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
