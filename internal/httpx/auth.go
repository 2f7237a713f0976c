package httpx

import (
	"context"
	"encoding/base64"
	"net/http"
)

// Auth applies an authentication scheme to an outgoing request. Apply may
// perform work (e.g., refresh an expiring token) and therefore takes a
// context and can fail.
type Auth interface {
	Apply(ctx context.Context, req *http.Request) error
}

// Bearer sends an Authorization: Bearer header.
type Bearer struct {
	Token string
}

// Apply adds the bearer header.
func (a Bearer) Apply(_ context.Context, req *http.Request) error {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	return nil
}

// TokenHeader sends an Authorization header with a custom scheme word,
// e.g. GitHub's "token <pat>".
type TokenHeader struct {
	Scheme string
	Token  string
}

// Apply adds the header.
func (a TokenHeader) Apply(_ context.Context, req *http.Request) error {
	if a.Token != "" {
		req.Header.Set("Authorization", a.Scheme+" "+a.Token)
	}
	return nil
}

// Basic sends HTTP Basic credentials.
type Basic struct {
	Username string
	Password string
}

// Apply adds the basic auth header.
func (a Basic) Apply(_ context.Context, req *http.Request) error {
	if a.Username == "" && a.Password == "" {
		return nil
	}
	creds := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	req.Header.Set("Authorization", "Basic "+creds)
	return nil
}

// APIKey sends the key in a named header.
type APIKey struct {
	Key    string
	Header string
}

// Apply adds the key header.
func (a APIKey) Apply(_ context.Context, req *http.Request) error {
	if a.Key == "" {
		return nil
	}
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	req.Header.Set(header, a.Key)
	return nil
}

// ExpiringBearer sends a bearer token backed by an ExpiringToken, so the
// token is refreshed (or rejected) before it lapses mid-request.
type ExpiringBearer struct {
	Token *ExpiringToken
}

// Apply resolves the current token and adds the bearer header.
func (a ExpiringBearer) Apply(ctx context.Context, req *http.Request) error {
	tok, err := a.Token.Get(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
