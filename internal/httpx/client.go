// Package httpx provides the shared HTTP plumbing for REST connectors:
// a rate-limited client with pluggable auth schemes, uniform status-code
// error mapping, and an expiring bearer-token type.
//
// Retries are off by default. Connector logic never retries on its own;
// the only sanctioned use is a provider opting into the client-level
// retry-on-429/5xx policy via Config.MaxRetries.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Default per-call timeouts. Metadata and API calls use APITimeout;
// content downloads use DownloadTimeout.
const (
	APITimeout      = 30 * time.Second
	DownloadTimeout = 60 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is prepended to request paths.
	BaseURL string

	// Auth is applied to every request. Nil means no authentication.
	Auth Auth

	// Timeout for individual requests. Zero uses APITimeout.
	Timeout time.Duration

	// MaxRetries enables client-level retry on 429 and 5xx. Zero (the
	// default) disables retries entirely.
	MaxRetries int

	// RateLimit is the request rate in requests per second. Zero disables
	// client-side rate limiting.
	RateLimit float64

	// RateBurst is the limiter burst size when RateLimit is set.
	RateBurst int

	// Headers are added to every request.
	Headers map[string]string

	// UserAgent identifies the connector. Empty uses a package default.
	UserAgent string

	// Transport injects a custom round tripper (tests).
	Transport http.RoundTripper
}

const defaultUserAgent = "cirrus/1.0"

// Client is a thin HTTP client shared by REST connectors.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = APITimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// Request is one HTTP request to be made.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    io.Reader
}

// Response wraps a fully-read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into target.
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// Do executes a request. When MaxRetries is configured, 429 and 5xx
// responses are retried with exponential backoff; everything else fails
// immediately.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}

		if attempt >= c.cfg.MaxRetries || !isRetryable(err) {
			return nil, err
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.cfg.BaseURL
	if req.Path != "" {
		if strings.HasPrefix(req.Path, "http://") || strings.HasPrefix(req.Path, "https://") {
			// Absolute paths override the base URL; vendors hand back
			// fully-qualified continuation links (@odata.nextLink).
			fullURL = req.Path
		} else {
			fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
		}
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if c.cfg.Auth != nil {
		if err := c.cfg.Auth.Apply(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	if resp.StatusCode >= 400 {
		return response, &StatusError{
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       string(body),
		}
	}
	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// GetJSON performs a GET request and unmarshals the response.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, target any) error {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return resp.JSON(target)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.jsonRequest(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.jsonRequest(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query})
}

// PostForm performs a POST with form-encoded values.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   strings.NewReader(form.Encode()),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
	})
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = strings.NewReader(string(data))
	}
	return c.Do(ctx, &Request{
		Method: method,
		Path:   path,
		Body:   bodyReader,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	})
}

func isRetryable(err error) bool {
	se, ok := err.(*StatusError)
	if !ok {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}
