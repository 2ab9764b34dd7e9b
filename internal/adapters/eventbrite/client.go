package eventbrite

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okian/eventhub/internal/domain/normalize"
)

// Provider defaults.
const (
	DefaultAPIURL   = "https://www.eventbriteapi.com/v3/events/search"
	DefaultLocation = "London, UK"
	DefaultLimit    = 20

	defaultRetries = 2
	defaultTimeout = 10 * time.Second
)

// Envelope is the body returned by the provider search endpoint and by the
// backend proxy. Error is only set by the proxy.
type Envelope struct {
	Events []normalize.ExternalItem `json:"events"`
	Error  string                   `json:"error,omitempty"`
}

// Client talks to the provider search API directly or through the backend proxy.
type Client struct {
	http     *resty.Client
	apiURL   string
	proxyURL string
	token    string
}

// ClientOption configures a Client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	apiURL   string
	proxyURL string
	token    string
	retries  int
	timeout  time.Duration
}

// WithAPIURL overrides the provider search endpoint.
func WithAPIURL(u string) ClientOption {
	return func(s *clientSettings) {
		if u != "" {
			s.apiURL = u
		}
	}
}

// WithProxyURL routes searches through the backend proxy first.
func WithProxyURL(u string) ClientOption {
	return func(s *clientSettings) { s.proxyURL = u }
}

// WithToken sets the provider bearer token for direct calls.
func WithToken(token string) ClientOption {
	return func(s *clientSettings) { s.token = token }
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) ClientOption {
	return func(s *clientSettings) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithTimeout bounds a single request.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewClient creates a provider client.
func NewClient(opts ...ClientOption) *Client {
	s := clientSettings{
		apiURL:  DefaultAPIURL,
		retries: defaultRetries,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &Client{
		http: resty.New().
			SetRetryCount(s.retries).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			SetTimeout(s.timeout).
			SetHeader("Accept", "application/json"),
		apiURL:   s.apiURL,
		proxyURL: s.proxyURL,
		token:    s.token,
	}
}

// HasProxy reports whether a proxy endpoint is configured.
func (c *Client) HasProxy() bool { return c.proxyURL != "" }

// HasToken reports whether direct calls can be made.
func (c *Client) HasToken() bool { return c.token != "" }

// Search calls the provider directly with the bearer token.
func (c *Client) Search(ctx context.Context, location string, limit int) ([]normalize.ExternalItem, error) {
	if c.token == "" {
		return nil, ErrNoCredential
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetQueryParams(map[string]string{
			"location.address": location,
			"sort_by":          "date",
			"expand":           "venue,logo",
			"page_size":        strconv.Itoa(limit),
		}).
		Get(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	env, err := decode(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}
	return env.Events, nil
}

// SearchProxy calls the backend proxy, which holds the credential.
func (c *Client) SearchProxy(ctx context.Context, location string, limit int) ([]normalize.ExternalItem, error) {
	if c.proxyURL == "" {
		return nil, fmt.Errorf("%w: not configured", ErrProxy)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"location": location,
			"limit":    strconv.Itoa(limit),
		}).
		Get(c.proxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProxy, err)
	}

	env, err := decode(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProxy, err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProxy, env.Error)
	}
	return env.Events, nil
}

// decode accepts only 2xx JSON responses.
func decode(resp *resty.Response) (Envelope, error) {
	var env Envelope
	if !resp.IsSuccess() {
		return env, fmt.Errorf("status %d", resp.StatusCode())
	}
	mt, _, err := mime.ParseMediaType(resp.Header().Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return env, fmt.Errorf("%w: %q", ErrNotJSON, resp.Header().Get("Content-Type"))
	}
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return env, fmt.Errorf("decode body: %w", err)
	}
	return env, nil
}
