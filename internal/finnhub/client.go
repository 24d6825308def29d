package finnhub

import (
	"context"
	"net/http"
	"net/url"
)

const baseURL = "https://finnhub.io/api/v1"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=finnhub_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher is the upstream capability the stock service consumes. It exists so
// tests and decorators (rate limiting) can stand in for the real client.
type Fetcher interface {
	Quote(ctx context.Context, symbol string) (QuotePayload, error)
	Profile(ctx context.Context, symbol string) (ProfilePayload, error)
	Search(ctx context.Context, keyword string) (SearchPayload, error)
}

// Client is a client for the Finnhub REST API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// ClientOption is a configuration option for the Finnhub client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// New creates a new Finnhub client. The API key is sent as the `token` query
// parameter on every request, per https://finnhub.io/docs/api.
func New(key string, options ...ClientOption) *Client {
	var client = &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key != "" {
		client.query.Add("token", key)
	}
	for _, option := range options {
		option(client)
	}
	return client
}
