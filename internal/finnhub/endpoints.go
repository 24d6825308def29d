package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
)

// UpstreamError reports a failed call to the Finnhub API: transport failure,
// a non-2xx status, or a malformed response body.
type UpstreamError struct {
	URL    string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("finnhub: %s -> %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("finnhub: %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// QuotePayload is the /quote response. Fields are pointers so the quote
// builder can tell an absent field from a zero.
type QuotePayload struct {
	Current       *json.Number `json:"c"`
	Change        *json.Number `json:"d"`
	PercentChange *json.Number `json:"dp"`
	High          *json.Number `json:"h"`
	Low           *json.Number `json:"l"`
	Open          *json.Number `json:"o"`
	PreviousClose *json.Number `json:"pc"`
	Timestamp     int64        `json:"t"`
}

// ProfilePayload is the subset of /stock/profile2 this service reads.
type ProfilePayload struct {
	Name     string `json:"name"`
	Ticker   string `json:"ticker"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange"`
}

// SearchPayload is the /search response.
type SearchPayload struct {
	Count  int            `json:"count"`
	Result []SearchResult `json:"result"`
}

type SearchResult struct {
	Symbol        string `json:"symbol"`
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Type          string `json:"type"`
}

// Quote retrieves the current quote for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (QuotePayload, error) {
	var out QuotePayload
	err := c.getJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &out)
	return out, err
}

// Profile retrieves the company profile for a symbol.
func (c *Client) Profile(ctx context.Context, symbol string) (ProfilePayload, error) {
	var out ProfilePayload
	err := c.getJSON(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &out)
	return out, err
}

// Search looks up symbols matching a keyword.
func (c *Client) Search(ctx context.Context, keyword string) (SearchPayload, error) {
	var out SearchPayload
	err := c.getJSON(ctx, "/search", url.Values{"q": {keyword}}, &out)
	return out, err
}

// getJSON issues a single GET and decodes the JSON body into out. There are
// no retries; a failed call is reported immediately as an *UpstreamError.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	query := maps.Clone(c.query)
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, query.Encode())
	// Errors carry the endpoint only so the token never lands in logs.
	errURL := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return &UpstreamError{URL: errURL, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{URL: errURL, Err: fmt.Errorf("performing request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return &UpstreamError{URL: errURL, Status: res.StatusCode, Err: fmt.Errorf("unexpected status: %s", string(b))}
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &UpstreamError{URL: errURL, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
