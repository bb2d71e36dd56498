package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout = 30 * time.Second

	statusOK = "1"
)

// Client implements HolderSource over the explorer HTTP API.
//
// The client performs exactly one request per call and no internal retries;
// retry and error-budget policy belongs to the caller, which needs to count
// consecutive failures itself.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithAPIKey sets the explorer API key sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new explorer API client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// holderListResponse is the raw explorer envelope. Result stays raw because
// error payloads carry a plain string where success payloads carry a list.
type holderListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// rawHolder is the raw explorer holder entry.
type rawHolder struct {
	TokenHolderAddress  string `json:"TokenHolderAddress"`
	TokenHolderQuantity string `json:"TokenHolderQuantity"`
}

// HolderPage fetches one page of the holder list for a contract.
func (c *Client) HolderPage(ctx context.Context, contract string, page, offset int) (*HolderPage, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	q := u.Query()
	q.Set("module", "token")
	q.Set("action", "tokenholderlist")
	q.Set("contractaddress", contract)
	q.Set("page", strconv.Itoa(page))
	q.Set("offset", strconv.Itoa(offset))
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var decoded holderListResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	result := &HolderPage{
		OK:      decoded.Status == statusOK,
		Message: decoded.Message,
	}

	if len(decoded.Result) > 0 {
		var holders []rawHolder
		if err := json.Unmarshal(decoded.Result, &holders); err != nil {
			if result.OK {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
			// Rejection payloads put the reason string in result; nothing to consume.
			return result, nil
		}
		for _, h := range holders {
			result.Records = append(result.Records, Holder{
				Address:  h.TokenHolderAddress,
				Quantity: h.TokenHolderQuantity,
			})
		}
	}

	return result, nil
}

// Compile-time interface check.
var _ HolderSource = (*Client)(nil)
