package hydrus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"butler/internal/config"
	"butler/internal/services"
)

// HTTPDoer describes the HTTP client used by the Hydrus service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated requests against a Hydrus client API.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewClient constructs a client from application configuration.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		return &Client{client: http.DefaultClient}
	}
	return New(cfg.Hydrus.APIURL, cfg.Hydrus.APIKey, http.DefaultClient)
}

// New constructs a client against the given base URL with an injectable doer.
func New(baseURL, apiKey string, client HTTPDoer) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed != "" && !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: trimmed,
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

// BaseURL reports the normalized API address.
func (c *Client) BaseURL() string { return c.baseURL }

// Configured reports whether the client has an address to talk to.
func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

// APIError carries the HTTP-equivalent status of a failed Hydrus call.
// Connection failures report 503 and timeouts 504 so batch bookkeeping can
// treat every failure uniformly.
type APIError struct {
	StatusCode int
	Message    string
	marker     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hydrus api: %s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.marker }

func newAPIError(status int, message string, marker error) *APIError {
	if marker == nil {
		marker = services.ErrAPI
	}
	return &APIError{StatusCode: status, Message: message, marker: marker}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if !c.Configured() {
		return newAPIError(0, "API address not configured", services.ErrConfiguration)
	}
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return newAPIError(0, fmt.Sprintf("build request: %v", err), services.ErrAPI)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	if !c.Configured() {
		return newAPIError(0, "API address not configured", services.ErrConfiguration)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return newAPIError(0, fmt.Sprintf("encode payload: %v", err), services.ErrAPI)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return newAPIError(0, fmt.Sprintf("build request: %v", err), services.ErrAPI)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Hydrus-Client-API-Access-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newAPIError(http.StatusGatewayTimeout, "request timed out", services.ErrTimeout)
		}
		return newAPIError(http.StatusServiceUnavailable, fmt.Sprintf("connection failed: %v", err), services.ErrConnection)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newAPIError(resp.StatusCode, fmt.Sprintf("read response: %v", err), services.ErrAPI)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, errorMessage(data, resp.StatusCode), services.ErrAPI)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		// Hydrus returns bare 200s without a body for some mutations.
		return nil
	}
	return nil
}

func errorMessage(body []byte, status int) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
