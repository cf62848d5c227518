package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for connecting to the scoring API.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:5001"
	Timeout time.Duration // Per-request timeout; zero means 30s
}

// Client is a pure HTTP client for the fraud scoring API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new client for the scoring API.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError represents an error response from the API. For scoring
// failures Error carries the detail and Message the fixed user-facing text.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func (e apiError) String() string {
	switch {
	case e.Error != "" && e.Message != "" && e.Error != e.Message:
		return e.Message + " (" + e.Error + ")"
	case e.Message != "":
		return e.Message
	default:
		return e.Error
	}
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.APIURL, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.String() != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.String())
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ScoreTransaction posts one transaction record to /v1/predict. The API
// answers failures with 200 unless strict status codes are enabled, so an
// "error" key in a 200 body is reported as an error too.
func (c *Client) ScoreTransaction(ctx context.Context, record map[string]any) (json.RawMessage, error) {
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/predict", nil, record)
	if err != nil {
		return nil, err
	}

	var apiErr apiError
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("scoring failed: %s", apiErr.String())
	}
	return raw, nil
}

// GetModelInfo describes the loaded model.
func (c *Client) GetModelInfo(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/model", nil, nil)
}

// ListCustomerPredictions returns a customer's recent scored transactions.
func (c *Client) ListCustomerPredictions(ctx context.Context, customerID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/customers/" + url.PathEscape(customerID) + "/predictions"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}
