// Package rajaongkir is a thin client for the RajaOngkir shipping API.
package rajaongkir

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.rajaongkir.com/starter"
	requestBodyReadLimit  int64 = 1024
	defaultTimeout              = 15 * time.Second
	rateLimitRetries            = 2
	rateLimitRetryBackoff       = 200 * time.Millisecond
)

var (
	errAPIKeyRequired = errors.New("rajaongkir api key is required")
)

// Client calls the provider's destination and cost endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	backoff    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		backoff:    rateLimitRetryBackoff,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// CostRequest is the body of the /cost call. Weight is in grams.
type CostRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Weight      int    `json:"weight"`
	Courier     string `json:"courier"`
}

// Cost returns the provider's service and price list for a parcel.
func (c *Client) Cost(ctx context.Context, req CostRequest) (json.RawMessage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "origin and destination are required")
	}
	if req.Weight <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "weight must be positive")
	}
	if strings.TrimSpace(req.Courier) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "courier is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal cost request")
	}
	return c.do(ctx, http.MethodPost, "cost", payload)
}

// Provinces lists destination provinces.
func (c *Client) Provinces(ctx context.Context) (json.RawMessage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	return c.do(ctx, http.MethodGet, "destination/province", nil)
}

// Cities lists the cities of a province.
func (c *Client) Cities(ctx context.Context, provinceID int) (json.RawMessage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping client not configured")
	}
	if provinceID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "province id is required")
	}
	return c.do(ctx, http.MethodGet, fmt.Sprintf("destination/city/%d", provinceID), nil)
}

// do sends the request, retrying 429 responses a bounded number of times,
// and unwraps the "data" envelope when present.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	url := c.buildURL(path)

	var lastStatus int
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build shipping request")
		}
		httpReq.Header.Set("Key", c.apiKey)
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute shipping request")
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastStatus = resp.StatusCode
			if attempt < rateLimitRetries {
				if err := sleepCtx(ctx, c.backoff); err != nil {
					return nil, err
				}
			}
			continue
		}

		data, err := decode(resp)
		_ = resp.Body.Close()
		return data, err
	}
	return nil, pkgerrors.New(pkgerrors.CodeRateLimit, fmt.Sprintf("shipping provider rate limited (status %d)", lastStatus))
}

func decode(resp *http.Response) (json.RawMessage, error) {
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "shipping request failed")
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read shipping response")
	}
	if !json.Valid(raw) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "decode shipping response: invalid json")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shipping response")
		}
		if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
			return envelope.Data, nil
		}
	}
	return json.RawMessage(raw), nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
