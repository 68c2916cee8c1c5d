// Package generator implements the ContentGenerator port against an upstream
// HTTP generation service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/careerforge/creditledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ContentGenerator = (*Client)(nil)

const defaultTimeout = 30 * time.Second

// Client calls an upstream generation service over HTTP. The upstream owns
// prompting and model selection; this client only carries the request fields
// and returns the generated text.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. This
// constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type generateRequest struct {
	Field       string `json:"field"`
	CurrentText string `json:"current_text"`
	Context     string `json:"context"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Generate sends the request upstream and returns the generated text.
func (c *Client) Generate(ctx context.Context, req driven.GenerationRequest) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Field:       req.Field,
		CurrentText: req.Current,
		Context:     req.Context,
	})
	if err != nil {
		return "", fmt.Errorf("encoding generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling generation service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding generation response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generation service error: %s", out.Error)
	}
	if out.Text == "" {
		return "", fmt.Errorf("generation service returned empty text")
	}

	return out.Text, nil
}
