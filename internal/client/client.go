// Package client is an HTTP client for the decider service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TimurManjosov/decider/internal/api"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/store"
)

// Client is an HTTP client for the decider API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is returned for non-2xx responses. Errors with code
// FEATURE_NOT_FOUND match decider.ErrFeatureNotFound.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.Code == "" {
		return fmt.Sprintf("API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Response.Code, e.Response.Message)
}

func (e *APIError) Unwrap() error {
	if e.Response.Code == api.ErrCodeFeatureNotFound {
		return decider.ErrFeatureNotFound
	}
	return nil
}

// Choose evaluates one feature for evalCtx.
func (c *Client) Choose(ctx context.Context, feature string, evalCtx map[string]any) (*decider.Decision, error) {
	var dec decider.Decision
	body := api.ChooseRequest{Feature: feature, Context: evalCtx}
	if _, err := c.do(ctx, http.MethodPost, "/v1/choose", nil, body, &dec); err != nil {
		return nil, err
	}
	return &dec, nil
}

// ChooseAll evaluates the named features, or all of them when none are given.
func (c *Client) ChooseAll(ctx context.Context, evalCtx map[string]any, features ...string) (*api.ChooseAllResponse, error) {
	var resp api.ChooseAllResponse
	body := api.ChooseAllRequest{Features: features, Context: evalCtx}
	if _, err := c.do(ctx, http.MethodPost, "/v1/choose/all", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFeatures retrieves every feature of the active generation.
func (c *Client) ListFeatures(ctx context.Context) (*api.FeaturesResponse, error) {
	var resp api.FeaturesResponse
	if _, err := c.do(ctx, http.MethodGet, "/v1/features", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetFeature retrieves a single feature by name
func (c *Client) GetFeature(ctx context.Context, name string) (*store.Feature, error) {
	var f store.Feature
	if _, err := c.do(ctx, http.MethodGet, "/v1/features/"+url.PathEscape(name), nil, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Generation retrieves the active generation. With a non-empty etag it
// returns (nil, nil) while the server still serves that generation.
func (c *Client) Generation(ctx context.Context, etag string) (*api.GenerationResponse, error) {
	var headers map[string]string
	if etag != "" {
		headers = map[string]string{"If-None-Match": etag}
	}
	var resp api.GenerationResponse
	status, err := c.do(ctx, http.MethodGet, "/v1/generation", headers, nil, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotModified {
		return nil, nil
	}
	return &resp, nil
}

// Reload asks the service to reload its configuration. Requires the admin key.
func (c *Client) Reload(ctx context.Context) (*api.ReloadResponse, error) {
	var resp api.ReloadResponse
	if _, err := c.do(ctx, http.MethodPost, "/v1/admin/reload", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		bodyBytes, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(bodyBytes, &apiErr.Response) != nil {
			apiErr.Response.Message = string(bodyBytes)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
