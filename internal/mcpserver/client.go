// Package mcpserver exposes the agentscan read API as MCP tools so
// LLM agents can query the index conversationally. All tools are
// read-only; the indexer has no write surface to expose.
package mcpserver

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

// Config holds the connection settings for the agentscan API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// ScanClient is a pure HTTP client for the agentscan read API.
type ScanClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewScanClient creates a new client for the agentscan API.
func NewScanClient(cfg Config) *ScanClient {
	return &ScanClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error string `json:"error"`
}

// doRequest makes a GET request to the API and returns the response body.
func (c *ScanClient) doRequest(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
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
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListAgents lists indexed agents, optionally filtered by chain.
func (c *ScanClient) ListAgents(ctx context.Context, chainID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if chainID != "" {
		q.Set("chainId", chainID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, "/v1/agents", q)
}

// GetAgent fetches one agent with its reputation and payment aggregates.
func (c *ScanClient) GetAgent(ctx context.Context, chainID, agentID string) (json.RawMessage, error) {
	return c.doRequest(ctx, "/v1/agents/"+chainID+"/"+agentID, nil)
}

// GetActivity fetches the recent activity feed.
func (c *ScanClient) GetActivity(ctx context.Context, activityType, chainID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if activityType != "" {
		q.Set("type", activityType)
	}
	if chainID != "" {
		q.Set("chainId", chainID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, "/v1/activity", q)
}

// GetStats returns ecosystem-wide statistics.
func (c *ScanClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, "/v1/stats", nil)
}
