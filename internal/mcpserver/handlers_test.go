package mcpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewScanClient(Config{APIURL: ts.URL})
	return NewHandlers(client), ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

const agentListBody = `{
	"total": 2,
	"agents": [
		{"id": "8453:1", "name": "translator", "chainId": 8453, "hasX402": true,
		 "stats": {"feedbackCount": 4, "averageScore": 92.5},
		 "volume": {"totalUsd": 12.5, "txCount": 8}},
		{"id": "8453:2", "chainId": 8453, "hasX402": false}
	]
}`

// ============================================================
// Client tests
// ============================================================

func TestClient_QueryParams(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewScanClient(Config{APIURL: ts.URL})
	_, err := client.ListAgents(context.Background(), "8453", 10)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "chainId=8453")
	assert.Contains(t, gotQuery, "limit=10")
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "agent not found"}`))
	}))
	defer ts.Close()

	client := NewScanClient(Config{APIURL: ts.URL})
	_, err := client.GetAgent(context.Background(), "1", "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "agent not found")
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleListAgents(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents", r.URL.Path)
		_, _ = w.Write([]byte(agentListBody))
	}))
	defer cleanup()

	result, err := h.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "translator")
	assert.Contains(t, text, "accepts x402")
	assert.Contains(t, text, "score 92.5")
	assert.Contains(t, text, "(unnamed)")
}

func TestHandleGetAgent(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/8453/1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"agent": {"id": "8453:1", "name": "translator", "owner": "0xowner",
			          "hasX402": true, "x402Payee": "0xpayee",
			          "stats": {"feedbackCount": 3, "averageScore": 88}},
			"chainName": "base",
			"feedbackByTag": [{"tag": "speed", "count": 2, "averageScore": 95}]
		}`))
	}))
	defer cleanup()

	result, err := h.HandleGetAgent(context.Background(), makeRequest(map[string]any{
		"chain_id": "8453",
		"agent_id": "1",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "translator [8453:1] on base")
	assert.Contains(t, text, "x402 to 0xpayee")
	assert.Contains(t, text, "speed: 95.0 (2)")
}

func TestHandleGetAgent_MissingArgs(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called without required args")
	}))
	defer cleanup()

	result, err := h.HandleGetAgent(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetActivity(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "payment", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"activity": [
			{"type": "payment", "agentId": "8453:1", "agentName": "translator",
			 "details": {"usd": 2.5}},
			{"type": "registered", "agentId": "8453:2", "actor": "0xowner"}
		]}`))
	}))
	defer cleanup()

	result, err := h.HandleGetActivity(context.Background(), makeRequest(map[string]any{
		"type": "payment",
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "payment to translator ($2.50)")
	assert.Contains(t, text, "registered by 0xowner")
}

func TestHandleGetStats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stats", r.URL.Path)
		_, _ = w.Write([]byte(`{"totalAgents": 10, "totalVolume": "5000000"}`))
	}))
	defer cleanup()

	result, err := h.HandleGetStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "totalAgents")
	assert.Contains(t, text, "5000000")
}

func TestHandlerToolError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "internal error"}`))
	}))
	defer cleanup()

	result, err := h.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err, "tool errors are reported in the result, not as Go errors")
	assert.True(t, result.IsError)
}
