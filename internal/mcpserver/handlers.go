package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ScanClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ScanClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListAgents lists indexed agents.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID := req.GetString("chain_id", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListAgents(ctx, chainID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
	}

	text, err := formatAgentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agents: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetAgent fetches one agent's profile.
func (h *Handlers) HandleGetAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chainID := req.GetString("chain_id", "")
	agentID := req.GetString("agent_id", "")
	if chainID == "" || agentID == "" {
		return mcp.NewToolResultError("chain_id and agent_id are required"), nil
	}

	raw, err := h.client.GetAgent(ctx, chainID, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get agent: %v", err)), nil
	}

	text, err := formatAgentDetail(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agent: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetActivity fetches the activity feed.
func (h *Handlers) HandleGetActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetActivity(ctx,
		req.GetString("type", ""),
		req.GetString("chain_id", ""),
		req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get activity: %v", err)), nil
	}

	text, err := formatActivity(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse activity: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetStats fetches ecosystem statistics.
func (h *Handlers) HandleGetStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// ---- formatting ----

type listedAgent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ChainID int64  `json:"chainId"`
	HasX402 bool   `json:"hasX402"`
	Stats   *struct {
		FeedbackCount int64   `json:"feedbackCount"`
		AverageScore  float64 `json:"averageScore"`
	} `json:"stats"`
	Volume *struct {
		TotalUSD float64 `json:"totalUsd"`
		TxCount  int64   `json:"txCount"`
	} `json:"volume"`
}

func formatAgentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Agents []listedAgent `json:"agents"`
		Total  int64         `json:"total"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Agents) == 0 {
		return "No agents found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d agents (showing %d):\n\n", resp.Total, len(resp.Agents))
	for _, a := range resp.Agents {
		name := a.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&sb, "- %s [%s]", name, a.ID)
		if a.HasX402 {
			sb.WriteString(" accepts x402")
		}
		if a.Stats != nil && a.Stats.FeedbackCount > 0 {
			fmt.Fprintf(&sb, " | score %.1f (%d reviews)", a.Stats.AverageScore, a.Stats.FeedbackCount)
		}
		if a.Volume != nil && a.Volume.TxCount > 0 {
			fmt.Fprintf(&sb, " | $%.2f over %d payments", a.Volume.TotalUSD, a.Volume.TxCount)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatAgentDetail(raw json.RawMessage) (string, error) {
	var resp struct {
		Agent struct {
			listedAgent
			Description string `json:"description"`
			Owner       string `json:"owner"`
			X402Payee   string `json:"x402Payee"`
		} `json:"agent"`
		ChainName     string `json:"chainName"`
		FeedbackByTag []struct {
			Tag          string  `json:"tag"`
			Count        int64   `json:"count"`
			AverageScore float64 `json:"averageScore"`
		} `json:"feedbackByTag"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	a := resp.Agent
	var sb strings.Builder
	name := a.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&sb, "%s [%s] on %s\n", name, a.ID, resp.ChainName)
	fmt.Fprintf(&sb, "Owner: %s\n", a.Owner)
	if a.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", a.Description)
	}
	if a.HasX402 {
		fmt.Fprintf(&sb, "Payments: x402 to %s\n", a.X402Payee)
	}
	if a.Stats != nil {
		fmt.Fprintf(&sb, "Reputation: %.1f average over %d reviews\n", a.Stats.AverageScore, a.Stats.FeedbackCount)
	}
	if a.Volume != nil {
		fmt.Fprintf(&sb, "Volume: $%.2f over %d payments\n", a.Volume.TotalUSD, a.Volume.TxCount)
	}
	if len(resp.FeedbackByTag) > 0 {
		sb.WriteString("By tag:\n")
		for _, tag := range resp.FeedbackByTag {
			fmt.Fprintf(&sb, "  %s: %.1f (%d)\n", tag.Tag, tag.AverageScore, tag.Count)
		}
	}
	return sb.String(), nil
}

func formatActivity(raw json.RawMessage) (string, error) {
	var resp struct {
		Activity []struct {
			Type      string         `json:"type"`
			AgentKey  string         `json:"agentId"`
			AgentName string         `json:"agentName"`
			Actor     string         `json:"actor"`
			Timestamp int64          `json:"timestamp"`
			Details   map[string]any `json:"details"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Activity) == 0 {
		return "No activity found.", nil
	}

	var sb strings.Builder
	for _, e := range resp.Activity {
		who := e.AgentName
		if who == "" {
			who = e.AgentKey
		}
		switch e.Type {
		case "payment":
			fmt.Fprintf(&sb, "- payment to %s", who)
			if usd, ok := e.Details["usd"].(float64); ok {
				fmt.Fprintf(&sb, " ($%.2f)", usd)
			}
		case "feedback":
			fmt.Fprintf(&sb, "- feedback for %s", who)
			if v, ok := e.Details["value"].(float64); ok {
				fmt.Fprintf(&sb, " (score %.0f)", v)
			}
		case "registered":
			fmt.Fprintf(&sb, "- %s registered by %s", who, e.Actor)
		case "transfer":
			fmt.Fprintf(&sb, "- %s transferred to %s", who, e.Actor)
		default:
			fmt.Fprintf(&sb, "- %s: %s", e.Type, who)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var buf strings.Builder
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return string(raw)
	}
	return buf.String()
}
