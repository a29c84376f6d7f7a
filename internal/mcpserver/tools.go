package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the agentscan MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListAgents = mcp.NewTool("list_agents",
	mcp.WithDescription(
		"Browse on-chain registered AI agents indexed by agentscan. "+
			"Returns agents with their reputation scores and x402 payment volume. "+
			"Optionally filter by chain."),
	mcp.WithString("chain_id",
		mcp.Description("Filter by chain id (e.g. '8453' for Base, '84532' for Base Sepolia)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of agents to return (default 20, max 100)")),
)

var ToolGetAgent = mcp.NewTool("get_agent",
	mcp.WithDescription(
		"Get one agent's full profile: registration metadata, owner, reputation "+
			"stats, payment volume, recent feedback, and feedback broken down by tag."),
	mcp.WithString("chain_id",
		mcp.Required(),
		mcp.Description("The chain the agent is registered on (e.g. '8453')")),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent's numeric id on that chain (e.g. '42')")),
)

var ToolGetActivity = mcp.NewTool("get_activity",
	mcp.WithDescription(
		"Get the latest on-chain activity across the agent ecosystem: "+
			"registrations, ownership transfers, feedback, and x402 payments."),
	mcp.WithString("type",
		mcp.Description("Filter by entry type"),
		mcp.Enum("registered", "transfer", "feedback", "payment")),
	mcp.WithString("chain_id",
		mcp.Description("Filter by chain id")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 20)")),
)

var ToolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription(
		"Get ecosystem-wide statistics: total agents, feedback, payments, "+
			"USDC volume, and per-chain agent counts."),
)
