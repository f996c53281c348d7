package mcp

import "github.com/mark3labs/mcp-go/mcp"

// listRunsTool defines the list_runs MCP tool.
var listRunsTool = mcp.NewTool("list_runs",
	mcp.WithDescription("List training runs with their id, name, status and framework."),
)

// getRunMetricsTool defines the get_run_metrics MCP tool.
var getRunMetricsTool = mcp.NewTool("get_run_metrics",
	mcp.WithDescription("Get a metric series of a training run as (step, value) pairs, values truncated to three decimals."),
	mcp.WithNumber("run_id",
		mcp.Required(),
		mcp.Description("ID of the run"),
	),
	mcp.WithString("name",
		mcp.Description("Metric name (default loss)"),
	),
	mcp.WithString("by",
		mcp.Description("Dimension the points are keyed by"),
		mcp.Enum("step", "epoch"),
	),
)

// getRunLogsTool defines the get_run_logs MCP tool.
var getRunLogsTool = mcp.NewTool("get_run_logs",
	mcp.WithDescription("Get the log lines of a training run in arrival order."),
	mcp.WithNumber("run_id",
		mcp.Required(),
		mcp.Description("ID of the run"),
	),
	mcp.WithString("query",
		mcp.Description("Optional filter passed to the backend"),
	),
)

// listAgentVersionsTool defines the list_agent_versions MCP tool.
var listAgentVersionsTool = mcp.NewTool("list_agent_versions",
	mcp.WithDescription("List uploaded agent versions, marking the default and naming the source that answered."),
)
