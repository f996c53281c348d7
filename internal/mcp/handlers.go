package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/opsdash/internal/agents"
	"github.com/ziadkadry99/opsdash/internal/runs"
)

// handleListRuns returns the run table as text.
func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.client.ListRuns(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing runs failed: %v", err)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No runs found."), nil
	}

	var b strings.Builder
	b.WriteString("| ID | Name | Status | Framework |\n|---|---|---|---|\n")
	for _, r := range list {
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", r.ID, r.Name, r.Status, r.Framework)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleGetRunMetrics returns the requested series as coordinate text.
func (s *Server) handleGetRunMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireInt("run_id")
	if err != nil || runID <= 0 {
		return mcp.NewToolResultError("missing or invalid parameter: run_id"), nil
	}
	q := runs.Query{
		RunID:  runID,
		Metric: request.GetString("name", ""),
		By:     request.GetString("by", ""),
	}.Normalize()

	series, err := s.client.RunMetrics(ctx, q.RunID, q.Metric, q.By)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetching metrics failed: %v", err)), nil
	}
	if len(series) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Run %d has no %q metric.", q.RunID, q.Metric)), nil
	}

	var b strings.Builder
	for _, sr := range series {
		fmt.Fprintf(&b, "%s (by %s): %s\n", sr.Name, q.By, runs.FormatPoints(sr.Points))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// handleGetRunLogs returns formatted log lines.
func (s *Server) handleGetRunLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireInt("run_id")
	if err != nil || runID <= 0 {
		return mcp.NewToolResultError("missing or invalid parameter: run_id"), nil
	}

	entries, err := s.client.RunLogs(ctx, runID, request.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetching logs failed: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No log lines."), nil
	}
	return mcp.NewToolResultText(strings.Join(runs.FormatLogs(entries, s.location), "\n")), nil
}

// handleListAgentVersions resolves the versions through the fallback chain.
func (s *Server) handleListAgentVersions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, _, err := agents.NewChain(s.client, s.chain).Resolve(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing agent versions failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n\n", listing.Source)
	for _, row := range agents.Rows(listing) {
		b.WriteString("- " + row.Version)
		if row.IsDefault {
			b.WriteString(" (default)")
		}
		for i, e := range row.Exporters {
			if i == 0 {
				b.WriteString(": ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
