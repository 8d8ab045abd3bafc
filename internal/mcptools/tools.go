// Package mcptools exposes fleet control as MCP tools so AI assistants can
// inspect and drive the render farm through the coordinator.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"farmctl/internal/coordinator"
	"farmctl/internal/farm"
)

// NewServer builds the MCP server with the farmctl tool set registered.
func NewServer(coord *coordinator.Coordinator, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"farmctl",
		version,
		server.WithToolCapabilities(true),
	)
	registerTools(srv, coord)
	return srv
}

// ServeStdio runs the MCP server over stdio until the client disconnects.
func ServeStdio(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

func registerTools(srv *server.MCPServer, coord *coordinator.Coordinator) {
	srv.AddTool(
		mcp.NewTool("farm_status",
			mcp.WithDescription("Get the render farm summary: backend availability, claimed worker counts, and active registered workers."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(coord.FarmStatus())
		},
	)

	srv.AddTool(
		mcp.NewTool("list_workers",
			mcp.WithDescription("List all configured workers with their probed statuses."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cfg := coord.Store().Snapshot()
			statuses := coord.Registry().Statuses()

			type workerOut struct {
				ID      string `json:"id"`
				Name    string `json:"name,omitempty"`
				Address string `json:"address"`
				Role    string `json:"role"`
				Source  string `json:"source"`
				Enabled bool   `json:"enabled"`
				Status  string `json:"status"`
			}
			out := make([]workerOut, 0, len(cfg.Workers))
			for _, w := range cfg.Workers {
				status := "unknown"
				if s, ok := statuses[w.ID]; ok {
					status = string(s)
				}
				out = append(out, workerOut{
					ID:      w.ID,
					Name:    w.Name,
					Address: w.Address(),
					Role:    string(w.Role),
					Source:  string(w.Source),
					Enabled: w.Enabled,
					Status:  status,
				})
			}
			return jsonResult(out)
		},
	)

	srv.AddTool(
		mcp.NewTool("claim_workers",
			mcp.WithDescription("Claim render-farm workers by submitting farm jobs. At most one claim may be in flight at a time."),
			mcp.WithNumber("count", mcp.Description("Number of workers to claim (default 4)")),
			mcp.WithNumber("priority", mcp.Description("Farm job priority 0-100 (default 50)")),
			mcp.WithString("pool", mcp.Description("Farm pool to target, or 'none'")),
			mcp.WithString("group", mcp.Description("Farm group to target, or 'none'")),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			req := farm.ClaimRequest{
				Count:    intArg(args, "count"),
				Priority: intArg(args, "priority"),
				Pool:     stringArg(args, "pool"),
				Group:    stringArg(args, "group"),
			}
			result, err := coord.ClaimWorkers(ctx, req)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Claim failed: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Claimed %d worker(s) via job %s", result.Count, result.JobID)), nil
		},
	)

	srv.AddTool(
		mcp.NewTool("release_workers",
			mcp.WithDescription("Release all farm-claimed workers. Local workers are not affected."),
		),
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			released, err := coord.ReleaseWorkers(ctx)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("Release failed: %v", err)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Released %d farm job(s)", released)), nil
		},
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func intArg(args map[string]any, key string) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return 0
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
