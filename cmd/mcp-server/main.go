// Command mcp-server exposes QUBO construction and lineup optimization as MCP
// tools over stdio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/logger"
)

func main() {
	var (
		maxNodes   = flag.Int("max-nodes", optimizer.DefaultMaxNodes, "branch and bound node limit")
		maxReads   = flag.Int("max-reads", sampler.DefaultMaxReads, "largest num_reads a tool call may request")
		maxSweeps  = flag.Int("max-sweeps", sampler.DefaultMaxSweeps, "largest sweeps a tool call may request")
		maxWorkers = flag.Int("workers", 0, "annealing workers per call (0 = NumCPU)")
		logLevel   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	// stdout carries the MCP protocol
	log := logger.Init(logger.Options{Level: *logLevel, Output: os.Stderr})

	registry := optimizer.NewRegistry(nil, *maxNodes, log)
	limits := sampler.Limits{MaxReads: *maxReads, MaxSweeps: *maxSweeps, MaxWorkers: *maxWorkers}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "dfs-qubo-mcp",
			Version: "1.0.0",
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_qubo",
		Description: "Build the QUBO penalty formulation of a lineup selection problem and summarise its coefficients",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args BuildQUBOArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(buildQUBO(args))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "optimize_lineup",
		Description: "Select a lineup by sampling the QUBO (anneal, exact) or solving the integer program (ilp)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args OptimizeLineupArgs) (*mcp.CallToolResult, any, error) {
		return toolJSON(optimizeLineup(ctx, registry, limits, args))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithService("dfs-qubo-mcp").Info("MCP server listening on stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.WithError(err).Fatal("MCP server stopped")
	}
}
