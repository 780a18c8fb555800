// Command lineup selects a fantasy football lineup from a player pool, either
// by sampling its QUBO formulation or by solving the integer program directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/internal/roster"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/logger"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

type options struct {
	rosterPath string
	solver     string
	remoteURL  string
	params     sampler.Params
	maxNodes   int
	budget     float64
	weights    types.PenaltyWeights
	printQUBO  bool
	timeout    time.Duration
}

func main() {
	defaults := roster.DefaultWeights()
	var (
		rosterPath = flag.String("roster", "", "player pool as .csv or .json (default: built-in sample pool)")
		solver     = flag.String("solver", optimizer.StrategyAnneal, "strategy: anneal|exact|ilp|remote")
		remoteURL  = flag.String("remote-url", "", "base URL of a lineup service for -solver remote")
		reads      = flag.Int("reads", 1000, "number of sampler reads")
		sweeps     = flag.Int("sweeps", 1000, "annealing sweeps per read")
		seed       = flag.Int64("seed", 0, "sampler seed; read r uses seed+r, so 0 is a fixed default stream")
		workers    = flag.Int("workers", 4, "parallel annealing workers")
		maxNodes   = flag.Int("max-nodes", optimizer.DefaultMaxNodes, "branch and bound node limit")
		budget     = flag.Float64("budget", 0, "salary budget (0 = default 100000)")
		alpha      = flag.Float64("alpha", defaults.Objective, "objective weight")
		beta       = flag.Float64("beta", defaults.Budget, "budget penalty weight")
		gamma      = flag.Float64("gamma", defaults.Position, "position quota penalty weight")
		delta      = flag.Float64("delta", defaults.TeamSize, "team size penalty weight")
		printQUBO  = flag.Bool("print-qubo", false, "print the QUBO coefficients before solving")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall solve timeout")
		logLevel   = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	log := logger.Init(logger.Options{Level: *logLevel, Development: true, Output: os.Stderr})

	opts := options{
		rosterPath: *rosterPath,
		solver:     *solver,
		remoteURL:  *remoteURL,
		params:     sampler.Params{NumReads: *reads, Sweeps: *sweeps, Seed: *seed, Workers: *workers},
		maxNodes:   *maxNodes,
		budget:     *budget,
		weights:    types.PenaltyWeights{Objective: *alpha, Budget: *beta, Position: *gamma, TeamSize: *delta},
		printQUBO:  *printQUBO,
		timeout:    *timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, opts, os.Stdout, log)
	if err != nil {
		log.WithError(err).Error("Lineup selection failed")
		os.Exit(1)
	}

	logger.WithRunContext(uuid.New().String(), result.Strategy).WithFields(logrus.Fields{
		"feasible": result.Feasible,
		"points":   result.Lineup.TotalPoints,
		"duration": result.Duration,
	}).Info("Lineup selected")
}

func run(ctx context.Context, opts options, out io.Writer, log *logrus.Logger) (*optimizer.Result, error) {
	players := roster.DefaultPlayers()
	if opts.rosterPath != "" {
		loaded, err := roster.LoadFile(opts.rosterPath)
		if err != nil {
			return nil, err
		}
		players = loaded
	}

	problem := roster.DefaultProblem()
	if opts.budget > 0 {
		problem.Budget = opts.budget
	}

	if err := qubo.Validate(players, problem, opts.weights); err != nil {
		return nil, err
	}

	if opts.printQUBO {
		writeQUBO(out, qubo.Build(players, problem, opts.weights), qubo.Offset(problem, opts.weights))
	}

	var remote sampler.Sampler
	if opts.remoteURL != "" {
		remote = sampler.NewRemoteSampler(sampler.RemoteConfig{BaseURL: opts.remoteURL, Sampler: optimizer.StrategyAnneal}, log)
	}
	registry := optimizer.NewRegistry(remote, opts.maxNodes, log)

	solver, err := registry.Solver(opts.solver, opts.weights, opts.params)
	if err != nil {
		return nil, err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	result, err := solver.Solve(ctx, players, problem)
	if err != nil {
		return nil, err
	}

	writeReport(out, result)
	return result, nil
}

func writeQUBO(out io.Writer, q *qubo.Matrix, offset float64) {
	fmt.Fprintf(out, "QUBO: %d variables, %d terms, offset %g\n", q.Size(), q.Len(), offset)
	for _, t := range q.Terms() {
		fmt.Fprintf(out, "  (%d, %d): %g\n", t.I, t.J, t.Value)
	}
	fmt.Fprintln(out)
}

func writeReport(out io.Writer, result *optimizer.Result) {
	fmt.Fprintf(out, "Strategy: %s\n", result.Strategy)
	if result.Strategy == optimizer.StrategyILP {
		status := "Feasible"
		if result.Optimal {
			status = "Optimal"
		}
		fmt.Fprintf(out, "Status: %s (%d nodes)\n", status, result.NodesExplored)
	} else {
		fmt.Fprintf(out, "Energy: %g (offset %g)\n", result.Objective, result.Offset)
		if stats := result.SampleStats; stats != nil {
			fmt.Fprintf(out, "Samples: min %g, mean %g, max %g, %d distinct\n", stats.Min, stats.Mean, stats.Max, stats.Distinct)
		}
	}

	fmt.Fprintln(out, "Selected Players:")
	for _, p := range result.Lineup.Players {
		fmt.Fprintf(out, "Player %d (%s): Points=%g, Salary=%g\n", p.ID, p.Position, p.ProjectedPoints, p.Salary)
	}
	fmt.Fprintf(out, "Total Points: %g\n", result.Lineup.TotalPoints)
	fmt.Fprintf(out, "Total Salary: %g\n", result.Lineup.TotalSalary)
	fmt.Fprintf(out, "Positions: %s\n", formatCounts(result.Lineup.PositionCounts))

	if len(result.Violations) == 0 {
		fmt.Fprintln(out, "Constraints: satisfied")
		return
	}
	fmt.Fprintln(out, "Violations:")
	for _, v := range result.Violations {
		fmt.Fprintf(out, "  - %s\n", v.Message)
	}
}

func formatCounts(counts map[types.Category]int) string {
	positions := make([]string, 0, len(counts))
	for pos := range counts {
		positions = append(positions, string(pos))
	}
	sort.Strings(positions)

	parts := make([]string, len(positions))
	for i, pos := range positions {
		parts[i] = fmt.Sprintf("%s=%d", pos, counts[types.Category(pos)])
	}
	return strings.Join(parts, " ")
}
