package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/internal/roster"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

// ProblemArgs describe the selection problem for every tool. Zero values fall
// back to the sample pool and the nine-player lineup rules.
type ProblemArgs struct {
	Players              []types.Player         `json:"players,omitempty" jsonschema:"Player pool (default: built-in 14-player sample pool)"`
	Budget               float64                `json:"budget,omitempty" jsonschema:"Salary budget (default 100000)"`
	TeamSize             int                    `json:"team_size,omitempty" jsonschema:"Number of players to select (default 9)"`
	PositionRequirements map[types.Category]int `json:"position_requirements,omitempty" jsonschema:"Exact count per position (default QB1 RB2 WR3 TE2 DST1)"`
	Alpha                *float64               `json:"alpha,omitempty" jsonschema:"Objective weight (default 1)"`
	Beta                 *float64               `json:"beta,omitempty" jsonschema:"Budget penalty weight (default 10)"`
	Gamma                *float64               `json:"gamma,omitempty" jsonschema:"Position penalty weight (default 100)"`
	Delta                *float64               `json:"delta,omitempty" jsonschema:"Team size penalty weight (default 100)"`
}

type BuildQUBOArgs struct {
	Problem      ProblemArgs `json:"problem,omitempty" jsonschema:"Player pool, lineup rules and penalty weights"`
	IncludeTerms bool        `json:"include_terms,omitempty" jsonschema:"Return every coefficient, not just the summary"`
}

type OptimizeLineupArgs struct {
	Problem  ProblemArgs `json:"problem,omitempty" jsonschema:"Player pool, lineup rules and penalty weights"`
	Strategy string      `json:"strategy,omitempty" jsonschema:"Solver: anneal|exact|ilp (default anneal)"`
	NumReads int         `json:"num_reads,omitempty" jsonschema:"Sampler reads (default 1000)"`
	Sweeps   int         `json:"sweeps,omitempty" jsonschema:"Annealing sweeps per read (default 1000)"`
	Seed     int64       `json:"seed,omitempty" jsonschema:"Sampler seed; read r uses seed+r so 0 is a fixed default stream"`
}

type quboSummary struct {
	Size     int                  `json:"size"`
	Entries  int                  `json:"entries"`
	Offset   float64              `json:"offset"`
	Weights  types.PenaltyWeights `json:"weights"`
	Diagonal []float64            `json:"diagonal"`
	Terms    []qubo.Term          `json:"terms,omitempty"`
}

type lineupSummary struct {
	Strategy   string            `json:"strategy"`
	Feasible   bool              `json:"feasible"`
	Optimal    bool              `json:"optimal,omitempty"`
	Energy     *float64          `json:"energy,omitempty"`
	PlayerIDs  []int             `json:"player_ids"`
	Lineup     types.Lineup      `json:"lineup"`
	Violations []types.Violation `json:"violations,omitempty"`
}

func (a ProblemArgs) resolve() ([]types.Player, types.SelectionProblem, types.PenaltyWeights, error) {
	players := a.Players
	if len(players) == 0 {
		players = roster.DefaultPlayers()
	}

	problem := roster.DefaultProblem()
	if a.Budget != 0 {
		problem.Budget = a.Budget
	}
	if a.TeamSize != 0 {
		problem.TeamSize = a.TeamSize
	}
	if len(a.PositionRequirements) > 0 {
		problem.PositionRequirements = types.PositionRequirements(a.PositionRequirements)
	}

	weights := roster.DefaultWeights()
	for _, w := range []struct {
		src *float64
		dst *float64
	}{
		{a.Alpha, &weights.Objective},
		{a.Beta, &weights.Budget},
		{a.Gamma, &weights.Position},
		{a.Delta, &weights.TeamSize},
	} {
		if w.src != nil {
			*w.dst = *w.src
		}
	}

	if err := qubo.Validate(players, problem, weights); err != nil {
		return nil, types.SelectionProblem{}, types.PenaltyWeights{}, err
	}
	return players, problem, weights, nil
}

func buildQUBO(args BuildQUBOArgs) (*quboSummary, error) {
	players, problem, weights, err := args.Problem.resolve()
	if err != nil {
		return nil, err
	}

	q := qubo.Build(players, problem, weights)
	summary := &quboSummary{
		Size:     q.Size(),
		Entries:  q.Len(),
		Offset:   qubo.Offset(problem, weights),
		Weights:  weights,
		Diagonal: make([]float64, q.Size()),
	}
	for i := range summary.Diagonal {
		summary.Diagonal[i] = q.Get(i, i)
	}
	if args.IncludeTerms {
		summary.Terms = q.Terms()
	}
	return summary, nil
}

func optimizeLineup(ctx context.Context, registry *optimizer.Registry, limits sampler.Limits, args OptimizeLineupArgs) (*lineupSummary, error) {
	players, problem, weights, err := args.Problem.resolve()
	if err != nil {
		return nil, err
	}

	params := sampler.DefaultParams()
	if args.NumReads != 0 {
		params.NumReads = args.NumReads
	}
	if args.Sweeps != 0 {
		params.Sweeps = args.Sweeps
	}
	params.Seed = args.Seed
	if params, err = limits.Apply(params); err != nil {
		return nil, err
	}

	solver, err := registry.Solver(args.Strategy, weights, params)
	if err != nil {
		return nil, err
	}
	result, err := solver.Solve(ctx, players, problem)
	if err != nil {
		return nil, err
	}

	summary := &lineupSummary{
		Strategy:   result.Strategy,
		Feasible:   result.Feasible,
		Optimal:    result.Optimal,
		PlayerIDs:  result.Lineup.PlayerIDs(),
		Lineup:     result.Lineup,
		Violations: result.Violations,
	}
	if result.Strategy != optimizer.StrategyILP {
		energy := result.Objective
		summary.Energy = &energy
	}
	return summary, nil
}

func toolJSON(v any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return toolError(err), nil, nil
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)},
		},
	}
}
