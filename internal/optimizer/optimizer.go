// Package optimizer turns a player pool and selection problem into a lineup.
// Two families of strategy are offered: QUBO sampling through an injected
// sampler, and an exact integer program solved by branch and bound.
package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

// Solver picks a lineup for a problem
type Solver interface {
	Name() string
	Solve(ctx context.Context, players []types.Player, problem types.SelectionProblem) (*Result, error)
}

// Result is the outcome of a single solve
type Result struct {
	Strategy      string               `json:"strategy"`
	Assignment    []int                `json:"assignment"`
	Objective     float64              `json:"objective"` // QUBO energy, or total points for ILP
	Offset        float64              `json:"offset,omitempty"`
	Lineup        types.Lineup         `json:"lineup"`
	Feasible      bool                 `json:"feasible"`
	Violations    []types.Violation    `json:"violations,omitempty"`
	SampleStats   *sampler.EnergyStats `json:"sample_stats,omitempty"`
	NodesExplored int                  `json:"nodes_explored,omitempty"`
	Optimal       bool                 `json:"optimal"` // proven by an exhausted search tree
	Duration      time.Duration        `json:"duration"`
}

const salaryTolerance = 1e-9

// Decode maps a 0/1 assignment back to the selected players, in pool order
func Decode(players []types.Player, assignment []int) types.Lineup {
	lineup := types.Lineup{
		Players:        make([]types.Player, 0),
		PositionCounts: make(map[types.Category]int),
	}
	for i, p := range players {
		if i >= len(assignment) || assignment[i] == 0 {
			continue
		}
		lineup.Players = append(lineup.Players, p)
		lineup.TotalPoints += p.ProjectedPoints
		lineup.TotalSalary += p.Salary
		lineup.PositionCounts[p.Position]++
	}
	return lineup
}

// Check lists every constraint the lineup breaks. The budget is an upper bound
// here, whatever penalty shape produced the lineup.
func Check(lineup types.Lineup, problem types.SelectionProblem) []types.Violation {
	var violations []types.Violation

	if lineup.TotalSalary > problem.Budget+salaryTolerance {
		violations = append(violations, types.Violation{
			Constraint: "budget",
			Expected:   problem.Budget,
			Actual:     lineup.TotalSalary,
			Message:    fmt.Sprintf("total salary %.0f exceeds budget %.0f", lineup.TotalSalary, problem.Budget),
		})
	}

	for _, pos := range problem.PositionRequirements.Positions() {
		want := problem.PositionRequirements[pos]
		got := lineup.PositionCounts[pos]
		if got != want {
			violations = append(violations, types.Violation{
				Constraint: "position:" + string(pos),
				Expected:   float64(want),
				Actual:     float64(got),
				Message:    fmt.Sprintf("%s: selected %d, required %d", pos, got, want),
			})
		}
	}

	if got := len(lineup.Players); got != problem.TeamSize {
		violations = append(violations, types.Violation{
			Constraint: "team_size",
			Expected:   float64(problem.TeamSize),
			Actual:     float64(got),
			Message:    fmt.Sprintf("selected %d players, team size is %d", got, problem.TeamSize),
		})
	}

	return violations
}

func finish(result *Result, players []types.Player, problem types.SelectionProblem, start time.Time) *Result {
	result.Lineup = Decode(players, result.Assignment)
	result.Violations = Check(result.Lineup, problem)
	result.Feasible = len(result.Violations) == 0
	result.Duration = time.Since(start)
	return result
}
