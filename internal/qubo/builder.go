// Package qubo encodes the constrained lineup selection problem as a
// quadratic unconstrained binary optimization over one variable per player.
package qubo

import (
	"errors"
	"fmt"
	"math"

	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// Build folds the objective and the three constraint penalties into a QUBO.
//
// Passes run in a fixed order and only accumulate:
//  1. objective: -alpha * points on the diagonal
//  2. budget: beta * (sum(c_i x_i) - budget)^2, a two-sided target penalty
//  3. position: gamma * (sum_{i in k} x_i - n_k)^2 for every quota category k
//  4. team size: delta * (sum(x_i) - size)^2 over all players
//
// The constant term of each square is dropped; see Offset. Build performs no
// validation, callers that need it run Validate first.
func Build(players []types.Player, problem types.SelectionProblem, weights types.PenaltyWeights) *Matrix {
	n := len(players)
	q := NewMatrix(n)

	addObjective(q, players, weights.Objective)
	addBudgetPenalty(q, players, problem.Budget, weights.Budget)
	for _, pos := range problem.PositionRequirements.Positions() {
		addPositionPenalty(q, players, pos, problem.PositionRequirements[pos], weights.Position)
	}
	addTeamSizePenalty(q, n, problem.TeamSize, weights.TeamSize)

	return q
}

func addObjective(q *Matrix, players []types.Player, alpha float64) {
	for i, p := range players {
		q.Add(i, i, -alpha*p.ProjectedPoints)
	}
}

// Overshooting and undershooting the budget are penalized alike. This is the
// model the lineup scripts solve, not a "<= budget" constraint.
func addBudgetPenalty(q *Matrix, players []types.Player, budget, beta float64) {
	for i, pi := range players {
		q.Add(i, i, beta*pi.Salary*pi.Salary)
		q.Add(i, i, -2*beta*budget*pi.Salary)
		for j := i + 1; j < len(players); j++ {
			q.Add(i, j, 2*beta*pi.Salary*players[j].Salary)
		}
	}
}

func addPositionPenalty(q *Matrix, players []types.Player, pos types.Category, quota int, gamma float64) {
	linear := gamma * float64(1-2*quota)
	for i, pi := range players {
		if pi.Position != pos {
			continue
		}
		q.Add(i, i, linear)
		for j := i + 1; j < len(players); j++ {
			if players[j].Position == pos {
				q.Add(i, j, 2*gamma)
			}
		}
	}
}

func addTeamSizePenalty(q *Matrix, n, size int, delta float64) {
	linear := delta * float64(1-2*size)
	for i := 0; i < n; i++ {
		q.Add(i, i, linear)
		for j := i + 1; j < n; j++ {
			q.Add(i, j, 2*delta)
		}
	}
}

// Offset is the constant dropped from the expanded squares. Energy(x) + Offset
// is the full penalized objective, which is zero-penalty exactly when every
// constraint holds.
func Offset(problem types.SelectionProblem, weights types.PenaltyWeights) float64 {
	offset := weights.Budget * problem.Budget * problem.Budget
	for _, quota := range problem.PositionRequirements {
		offset += weights.Position * float64(quota*quota)
	}
	offset += weights.TeamSize * float64(problem.TeamSize*problem.TeamSize)
	return offset
}

// Validate checks the documented preconditions of Build
func Validate(players []types.Player, problem types.SelectionProblem, weights types.PenaltyWeights) error {
	var errs []error

	if len(players) == 0 {
		errs = append(errs, errors.New("player pool is empty"))
	}
	if !finite(problem.Budget) || problem.Budget <= 0 {
		errs = append(errs, fmt.Errorf("budget must be positive, got %v", problem.Budget))
	}
	if problem.TeamSize <= 0 {
		errs = append(errs, fmt.Errorf("team size must be positive, got %d", problem.TeamSize))
	}
	for _, pos := range problem.PositionRequirements.Positions() {
		if problem.PositionRequirements[pos] < 0 {
			errs = append(errs, fmt.Errorf("quota for %s is negative", pos))
		}
	}

	named := []struct {
		name  string
		value float64
	}{
		{"alpha", weights.Objective},
		{"beta", weights.Budget},
		{"gamma", weights.Position},
		{"delta", weights.TeamSize},
	}
	for _, w := range named {
		if !finite(w.value) || w.value < 0 {
			errs = append(errs, fmt.Errorf("weight %s must be finite and non-negative, got %v", w.name, w.value))
		}
	}

	for i, p := range players {
		if !finite(p.ProjectedPoints) || p.ProjectedPoints < 0 {
			errs = append(errs, fmt.Errorf("player %d (index %d): projected points must be finite and non-negative", p.ID, i))
		}
		if !finite(p.Salary) || p.Salary < 0 {
			errs = append(errs, fmt.Errorf("player %d (index %d): salary must be finite and non-negative", p.ID, i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", utils.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
