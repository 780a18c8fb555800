package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// DefaultMaxNodes bounds the branch and bound tree
const DefaultMaxNodes = 100000

const (
	simplexTolerance  = 1e-10
	integralTolerance = 1e-6
	boundTolerance    = 1e-9
)

// ILPSolver maximises projected points subject to salary <= budget, exact
// position quotas and exact team size, with x binary. It is a depth-first
// branch and bound over LP relaxations.
type ILPSolver struct {
	maxNodes int
	logger   *logrus.Entry
}

func NewILPSolver(maxNodes int, logger *logrus.Logger) *ILPSolver {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &ILPSolver{
		maxNodes: maxNodes,
		logger:   logger.WithField("component", "ilp_solver"),
	}
}

func (s *ILPSolver) Name() string {
	return "ilp"
}

type relaxStatus int

const (
	relaxInfeasible relaxStatus = iota
	relaxSolved
	// relaxUnknown means the LP could not be solved; the node is branched without a bound
	relaxUnknown
)

type relaxation struct {
	status relaxStatus
	bound  float64
	values []float64
}

func (s *ILPSolver) Solve(ctx context.Context, players []types.Player, problem types.SelectionProblem) (*Result, error) {
	start := time.Now()
	if err := qubo.Validate(players, problem, types.PenaltyWeights{}); err != nil {
		return nil, err
	}
	// Quotas are exact counts, so they can never exceed the team
	if quota := problem.PositionRequirements.GetTotalPlayers(); quota > problem.TeamSize {
		return nil, fmt.Errorf("%w: position quotas require %d players, team size is %d", utils.ErrInfeasible, quota, problem.TeamSize)
	}

	n := len(players)
	root := make([]int8, n)
	for i := range root {
		root[i] = -1
	}

	var (
		stack     = [][]int8{root}
		best      []int
		bestScore = math.Inf(-1)
		nodes     int
		truncated bool
	)

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("branch and bound cancelled: %w", err)
		}
		if nodes >= s.maxNodes {
			truncated = true
			break
		}
		nodes++

		fixed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		r := relax(players, problem, fixed)
		if r.status == relaxInfeasible {
			continue
		}
		if r.status == relaxSolved && r.bound <= bestScore+boundTolerance {
			continue
		}

		branch := firstFree(fixed)
		if r.status == relaxSolved {
			if frac := mostFractional(fixed, r.values); frac >= 0 {
				branch = frac
			} else if x := roundAssignment(r.values); len(Check(Decode(players, x), problem)) == 0 {
				if score := points(players, x); score > bestScore {
					bestScore, best = score, x
					s.logger.WithFields(logrus.Fields{
						"points": score,
						"nodes":  nodes,
					}).Debug("New incumbent")
				}
				continue
			}
		}
		if branch < 0 {
			continue
		}

		zero := append([]int8(nil), fixed...)
		zero[branch] = 0
		one := append([]int8(nil), fixed...)
		one[branch] = 1
		stack = append(stack, zero, one)
	}

	if best == nil {
		if truncated {
			return nil, fmt.Errorf("%w: node limit %d reached before any feasible lineup", utils.ErrOptimizationFailed, s.maxNodes)
		}
		return nil, fmt.Errorf("%w: explored %d nodes", utils.ErrInfeasible, nodes)
	}

	if truncated {
		s.logger.WithField("max_nodes", s.maxNodes).Warn("Node limit reached, returning best lineup found")
	}

	result := finish(&Result{
		Strategy:      s.Name(),
		Assignment:    best,
		Objective:     bestScore,
		NodesExplored: nodes,
		Optimal:       !truncated,
	}, players, problem, start)

	s.logger.WithFields(logrus.Fields{
		"points":   bestScore,
		"nodes":    nodes,
		"optimal":  result.Optimal,
		"duration": result.Duration,
	}).Info("ILP solve completed")

	return result, nil
}

// relax solves the LP relaxation with the variables in fixed (0 or 1) substituted
// out. The standard form has one column per free variable, one upper-bound slack
// per free variable, and one budget slack.
func relax(players []types.Player, problem types.SelectionProblem, fixed []int8) relaxation {
	infeasible := relaxation{status: relaxInfeasible}

	var free []int
	fixedPoints, fixedCost, fixedCount := 0.0, 0.0, 0
	fixedByPos := make(map[types.Category]int)
	for i, v := range fixed {
		switch v {
		case 1:
			fixedPoints += players[i].ProjectedPoints
			fixedCost += players[i].Salary
			fixedCount++
			fixedByPos[players[i].Position]++
		case -1:
			free = append(free, i)
		}
	}

	budgetRHS := problem.Budget - fixedCost
	if budgetRHS < -salaryTolerance {
		return infeasible
	}
	budgetRHS = math.Max(budgetRHS, 0)

	teamRHS := problem.TeamSize - fixedCount
	if teamRHS < 0 || teamRHS > len(free) {
		return infeasible
	}

	type categoryRow struct {
		members []int
		rhs     int
	}
	var categories []categoryRow
	covered := make(map[int]bool)
	quotaTotal := 0
	for _, pos := range problem.PositionRequirements.Positions() {
		rhs := problem.PositionRequirements[pos] - fixedByPos[pos]
		var members []int
		for k, i := range free {
			if players[i].Position == pos {
				members = append(members, k)
				covered[k] = true
			}
		}
		if rhs < 0 || rhs > len(members) {
			return infeasible
		}
		quotaTotal += rhs
		if len(members) > 0 {
			categories = append(categories, categoryRow{members: members, rhs: rhs})
		}
	}

	values := make([]float64, len(fixed))
	for i, v := range fixed {
		if v == 1 {
			values[i] = 1
		}
	}

	f := len(free)
	if f == 0 {
		return relaxation{status: relaxSolved, bound: fixedPoints, values: values}
	}

	// With every free variable in a quota row, the team-size row is their sum
	// and would make the system rank deficient
	teamRow := len(covered) < f
	if !teamRow && quotaTotal != teamRHS {
		return infeasible
	}

	cols := 2*f + 1
	rows := 1 + f + len(categories)
	if teamRow {
		rows++
	}

	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)

	// Budget row, scaled by the budget for conditioning
	scale := problem.Budget
	for k, i := range free {
		c[k] = -players[i].ProjectedPoints
		A.Set(0, k, players[i].Salary/scale)
	}
	A.Set(0, 2*f, 1)
	b[0] = budgetRHS / scale

	for k := 0; k < f; k++ {
		A.Set(1+k, k, 1)
		A.Set(1+k, f+k, 1)
		b[1+k] = 1
	}

	row := 1 + f
	for _, cat := range categories {
		for _, k := range cat.members {
			A.Set(row, k, 1)
		}
		b[row] = float64(cat.rhs)
		row++
	}

	if teamRow {
		for k := 0; k < f; k++ {
			A.Set(row, k, 1)
		}
		b[row] = float64(teamRHS)
	}

	optF, optX, err := lp.Simplex(c, A, b, simplexTolerance, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return infeasible
		}
		return relaxation{status: relaxUnknown}
	}

	for k, i := range free {
		values[i] = optX[k]
	}
	return relaxation{status: relaxSolved, bound: fixedPoints - optF, values: values}
}

// mostFractional picks the free variable whose relaxed value is closest to 1/2,
// or -1 when every free variable is integral
func mostFractional(fixed []int8, values []float64) int {
	branch := -1
	closest := math.Inf(1)
	for i, v := range fixed {
		if v >= 0 {
			continue
		}
		frac := values[i] - math.Floor(values[i])
		if frac < integralTolerance || frac > 1-integralTolerance {
			continue
		}
		if d := math.Abs(values[i] - 0.5); d < closest {
			closest, branch = d, i
		}
	}
	return branch
}

func firstFree(fixed []int8) int {
	for i, v := range fixed {
		if v < 0 {
			return i
		}
	}
	return -1
}

func roundAssignment(values []float64) []int {
	x := make([]int, len(values))
	for i, v := range values {
		if v > 0.5 {
			x[i] = 1
		}
	}
	return x
}

func points(players []types.Player, x []int) float64 {
	total := 0.0
	for i, p := range players {
		if x[i] == 1 {
			total += p.ProjectedPoints
		}
	}
	return total
}
