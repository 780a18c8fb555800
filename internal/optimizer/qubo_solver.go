package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

// QUBOSolver builds the penalised QUBO, hands it to a sampler and decodes the
// lowest-energy sample. The lineup is not guaranteed to be feasible.
type QUBOSolver struct {
	sampler sampler.Sampler
	weights types.PenaltyWeights
	params  sampler.Params
	logger  *logrus.Entry
}

func NewQUBOSolver(s sampler.Sampler, weights types.PenaltyWeights, params sampler.Params, logger *logrus.Logger) *QUBOSolver {
	return &QUBOSolver{
		sampler: s,
		weights: weights,
		params:  params,
		logger:  logger.WithField("component", "qubo_solver"),
	}
}

func (s *QUBOSolver) Name() string {
	return "qubo/" + s.sampler.Name()
}

func (s *QUBOSolver) Solve(ctx context.Context, players []types.Player, problem types.SelectionProblem) (*Result, error) {
	start := time.Now()
	if err := qubo.Validate(players, problem, s.weights); err != nil {
		return nil, err
	}

	q := qubo.Build(players, problem, s.weights)
	s.logger.WithFields(logrus.Fields{
		"variables":    q.Size(),
		"coefficients": q.Len(),
		"sampler":      s.sampler.Name(),
	}).Debug("QUBO built")

	set, err := s.sampler.Sample(ctx, q, s.params)
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}
	best, err := set.First()
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}

	stats := set.Stats()
	result := finish(&Result{
		Strategy:    s.Name(),
		Assignment:  best.Assignment,
		Objective:   best.Energy,
		Offset:      qubo.Offset(problem, s.weights),
		SampleStats: &stats,
	}, players, problem, start)

	s.logger.WithFields(logrus.Fields{
		"energy":       result.Objective,
		"feasible":     result.Feasible,
		"violations":   len(result.Violations),
		"total_points": result.Lineup.TotalPoints,
		"duration":     result.Duration,
	}).Info("QUBO solve completed")

	return result, nil
}
