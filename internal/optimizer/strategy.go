package optimizer

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// Strategy names accepted by Registry.Solver
const (
	StrategyAnneal = "anneal"
	StrategyExact  = "exact"
	StrategyRemote = "remote"
	StrategyILP    = "ilp"
)

// Registry resolves a strategy name to a ready solver. Samplers are shared
// across solves; weights and sampling parameters are chosen per call.
type Registry struct {
	samplers map[string]sampler.Sampler
	ilp      *ILPSolver
	logger   *logrus.Logger
}

// NewRegistry wires the local samplers and the ILP solver. remote may be nil,
// in which case the remote strategy is reported as unavailable.
func NewRegistry(remote sampler.Sampler, maxNodes int, logger *logrus.Logger) *Registry {
	samplers := map[string]sampler.Sampler{
		StrategyAnneal: sampler.NewSimulatedAnnealer(logger),
		StrategyExact:  sampler.NewExactSolver(),
	}
	if remote != nil {
		samplers[StrategyRemote] = remote
	}
	return &Registry{
		samplers: samplers,
		ilp:      NewILPSolver(maxNodes, logger),
		logger:   logger,
	}
}

// Strategies lists the names the registry accepts
func (r *Registry) Strategies() []string {
	return []string{StrategyAnneal, StrategyExact, StrategyILP, StrategyRemote}
}

// Solver returns the solver for a strategy. An empty name selects annealing.
func (r *Registry) Solver(strategy string, weights types.PenaltyWeights, params sampler.Params) (Solver, error) {
	if strategy == "" {
		strategy = StrategyAnneal
	}
	if strategy == StrategyILP {
		return r.ilp, nil
	}

	s, err := r.Sampler(strategy)
	if err != nil {
		return nil, err
	}
	return NewQUBOSolver(s, weights, params, r.logger), nil
}

// Sampler returns the raw sampler behind a QUBO strategy. An empty name
// selects annealing.
func (r *Registry) Sampler(name string) (sampler.Sampler, error) {
	if name == "" {
		name = StrategyAnneal
	}
	s, ok := r.samplers[name]
	if !ok {
		if name == StrategyRemote {
			return nil, fmt.Errorf("%w: remote sampler is not configured", utils.ErrSamplerUnavailable)
		}
		return nil, fmt.Errorf("%w: unknown strategy %q, expected one of %v", utils.ErrInvalidInput, name, r.Strategies())
	}
	return s, nil
}
