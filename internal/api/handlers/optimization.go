package handlers

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/internal/roster"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/internal/store"
	"github.com/stitts-dev/dfs-qubo/pkg/cache"
	"github.com/stitts-dev/dfs-qubo/pkg/config"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// OptimizationHandler serves QUBO construction, sampling and lineup optimization.
// cache, runs and progress are optional and may be nil.
type OptimizationHandler struct {
	registry *optimizer.Registry
	cache    ResultCache
	runs     RunStore
	progress ProgressNotifier
	config   *config.Config
	logger   *logrus.Logger
}

func NewOptimizationHandler(
	registry *optimizer.Registry,
	cache ResultCache,
	runs RunStore,
	progress ProgressNotifier,
	config *config.Config,
	logger *logrus.Logger,
) *OptimizationHandler {
	return &OptimizationHandler{
		registry: registry,
		cache:    cache,
		runs:     runs,
		progress: progress,
		config:   config,
		logger:   logger,
	}
}

// BuildQUBO handles POST /api/v1/qubo
func (h *OptimizationHandler) BuildQUBO(c *gin.Context) {
	var req QUBORequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}

	players, problem, weights := h.fillDefaults(req.Players, req.Problem, req.Weights)
	if !h.checkInput(c, players, problem, weights) {
		return
	}

	ctx := c.Request.Context()
	key, err := cache.RequestKey(QUBORequest{Players: players, Problem: &problem, Weights: &weights})
	if err != nil {
		utils.SendInternalError(c, "Failed to derive cache key")
		return
	}

	if h.cache != nil {
		var cached QUBOResponse
		if err := h.cache.GetQUBO(ctx, key, &cached); err == nil {
			utils.SendSuccessWithMeta(c, cached, &utils.Meta{CacheHit: true})
			return
		}
	}

	q := qubo.Build(players, problem, weights)
	response := QUBOResponse{
		Size:    q.Size(),
		Entries: q.Len(),
		Offset:  qubo.Offset(problem, weights),
		Weights: weights,
		Terms:   q.Terms(),
	}

	if h.cache != nil {
		if err := h.cache.SetQUBO(ctx, key, response, h.config.CacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache QUBO")
		}
	}

	utils.SendSuccess(c, response)
}

// Optimize handles POST /api/v1/optimize
func (h *OptimizationHandler) Optimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}

	players, problem, weights := h.fillDefaults(req.Players, req.Problem, req.Weights)
	if !h.checkInput(c, players, problem, weights) {
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = optimizer.StrategyAnneal
	}
	params, err := h.samplerParams(req.Params)
	if err != nil {
		utils.SendDomainError(c, "Invalid sampler parameters", err)
		return
	}

	ctx := c.Request.Context()
	key, err := cache.RequestKey(struct {
		Players  []types.Player         `json:"players"`
		Problem  types.SelectionProblem `json:"problem"`
		Weights  types.PenaltyWeights   `json:"weights"`
		Strategy string                 `json:"strategy"`
		Params   sampler.Params         `json:"params"`
	}{players, problem, weights, strategy, params})
	if err != nil {
		utils.SendInternalError(c, "Failed to derive cache key")
		return
	}

	if h.cache != nil && !req.SkipCache {
		cached, err := h.cache.GetResult(ctx, key)
		if err == nil {
			h.logger.WithField("cache_key", key).Info("Returning cached optimization result")
			utils.SendSuccessWithMeta(c, OptimizeResponse{Cached: true, Result: cached}, &utils.Meta{CacheHit: true})
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.WithError(err).Warn("Cache lookup failed")
		}
	}

	if req.ClientID != "" && h.progress != nil {
		clientID := req.ClientID
		h.progress.SendProgress(clientID, "initialization", 0, fmt.Sprintf("Starting %s optimization", strategy))
		params.Progress = throttleProgress(func(done, total int) {
			h.progress.SendProgress(clientID, "sampling", float64(done)/float64(total), fmt.Sprintf("%d/%d reads", done, total))
		})
	}

	solver, err := h.registry.Solver(strategy, weights, params)
	if err != nil {
		utils.SendDomainError(c, "Unsupported strategy", err)
		return
	}

	result, err := solver.Solve(ctx, players, problem)
	if err != nil {
		h.logger.WithError(err).WithField("strategy", strategy).Error("Optimization failed")
		utils.SendDomainError(c, "Optimization failed", err)
		return
	}

	response := OptimizeResponse{Result: result}
	if h.runs != nil {
		var runWeights *types.PenaltyWeights
		if strategy != optimizer.StrategyILP {
			runWeights = &weights
		}
		if run, err := store.NewRun(result, problem, len(players), runWeights); err != nil {
			h.logger.WithError(err).Warn("Failed to build run record")
		} else if err := h.runs.Save(ctx, run); err != nil {
			h.logger.WithError(err).Warn("Failed to persist optimization run")
		} else {
			response.RunID = run.ID.String()
		}
	}

	if h.cache != nil {
		if err := h.cache.SetResult(ctx, key, result, h.config.CacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache optimization result")
		}
	}

	if req.ClientID != "" && h.progress != nil {
		h.progress.SendProgress(req.ClientID, "completed", 1, fmt.Sprintf("Optimization completed in %v", result.Duration))
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":   response.RunID,
		"strategy": result.Strategy,
		"players":  len(players),
		"feasible": result.Feasible,
		"points":   result.Lineup.TotalPoints,
		"duration": result.Duration,
	}).Info("Optimization completed successfully")

	utils.SendSuccess(c, response)
}

// Sample handles POST /api/v1/sample, the endpoint RemoteSampler talks to
func (h *OptimizationHandler) Sample(c *gin.Context) {
	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	if req.QUBO.Size < 0 {
		utils.SendValidationError(c, "Invalid QUBO", fmt.Sprintf("negative size %d", req.QUBO.Size))
		return
	}
	if h.config.MaxPlayers > 0 && req.QUBO.Size > h.config.MaxPlayers {
		utils.SendValidationError(c, "QUBO too large", fmt.Sprintf("%d variables exceeds limit of %d", req.QUBO.Size, h.config.MaxPlayers))
		return
	}

	params, err := h.config.SamplerLimits().Apply(req.Params)
	if err != nil {
		utils.SendDomainError(c, "Invalid sampler parameters", err)
		return
	}

	q, err := qubo.FromTerms(req.QUBO.Size, req.QUBO.Terms)
	if err != nil {
		utils.SendValidationError(c, "Invalid QUBO", err.Error())
		return
	}

	s, err := h.registry.Sampler(req.Sampler)
	if err != nil {
		utils.SendDomainError(c, "Unsupported sampler", err)
		return
	}

	set, err := s.Sample(c.Request.Context(), q, params)
	if err != nil {
		if errors.Is(err, sampler.ErrTooManyVariables) {
			utils.SendValidationError(c, "Sampling failed", err.Error())
			return
		}
		utils.SendDomainError(c, "Sampling failed", err)
		return
	}

	utils.SendSuccess(c, set)
}

// GetCacheStatus handles GET /api/v1/cache/status
func (h *OptimizationHandler) GetCacheStatus(c *gin.Context) {
	if h.cache == nil {
		utils.SendSuccess(c, map[string]interface{}{"configured": false, "connected": false})
		return
	}
	status := h.cache.GetStatus(c.Request.Context())
	status["configured"] = true
	utils.SendSuccess(c, status)
}

// ClearCache handles DELETE /api/v1/cache
func (h *OptimizationHandler) ClearCache(c *gin.Context) {
	if h.cache == nil {
		utils.SendSuccess(c, map[string]interface{}{"configured": false, "flushed": false})
		return
	}
	if err := h.cache.Flush(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to flush cache")
		utils.SendInternalError(c, "Failed to flush cache")
		return
	}
	utils.SendSuccess(c, map[string]interface{}{"configured": true, "flushed": true})
}

func (h *OptimizationHandler) fillDefaults(players []types.Player, problem *types.SelectionProblem, weights *types.PenaltyWeights) ([]types.Player, types.SelectionProblem, types.PenaltyWeights) {
	if len(players) == 0 {
		players = roster.DefaultPlayers()
	}
	p := roster.DefaultProblem()
	if problem != nil {
		p = *problem
	}
	w := h.config.Weights()
	if weights != nil {
		w = *weights
	}
	return players, p, w
}

func (h *OptimizationHandler) checkInput(c *gin.Context, players []types.Player, problem types.SelectionProblem, weights types.PenaltyWeights) bool {
	if h.config.MaxPlayers > 0 && len(players) > h.config.MaxPlayers {
		utils.SendValidationError(c, "Too many players", fmt.Sprintf("%d players exceeds limit of %d", len(players), h.config.MaxPlayers))
		return false
	}
	if err := qubo.Validate(players, problem, weights); err != nil {
		utils.SendDomainError(c, "Invalid selection problem", err)
		return false
	}
	return true
}

// samplerParams overlays the non-zero request fields on the configured
// defaults and enforces the configured limits
func (h *OptimizationHandler) samplerParams(override *sampler.Params) (sampler.Params, error) {
	params := h.config.SamplerParams()
	if override == nil {
		return h.config.SamplerLimits().Apply(params)
	}
	if override.NumReads > 0 {
		params.NumReads = override.NumReads
	}
	if override.Sweeps > 0 {
		params.Sweeps = override.Sweeps
	}
	if override.Workers > 0 {
		params.Workers = override.Workers
	}
	if override.Seed != 0 {
		params.Seed = override.Seed
	}
	if override.BetaRange[0] > 0 && override.BetaRange[1] > 0 {
		params.BetaRange = override.BetaRange
	}
	if override.NumReads < 0 || override.Sweeps < 0 {
		return params, fmt.Errorf("%w: num_reads and sweeps must not be negative", utils.ErrInvalidInput)
	}
	return h.config.SamplerLimits().Apply(params)
}

// throttleProgress forwards a read only once another percent of the run is
// done, and always forwards the final read
func throttleProgress(report func(done, total int)) func(done, total int) {
	last := 0
	return func(done, total int) {
		step := total / 100
		if step < 1 {
			step = 1
		}
		if done-last < step && done != total {
			return
		}
		last = done
		report(done, total)
	}
}
