package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/internal/store"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

// OptimizeRequest solves one selection problem. Omitted players, problem and
// weights fall back to the sample pool, the default lineup rules and the
// configured penalties.
type OptimizeRequest struct {
	Players   []types.Player          `json:"players"`
	Problem   *types.SelectionProblem `json:"problem"`
	Weights   *types.PenaltyWeights   `json:"weights"`
	Strategy  string                  `json:"strategy"`
	Params    *sampler.Params         `json:"params"`
	ClientID  string                  `json:"client_id"`
	SkipCache bool                    `json:"skip_cache"`
}

type OptimizeResponse struct {
	RunID  string            `json:"run_id,omitempty"`
	Cached bool              `json:"cached"`
	Result *optimizer.Result `json:"result"`
}

// QUBORequest builds a QUBO without solving it
type QUBORequest struct {
	Players []types.Player          `json:"players"`
	Problem *types.SelectionProblem `json:"problem"`
	Weights *types.PenaltyWeights   `json:"weights"`
}

type QUBOResponse struct {
	Size    int                  `json:"size"`
	Entries int                  `json:"entries"`
	Offset  float64              `json:"offset"`
	Weights types.PenaltyWeights `json:"weights"`
	Terms   []qubo.Term          `json:"terms"`
}

// SampleRequest mirrors sampler.SampleRequest but keeps the QUBO as raw terms
// so its size can be checked before any matrix is allocated
type SampleRequest struct {
	QUBO    *RawQUBO       `json:"qubo" binding:"required"`
	Params  sampler.Params `json:"params"`
	Sampler string         `json:"sampler"`
}

type RawQUBO struct {
	Size  int         `json:"size"`
	Terms []qubo.Term `json:"terms"`
}

// ResultCache is the subset of the redis cache the handlers use
type ResultCache interface {
	GetResult(ctx context.Context, key string) (*optimizer.Result, error)
	SetResult(ctx context.Context, key string, result *optimizer.Result, expiration time.Duration) error
	GetQUBO(ctx context.Context, key string, dest interface{}) error
	SetQUBO(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetStatus(ctx context.Context) map[string]interface{}
	Flush(ctx context.Context) error
}

// RunStore persists and lists optimization runs
type RunStore interface {
	Save(ctx context.Context, run *store.OptimizationRun) error
	Get(ctx context.Context, id uuid.UUID) (*store.OptimizationRun, error)
	List(ctx context.Context, limit, offset int) ([]store.OptimizationRun, int64, error)
}

// ProgressNotifier pushes progress to subscribed websocket clients
type ProgressNotifier interface {
	SendProgress(clientID, step string, progress float64, message string)
}
