package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/logger"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

func float(v float64) *float64 { return &v }

func TestBuildQUBO_Defaults(t *testing.T) {
	summary, err := buildQUBO(BuildQUBOArgs{})
	require.NoError(t, err)

	assert.Equal(t, 14, summary.Size)
	assert.Equal(t, 105, summary.Entries)
	assert.Equal(t, 1e11+1900+8100, summary.Offset)
	assert.Len(t, summary.Diagonal, 14)
	assert.Nil(t, summary.Terms)

	summary, err = buildQUBO(BuildQUBOArgs{IncludeTerms: true, Problem: ProblemArgs{Beta: float(0)}})
	require.NoError(t, err)
	assert.Len(t, summary.Terms, 105)
	assert.Equal(t, 0.0, summary.Weights.Budget)
}

func TestBuildQUBO_Invalid(t *testing.T) {
	_, err := buildQUBO(BuildQUBOArgs{Problem: ProblemArgs{Gamma: float(-1)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrInvalidInput))
}

func TestOptimizeLineup(t *testing.T) {
	registry := optimizer.NewRegistry(nil, optimizer.DefaultMaxNodes, logger.NewNop())

	t.Run("ilp", func(t *testing.T) {
		summary, err := optimizeLineup(context.Background(), registry, sampler.Limits{}, OptimizeLineupArgs{Strategy: optimizer.StrategyILP})
		require.NoError(t, err)
		assert.True(t, summary.Feasible)
		assert.True(t, summary.Optimal)
		assert.Nil(t, summary.Energy)
		assert.Equal(t, 168.0, summary.Lineup.TotalPoints)
		assert.Len(t, summary.PlayerIDs, 9)
	})

	t.Run("exact with matched budget", func(t *testing.T) {
		args := OptimizeLineupArgs{
			Strategy: optimizer.StrategyExact,
			NumReads: 1,
			Problem:  ProblemArgs{Budget: 45300, Beta: float(0.0001)},
		}
		summary, err := optimizeLineup(context.Background(), registry, sampler.Limits{}, args)
		require.NoError(t, err)
		assert.True(t, summary.Feasible)
		require.NotNil(t, summary.Energy)
		assert.InDelta(t, -215377, *summary.Energy, 1e-3)
		assert.Equal(t, []int{0, 2, 3, 5, 6, 7, 9, 10, 12}, summary.PlayerIDs)
	})

	t.Run("work above limits", func(t *testing.T) {
		limits := sampler.Limits{MaxReads: 100, MaxSweeps: 100}
		for _, args := range []OptimizeLineupArgs{
			{Strategy: optimizer.StrategyAnneal, NumReads: 101},
			{Strategy: optimizer.StrategyAnneal, NumReads: 10, Sweeps: 1000},
			{Strategy: optimizer.StrategyAnneal, NumReads: -1},
		} {
			_, err := optimizeLineup(context.Background(), registry, limits, args)
			assert.True(t, errors.Is(err, utils.ErrInvalidInput), "args %+v: %v", args, err)
		}
	})

	t.Run("remote unavailable", func(t *testing.T) {
		_, err := optimizeLineup(context.Background(), registry, sampler.Limits{}, OptimizeLineupArgs{Strategy: optimizer.StrategyRemote})
		assert.True(t, errors.Is(err, utils.ErrSamplerUnavailable))
	})

	t.Run("custom pool", func(t *testing.T) {
		args := OptimizeLineupArgs{
			Strategy: optimizer.StrategyILP,
			Problem: ProblemArgs{
				Players: []types.Player{
					{ID: 1, Position: "QB", ProjectedPoints: 20, Salary: 10},
					{ID: 2, Position: "QB", ProjectedPoints: 25, Salary: 30},
					{ID: 3, Position: "WR", ProjectedPoints: 10, Salary: 10},
				},
				Budget:               30,
				TeamSize:             2,
				PositionRequirements: map[types.Category]int{"QB": 1, "WR": 1},
			},
		}
		summary, err := optimizeLineup(context.Background(), registry, sampler.Limits{}, args)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3}, summary.PlayerIDs)
	})
}

func TestToolJSON(t *testing.T) {
	res, _, err := toolJSON(map[string]int{"size": 3}, nil)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	assert.Equal(t, 3, decoded["size"])

	res, _, err = toolJSON(nil, errors.New("boom"))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "error: boom", res.Content[0].(*mcp.TextContent).Text)
}
