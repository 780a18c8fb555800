package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/dfs-qubo/internal/sampler"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 1000, cfg.SamplerNumReads)
	assert.Equal(t, sampler.DefaultMaxReads, cfg.SamplerMaxReads)
	assert.Equal(t, sampler.DefaultMaxSweeps, cfg.SamplerMaxSweeps)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.RemoteSamplerTimeout)

	w := cfg.Weights()
	assert.Equal(t, 1.0, w.Objective)
	assert.Equal(t, 10.0, w.Budget)
	assert.Equal(t, 100.0, w.Position)
	assert.Equal(t, 100.0, w.TeamSize)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "production")
	t.Setenv("SAMPLER_NUM_READS", "250")
	t.Setenv("PENALTY_BETA", "0.5")
	t.Setenv("REMOTE_SAMPLER_TIMEOUT", "2s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 250, cfg.SamplerNumReads)
	assert.Equal(t, 0.5, cfg.Weights().Budget)
	assert.Equal(t, 2*time.Second, cfg.RemoteSamplerTimeout)
}

func TestSamplerParams(t *testing.T) {
	cfg := &Config{SamplerNumReads: 10, SamplerSweeps: 20, SamplerWorkers: 2, SamplerSeed: 7}

	p := cfg.SamplerParams()
	assert.Equal(t, 10, p.NumReads)
	assert.Equal(t, 20, p.Sweeps)
	assert.Equal(t, 2, p.Workers)
	assert.Equal(t, int64(7), p.Seed)
}

func TestSamplerLimits(t *testing.T) {
	cfg := &Config{SamplerWorkers: 2, SamplerMaxReads: 50, SamplerMaxSweeps: 500}

	limits := cfg.SamplerLimits()
	assert.Equal(t, 50, limits.MaxReads)
	assert.Equal(t, 500, limits.MaxSweeps)
	assert.Equal(t, 2, limits.MaxWorkers)

	p, err := limits.Apply(sampler.Params{NumReads: 50, Sweeps: 10, Workers: 64})
	assert.NoError(t, err)
	assert.Equal(t, 2, p.Workers)
}
