package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

type Config struct {
	// Server
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Storage
	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	CacheTTL    time.Duration `mapstructure:"CACHE_TTL"`

	// Requests
	MaxPlayers     int     `mapstructure:"MAX_PLAYERS"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Sampling
	SamplerNumReads int   `mapstructure:"SAMPLER_NUM_READS"`
	SamplerSweeps   int   `mapstructure:"SAMPLER_SWEEPS"`
	SamplerWorkers  int   `mapstructure:"SAMPLER_WORKERS"`
	SamplerSeed     int64 `mapstructure:"SAMPLER_SEED"`
	// Ceilings on per-request overrides
	SamplerMaxReads  int `mapstructure:"SAMPLER_MAX_READS"`
	SamplerMaxSweeps int `mapstructure:"SAMPLER_MAX_SWEEPS"`

	// Remote sampler
	RemoteSamplerURL        string        `mapstructure:"REMOTE_SAMPLER_URL"`
	RemoteSamplerTimeout    time.Duration `mapstructure:"REMOTE_SAMPLER_TIMEOUT"`
	CircuitBreakerThreshold int           `mapstructure:"CIRCUIT_BREAKER_THRESHOLD"`

	// Integer programming
	ILPMaxNodes int `mapstructure:"ILP_MAX_NODES"`

	// Penalty weights
	PenaltyAlpha float64 `mapstructure:"PENALTY_ALPHA"`
	PenaltyBeta  float64 `mapstructure:"PENALTY_BETA"`
	PenaltyGamma float64 `mapstructure:"PENALTY_GAMMA"`
	PenaltyDelta float64 `mapstructure:"PENALTY_DELTA"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")

	v.SetDefault("PORT", "8082")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DATABASE_URL", "sqlite://dfs_qubo.db")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/1")
	v.SetDefault("CACHE_TTL", "24h")
	v.SetDefault("MAX_PLAYERS", 500)
	v.SetDefault("RATE_LIMIT_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("SAMPLER_NUM_READS", 1000)
	v.SetDefault("SAMPLER_SWEEPS", 1000)
	v.SetDefault("SAMPLER_WORKERS", 4)
	v.SetDefault("SAMPLER_SEED", 0)
	v.SetDefault("SAMPLER_MAX_READS", sampler.DefaultMaxReads)
	v.SetDefault("SAMPLER_MAX_SWEEPS", sampler.DefaultMaxSweeps)
	v.SetDefault("REMOTE_SAMPLER_URL", "")
	v.SetDefault("REMOTE_SAMPLER_TIMEOUT", "30s")
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 5)
	v.SetDefault("ILP_MAX_NODES", 100000)
	v.SetDefault("PENALTY_ALPHA", 1.0)
	v.SetDefault("PENALTY_BETA", 10.0)
	v.SetDefault("PENALTY_GAMMA", 100.0)
	v.SetDefault("PENALTY_DELTA", 100.0)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Weights returns the configured default penalty weights
func (c *Config) Weights() types.PenaltyWeights {
	return types.PenaltyWeights{
		Objective: c.PenaltyAlpha,
		Budget:    c.PenaltyBeta,
		Position:  c.PenaltyGamma,
		TeamSize:  c.PenaltyDelta,
	}
}

// SamplerParams returns the configured defaults for a sampling run
func (c *Config) SamplerParams() sampler.Params {
	return sampler.Params{
		NumReads: c.SamplerNumReads,
		Sweeps:   c.SamplerSweeps,
		Seed:     c.SamplerSeed,
		Workers:  c.SamplerWorkers,
	}
}

// SamplerLimits caps request overrides. Workers never exceed SAMPLER_WORKERS.
func (c *Config) SamplerLimits() sampler.Limits {
	return sampler.Limits{
		MaxReads:   c.SamplerMaxReads,
		MaxSweeps:  c.SamplerMaxSweeps,
		MaxWorkers: c.SamplerWorkers,
	}
}
