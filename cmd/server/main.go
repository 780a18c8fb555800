package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/api"
	"github.com/stitts-dev/dfs-qubo/internal/api/handlers"
	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/sampler"
	"github.com/stitts-dev/dfs-qubo/internal/store"
	"github.com/stitts-dev/dfs-qubo/internal/websocket"
	"github.com/stitts-dev/dfs-qubo/pkg/cache"
	"github.com/stitts-dev/dfs-qubo/pkg/config"
	"github.com/stitts-dev/dfs-qubo/pkg/database"
	"github.com/stitts-dev/dfs-qubo/pkg/logger"
)

const serviceName = "dfs-qubo"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	log := logger.WithService(serviceName)
	log.WithFields(logrus.Fields{
		"version":     "1.0.0",
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting lineup optimization service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runStore := store.NewRunStore(db.DB, structuredLogger)
	if err := runStore.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := api.Dependencies{
		Config: cfg,
		Runs:   runStore,
		Logger: structuredLogger,
		Health: []handlers.HealthCheck{
			{Name: "database", Critical: true, Check: func(context.Context) error { return db.Ping() }},
		},
	}

	// Redis is optional; without it every request is solved fresh
	redisClient, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, result caching disabled")
	} else {
		defer redisClient.Close()
		deps.Cache = cache.NewResultCache(redisClient, structuredLogger)
		deps.Health = append(deps.Health, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var remote sampler.Sampler
	if cfg.RemoteSamplerURL != "" {
		remote = sampler.NewRemoteSampler(sampler.RemoteConfig{
			BaseURL:          cfg.RemoteSamplerURL,
			Sampler:          optimizer.StrategyAnneal,
			Timeout:          cfg.RemoteSamplerTimeout,
			FailureThreshold: cfg.CircuitBreakerThreshold,
		}, structuredLogger)
		log.WithField("url", cfg.RemoteSamplerURL).Info("Remote sampler enabled")
	}
	deps.Registry = optimizer.NewRegistry(remote, cfg.ILPMaxNodes, structuredLogger)

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run(ctx)
	deps.Hub = wsHub

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewRouter(deps),
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Lineup optimization service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down lineup optimization service...")

	// The server has 5 seconds to finish the requests it is currently handling
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Service forced to shutdown: %v", err)
	}
	cancel()

	log.Info("Lineup optimization service exited")
}
