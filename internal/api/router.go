// Package api wires the HTTP routes of the lineup service
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/api/handlers"
	"github.com/stitts-dev/dfs-qubo/internal/api/middleware"
	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/internal/websocket"
	"github.com/stitts-dev/dfs-qubo/pkg/config"
)

// Dependencies are the collaborators of the router. Cache, Runs and Hub are
// optional; leave them nil to disable caching, history or progress.
type Dependencies struct {
	Config   *config.Config
	Registry *optimizer.Registry
	Cache    handlers.ResultCache
	Runs     handlers.RunStore
	Hub      *websocket.Hub
	Health   []handlers.HealthCheck
	Logger   *logrus.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(deps.Logger))

	var progress handlers.ProgressNotifier
	if deps.Hub != nil {
		progress = deps.Hub
	}

	optimizationHandler := handlers.NewOptimizationHandler(deps.Registry, deps.Cache, deps.Runs, progress, deps.Config, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Logger, deps.Health...)

	apiV1 := router.Group("/api/v1")
	if deps.Config.RateLimitRPS > 0 {
		apiV1.Use(middleware.RateLimit(middleware.NewIPRateLimiter(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst)))
	}
	{
		apiV1.POST("/qubo", optimizationHandler.BuildQUBO)
		apiV1.POST("/optimize", optimizationHandler.Optimize)
		apiV1.POST("/sample", optimizationHandler.Sample)
		apiV1.GET("/cache/status", optimizationHandler.GetCacheStatus)
		apiV1.DELETE("/cache", optimizationHandler.ClearCache)

		if deps.Runs != nil {
			runsHandler := handlers.NewRunsHandler(deps.Runs, deps.Logger)
			apiV1.GET("/runs", runsHandler.ListRuns)
			apiV1.GET("/runs/:id", runsHandler.GetRun)
		}
	}

	if deps.Hub != nil {
		router.GET("/ws/progress/:client_id", deps.Hub.HandleWebSocket)
	}

	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	return router
}
