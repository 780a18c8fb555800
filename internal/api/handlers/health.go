package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/pkg/types"
)

// HealthCheck probes one dependency. A failing critical check makes the
// service unhealthy and not ready; other failures only degrade it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks []HealthCheck
	logger *logrus.Logger
}

func NewHealthHandler(logger *logrus.Logger, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// GetHealth returns the basic health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response, criticalFailed, anyFailed := h.run(c.Request.Context(), "ok")

	statusCode := http.StatusOK
	switch {
	case criticalFailed:
		response.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case anyFailed:
		response.Status = "degraded"
	}

	c.JSON(statusCode, response)
}

// GetReady returns the readiness status
func (h *HealthHandler) GetReady(c *gin.Context) {
	response, criticalFailed, _ := h.run(c.Request.Context(), "ready")

	statusCode := http.StatusOK
	if criticalFailed {
		response.Status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func (h *HealthHandler) run(ctx context.Context, status string) (types.HealthStatus, bool, bool) {
	response := types.HealthStatus{
		Status:    status,
		Service:   "dfs-qubo",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	criticalFailed, anyFailed := false, false
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			response.Checks[check.Name] = "failed: " + err.Error()
			anyFailed = true
			if check.Critical {
				criticalFailed = true
			}
			h.logger.WithError(err).WithField("check", check.Name).Warn("Health check failed")
			continue
		}
		response.Checks[check.Name] = "ok"
	}
	return response, criticalFailed, anyFailed
}
