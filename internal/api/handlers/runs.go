package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// RunsHandler exposes the optimization run history
type RunsHandler struct {
	runs   RunStore
	logger *logrus.Logger
}

func NewRunsHandler(runs RunStore, logger *logrus.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

// ListRuns handles GET /api/v1/runs?limit=&offset=
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunLimit)))
	if err != nil || limit <= 0 {
		utils.SendValidationError(c, "Invalid limit", c.Query("limit"))
		return
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		utils.SendValidationError(c, "Invalid offset", c.Query("offset"))
		return
	}

	runs, total, err := h.runs.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		utils.SendInternalError(c, "Failed to list runs")
		return
	}

	utils.SendSuccessWithMeta(c, runs, &utils.Meta{Total: total, Limit: limit})
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, "Invalid run ID", err.Error())
		return
	}

	run, err := h.runs.Get(c.Request.Context(), id)
	if err != nil {
		utils.SendDomainError(c, "Run not found", err)
		return
	}

	utils.SendSuccess(c, run)
}
