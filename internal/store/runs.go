package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stitts-dev/dfs-qubo/internal/optimizer"
	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// OptimizationRun is one persisted solve
type OptimizationRun struct {
	ID                   uuid.UUID                  `gorm:"type:uuid;primaryKey" json:"id"`
	Strategy             string                     `gorm:"index;not null" json:"strategy"`
	PlayerCount          int                        `json:"player_count"`
	Budget               float64                    `json:"budget"`
	TeamSize             int                        `json:"team_size"`
	PositionRequirements types.PositionRequirements `gorm:"type:jsonb" json:"position_requirements"`
	Weights              datatypes.JSON             `json:"weights,omitempty"`
	Objective            float64                    `json:"objective"`
	Feasible             bool                       `json:"feasible"`
	Optimal              bool                       `json:"optimal"`
	TotalPoints          float64                    `json:"total_points"`
	TotalSalary          float64                    `json:"total_salary"`
	PlayerIDs            datatypes.JSON             `json:"player_ids"`
	Violations           datatypes.JSON             `json:"violations,omitempty"`
	DurationMS           int64                      `json:"duration_ms"`
	CreatedAt            time.Time                  `gorm:"index" json:"created_at"`
}

func (r *OptimizationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// NewRun summarises a result for storage. weights is nil for strategies that
// do not use penalties.
func NewRun(result *optimizer.Result, problem types.SelectionProblem, playerCount int, weights *types.PenaltyWeights) (*OptimizationRun, error) {
	ids, err := json.Marshal(result.Lineup.PlayerIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal player ids: %w", err)
	}

	run := &OptimizationRun{
		Strategy:             result.Strategy,
		PlayerCount:          playerCount,
		Budget:               problem.Budget,
		TeamSize:             problem.TeamSize,
		PositionRequirements: problem.PositionRequirements,
		Objective:            result.Objective,
		Feasible:             result.Feasible,
		Optimal:              result.Optimal,
		TotalPoints:          result.Lineup.TotalPoints,
		TotalSalary:          result.Lineup.TotalSalary,
		PlayerIDs:            datatypes.JSON(ids),
		DurationMS:           result.Duration.Milliseconds(),
	}

	if weights != nil {
		raw, err := json.Marshal(weights)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal weights: %w", err)
		}
		run.Weights = datatypes.JSON(raw)
	}
	if len(result.Violations) > 0 {
		raw, err := json.Marshal(result.Violations)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal violations: %w", err)
		}
		run.Violations = datatypes.JSON(raw)
	}

	return run, nil
}

// RunStore persists optimization runs with gorm
type RunStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRunStore(db *gorm.DB, logger *logrus.Logger) *RunStore {
	return &RunStore{db: db, logger: logger}
}

// Migrate creates or updates the runs table
func (s *RunStore) Migrate() error {
	if err := s.db.AutoMigrate(&OptimizationRun{}); err != nil {
		return fmt.Errorf("failed to migrate optimization runs: %w", err)
	}
	return nil
}

func (s *RunStore) Save(ctx context.Context, run *OptimizationRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to save optimization run: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"strategy": run.Strategy,
		"feasible": run.Feasible,
	}).Debug("Saved optimization run")
	return nil
}

func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*OptimizationRun, error) {
	var run OptimizationRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s", utils.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load optimization run: %w", err)
	}
	return &run, nil
}

// List returns the newest runs first together with the total count
func (s *RunStore) List(ctx context.Context, limit, offset int) ([]OptimizationRun, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&OptimizationRun{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count optimization runs: %w", err)
	}

	var runs []OptimizationRun
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list optimization runs: %w", err)
	}
	return runs, total, nil
}
