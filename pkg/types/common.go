package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Category is the position label a player is drafted at
type Category string

const (
	PositionQB  Category = "QB"
	PositionRB  Category = "RB"
	PositionWR  Category = "WR"
	PositionTE  Category = "TE"
	PositionDST Category = "DST"
)

// Player is a candidate entity for a lineup. Values are never mutated after loading.
type Player struct {
	ID              int      `json:"id"`
	Name            string   `json:"name,omitempty"`
	Team            string   `json:"team,omitempty"`
	Position        Category `json:"position"`
	ProjectedPoints float64  `json:"projected_points"`
	Salary          float64  `json:"salary"`
}

// PositionRequirements defines how many players are needed for each position
type PositionRequirements map[Category]int

// Scan implements the sql.Scanner interface for JSONB
func (pr *PositionRequirements) Scan(value interface{}) error {
	if value == nil {
		*pr = make(PositionRequirements)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into PositionRequirements", value)
	}

	var result map[Category]int
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}

	*pr = PositionRequirements(result)
	return nil
}

// Value implements the driver.Valuer interface for JSONB
func (pr PositionRequirements) Value() (driver.Value, error) {
	if pr == nil {
		return nil, nil
	}
	b, err := json.Marshal(pr)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetTotalPlayers returns the sum of all position quotas
func (pr PositionRequirements) GetTotalPlayers() int {
	total := 0
	for _, count := range pr {
		total += count
	}
	return total
}

// Positions returns the quota categories in lexical order
func (pr PositionRequirements) Positions() []Category {
	positions := make([]Category, 0, len(pr))
	for pos := range pr {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return positions
}

// SelectionProblem holds the lineup constraints shared by every solving strategy
type SelectionProblem struct {
	Budget               float64              `json:"budget"`
	PositionRequirements PositionRequirements `json:"position_requirements"`
	TeamSize             int                  `json:"team_size"`
}

// PenaltyWeights scale the objective against the three constraint penalties
type PenaltyWeights struct {
	Objective float64 `json:"alpha"`
	Budget    float64 `json:"beta"`
	Position  float64 `json:"gamma"`
	TeamSize  float64 `json:"delta"`
}

// Lineup is a decoded selection with its totals
type Lineup struct {
	Players        []Player         `json:"players"`
	TotalPoints    float64          `json:"total_points"`
	TotalSalary    float64          `json:"total_salary"`
	PositionCounts map[Category]int `json:"position_counts"`
}

// PlayerIDs returns the IDs of the selected players in selection order
func (l Lineup) PlayerIDs() []int {
	ids := make([]int, len(l.Players))
	for i, p := range l.Players {
		ids[i] = p.ID
	}
	return ids
}

// Violation describes one constraint a lineup does not satisfy
type Violation struct {
	Constraint string  `json:"constraint"`
	Expected   float64 `json:"expected"`
	Actual     float64 `json:"actual"`
	Message    string  `json:"message"`
}

// ProgressUpdate represents a progress update for a running optimization
type ProgressUpdate struct {
	Type        string    `json:"type"`
	Progress    float64   `json:"progress"` // 0.0 to 1.0
	Message     string    `json:"message"`
	CurrentStep string    `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
