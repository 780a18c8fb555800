package roster

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stitts-dev/dfs-qubo/pkg/types"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// DefaultPlayers returns the 14-player sample pool
func DefaultPlayers() []types.Player {
	return []types.Player{
		{ID: 0, Position: types.PositionQB, ProjectedPoints: 50.0, Salary: 8000},
		{ID: 1, Position: types.PositionQB, ProjectedPoints: 30.0, Salary: 7500},
		{ID: 2, Position: types.PositionRB, ProjectedPoints: 25.0, Salary: 6000},
		{ID: 3, Position: types.PositionRB, ProjectedPoints: 18.0, Salary: 5400},
		{ID: 4, Position: types.PositionRB, ProjectedPoints: 12.0, Salary: 5200},
		{ID: 5, Position: types.PositionWR, ProjectedPoints: 16.0, Salary: 5800},
		{ID: 6, Position: types.PositionWR, ProjectedPoints: 15.0, Salary: 5200},
		{ID: 7, Position: types.PositionWR, ProjectedPoints: 13.0, Salary: 4900},
		{ID: 8, Position: types.PositionWR, ProjectedPoints: 9.0, Salary: 4500},
		{ID: 9, Position: types.PositionTE, ProjectedPoints: 12.0, Salary: 4000},
		{ID: 10, Position: types.PositionTE, ProjectedPoints: 10.0, Salary: 3800},
		{ID: 11, Position: types.PositionTE, ProjectedPoints: 10.0, Salary: 3200},
		{ID: 12, Position: types.PositionDST, ProjectedPoints: 9.0, Salary: 2200},
		{ID: 13, Position: types.PositionDST, ProjectedPoints: 6.0, Salary: 1000},
	}
}

// DefaultProblem is the classic nine-player NFL lineup under a 100k budget
func DefaultProblem() types.SelectionProblem {
	return types.SelectionProblem{
		Budget: 100000,
		PositionRequirements: types.PositionRequirements{
			types.PositionQB:  1,
			types.PositionRB:  2,
			types.PositionWR:  3,
			types.PositionTE:  2,
			types.PositionDST: 1,
		},
		TeamSize: 9,
	}
}

// DefaultWeights favours constraint satisfaction over points
func DefaultWeights() types.PenaltyWeights {
	return types.PenaltyWeights{
		Objective: 1.0,
		Budget:    10.0,
		Position:  100.0,
		TeamSize:  100.0,
	}
}

var requiredColumns = []string{"id", "position", "projected_points", "salary"}

var knownColumns = map[string]bool{
	"id":               true,
	"position":         true,
	"projected_points": true,
	"salary":           true,
	"name":             true,
	"team":             true,
}

// LoadFile reads a player pool from a .csv or .json file
func LoadFile(path string) ([]types.Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	default:
		return nil, fmt.Errorf("%w: unsupported roster format %q", utils.ErrInvalidInput, filepath.Ext(path))
	}
}

// LoadCSV parses a header row followed by one player per row.
// Required columns: id, position, projected_points, salary. Optional: name, team.
func LoadCSV(r io.Reader) ([]types.Player, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: roster is empty", utils.ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to read roster header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		if !knownColumns[col] {
			return nil, fmt.Errorf("%w: unknown roster column %q", utils.ErrInvalidInput, col)
		}
		index[col] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: roster is missing column %q", utils.ErrInvalidInput, col)
		}
	}

	var players []types.Player
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read roster line %d: %w", line, err)
		}

		player, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", utils.ErrInvalidInput, line, err)
		}
		players = append(players, player)
	}

	if err := checkUnique(players); err != nil {
		return nil, err
	}
	return players, nil
}

func parseRecord(record []string, index map[string]int) (types.Player, error) {
	field := func(name string) string {
		if i, ok := index[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	id, err := strconv.Atoi(field("id"))
	if err != nil {
		return types.Player{}, fmt.Errorf("invalid id %q", field("id"))
	}
	points, err := strconv.ParseFloat(field("projected_points"), 64)
	if err != nil {
		return types.Player{}, fmt.Errorf("invalid projected_points %q", field("projected_points"))
	}
	salary, err := strconv.ParseFloat(field("salary"), 64)
	if err != nil {
		return types.Player{}, fmt.Errorf("invalid salary %q", field("salary"))
	}
	position := strings.ToUpper(field("position"))
	if position == "" {
		return types.Player{}, errors.New("position is required")
	}

	return types.Player{
		ID:              id,
		Name:            field("name"),
		Team:            field("team"),
		Position:        types.Category(position),
		ProjectedPoints: points,
		Salary:          salary,
	}, nil
}

// LoadJSON parses a JSON array of players
func LoadJSON(r io.Reader) ([]types.Player, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var players []types.Player
	if err := dec.Decode(&players); err != nil {
		return nil, fmt.Errorf("%w: failed to decode roster: %v", utils.ErrInvalidInput, err)
	}
	if err := checkUnique(players); err != nil {
		return nil, err
	}
	return players, nil
}

func checkUnique(players []types.Player) error {
	seen := make(map[int]bool, len(players))
	for _, p := range players {
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate player id %d", utils.ErrInvalidInput, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
