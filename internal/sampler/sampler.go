// Package sampler holds the binary quadratic solvers a QUBO is handed to.
// Every implementation approximately minimises the quadratic form and reports
// the assignments it found, lowest energy first.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

var (
	ErrEmptySampleSet   = errors.New("sample set is empty")
	ErrTooManyVariables = errors.New("too many variables for exhaustive search")
)

// Sampler minimises a QUBO. Implementations must not mutate q.
type Sampler interface {
	Name() string
	Sample(ctx context.Context, q *qubo.Matrix, params Params) (*SampleSet, error)
}

// Params tune a sampling run. Zero values fall back to DefaultParams.
type Params struct {
	NumReads  int        `json:"num_reads"`
	Sweeps    int        `json:"sweeps"`
	Seed      int64      `json:"seed"`
	Workers   int        `json:"workers"`
	BetaRange [2]float64 `json:"beta_range"`
	// Progress is called after each completed read; calls are serialised
	Progress func(done, total int) `json:"-"`
}

// DefaultParams mirrors the 1000-read runs of the annealing scripts
func DefaultParams() Params {
	return Params{
		NumReads: 1000,
		Sweeps:   1000,
		Workers:  runtime.NumCPU(),
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.NumReads <= 0 {
		p.NumReads = d.NumReads
	}
	if p.Sweeps <= 0 {
		p.Sweeps = d.Sweeps
	}
	if p.Workers <= 0 {
		p.Workers = d.Workers
	}
	return p
}

const (
	DefaultMaxReads  = 10000
	DefaultMaxSweeps = 100000
)

// Limits bound the work a caller may request from one sampling run.
// Zero fields fall back to DefaultMaxReads, DefaultMaxSweeps and NumCPU.
type Limits struct {
	MaxReads   int
	MaxSweeps  int
	MaxWorkers int
}

// Apply rejects reads or sweeps outside the limits and clamps workers into
// 1..MaxWorkers, with zero meaning MaxWorkers
func (l Limits) Apply(p Params) (Params, error) {
	if l.MaxReads <= 0 {
		l.MaxReads = DefaultMaxReads
	}
	if l.MaxSweeps <= 0 {
		l.MaxSweeps = DefaultMaxSweeps
	}
	if l.MaxWorkers <= 0 {
		l.MaxWorkers = runtime.NumCPU()
	}

	if p.NumReads < 0 || p.NumReads > l.MaxReads {
		return p, fmt.Errorf("%w: num_reads %d outside 0..%d", utils.ErrInvalidInput, p.NumReads, l.MaxReads)
	}
	if p.Sweeps < 0 || p.Sweeps > l.MaxSweeps {
		return p, fmt.Errorf("%w: sweeps %d outside 0..%d", utils.ErrInvalidInput, p.Sweeps, l.MaxSweeps)
	}
	if p.Workers <= 0 || p.Workers > l.MaxWorkers {
		p.Workers = l.MaxWorkers
	}
	return p, nil
}

// Sample is one distinct assignment and how often it was read
type Sample struct {
	Assignment  []int   `json:"assignment"`
	Energy      float64 `json:"energy"`
	Occurrences int     `json:"occurrences"`
}

// SampleSet is sorted by ascending energy, ties ordered by assignment
type SampleSet struct {
	Samples  []Sample      `json:"samples"`
	NumReads int           `json:"num_reads"`
	Sampler  string        `json:"sampler"`
	Duration time.Duration `json:"duration"`
}

// EnergyStats summarises the energy distribution over all reads
type EnergyStats struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Distinct int     `json:"distinct"`
}

// NewSampleSet aggregates identical reads and orders them
func NewSampleSet(samplerName string, reads []Sample) *SampleSet {
	byKey := make(map[string]int, len(reads))
	aggregated := make([]Sample, 0, len(reads))
	total := 0

	for _, r := range reads {
		occ := r.Occurrences
		if occ <= 0 {
			occ = 1
		}
		total += occ

		key := assignmentKey(r.Assignment)
		if idx, ok := byKey[key]; ok {
			aggregated[idx].Occurrences += occ
			continue
		}
		byKey[key] = len(aggregated)
		aggregated = append(aggregated, Sample{
			Assignment:  append([]int(nil), r.Assignment...),
			Energy:      r.Energy,
			Occurrences: occ,
		})
	}

	sort.SliceStable(aggregated, func(i, j int) bool {
		if aggregated[i].Energy != aggregated[j].Energy {
			return aggregated[i].Energy < aggregated[j].Energy
		}
		return assignmentKey(aggregated[i].Assignment) < assignmentKey(aggregated[j].Assignment)
	})

	return &SampleSet{
		Samples:  aggregated,
		NumReads: total,
		Sampler:  samplerName,
	}
}

// First returns the lowest-energy sample
func (s *SampleSet) First() (Sample, error) {
	if s == nil || len(s.Samples) == 0 {
		return Sample{}, ErrEmptySampleSet
	}
	return s.Samples[0], nil
}

// Stats weights each distinct sample by its occurrences
func (s *SampleSet) Stats() EnergyStats {
	if s == nil || len(s.Samples) == 0 {
		return EnergyStats{}
	}

	energies := make([]float64, len(s.Samples))
	weights := make([]float64, len(s.Samples))
	total := 0.0
	for i, sample := range s.Samples {
		energies[i] = sample.Energy
		weights[i] = float64(sample.Occurrences)
		total += weights[i]
	}

	stats := EnergyStats{
		Min:      floats.Min(energies),
		Max:      floats.Max(energies),
		Distinct: len(s.Samples),
	}
	if total < 2 {
		stats.Mean = energies[0]
		return stats
	}
	stats.Mean, stats.StdDev = stat.MeanStdDev(energies, weights)
	return stats
}

func assignmentKey(x []int) string {
	var b strings.Builder
	b.Grow(len(x))
	for _, v := range x {
		if v != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}
