package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
)

// SimulatedAnnealer is a classical stand-in for a quantum annealing service:
// single-flip Metropolis sweeps under a geometric inverse-temperature schedule.
type SimulatedAnnealer struct {
	logger *logrus.Entry
}

// NewSimulatedAnnealer creates a new annealing sampler
func NewSimulatedAnnealer(logger *logrus.Logger) *SimulatedAnnealer {
	return &SimulatedAnnealer{
		logger: logger.WithField("component", "simulated_annealer"),
	}
}

func (a *SimulatedAnnealer) Name() string {
	return "simulated-annealing"
}

// Sample runs NumReads independent anneals. Read r is seeded with Seed+r, so
// the result does not depend on how reads are spread over workers.
func (a *SimulatedAnnealer) Sample(ctx context.Context, q *qubo.Matrix, params Params) (*SampleSet, error) {
	params = params.withDefaults()
	start := time.Now()
	n := q.Size()

	couplings := q.Couplings()
	betaMin, betaMax := params.BetaRange[0], params.BetaRange[1]
	if betaMin <= 0 || betaMax <= 0 {
		betaMin, betaMax = defaultBetaRange(couplings)
	}
	schedule := geometricSchedule(betaMin, betaMax, params.Sweeps)

	a.logger.WithFields(logrus.Fields{
		"variables": n,
		"num_reads": params.NumReads,
		"sweeps":    params.Sweeps,
		"workers":   params.Workers,
		"beta_min":  betaMin,
		"beta_max":  betaMax,
	}).Debug("Starting simulated annealing")

	reads := make([]Sample, params.NumReads)
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		progress sync.Mutex
		done     int
	)

	workers := params.Workers
	if workers > params.NumReads {
		workers = params.NumReads
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for read := range jobs {
				rng := rand.New(rand.NewSource(params.Seed + int64(read)))
				x := anneal(couplings, schedule, rng)
				reads[read] = Sample{Assignment: x, Energy: q.Energy(x), Occurrences: 1}

				if params.Progress != nil {
					progress.Lock()
					done++
					params.Progress(done, params.NumReads)
					progress.Unlock()
				}
			}
		}()
	}

	var cancelled error
feed:
	for read := 0; read < params.NumReads; read++ {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- read:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("annealing cancelled: %w", cancelled)
	}

	set := NewSampleSet(a.Name(), reads)
	set.Duration = time.Since(start)

	a.logger.WithFields(logrus.Fields{
		"distinct":    len(set.Samples),
		"best_energy": set.Samples[0].Energy,
		"duration":    set.Duration,
	}).Debug("Simulated annealing completed")

	return set, nil
}

// anneal performs one read from a random start and returns the final state
func anneal(couplings [][]float64, schedule []float64, rng *rand.Rand) []int {
	n := len(couplings)
	x := make([]int, n)
	for i := range x {
		x[i] = rng.Intn(2)
	}

	// field[i] is the energy change from switching i on, given the others
	field := make([]float64, n)
	for i := 0; i < n; i++ {
		field[i] = couplings[i][i]
		for j := 0; j < n; j++ {
			if j != i && x[j] == 1 {
				field[i] += couplings[i][j]
			}
		}
	}

	for _, beta := range schedule {
		for i := 0; i < n; i++ {
			delta := field[i]
			if x[i] == 1 {
				delta = -delta
			}
			if delta > 0 && rng.Float64() >= math.Exp(-beta*delta) {
				continue
			}

			sign := 1.0
			if x[i] == 1 {
				sign = -1.0
			}
			x[i] ^= 1
			for j := 0; j < n; j++ {
				if j != i {
					field[j] += sign * couplings[i][j]
				}
			}
		}
	}
	return x
}

// defaultBetaRange starts hot enough that the largest single flip is accepted
// half the time and ends cold enough that the smallest is accepted 1% of the time
func defaultBetaRange(couplings [][]float64) (float64, float64) {
	maxDelta := 0.0
	minDelta := math.Inf(1)
	for i := range couplings {
		rowSum := 0.0
		for j, v := range couplings[i] {
			abs := math.Abs(v)
			rowSum += abs
			if abs > 0 && j >= i && abs < minDelta {
				minDelta = abs
			}
		}
		if rowSum > maxDelta {
			maxDelta = rowSum
		}
	}

	if maxDelta == 0 || math.IsInf(minDelta, 1) {
		return 0.1, 1.0
	}

	hot := math.Log(2) / maxDelta
	cold := math.Log(100) / minDelta
	if cold < hot {
		cold = hot
	}
	return hot, cold
}

func geometricSchedule(betaMin, betaMax float64, sweeps int) []float64 {
	schedule := make([]float64, sweeps)
	if sweeps == 1 {
		schedule[0] = betaMax
		return schedule
	}
	ratio := math.Pow(betaMax/betaMin, 1/float64(sweeps-1))
	beta := betaMin
	for s := range schedule {
		schedule[s] = beta
		beta *= ratio
	}
	return schedule
}
