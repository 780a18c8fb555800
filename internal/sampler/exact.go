package sampler

import (
	"container/heap"
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
)

// MaxExactVariables bounds ExactSolver to 2^24 states
const MaxExactVariables = 24

const exactCheckInterval = 1 << 16

// ExactSolver enumerates every assignment in Gray-code order, updating the
// energy by one flip per step. It returns the NumReads lowest-energy states.
type ExactSolver struct{}

func NewExactSolver() *ExactSolver {
	return &ExactSolver{}
}

func (e *ExactSolver) Name() string {
	return "exact"
}

func (e *ExactSolver) Sample(ctx context.Context, q *qubo.Matrix, params Params) (*SampleSet, error) {
	n := q.Size()
	if n > MaxExactVariables {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyVariables, n, MaxExactVariables)
	}
	start := time.Now()

	total := uint64(1) << uint(n)
	keep := params.NumReads
	if keep <= 0 {
		keep = 1
	}
	if uint64(keep) > total {
		keep = int(total)
	}

	couplings := q.Couplings()
	x := make([]int, n)
	field := make([]float64, n)
	for i := 0; i < n; i++ {
		field[i] = couplings[i][i]
	}

	best := &stateHeap{}
	offer := func(energy float64) {
		if best.Len() < keep {
			heap.Push(best, Sample{Assignment: append([]int(nil), x...), Energy: energy, Occurrences: 1})
			return
		}
		if energy < (*best)[0].Energy {
			(*best)[0] = Sample{Assignment: append([]int(nil), x...), Energy: energy, Occurrences: 1}
			heap.Fix(best, 0)
		}
	}

	energy := 0.0
	offer(energy)
	for k := uint64(1); k < total; k++ {
		if k%exactCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("exact search cancelled: %w", err)
			}
			if params.Progress != nil {
				params.Progress(int(k/exactCheckInterval), int(total/exactCheckInterval))
			}
		}

		i := bits.TrailingZeros64(k)
		sign := 1.0
		if x[i] == 1 {
			energy -= field[i]
			sign = -1.0
		} else {
			energy += field[i]
		}
		x[i] ^= 1
		for j := 0; j < n; j++ {
			if j != i {
				field[j] += sign * couplings[i][j]
			}
		}

		offer(energy)
	}

	// Recompute exactly to shed the drift of incremental updates
	samples := make([]Sample, best.Len())
	for idx, s := range *best {
		s.Energy = q.Energy(s.Assignment)
		samples[idx] = s
	}

	set := NewSampleSet(e.Name(), samples)
	set.Duration = time.Since(start)
	return set, nil
}

// stateHeap is a max-heap on energy so the worst kept state is evicted first
type stateHeap []Sample

func (h stateHeap) Len() int            { return len(h) }
func (h stateHeap) Less(i, j int) bool  { return h[i].Energy > h[j].Energy }
func (h stateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *stateHeap) Push(x interface{}) { *h = append(*h, x.(Sample)) }
func (h *stateHeap) Pop() interface{} {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}
