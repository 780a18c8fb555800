package qubo

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Key addresses one coefficient of the upper triangle. I <= J always holds;
// I == J is the linear term of variable I.
type Key struct {
	I int
	J int
}

// Term is a single coefficient in list form
type Term struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Value float64 `json:"value"`
}

// Matrix is an upper-triangular QUBO coefficient mapping over n binary variables.
// Every diagonal entry and every i<j pair is present, zero-valued or not.
type Matrix struct {
	n      int
	coeffs map[Key]float64
}

// NewMatrix returns a fully populated zero matrix over n variables
func NewMatrix(n int) *Matrix {
	if n < 0 {
		n = 0
	}
	m := &Matrix{
		n:      n,
		coeffs: make(map[Key]float64, n*(n+1)/2),
	}
	for i := 0; i < n; i++ {
		m.coeffs[Key{i, i}] = 0
		for j := i + 1; j < n; j++ {
			m.coeffs[Key{i, j}] = 0
		}
	}
	return m
}

// FromTerms rebuilds a matrix over n variables from a term list. Terms accumulate.
func FromTerms(n int, terms []Term) (*Matrix, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative size %d", n)
	}
	m := NewMatrix(n)
	for _, t := range terms {
		if t.I < 0 || t.J < 0 || t.I >= n || t.J >= n {
			return nil, fmt.Errorf("term (%d,%d) out of range for %d variables", t.I, t.J, n)
		}
		m.Add(t.I, t.J, t.Value)
	}
	return m, nil
}

// Add accumulates v into the (i, j) coefficient. (j, i) is folded onto (i, j).
func (m *Matrix) Add(i, j int, v float64) {
	if i > j {
		i, j = j, i
	}
	m.coeffs[Key{i, j}] += v
}

// Get returns the (i, j) coefficient, folding i > j onto the upper triangle
func (m *Matrix) Get(i, j int) float64 {
	if i > j {
		i, j = j, i
	}
	return m.coeffs[Key{i, j}]
}

// Size is the number of binary variables
func (m *Matrix) Size() int {
	return m.n
}

// Len is the number of stored coefficients: n diagonal plus n(n-1)/2 pairs
func (m *Matrix) Len() int {
	return len(m.coeffs)
}

// Keys returns every stored key in row-major order
func (m *Matrix) Keys() []Key {
	keys := make([]Key, 0, len(m.coeffs))
	for k := range m.coeffs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].I != keys[b].I {
			return keys[a].I < keys[b].I
		}
		return keys[a].J < keys[b].J
	})
	return keys
}

// Terms returns the coefficients as a row-major term list
func (m *Matrix) Terms() []Term {
	keys := m.Keys()
	terms := make([]Term, len(keys))
	for idx, k := range keys {
		terms[idx] = Term{I: k.I, J: k.J, Value: m.coeffs[k]}
	}
	return terms
}

// Energy evaluates the quadratic form for a 0/1 assignment of length Size()
func (m *Matrix) Energy(x []int) float64 {
	energy := 0.0
	for i := 0; i < m.n; i++ {
		if x[i] == 0 {
			continue
		}
		energy += m.coeffs[Key{i, i}]
		for j := i + 1; j < m.n; j++ {
			if x[j] != 0 {
				energy += m.coeffs[Key{i, j}]
			}
		}
	}
	return energy
}

// Couplings returns a dense symmetric copy: row i holds the linear term at [i][i]
// and the pair terms at [i][j] for every j != i. Samplers use it for O(1) lookups.
func (m *Matrix) Couplings() [][]float64 {
	dense := make([][]float64, m.n)
	for i := range dense {
		dense[i] = make([]float64, m.n)
	}
	for k, v := range m.coeffs {
		dense[k.I][k.J] = v
		dense[k.J][k.I] = v
	}
	return dense
}

type matrixJSON struct {
	Size  int    `json:"size"`
	Terms []Term `json:"terms"`
}

// MarshalJSON encodes the matrix as its size and row-major term list
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(matrixJSON{Size: m.n, Terms: m.Terms()})
}

// UnmarshalJSON decodes the form written by MarshalJSON
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw matrixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromTerms(raw.Size, raw.Terms)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}
