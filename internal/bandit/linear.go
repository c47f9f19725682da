package bandit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// State is the serializable snapshot of a linear policy's sufficient
// statistics. A is stored as nested rows so the JSON form is readable and
// backend-agnostic; loading it into a fresh policy reproduces identical
// subsequent select/update behavior.
type State struct {
	Dim int         `json:"dim"`
	A   [][]float64 `json:"A"`
	B   []float64   `json:"b"`
}

// Validate checks structural consistency of a persisted snapshot.
func (s *State) Validate() error {
	if s.Dim <= 0 {
		return fmt.Errorf("state dimension must be positive, got %d", s.Dim)
	}
	if len(s.A) != s.Dim {
		return fmt.Errorf("state matrix has %d rows, want %d", len(s.A), s.Dim)
	}
	for i, row := range s.A {
		if len(row) != s.Dim {
			return fmt.Errorf("state matrix row %d has %d columns, want %d", i, len(row), s.Dim)
		}
	}
	if len(s.B) != s.Dim {
		return fmt.Errorf("state vector has %d entries, want %d", len(s.B), s.Dim)
	}
	return nil
}

// linearModel holds the (A, b) statistics shared by both policy variants.
// A stays symmetric positive definite: it is seeded to lambda*I with
// lambda > 0 and only ever receives rank-1 positive semidefinite updates.
type linearModel struct {
	lambda float64
	dim    int
	a      *mat.SymDense
	b      *mat.VecDense
}

// ensure lazily initializes the statistics to the first observed dimension
// and rejects any later dimension change.
func (m *linearModel) ensure(dim int) error {
	if m.a == nil {
		m.dim = dim
		m.a = mat.NewSymDense(dim, nil)
		for i := 0; i < dim; i++ {
			m.a.SetSym(i, i, m.lambda)
		}
		m.b = mat.NewVecDense(dim, nil)
		return nil
	}
	if m.dim != dim {
		return fmt.Errorf("%w: got %d, state has %d", ErrDimensionMismatch, dim, m.dim)
	}
	return nil
}

// observe applies the rank-1 update for the chosen action's feature vector.
func (m *linearModel) observe(x *mat.VecDense, reward float64) {
	m.a.SymRankOne(m.a, 1, x)
	m.b.AddScaledVec(m.b, reward, x)
}

// factorize returns the Cholesky decomposition of A.
func (m *linearModel) factorize() (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if !chol.Factorize(m.a) {
		return nil, ErrNotPositiveDefinite
	}
	return &chol, nil
}

func (m *linearModel) initialized() bool {
	return m.a != nil
}

func (m *linearModel) state() (*State, error) {
	if !m.initialized() {
		return nil, ErrUninitialized
	}
	s := &State{
		Dim: m.dim,
		A:   make([][]float64, m.dim),
		B:   make([]float64, m.dim),
	}
	for i := 0; i < m.dim; i++ {
		s.A[i] = make([]float64, m.dim)
		for j := 0; j < m.dim; j++ {
			s.A[i][j] = m.a.At(i, j)
		}
		s.B[i] = m.b.AtVec(i)
	}
	return s, nil
}

func (m *linearModel) loadState(s *State) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid bandit state: %w", err)
	}
	a := mat.NewSymDense(s.Dim, nil)
	for i := 0; i < s.Dim; i++ {
		for j := i; j < s.Dim; j++ {
			a.SetSym(i, j, s.A[i][j])
		}
	}
	m.dim = s.Dim
	m.a = a
	m.b = mat.NewVecDense(s.Dim, append([]float64(nil), s.B...))
	return nil
}

// rowVec copies one row of the feature matrix into a gonum vector.
func rowVec(row []float64) *mat.VecDense {
	return mat.NewVecDense(len(row), append([]float64(nil), row...))
}
