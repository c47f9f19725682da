// Package bandit implements the contextual bandit core: two linear policies
// (LinUCB and linear Thompson sampling), a manager that sequences selection,
// persistence, and updates under a single lock, and durable state stores.
package bandit

import (
	"errors"
	"math"
)

var (
	// ErrDimensionMismatch indicates a feature matrix whose dimension does
	// not match the policy's established state. This is a fatal usage error:
	// mixing dimensions silently produces meaningless linear algebra.
	ErrDimensionMismatch = errors.New("bandit: feature dimension mismatch with existing state")

	// ErrInvalidFeatures indicates an empty, ragged, or non-finite feature matrix.
	ErrInvalidFeatures = errors.New("bandit: invalid feature matrix")

	// ErrNoSelection indicates Propensity was called before any Select.
	ErrNoSelection = errors.New("bandit: no selection recorded")

	// ErrUninitialized indicates state was requested before the first
	// Select or Update established a dimension.
	ErrUninitialized = errors.New("bandit: state not initialized")

	// ErrRewardOutOfRange indicates a reward outside the [-1, 1] contract.
	ErrRewardOutOfRange = errors.New("bandit: reward outside [-1, 1]")

	// ErrIndexOutOfRange indicates a chosen index outside the candidate range.
	ErrIndexOutOfRange = errors.New("bandit: chosen index out of range")

	// ErrNotPositiveDefinite indicates the accumulated A matrix could not be
	// factorized. With lambda > 0 and rank-1 updates this should never
	// happen; it signals corrupted persisted state.
	ErrNotPositiveDefinite = errors.New("bandit: state matrix is not positive definite")
)

// Policy is the contract shared by the linear bandit variants.
//
// Both variants maintain (A, b) sufficient statistics lazily initialized to
// the dimension of the first observed feature matrix. Every subsequent call
// must present the same dimension.
type Policy interface {
	// Select picks an action given optional prior scores (nil means all-zero)
	// and a feature matrix with one row per action. It returns the chosen
	// index and the combined per-action scores, which are cached for
	// Propensity.
	Select(prior []float64, features [][]float64) (int, []float64, error)

	// Update applies the rank-1 update A += x·xT, b += reward·x using the
	// chosen action's feature row only.
	Update(features [][]float64, reward float64, chosen int) error

	// Propensity returns the softmax probability of the last chosen action
	// over the cached scores. It must be called after Select.
	Propensity() (float64, error)

	// State returns a snapshot of the current (dim, A, b) statistics.
	State() (*State, error)

	// LoadState replaces the policy's statistics with a previously
	// persisted snapshot.
	LoadState(s *State) error
}

// selection caches the outcome of the most recent Select call.
type selection struct {
	scores []float64
	chosen int
	valid  bool
}

func (s *selection) record(scores []float64, chosen int) {
	s.scores = scores
	s.chosen = chosen
	s.valid = true
}

func (s *selection) propensity(temperature float64) (float64, error) {
	if !s.valid {
		return 0, ErrNoSelection
	}
	probs := Softmax(s.scores, temperature)
	return probs[s.chosen], nil
}

// validateFeatures checks the feature matrix is non-empty, rectangular, and
// finite. It returns the row and column counts.
func validateFeatures(features [][]float64) (rows, cols int, err error) {
	rows = len(features)
	if rows == 0 {
		return 0, 0, ErrInvalidFeatures
	}
	cols = len(features[0])
	if cols == 0 {
		return 0, 0, ErrInvalidFeatures
	}
	for _, row := range features {
		if len(row) != cols {
			return 0, 0, ErrInvalidFeatures
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, 0, ErrInvalidFeatures
			}
		}
	}
	return rows, cols, nil
}

// validateReward enforces the bounded reward contract.
func validateReward(reward float64) error {
	if math.IsNaN(reward) || reward < -1.0 || reward > 1.0 {
		return ErrRewardOutOfRange
	}
	return nil
}

func argmax(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
