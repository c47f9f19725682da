package bandit

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// LinUCBConfig configures the LinUCB policy.
type LinUCBConfig struct {
	// Alpha scales the exploration bonus. Larger values explore more.
	Alpha float64
	// Lambda is the ridge regularization added to A's diagonal at init.
	// Must be positive so A is always invertible.
	Lambda float64
	// Temperature is the softmax coefficient used for propensities.
	Temperature float64
}

// DefaultLinUCBConfig returns the production defaults.
func DefaultLinUCBConfig() LinUCBConfig {
	return LinUCBConfig{
		Alpha:       0.6,
		Lambda:      1.0,
		Temperature: 1.0,
	}
}

// LinUCB implements the upper-confidence-bound linear bandit with parameters
// shared across actions. Selection is deterministic given state: exploration
// comes entirely from the uncertainty bonus alpha*sqrt(xT A^-1 x), which
// shrinks as evidence accumulates in a region of feature space.
type LinUCB struct {
	mu    sync.Mutex
	cfg   LinUCBConfig
	model linearModel
	last  selection
}

// NewLinUCB creates a LinUCB policy.
func NewLinUCB(cfg LinUCBConfig) (*LinUCB, error) {
	if cfg.Lambda <= 0 {
		return nil, fmt.Errorf("linucb: lambda must be positive, got %g", cfg.Lambda)
	}
	if cfg.Alpha < 0 {
		return nil, fmt.Errorf("linucb: alpha must be non-negative, got %g", cfg.Alpha)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1.0
	}
	return &LinUCB{
		cfg:   cfg,
		model: linearModel{lambda: cfg.Lambda},
	}, nil
}

// Select scores every action as prior + x·theta + alpha*sqrt(xT A^-1 x) with
// theta = A^-1 b and returns the argmax.
func (p *LinUCB) Select(prior []float64, features [][]float64) (int, []float64, error) {
	rows, cols, err := validateFeatures(features)
	if err != nil {
		return 0, nil, err
	}
	if prior != nil && len(prior) != rows {
		return 0, nil, fmt.Errorf("%w: prior has %d entries for %d actions", ErrInvalidFeatures, len(prior), rows)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.model.ensure(cols); err != nil {
		return 0, nil, err
	}
	chol, err := p.model.factorize()
	if err != nil {
		return 0, nil, err
	}

	var theta mat.VecDense
	if err := chol.SolveVecTo(&theta, p.model.b); err != nil {
		return 0, nil, fmt.Errorf("solving for theta: %w", err)
	}

	scores := make([]float64, rows)
	var solved mat.VecDense
	for i, row := range features {
		x := rowVec(row)
		mean := mat.Dot(x, &theta)
		if err := chol.SolveVecTo(&solved, x); err != nil {
			return 0, nil, fmt.Errorf("solving uncertainty for action %d: %w", i, err)
		}
		quad := mat.Dot(x, &solved)
		if quad < 0 {
			quad = 0
		}
		scores[i] = mean + p.cfg.Alpha*math.Sqrt(quad)
		if prior != nil {
			scores[i] += prior[i]
		}
	}

	chosen := argmax(scores)
	p.last.record(scores, chosen)
	return chosen, scores, nil
}

// Update applies the rank-1 update for the chosen action.
func (p *LinUCB) Update(features [][]float64, reward float64, chosen int) error {
	rows, cols, err := validateFeatures(features)
	if err != nil {
		return err
	}
	if err := validateReward(reward); err != nil {
		return err
	}
	if chosen < 0 || chosen >= rows {
		return ErrIndexOutOfRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.model.ensure(cols); err != nil {
		return err
	}
	p.model.observe(rowVec(features[chosen]), reward)
	return nil
}

// Propensity returns the softmax probability of the last chosen action.
func (p *LinUCB) Propensity() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.propensity(p.cfg.Temperature)
}

// State snapshots the current sufficient statistics.
func (p *LinUCB) State() (*State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.state()
}

// LoadState replaces the statistics with a persisted snapshot.
func (p *LinUCB) LoadState(s *State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.loadState(s)
}
