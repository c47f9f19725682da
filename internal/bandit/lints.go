package bandit

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LinTSConfig configures the linear Thompson sampling policy.
type LinTSConfig struct {
	// Sigma2 is the posterior sampling variance. The sampled weight vector
	// is drawn from N(A^-1 b, Sigma2 * A^-1).
	Sigma2 float64
	// Lambda is the ridge regularization added to A's diagonal at init.
	Lambda float64
	// Temperature is the softmax coefficient used for propensities.
	Temperature float64
	// Seed seeds the pseudo-random source. Zero means time-based seeding.
	Seed int64
}

// DefaultLinTSConfig returns the production defaults.
func DefaultLinTSConfig() LinTSConfig {
	return LinTSConfig{
		Sigma2:      0.5,
		Lambda:      1.0,
		Temperature: 1.0,
	}
}

// LinTS implements posterior sampling for linear bandits. Every Select call
// draws a fresh weight sample from the posterior; reusing one sample across
// calls would collapse exploration.
type LinTS struct {
	mu    sync.Mutex
	cfg   LinTSConfig
	rng   *rand.Rand
	model linearModel
	last  selection
}

// NewLinTS creates a LinTS policy with its own seedable random source.
func NewLinTS(cfg LinTSConfig) (*LinTS, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewLinTSWithSource(cfg, rand.NewSource(seed))
}

// NewLinTSWithSource creates a LinTS policy using the provided random
// source. Injecting the source keeps selection reproducible in tests.
func NewLinTSWithSource(cfg LinTSConfig, src rand.Source) (*LinTS, error) {
	if cfg.Lambda <= 0 {
		return nil, fmt.Errorf("lints: lambda must be positive, got %g", cfg.Lambda)
	}
	if cfg.Sigma2 <= 0 {
		return nil, fmt.Errorf("lints: sigma2 must be positive, got %g", cfg.Sigma2)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1.0
	}
	return &LinTS{
		cfg:   cfg,
		rng:   rand.New(src),
		model: linearModel{lambda: cfg.Lambda},
	}, nil
}

// Select draws theta ~ N(A^-1 b, sigma2 * A^-1), scores every action as
// prior + x·theta, and returns the argmax.
func (p *LinTS) Select(prior []float64, features [][]float64) (int, []float64, error) {
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
	sample, err := p.sampleTheta()
	if err != nil {
		return 0, nil, err
	}

	scores := make([]float64, rows)
	for i, row := range features {
		scores[i] = mat.Dot(rowVec(row), sample)
		if prior != nil {
			scores[i] += prior[i]
		}
	}

	chosen := argmax(scores)
	p.last.record(scores, chosen)
	return chosen, scores, nil
}

// sampleTheta draws one posterior weight sample via the Cholesky factor of
// the covariance. Callers must hold the lock.
func (p *LinTS) sampleTheta() (*mat.VecDense, error) {
	chol, err := p.model.factorize()
	if err != nil {
		return nil, err
	}

	var thetaBar mat.VecDense
	if err := chol.SolveVecTo(&thetaBar, p.model.b); err != nil {
		return nil, fmt.Errorf("solving for posterior mean: %w", err)
	}

	var invA mat.SymDense
	if err := chol.InverseTo(&invA); err != nil {
		return nil, fmt.Errorf("inverting state matrix: %w", err)
	}

	dim := p.model.dim
	cov := mat.NewSymDense(dim, nil)
	cov.ScaleSym(p.cfg.Sigma2, &invA)

	var covChol mat.Cholesky
	if !covChol.Factorize(cov) {
		// Accumulated rounding can push the covariance marginally off
		// positive definite; retry once with diagonal jitter.
		for i := 0; i < dim; i++ {
			cov.SetSym(i, i, cov.At(i, i)+1e-9)
		}
		if !covChol.Factorize(cov) {
			return nil, ErrNotPositiveDefinite
		}
	}

	var l mat.TriDense
	covChol.LTo(&l)

	z := mat.NewVecDense(dim, nil)
	for i := 0; i < dim; i++ {
		z.SetVec(i, p.rng.NormFloat64())
	}

	var sample mat.VecDense
	sample.MulVec(&l, z)
	sample.AddVec(&sample, &thetaBar)
	return &sample, nil
}

// Update applies the rank-1 update for the chosen action.
func (p *LinTS) Update(features [][]float64, reward float64, chosen int) error {
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
func (p *LinTS) Propensity() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.propensity(p.cfg.Temperature)
}

// State snapshots the current sufficient statistics.
func (p *LinTS) State() (*State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.state()
}

// LoadState replaces the statistics with a persisted snapshot.
func (p *LinTS) LoadState(s *State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.loadState(s)
}
