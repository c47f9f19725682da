package bandit

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Decision is the self-contained outcome of one selection round: the chosen
// index, the fully-normalized propensity distribution over all candidates,
// and the raw combined scores.
type Decision struct {
	ChosenIndex  int       `json:"chosen_idx"`
	Propensities []float64 `json:"propensities"`
	Scores       []float64 `json:"scores"`
}

// Propensity returns the probability of the chosen action.
func (d *Decision) Propensity() float64 {
	return d.Propensities[d.ChosenIndex]
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Temperature is the softmax coefficient used to turn raw scores into
	// the propensity distribution.
	Temperature float64
	// Store enables durable state persistence when non-nil: state is loaded
	// at construction and saved after every successful update.
	Store StateStore
}

// Manager wraps one policy instance behind a simplified select/update
// contract and adds optional durable persistence. A single mutex serializes
// select and update-then-persist sequences so concurrent turns never
// interleave their (A, b) mutations.
type Manager struct {
	mu          sync.Mutex
	policy      Policy
	store       StateStore
	temperature float64
	logger      *zap.Logger
	saveFails   atomic.Uint64
}

// NewManager creates a manager around policy. When a store is configured and
// holds a persisted snapshot, the snapshot is loaded before the manager
// serves any request; a load or parse failure is fatal since continuing with
// mismatched state corrupts learning.
func NewManager(policy Policy, cfg ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if policy == nil {
		return nil, fmt.Errorf("bandit: policy cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1.0
	}

	m := &Manager{
		policy:      policy,
		store:       cfg.Store,
		temperature: cfg.Temperature,
		logger:      logger,
	}

	if m.store != nil {
		state, err := m.store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading bandit state: %w", err)
		}
		if state != nil {
			if err := policy.LoadState(state); err != nil {
				return nil, fmt.Errorf("restoring bandit state: %w", err)
			}
			logger.Info("restored bandit state", zap.Int("dim", state.Dim))
		}
	}

	return m, nil
}

// Select asks the policy for a decision over the feature matrix and wraps it
// with the full propensity distribution. A nil prior means all-zero.
func (m *Manager) Select(prior []float64, features [][]float64) (*Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chosen, scores, err := m.policy.Select(prior, features)
	if err != nil {
		return nil, err
	}

	return &Decision{
		ChosenIndex:  chosen,
		Propensities: Softmax(scores, m.temperature),
		Scores:       scores,
	}, nil
}

// Update validates the feedback, applies the policy update for the chosen
// action, and persists the new state. The chosen index must always be the
// index actually shown to the user: the policy's own "last selection" may
// have been overwritten by other turns before feedback arrives.
//
// A persistence failure after a successful update is logged and counted but
// does not roll back the in-memory state: the update already took visible
// effect in responses. The most recent update can be lost on crash.
func (m *Manager) Update(features [][]float64, reward float64, chosen int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.policy.Update(features, reward, chosen); err != nil {
		return err
	}

	if m.store != nil {
		state, err := m.policy.State()
		if err != nil {
			return fmt.Errorf("snapshotting bandit state: %w", err)
		}
		if err := m.store.Save(state); err != nil {
			m.saveFails.Add(1)
			m.logger.Warn("failed to persist bandit state", zap.Error(err))
		}
	}
	return nil
}

// State snapshots the wrapped policy's statistics.
func (m *Manager) State() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy.State()
}

// SaveFailures reports how many post-update persistence attempts failed
// since startup.
func (m *Manager) SaveFailures() uint64 {
	return m.saveFails.Load()
}
