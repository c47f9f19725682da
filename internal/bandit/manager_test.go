package bandit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct {
	loadState *State
	saveErr   error
	saves     int
}

func (f *failingStore) Load() (*State, error) {
	return f.loadState, nil
}

func (f *failingStore) Save(s *State) error {
	f.saves++
	return f.saveErr
}

func newTestManager(t *testing.T, store StateStore) *Manager {
	t.Helper()
	policy, err := NewLinUCB(DefaultLinUCBConfig())
	require.NoError(t, err)
	m, err := NewManager(policy, ManagerConfig{Store: store}, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresPolicy(t *testing.T) {
	_, err := NewManager(nil, ManagerConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestManager_SelectDecision(t *testing.T) {
	m := newTestManager(t, nil)
	features := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	decision, err := m.Select(nil, features)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, decision.ChosenIndex, 0)
	assert.Less(t, decision.ChosenIndex, len(features))
	require.Len(t, decision.Propensities, len(features))
	require.Len(t, decision.Scores, len(features))

	var total float64
	for _, p := range decision.Propensities {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, decision.Propensities[decision.ChosenIndex], decision.Propensity())
}

func TestManager_UpdateValidation(t *testing.T) {
	m := newTestManager(t, nil)
	features := [][]float64{{1, 0}, {0, 1}}

	assert.ErrorIs(t, m.Update(features, 2.0, 0), ErrRewardOutOfRange)
	assert.ErrorIs(t, m.Update(features, 0.5, 5), ErrIndexOutOfRange)
	assert.NoError(t, m.Update(features, 0.5, 0))
}

func TestManager_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	features := [][]float64{{1, 0, 0.5}, {0, 1, 0.2}}

	first := newTestManager(t, store)
	for i := 0; i < 8; i++ {
		require.NoError(t, first.Update(features, 0.9, 0))
	}
	want, err := first.State()
	require.NoError(t, err)

	second := newTestManager(t, store)
	got, err := second.State()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_CorruptStateIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	policy, err := NewLinUCB(DefaultLinUCBConfig())
	require.NoError(t, err)
	_, err = NewManager(policy, ManagerConfig{Store: store}, zap.NewNop())
	require.Error(t, err)
}

func TestManager_SaveFailureDoesNotRollBack(t *testing.T) {
	store := &failingStore{saveErr: errors.New("disk full")}
	m := newTestManager(t, store)
	features := [][]float64{{1, 0}, {0, 1}}

	require.NoError(t, m.Update(features, 0.5, 0))
	assert.Equal(t, uint64(1), m.SaveFailures())
	assert.Equal(t, 1, store.saves)

	// The in-memory update survived the failed save.
	state, err := m.State()
	require.NoError(t, err)
	assert.Equal(t, 2, state.Dim)
	assert.InDelta(t, 2.0, state.A[0][0], 1e-12)
}
