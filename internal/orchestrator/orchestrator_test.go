package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/feature"
	"github.com/fyrsmithlabs/replyd/internal/generation"
	"github.com/fyrsmithlabs/replyd/internal/interaction"
	"github.com/fyrsmithlabs/replyd/internal/safety"
)

type stubSource struct {
	batches [][]generation.Candidate
	calls   int
}

func (s *stubSource) Generate(ctx context.Context, gc *generation.Context) ([]generation.Candidate, error) {
	batch := s.batches[s.calls%len(s.batches)]
	s.calls++
	return batch, nil
}

func (s *stubSource) Catalog() generation.StylesCatalog {
	return generation.StylesCatalog{
		"empathetic": {Initiative: 0.7, Risk: 0.3},
		"logical":    {Initiative: 0.5, Risk: 0.2},
	}
}

type scriptedGuard struct {
	reviews []safety.Review
	calls   int
}

func (g *scriptedGuard) ReviewCandidates(candidates []generation.Candidate) safety.Review {
	review := g.reviews[g.calls%len(g.reviews)]
	g.calls++
	return review
}

func cleanCandidates() []generation.Candidate {
	return []generation.Candidate{
		{Text: "Want to talk it through?", Style: "empathetic"},
		{Text: "List the two main blockers.", Style: "logical"},
	}
}

func approveAll(n int) safety.Review {
	review := safety.Review{
		Scores:   make([]float64, n),
		Rewrites: make([]string, n),
	}
	for i := 0; i < n; i++ {
		review.Scores[i] = 1.0
		review.ApprovedIndices = append(review.ApprovedIndices, i)
	}
	return review
}

func rejectAll(n int) safety.Review {
	review := safety.Review{
		Scores:   make([]float64, n),
		Rewrites: make([]string, n),
	}
	for i := 0; i < n; i++ {
		review.Rewrites[i] = "sanitized text"
	}
	return review
}

type orchestratorFixture struct {
	orch    *Orchestrator
	source  *stubSource
	manager *bandit.Manager
}

func newFixture(t *testing.T, source *stubSource, guard SafetyGuard) *orchestratorFixture {
	t.Helper()

	policy, err := bandit.NewLinUCB(bandit.DefaultLinUCBConfig())
	require.NoError(t, err)
	manager, err := bandit.NewManager(policy, bandit.ManagerConfig{}, zap.NewNop())
	require.NoError(t, err)

	log, err := interaction.NewLogger(filepath.Join(t.TempDir(), "interactions.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	orch, err := New(Config{
		Source:    source,
		Guard:     guard,
		Extractor: feature.NewExtractor(source.Catalog()),
		Manager:   manager,
		Pending:   interaction.NewPendingStore(64, 0),
		Log:       log,
		Logger:    zap.NewNop(),
		Algo:      "linucb",
	})
	require.NoError(t, err)
	return &orchestratorFixture{orch: orch, source: source, manager: manager}
}

func testContext() *generation.Context {
	return &generation.Context{
		Messages:       []generation.Message{{Role: "user", Content: "I had a rough day"}},
		CandidateCount: 2,
	}
}

func TestNew_RequiredCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestOrchestrator_RunTurn(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, &scriptedGuard{reviews: []safety.Review{approveAll(2)}})

	result, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	assert.Equal(t, "s1", result.SessionID)
	assert.Equal(t, "t1", result.TurnID)
	assert.NotEmpty(t, result.ContextHash)
	require.Len(t, result.Candidates, 2)
	require.Len(t, result.FeatureVectors, 2)
	assert.Len(t, result.FeatureVectors[0], feature.Dimension)

	var total float64
	for _, p := range result.Decision.Propensities {
		total += p
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, result.Candidates[result.Decision.ChosenIndex], result.ChosenCandidate())

	assert.Equal(t, 1, fx.orch.PendingCount())
}

func TestOrchestrator_DefaultsIdentifiers(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	first, err := fx.orch.RunTurn(context.Background(), testContext(), "", "")
	require.NoError(t, err)
	second, err := fx.orch.RunTurn(context.Background(), testContext(), "", "")
	require.NoError(t, err)

	// Session defaults to the context hash, so identical contexts share it;
	// the turn id is freshly generated every time.
	assert.Equal(t, first.ContextHash, first.SessionID)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.TurnID, second.TurnID)
}

func TestOrchestrator_FeedbackLifecycle(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	result, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	err = fx.orch.ApplyFeedback(context.Background(), "s1", "t1", result.Decision.ChosenIndex, 1.0)
	require.NoError(t, err)
	assert.Equal(t, 0, fx.orch.PendingCount())

	// The update landed in the policy.
	state, err := fx.manager.State()
	require.NoError(t, err)
	assert.Equal(t, feature.Dimension, state.Dim)
	assert.Greater(t, state.A[0][0], 1.0)

	t.Run("second feedback for the same turn fails", func(t *testing.T) {
		err := fx.orch.ApplyFeedback(context.Background(), "s1", "t1", result.Decision.ChosenIndex, 1.0)
		assert.ErrorIs(t, err, interaction.ErrNotFound)
	})
}

func TestOrchestrator_FeedbackUnknownKey(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	err := fx.orch.ApplyFeedback(context.Background(), "nope", "missing", 0, 0.5)
	assert.ErrorIs(t, err, interaction.ErrNotFound)
}

func TestOrchestrator_FeedbackOutOfBoundsIndex(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	_, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	err = fx.orch.ApplyFeedback(context.Background(), "s1", "t1", 7, 0.5)
	assert.ErrorIs(t, err, bandit.ErrIndexOutOfRange)

	// The pending entry survived the rejected attempt, so no update was
	// applied and a corrected retry still lands.
	assert.Equal(t, 1, fx.orch.PendingCount())
	state, err := fx.manager.State()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, state.A[0][0], 1e-12)

	require.NoError(t, fx.orch.ApplyFeedback(context.Background(), "s1", "t1", 0, 0.5))
}

func TestOrchestrator_FeedbackInvalidReward(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	_, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	err = fx.orch.ApplyFeedback(context.Background(), "s1", "t1", 0, 3.0)
	assert.ErrorIs(t, err, bandit.ErrRewardOutOfRange)
	assert.Equal(t, 1, fx.orch.PendingCount())
}

func TestOrchestrator_SafetyRegeneratesOnce(t *testing.T) {
	dirty := []generation.Candidate{{Text: "bad", Style: "logical"}, {Text: "worse", Style: "empathetic"}}
	source := &stubSource{batches: [][]generation.Candidate{dirty, cleanCandidates()}}
	guard := &scriptedGuard{reviews: []safety.Review{rejectAll(2), approveAll(2)}}
	fx := newFixture(t, source, guard)

	result, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, fx.source.calls)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "Want to talk it through?", result.Candidates[0].Text)
	assert.Equal(t, 2, result.Safety["attempts"])
}

func TestOrchestrator_SafetySanitizesAsLastResort(t *testing.T) {
	dirty := []generation.Candidate{{Text: "bad", Style: "logical"}}
	source := &stubSource{batches: [][]generation.Candidate{dirty}}
	guard := &scriptedGuard{reviews: []safety.Review{rejectAll(1)}}
	fx := newFixture(t, source, guard)

	result, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "sanitized text", result.Candidates[0].Text)
	assert.Equal(t, true, result.Candidates[0].Features["sanitized"])
	assert.Equal(t, true, result.Safety["sanitized"])
}

func TestOrchestrator_NilGuardSkipsReview(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	result, err := fx.orch.RunTurn(context.Background(), testContext(), "s1", "t1")
	require.NoError(t, err)
	assert.Equal(t, true, result.Safety["skipped"])
	assert.Len(t, result.Candidates, 2)
}

func TestOrchestrator_ContextHashIsStable(t *testing.T) {
	source := &stubSource{batches: [][]generation.Candidate{cleanCandidates()}}
	fx := newFixture(t, source, nil)

	a, err := fx.orch.RunTurn(context.Background(), testContext(), "", "")
	require.NoError(t, err)
	b, err := fx.orch.RunTurn(context.Background(), testContext(), "", "")
	require.NoError(t, err)
	assert.Equal(t, a.ContextHash, b.ContextHash)

	other := testContext()
	other.Goal = "different goal"
	c, err := fx.orch.RunTurn(context.Background(), other, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ContextHash, c.ContextHash)
}
