package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/generation"
	"github.com/fyrsmithlabs/replyd/internal/safety"
)

// CandidateSource produces candidate replies for a turn. Implementations
// must return at least one candidate on success; failures inside the source
// are expected to degrade to a deterministic fallback set rather than
// propagate.
type CandidateSource interface {
	Generate(ctx context.Context, gc *generation.Context) ([]generation.Candidate, error)
	Catalog() generation.StylesCatalog
}

// FeatureExtractor turns a context and candidates into the policy's feature
// matrix plus a named-field mapping for audit logs.
type FeatureExtractor interface {
	Build(gc *generation.Context, candidates []generation.Candidate) ([][]float64, []map[string]float64, error)
}

// SafetyGuard reviews a candidate set before it reaches selection.
type SafetyGuard interface {
	ReviewCandidates(candidates []generation.Candidate) safety.Review
}

// TurnResult is everything produced by one turn: the candidate set offered,
// the bandit's decision, and the feature details that went into it.
type TurnResult struct {
	ContextHash    string
	SessionID      string
	TurnID         string
	Candidates     []generation.Candidate
	Decision       *bandit.Decision
	FeatureVectors [][]float64
	FeatureLogs    []map[string]float64
	Safety         map[string]any
}

// ChosenCandidate returns the candidate the decision selected.
func (r *TurnResult) ChosenCandidate() generation.Candidate {
	return r.Candidates[r.Decision.ChosenIndex]
}
