// Package orchestrator sequences one conversation turn end to end:
// candidate generation, safety review, feature extraction, bandit selection,
// logging, and the later feedback-driven policy update.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/generation"
	"github.com/fyrsmithlabs/replyd/internal/interaction"
)

// maxGenerationAttempts bounds the safety review loop: one regeneration
// after a fully-rejected batch, then sanitized rewrites are served.
const maxGenerationAttempts = 2

// Orchestrator coordinates the collaborators around the bandit manager. The
// manager serializes policy access internally; the orchestrator adds the
// pending-interaction bookkeeping that ties a feedback event back to the
// exact feature matrix its turn was selected from.
type Orchestrator struct {
	source    CandidateSource
	guard     SafetyGuard
	extractor FeatureExtractor
	manager   *bandit.Manager
	pending   *interaction.PendingStore
	log       *interaction.Logger
	logger    *zap.Logger
	algo      string
}

// Config wires an Orchestrator.
type Config struct {
	Source    CandidateSource
	Guard     SafetyGuard
	Extractor FeatureExtractor
	Manager   *bandit.Manager
	Pending   *interaction.PendingStore
	Log       *interaction.Logger
	Logger    *zap.Logger
	// Algo names the active policy variant for log records.
	Algo string
}

// New creates an orchestrator. Source, Extractor, Manager, and Pending are
// required; Guard and Log are optional collaborators.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("orchestrator: candidate source is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("orchestrator: feature extractor is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("orchestrator: bandit manager is required")
	}
	if cfg.Pending == nil {
		return nil, fmt.Errorf("orchestrator: pending store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		source:    cfg.Source,
		guard:     cfg.Guard,
		extractor: cfg.Extractor,
		manager:   cfg.Manager,
		pending:   cfg.Pending,
		log:       cfg.Log,
		logger:    cfg.Logger,
		algo:      cfg.Algo,
	}, nil
}

// RunTurn executes one decision round. Empty session or turn identifiers
// are filled in (session from the context hash, turn with a fresh UUID).
func (o *Orchestrator) RunTurn(ctx context.Context, gc *generation.Context, sessionID, turnID string) (*TurnResult, error) {
	candidates, err := o.source.Generate(ctx, gc)
	if err != nil {
		return nil, fmt.Errorf("generating candidates: %w", err)
	}
	candidates, safetyMeta := o.applySafety(ctx, gc, candidates)

	vectors, featureLogs, err := o.extractor.Build(gc, candidates)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}

	decision, err := o.manager.Select(nil, vectors)
	if err != nil {
		return nil, fmt.Errorf("selecting candidate: %w", err)
	}

	contextHash := hashContext(gc)
	if sessionID == "" {
		sessionID = contextHash
	}
	if turnID == "" {
		turnID = uuid.NewString()
	}

	features := map[string]any{
		"vectors":  vectors,
		"mappings": featureLogs,
		"scores":   decision.Scores,
		"safety":   safetyMeta,
	}

	if o.log != nil {
		record := &interaction.Record{
			Phase:       interaction.PhaseTurn,
			ContextHash: contextHash,
			SessionID:   sessionID,
			TurnID:      turnID,
			Candidates:  candidates,
			ChosenIndex: decision.ChosenIndex,
			Propensity:  decision.Propensity(),
			Reward:      nil,
			Features:    features,
			BanditAlgo:  o.algo,
		}
		if err := o.log.Log(record); err != nil {
			o.logger.Warn("failed to append turn record", zap.Error(err))
		}
	}

	o.pending.Put(&interaction.Pending{
		ContextHash:    contextHash,
		SessionID:      sessionID,
		TurnID:         turnID,
		FeatureVectors: vectors,
		FeatureLogs:    featureLogs,
		Decision:       decision,
		Candidates:     candidates,
		Safety:         safetyMeta,
	})

	o.logger.Debug("turn decided",
		zap.String("session_id", sessionID),
		zap.String("turn_id", turnID),
		zap.Int("chosen_idx", decision.ChosenIndex),
		zap.Int("candidates", len(candidates)),
		zap.Float64("propensity", decision.Propensity()),
	)

	return &TurnResult{
		ContextHash:    contextHash,
		SessionID:      sessionID,
		TurnID:         turnID,
		Candidates:     candidates,
		Decision:       decision,
		FeatureVectors: vectors,
		FeatureLogs:    featureLogs,
		Safety:         safetyMeta,
	}, nil
}

// ApplyFeedback locates the pending interaction for (sessionID, turnID),
// updates the policy with the original feature matrix, and appends the
// feedback log record. The pending entry is single-use; it survives a
// validation failure so a corrected retry can still land.
func (o *Orchestrator) ApplyFeedback(ctx context.Context, sessionID, turnID string, chosenIndex int, reward float64) error {
	pending, err := o.pending.Take(sessionID, turnID)
	if err != nil {
		return err
	}

	if chosenIndex < 0 || chosenIndex >= len(pending.Candidates) {
		o.pending.Put(pending)
		return fmt.Errorf("%w: index %d with %d candidates", bandit.ErrIndexOutOfRange, chosenIndex, len(pending.Candidates))
	}

	if err := o.manager.Update(pending.FeatureVectors, reward, chosenIndex); err != nil {
		o.pending.Put(pending)
		return fmt.Errorf("updating policy: %w", err)
	}

	if o.log != nil {
		record := &interaction.Record{
			Phase:       interaction.PhaseFeedback,
			ContextHash: pending.ContextHash,
			SessionID:   sessionID,
			TurnID:      turnID,
			Candidates:  pending.Candidates,
			ChosenIndex: chosenIndex,
			Propensity:  pending.Decision.Propensities[chosenIndex],
			Reward:      &reward,
			Features: map[string]any{
				"vectors":  pending.FeatureVectors,
				"mappings": pending.FeatureLogs,
				"scores":   pending.Decision.Scores,
				"safety":   pending.Safety,
			},
			BanditAlgo: o.algo,
		}
		if err := o.log.Log(record); err != nil {
			o.logger.Warn("failed to append feedback record", zap.Error(err))
		}
	}

	o.logger.Debug("feedback applied",
		zap.String("session_id", sessionID),
		zap.String("turn_id", turnID),
		zap.Int("chosen_idx", chosenIndex),
		zap.Float64("reward", reward),
	)
	return nil
}

// PendingCount reports turns still awaiting feedback.
func (o *Orchestrator) PendingCount() int {
	return o.pending.Len()
}

// Catalog exposes the candidate source's styles catalog for the transport
// layer.
func (o *Orchestrator) Catalog() generation.StylesCatalog {
	return o.source.Catalog()
}

// applySafety runs the review loop: keep approved candidates, regenerate
// once if the whole batch is rejected, and as a last resort serve sanitized
// rewrites so selection always receives a non-empty list.
func (o *Orchestrator) applySafety(ctx context.Context, gc *generation.Context, candidates []generation.Candidate) ([]generation.Candidate, map[string]any) {
	if o.guard == nil {
		return candidates, map[string]any{"skipped": true}
	}

	original := candidates
	review := o.guard.ReviewCandidates(candidates)
	attempts := 1
	for len(review.ApprovedIndices) == 0 && attempts < maxGenerationAttempts {
		regenerated, err := o.source.Generate(ctx, gc)
		if err != nil || len(regenerated) == 0 {
			break
		}
		candidates = regenerated
		review = o.guard.ReviewCandidates(candidates)
		attempts++
	}

	if len(review.ApprovedIndices) > 0 {
		approved := make([]generation.Candidate, 0, len(review.ApprovedIndices))
		for _, idx := range review.ApprovedIndices {
			candidate := candidates[idx]
			candidate.Features = cloneFeatures(candidate.Features)
			candidate.Features["safety_score"] = review.Scores[idx]
			approved = append(approved, candidate)
		}
		return approved, map[string]any{
			"approved_indices": review.ApprovedIndices,
			"scores":           review.Scores,
			"rewrites":         review.Rewrites,
			"attempts":         attempts,
		}
	}

	// Whole batch rejected twice: fall back to sanitized rewrites.
	source := candidates
	if len(source) == 0 {
		source = original
	}
	sanitized := make([]generation.Candidate, 0, len(source))
	scores := make([]float64, 0, len(source))
	for idx, candidate := range source {
		text := candidate.Text
		if idx < len(review.Rewrites) && review.Rewrites[idx] != "" {
			text = review.Rewrites[idx]
		}
		score := 0.0
		if idx < len(review.Scores) {
			score = review.Scores[idx]
		}
		features := cloneFeatures(candidate.Features)
		features["safety_score"] = score
		features["sanitized"] = true
		sanitized = append(sanitized, generation.Candidate{
			Text:     text,
			Style:    candidate.Style,
			Features: features,
		})
		scores = append(scores, score)
	}

	return sanitized, map[string]any{
		"approved_indices": []int{},
		"scores":           scores,
		"rewrites":         review.Rewrites,
		"attempts":         attempts,
		"sanitized":        true,
	}
}

func cloneFeatures(features map[string]any) map[string]any {
	cloned := make(map[string]any, len(features)+2)
	for k, v := range features {
		cloned[k] = v
	}
	return cloned
}

// hashContext produces a deterministic digest of the generation context so
// log records from the same conversation state correlate.
func hashContext(gc *generation.Context) string {
	lines := make([]string, 0, len(gc.Messages))
	for _, msg := range gc.Messages {
		lines = append(lines, msg.Role+":"+msg.Content)
	}
	payload, _ := json.Marshal(struct {
		Messages    []string       `json:"messages"`
		Goal        string         `json:"goal"`
		Constraints map[string]any `json:"constraints"`
		UserProfile map[string]any `json:"user_profile"`
	}{
		Messages:    lines,
		Goal:        gc.Goal,
		Constraints: gc.Constraints,
		UserProfile: gc.UserProfile,
	})
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}
