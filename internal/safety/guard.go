// Package safety scores candidate replies against lightweight content
// heuristics and offers sanitized rewrites for candidates that fail.
package safety

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/replyd/internal/generation"
)

var piiPattern = regexp.MustCompile(`\b(\d{3}-\d{4}|\d{3}-\d{3}-\d{4}|[0-9]{8,})\b`)

// bannedTerms trigger a heavy score penalty regardless of context.
var bannedTerms = []string{
	"kill yourself",
	"bomb",
	"credit card",
}

// Config configures the guard.
type Config struct {
	// MinScore is the approval threshold in [0, 1].
	MinScore float64
	// MaxLength is the rune length above which candidates are penalized and
	// rewrites are truncated.
	MaxLength int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinScore:  0.2,
		MaxLength: 640,
	}
}

// Review is the outcome of scoring one candidate set.
type Review struct {
	// ApprovedIndices lists candidates whose score met the threshold.
	ApprovedIndices []int
	// Scores holds one safety score in [0, 1] per candidate.
	Scores []float64
	// Rewrites holds a sanitized rewrite for each rejected candidate and
	// the empty string for approved ones.
	Rewrites []string
}

// Guard applies the content heuristics. It holds no mutable state.
type Guard struct {
	cfg Config
}

// NewGuard creates a guard with the given thresholds.
func NewGuard(cfg Config) *Guard {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultConfig().MaxLength
	}
	return &Guard{cfg: cfg}
}

// ReviewCandidates scores every candidate and splits them into approved and
// rewrite-needed sets.
func (g *Guard) ReviewCandidates(candidates []generation.Candidate) Review {
	review := Review{
		Scores:   make([]float64, len(candidates)),
		Rewrites: make([]string, len(candidates)),
	}
	for i, candidate := range candidates {
		score := g.score(candidate.Text)
		review.Scores[i] = score
		if score < g.cfg.MinScore {
			review.Rewrites[i] = g.rewrite(candidate.Text)
		} else {
			review.ApprovedIndices = append(review.ApprovedIndices, i)
		}
	}
	return review
}

// score starts from 1.0 and subtracts per-violation penalties, clamped to
// [0, 1].
func (g *Guard) score(text string) float64 {
	score := 1.0
	if piiPattern.MatchString(text) {
		score -= 0.6
	}
	if containsBannedTerm(text) {
		score -= 0.7
	}
	if len([]rune(text)) > g.cfg.MaxLength {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	return score
}

// rewrite truncates to the length cap and redacts PII-looking spans.
func (g *Guard) rewrite(text string) string {
	runes := []rune(text)
	if len(runes) > g.cfg.MaxLength {
		text = string(runes[:g.cfg.MaxLength])
	}
	return piiPattern.ReplaceAllString(text, "[REDACTED]")
}

func containsBannedTerm(text string) bool {
	lowered := strings.ToLower(text)
	for _, term := range bannedTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
