package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/replyd/internal/generation"
)

func TestGuard_ReviewCandidates(t *testing.T) {
	guard := NewGuard(DefaultConfig())

	t.Run("approves clean candidates", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "That sounds hard. Want to talk it through?"},
			{Text: "Let's list the next two steps."},
		})
		assert.Equal(t, []int{0, 1}, review.ApprovedIndices)
		assert.InDelta(t, 1.0, review.Scores[0], 1e-12)
		assert.Empty(t, review.Rewrites[0])
	})

	t.Run("penalizes phone-number patterns", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "Call me at 555-123-4567 tomorrow."},
		})
		assert.InDelta(t, 0.4, review.Scores[0], 1e-12)
		assert.Equal(t, []int{0}, review.ApprovedIndices)
	})

	t.Run("rejects banned terms", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "Just give them your credit card number."},
		})
		assert.Empty(t, review.ApprovedIndices)
		assert.Less(t, review.Scores[0], 0.2)
		assert.NotEmpty(t, review.Rewrites[0])
	})

	t.Run("banned term matching is case-insensitive", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "Share your CREDIT CARD details."},
		})
		assert.Empty(t, review.ApprovedIndices)
	})

	t.Run("stacked violations clamp to zero", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "Use credit card 12345678 now: " + strings.Repeat("x", 700)},
		})
		assert.InDelta(t, 0.0, review.Scores[0], 1e-12)
	})

	t.Run("overlength alone is only a mild penalty", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: strings.Repeat("a", 700)},
		})
		assert.InDelta(t, 0.8, review.Scores[0], 1e-12)
		assert.Equal(t, []int{0}, review.ApprovedIndices)
	})
}

func TestGuard_Rewrite(t *testing.T) {
	guard := NewGuard(Config{MinScore: 0.5, MaxLength: 20})

	t.Run("redacts identifiers", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "dial 555-1234 now"},
		})
		require.Empty(t, review.ApprovedIndices)
		assert.Equal(t, "dial [REDACTED] now", review.Rewrites[0])
	})

	t.Run("truncates overlong rewrites by runes", func(t *testing.T) {
		review := guard.ReviewCandidates([]generation.Candidate{
			{Text: "bomb " + strings.Repeat("あ", 50)},
		})
		require.Empty(t, review.ApprovedIndices)
		assert.Len(t, []rune(review.Rewrites[0]), 20)
	})
}

func TestNewGuard_DefaultsZeroMaxLength(t *testing.T) {
	guard := NewGuard(Config{MinScore: 0.2})
	review := guard.ReviewCandidates([]generation.Candidate{
		{Text: strings.Repeat("a", 641)},
	})
	assert.InDelta(t, 0.8, review.Scores[0], 1e-12)
}
