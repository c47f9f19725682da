package bandit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	t.Run("equal scores yield uniform distribution", func(t *testing.T) {
		probs := Softmax([]float64{0.5, 0.5, 0.5, 0.5}, 1.0)
		require.Len(t, probs, 4)
		for _, p := range probs {
			assert.InDelta(t, 0.25, p, 1e-12)
		}
	})

	t.Run("sums to one", func(t *testing.T) {
		probs := Softmax([]float64{-0.3, 1.2, 0.1, 0.8}, 1.0)
		var total float64
		for _, p := range probs {
			total += p
		}
		assert.InDelta(t, 1.0, total, 1e-12)
	})

	t.Run("higher score gets higher probability", func(t *testing.T) {
		probs := Softmax([]float64{0.1, 0.9, 0.5}, 1.0)
		assert.Greater(t, probs[1], probs[2])
		assert.Greater(t, probs[2], probs[0])
	})

	t.Run("temperature sharpens distribution", func(t *testing.T) {
		scores := []float64{0.1, 0.9}
		flat := Softmax(scores, 0.5)
		sharp := Softmax(scores, 5.0)
		assert.Greater(t, sharp[1], flat[1])
	})

	t.Run("zero temperature flattens to uniform", func(t *testing.T) {
		probs := Softmax([]float64{-3.0, 0.0, 7.0}, 0.0)
		for _, p := range probs {
			assert.InDelta(t, 1.0/3.0, p, 1e-12)
		}
	})

	t.Run("large scores do not overflow", func(t *testing.T) {
		probs := Softmax([]float64{1e8, 1e8 + 1}, 1.0)
		for _, p := range probs {
			assert.False(t, math.IsNaN(p))
			assert.False(t, math.IsInf(p, 0))
		}
		assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-12)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, Softmax(nil, 1.0))
	})
}
