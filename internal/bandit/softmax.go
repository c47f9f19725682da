package bandit

import "math"

// Softmax converts raw scores into a probability distribution. The
// temperature coefficient scales the scores before exponentiation: higher
// values sharpen the distribution, lower values flatten it toward uniform.
//
// The computation subtracts the maximum scaled score before exponentiating
// so large scores cannot overflow. If the exponentials degenerate (all zero
// or non-finite), a uniform distribution is returned.
func Softmax(scores []float64, temperature float64) []float64 {
	n := len(scores)
	probs := make([]float64, n)
	if n == 0 {
		return probs
	}

	maxScaled := math.Inf(-1)
	scaled := make([]float64, n)
	for i, s := range scores {
		scaled[i] = s * temperature
		if scaled[i] > maxScaled {
			maxScaled = scaled[i]
		}
	}

	var total float64
	for i := range scaled {
		probs[i] = math.Exp(scaled[i] - maxScaled)
		total += probs[i]
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		uniform := 1.0 / float64(n)
		for i := range probs {
			probs[i] = uniform
		}
		return probs
	}

	for i := range probs {
		probs[i] /= total
	}
	return probs
}
