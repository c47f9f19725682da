// Package feature turns a conversation context and candidate replies into
// the numeric vectors consumed by the bandit policies.
package feature

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/replyd/internal/generation"
)

// Trait defaults applied when a candidate's style is absent from the catalog.
const (
	defaultInitiative = 0.5
	defaultRisk       = 0.2
)

// Field names used in the per-candidate log mapping, in vector order.
const (
	FieldBias            = "bias"
	FieldContextLen      = "ctx_len"
	FieldLastUserChars   = "last_user_chars"
	FieldCandidateWords  = "candidate_words"
	FieldQuestion        = "candidate_question"
	FieldStyleInitiative = "style_initiative"
	FieldStyleRisk       = "style_risk"
)

// Dimension is the fixed width of every feature vector.
const Dimension = 7

// Extractor computes feature vectors for (context, candidate) pairs. It is
// stateless apart from the styles catalog it reads traits from.
//
// Every feature is clipped to a bounded range. That is a hard design choice:
// bounded magnitudes keep the policies' matrix inversion well-conditioned no
// matter how pathological the input lengths are.
type Extractor struct {
	catalog generation.StylesCatalog
}

// NewExtractor creates an extractor over the given styles catalog.
func NewExtractor(catalog generation.StylesCatalog) *Extractor {
	return &Extractor{catalog: catalog}
}

// Build returns one feature vector per candidate plus a parallel named-field
// mapping that reproduces the same values for audit logging. All vectors
// share the same dimension; the first three entries are the context prefix
// common to every candidate in the round.
func (e *Extractor) Build(ctx *generation.Context, candidates []generation.Candidate) ([][]float64, []map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("feature: no candidates to extract features for")
	}

	prefix := e.contextFeatures(ctx)

	vectors := make([][]float64, 0, len(candidates))
	mappings := make([]map[string]float64, 0, len(candidates))
	for _, candidate := range candidates {
		vec := make([]float64, 0, Dimension)
		vec = append(vec, prefix...)
		vec = append(vec, e.candidateFeatures(&candidate)...)
		vectors = append(vectors, vec)
		mappings = append(mappings, map[string]float64{
			FieldBias:            vec[0],
			FieldContextLen:      vec[1],
			FieldLastUserChars:   vec[2],
			FieldCandidateWords:  vec[3],
			FieldQuestion:        vec[4],
			FieldStyleInitiative: vec[5],
			FieldStyleRisk:       vec[6],
		})
	}
	return vectors, mappings, nil
}

// contextFeatures computes the prefix shared by every candidate in a round:
// bias, normalized conversation length, normalized last-user-message length.
func (e *Extractor) contextFeatures(ctx *generation.Context) []float64 {
	lastUserChars := len([]rune(ctx.LastUserMessage()))
	return []float64{
		1.0,
		clip(float64(len(ctx.Messages))/10.0, 0.0, 1.5),
		clip(float64(lastUserChars)/400.0, 0.0, 1.5),
	}
}

func (e *Extractor) candidateFeatures(candidate *generation.Candidate) []float64 {
	words := len(strings.Fields(candidate.Text))

	question := 0.0
	if strings.Contains(candidate.Text, "?") {
		question = 1.0
	}

	initiative, risk := defaultInitiative, defaultRisk
	if traits, ok := e.catalog.Traits(candidate.Style); ok {
		initiative = traits.Initiative
		risk = traits.Risk
	}

	return []float64{
		clip(float64(words)/80.0, 0.0, 2.0),
		question,
		clip(initiative, 0.0, 1.0),
		clip(risk, 0.0, 1.0),
	}
}

func clip(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
