package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/replyd/internal/generation"
	"github.com/fyrsmithlabs/replyd/internal/interaction"
)

func writeLog(t *testing.T, path string, records ...*interaction.Record) {
	t.Helper()
	var lines []string
	for _, r := range records {
		line, err := json.Marshal(r)
		require.NoError(t, err)
		lines = append(lines, string(line))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

func turnRecord(session, turn string, chosen int, propensity float64, styles ...string) *interaction.Record {
	candidates := make([]generation.Candidate, 0, len(styles))
	for _, s := range styles {
		candidates = append(candidates, generation.Candidate{Text: "text", Style: s})
	}
	return &interaction.Record{
		Phase:       interaction.PhaseTurn,
		SessionID:   session,
		TurnID:      turn,
		ChosenIndex: chosen,
		Propensity:  propensity,
		Candidates:  candidates,
	}
}

func feedbackRecord(session, turn string, chosen int, propensity, reward float64, styles ...string) *interaction.Record {
	r := turnRecord(session, turn, chosen, propensity, styles...)
	r.Phase = interaction.PhaseFeedback
	r.Reward = &reward
	return r
}

func TestAggregate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.jsonl")
	writeLog(t, path,
		turnRecord("s1", "t1", 0, 0.5, "empathetic", "logical"),
		feedbackRecord("s1", "t1", 0, 0.5, 1.0, "empathetic", "logical"),
		turnRecord("s1", "t2", 1, 0.4, "empathetic", "logical"),
		feedbackRecord("s1", "t2", 1, 0.4, -0.5, "empathetic", "logical"),
		turnRecord("s2", "t1", 0, 0.6, "empathetic", "logical"),
	)

	metrics, err := Aggregate(path)
	require.NoError(t, err)

	assert.Equal(t, 3, metrics.TurnCount)

	require.NotNil(t, metrics.AvgReward)
	assert.InDelta(t, 0.25, *metrics.AvgReward, 1e-12)

	assert.InDelta(t, 2.0/3.0, metrics.StyleWinRates["empathetic"], 1e-12)
	assert.InDelta(t, 1.0/3.0, metrics.StyleWinRates["logical"], 1e-12)

	// Indices 0 and 1 were both chosen at least once.
	assert.InDelta(t, 2.0/3.0, metrics.ExplorationRate, 1e-12)

	require.NotNil(t, metrics.PropensityMean)
	assert.InDelta(t, 0.5, *metrics.PropensityMean, 1e-12)
	require.NotNil(t, metrics.PropensityStd)
	assert.Greater(t, *metrics.PropensityStd, 0.0)
}

func TestAggregate_FeedbackSupersedesTurn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.jsonl")
	writeLog(t, path,
		turnRecord("s1", "t1", 0, 0.5, "empathetic"),
		feedbackRecord("s1", "t1", 0, 0.5, 0.8, "empathetic"),
	)

	metrics, err := Aggregate(path)
	require.NoError(t, err)

	// One logical turn despite two log lines.
	assert.Equal(t, 1, metrics.TurnCount)
	require.NotNil(t, metrics.AvgReward)
	assert.InDelta(t, 0.8, *metrics.AvgReward, 1e-12)
}

func TestAggregate_EmptyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	metrics, err := Aggregate(path)
	require.NoError(t, err)

	assert.Equal(t, 0, metrics.TurnCount)
	assert.Nil(t, metrics.AvgReward)
	assert.Nil(t, metrics.PropensityMean)
	assert.Empty(t, metrics.StyleWinRates)
}

func TestAggregate_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.jsonl")
	record, err := json.Marshal(turnRecord("s1", "t1", 0, 0.5, "coach"))
	require.NoError(t, err)
	content := "{broken json\n\n" + string(record) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	metrics, err := Aggregate(path)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TurnCount)
}

func TestAggregate_DirectoryPicksNewestLog(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, filepath.Join(dir, "2026-08-01.jsonl"),
		turnRecord("old", "t1", 0, 0.5, "coach"),
	)
	writeLog(t, filepath.Join(dir, "2026-08-29.jsonl"),
		turnRecord("new", "t1", 0, 0.5, "coach"),
		turnRecord("new", "t2", 0, 0.5, "coach"),
	)

	metrics, err := Aggregate(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TurnCount)
}

func TestAggregate_MissingPath(t *testing.T) {
	_, err := Aggregate(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
}

func TestAggregate_EmptyDirectory(t *testing.T) {
	_, err := Aggregate(t.TempDir())
	require.Error(t, err)
}

func TestAggregate_SingleRecordStdIsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.jsonl")
	writeLog(t, path, turnRecord("s1", "t1", 0, 0.7, "coach"))

	metrics, err := Aggregate(path)
	require.NoError(t, err)
	require.NotNil(t, metrics.PropensityStd)
	assert.InDelta(t, 0.0, *metrics.PropensityStd, 1e-12)
}
