// Package report aggregates interaction logs into summary metrics for
// offline inspection of how the selection policy is behaving.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/fyrsmithlabs/replyd/internal/interaction"
)

// Metrics summarizes one interaction log. Pointer fields are nil when the
// log holds no data to compute them from.
type Metrics struct {
	TurnCount       int                `json:"turn_count"`
	AvgReward       *float64           `json:"avg_reward"`
	StyleWinRates   map[string]float64 `json:"style_win_rates"`
	ExplorationRate float64            `json:"exploration_rate"`
	PropensityMean  *float64           `json:"propensity_mean"`
	PropensityStd   *float64           `json:"propensity_std"`
}

// Aggregate computes metrics from a JSONL interaction log. Path may name a
// log file directly or a directory, in which case the lexicographically
// newest *.jsonl file is used. Records are deduplicated by (session, turn)
// keeping the newest entry, so a feedback record supersedes its turn record.
func Aggregate(path string) (*Metrics, error) {
	file, err := resolveLogFile(path)
	if err != nil {
		return nil, err
	}

	records, err := readRecords(file)
	if err != nil {
		return nil, err
	}

	type key struct{ session, turn string }
	latest := make(map[key]*interaction.Record, len(records))
	order := make([]key, 0, len(records))
	for _, record := range records {
		k := key{record.SessionID, record.TurnID}
		if _, seen := latest[k]; !seen {
			order = append(order, k)
		}
		latest[k] = record
	}

	metrics := &Metrics{StyleWinRates: map[string]float64{}}
	total := len(order)
	metrics.TurnCount = total
	if total == 0 {
		return metrics, nil
	}

	var rewards, propensities []float64
	styleWins := make(map[string]int)
	chosenIndices := make(map[int]struct{})
	for _, k := range order {
		record := latest[k]
		if record.Reward != nil {
			rewards = append(rewards, *record.Reward)
		}
		propensities = append(propensities, record.Propensity)
		chosenIndices[record.ChosenIndex] = struct{}{}
		if record.ChosenIndex >= 0 && record.ChosenIndex < len(record.Candidates) {
			styleWins[record.Candidates[record.ChosenIndex].Style]++
		}
	}

	if len(rewards) > 0 {
		avg := stat.Mean(rewards, nil)
		metrics.AvgReward = &avg
	}
	if len(propensities) > 0 {
		mean := stat.Mean(propensities, nil)
		metrics.PropensityMean = &mean
		std := 0.0
		if len(propensities) > 1 {
			std = stat.PopStdDev(propensities, nil)
		}
		metrics.PropensityStd = &std
	}
	for style, wins := range styleWins {
		metrics.StyleWinRates[style] = float64(wins) / float64(total)
	}
	metrics.ExplorationRate = float64(len(chosenIndices)) / float64(total)

	return metrics, nil
}

func resolveLogFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.jsonl"))
	if err != nil {
		return "", fmt.Errorf("report: listing logs: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("report: no .jsonl logs under %s", path)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// readRecords parses the log line by line, skipping blank and malformed
// lines so one truncated write cannot poison a whole report.
func readRecords(path string) ([]*interaction.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: opening log: %w", err)
	}
	defer file.Close()

	var records []*interaction.Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record interaction.Record
		if err := json.Unmarshal(line, &record); err != nil {
			continue
		}
		records = append(records, &record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("report: reading log: %w", err)
	}
	return records, nil
}
