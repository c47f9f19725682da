// Package interaction records decision and feedback events to an
// append-only JSONL log and tracks pending interactions awaiting feedback.
package interaction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyrsmithlabs/replyd/internal/generation"
)

// Phases of the interaction lifecycle.
const (
	PhaseTurn     = "turn"
	PhaseFeedback = "feedback"
)

// Record is one interaction log entry. A turn produces one entry with a nil
// reward; the matching feedback produces a second entry of identical shape
// carrying the observed reward.
type Record struct {
	Phase       string                 `json:"phase"`
	ContextHash string                 `json:"context_hash"`
	SessionID   string                 `json:"session_id"`
	TurnID      string                 `json:"turn_id"`
	Candidates  []generation.Candidate `json:"candidates"`
	ChosenIndex int                    `json:"chosen_idx"`
	Propensity  float64                `json:"propensity"`
	Reward      *float64               `json:"reward"`
	Features    map[string]any         `json:"features"`
	BanditAlgo  string                 `json:"bandit_algo,omitempty"`
	LoggedAt    time.Time              `json:"logged_at"`
}

// Logger appends records to a JSONL file, one JSON object per line,
// newest-last. Writes are serialized so concurrent turns never interleave
// partial lines.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger opens (creating if needed) the log file in append mode.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening interaction log %s: %w", path, err)
	}
	return &Logger{file: file}, nil
}

// Log appends one record.
func (l *Logger) Log(record *Record) error {
	if record.LoggedAt.IsZero() {
		record.LoggedAt = time.Now().UTC()
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding interaction record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending interaction record: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
