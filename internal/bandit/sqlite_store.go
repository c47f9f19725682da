package bandit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bandit_state (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	dim         INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// SQLiteStore persists state in a single-row SQLite table. It trades the
// file store's simplicity for transactional writes and easy inspection with
// standard tooling.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bandit: sqlite path cannot be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads and validates the persisted snapshot.
func (s *SQLiteStore) Load() (*State, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM bandit_state WHERE id = 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state row: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("parsing state payload: %w", err)
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save upserts the snapshot into the single state row.
func (s *SQLiteStore) Save(state *State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO bandit_state (id, dim, payload, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			dim = excluded.dim,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		state.Dim, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing state row: %w", err)
	}
	return nil
}
