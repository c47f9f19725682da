package interaction

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fyrsmithlabs/replyd/internal/bandit"
	"github.com/fyrsmithlabs/replyd/internal/generation"
)

// ErrNotFound indicates feedback arrived for an unknown or already-consumed
// (session, turn) key.
var ErrNotFound = errors.New("interaction: pending turn not found")

// Key identifies a pending interaction.
type Key struct {
	SessionID string
	TurnID    string
}

// Pending is the stored record of a not-yet-confirmed decision: everything
// needed to apply feedback and log the outcome later.
type Pending struct {
	ContextHash    string
	SessionID      string
	TurnID         string
	FeatureVectors [][]float64
	FeatureLogs    []map[string]float64
	Decision       *bandit.Decision
	Candidates     []generation.Candidate
	Safety         map[string]any
	CreatedAt      time.Time
}

// PendingStore holds pending interactions keyed by (session, turn). It is
// bounded both by capacity (least-recently-used eviction) and by a TTL, so
// turns that never receive feedback cannot grow the map without limit.
// Entries are single-use: the first feedback consumes them.
type PendingStore struct {
	cache *expirable.LRU[Key, *Pending]
}

// NewPendingStore creates a store evicting beyond capacity entries or after
// ttl, whichever comes first. A zero ttl disables time-based expiry.
func NewPendingStore(capacity int, ttl time.Duration) *PendingStore {
	return &PendingStore{
		cache: expirable.NewLRU[Key, *Pending](capacity, nil, ttl),
	}
}

// Put records a pending interaction, replacing any previous entry for the
// same key.
func (s *PendingStore) Put(p *Pending) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.cache.Add(Key{SessionID: p.SessionID, TurnID: p.TurnID}, p)
}

// Take removes and returns the pending interaction for the key. The second
// call for the same key fails with ErrNotFound.
func (s *PendingStore) Take(sessionID, turnID string) (*Pending, error) {
	key := Key{SessionID: sessionID, TurnID: turnID}
	pending, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	s.cache.Remove(key)
	return pending, nil
}

// Len reports how many interactions are currently awaiting feedback.
func (s *PendingStore) Len() int {
	return s.cache.Len()
}
