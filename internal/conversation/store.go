// Package conversation keeps the in-memory, append-only transcript of a chat session.
package conversation

import (
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"kisanmitra/internal/models"
)

// Store is an ordered, append-only log of turns. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	turns []models.Turn
	last  time.Time
	now   func() time.Time
	newID func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs replaces the turn id generator.
func WithIDs(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore builds an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stamps the turn with a fresh id and a creation time that never goes
// backwards relative to earlier turns, stores a private copy and returns it.
func (s *Store) Append(turn models.Turn) models.Turn {
	turn = turn.Clone()
	turn.ID = s.newID()

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	turn.CreatedAt = ts
	s.turns = append(s.turns, turn)
	return turn.Clone()
}

// All returns a restartable view of the log. Each iteration walks the turns
// present when that iteration started; appends made meanwhile are not seen.
func (s *Store) All() iter.Seq[models.Turn] {
	return func(yield func(models.Turn) bool) {
		s.mu.RLock()
		snapshot := s.turns[:len(s.turns):len(s.turns)]
		s.mu.RUnlock()
		for _, t := range snapshot {
			if !yield(t.Clone()) {
				return
			}
		}
	}
}

// Snapshot copies the log into a slice.
func (s *Store) Snapshot() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.Clone()
	}
	return out
}

// Len reports the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn.
func (s *Store) Last() (models.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return models.Turn{}, false
	}
	return s.turns[len(s.turns)-1].Clone(), true
}
