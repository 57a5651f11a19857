package history

import (
	"sync"
)

// Store defaults
const (
	DefaultMaxEntries  = 200
	DefaultEventBuffer = 100
)

// Store keeps the most recent outcomes in memory and publishes each one on
// a buffered channel. Slow listeners drop events rather than block comparisons.
type Store struct {
	mu       sync.RWMutex
	entries  []Outcome
	maxSize  int
	eventsCh chan Outcome
}

// NewStore creates a history store.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Store{
		entries:  make([]Outcome, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Outcome, eventBuffer),
	}
}

// Record stores a copy of o and emits it.
func (s *Store) Record(o *Outcome) {
	s.mu.Lock()
	s.entries = append(s.entries, *o)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()

	s.Emit(*o)
}

// Recent returns up to n outcomes, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) []Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	result := make([]Outcome, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.entries[i])
	}
	return result
}

// Latest returns the most recent outcome for a name and variant.
func (s *Store) Latest(name, variant string) (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.Name == name && e.Variant == variant {
			return e, true
		}
	}
	return Outcome{}, false
}

// Counts tallies stored outcomes by status.
func (s *Store) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int, 4)
	for _, e := range s.entries {
		counts[e.Status]++
	}
	return counts
}

// Events returns the channel for outcome events.
func (s *Store) Events() <-chan Outcome {
	return s.eventsCh
}

// Emit sends an outcome event (non-blocking).
func (s *Store) Emit(o Outcome) {
	select {
	case s.eventsCh <- o:
	default:
	}
}

// Len returns the number of stored outcomes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
