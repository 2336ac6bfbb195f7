package episodelog

import (
	"context"
	"sync"

	"example.com/activitymonitor/internal/domain"
)

// MemoryStore keeps the last saved snapshot in memory for local development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.EpisodeLogEntry
	saves   int
}

// NewMemoryStore constructs a store seeded with the provided entries.
func NewMemoryStore(seed ...domain.EpisodeLogEntry) *MemoryStore {
	return &MemoryStore{entries: append([]domain.EpisodeLogEntry(nil), seed...)}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) ([]domain.EpisodeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.EpisodeLogEntry, len(s.entries))
	for i, entry := range s.entries {
		out[i] = cloneEntry(entry)
	}
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, entries []domain.EpisodeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]domain.EpisodeLogEntry, len(entries))
	for i, entry := range entries {
		s.entries[i] = cloneEntry(entry)
	}
	s.saves++
	return nil
}

// Saves returns the number of snapshots written so far.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
