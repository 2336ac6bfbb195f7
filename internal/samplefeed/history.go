package samplefeed

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/activitymonitor/internal/domain"
)

// History stores recent samples for look-back queries.
type History interface {
	Record(ctx context.Context, sample domain.RawSample) error
	Between(ctx context.Context, from, to time.Time) ([]domain.RawSample, error)
}

// MemoryHistory keeps the most recent samples in memory, ordered by RecordedAt.
type MemoryHistory struct {
	mu       sync.RWMutex
	capacity int
	samples  []domain.RawSample
}

// NewMemoryHistory constructs a history bounded to capacity samples.
func NewMemoryHistory(capacity int) *MemoryHistory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryHistory{capacity: capacity}
}

// Record implements History.
func (h *MemoryHistory) Record(_ context.Context, sample domain.RawSample) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := sort.Search(len(h.samples), func(i int) bool {
		return h.samples[i].RecordedAt.After(sample.RecordedAt)
	})
	h.samples = append(h.samples, domain.RawSample{})
	copy(h.samples[idx+1:], h.samples[idx:])
	h.samples[idx] = sample

	if overflow := len(h.samples) - h.capacity; overflow > 0 {
		h.samples = append(h.samples[:0], h.samples[overflow:]...)
	}
	return nil
}

// Between implements History. Bounds are inclusive.
func (h *MemoryHistory) Between(_ context.Context, from, to time.Time) ([]domain.RawSample, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := sort.Search(len(h.samples), func(i int) bool {
		return !h.samples[i].RecordedAt.Before(from)
	})
	out := make([]domain.RawSample, 0)
	for _, s := range h.samples[start:] {
		if s.RecordedAt.After(to) {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

// Len returns the number of retained samples.
func (h *MemoryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}
