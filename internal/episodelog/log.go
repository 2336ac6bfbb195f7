// Package episodelog keeps the append-only record of confirmed activity episodes.
package episodelog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"example.com/activitymonitor/internal/domain"
)

// ErrStoreUnavailable is returned when the initial load from the backing store fails.
var ErrStoreUnavailable = errors.New("episode store unavailable")

// Store persists full snapshots of the episode log.
type Store interface {
	Load(ctx context.Context) ([]domain.EpisodeLogEntry, error)
	Save(ctx context.Context, entries []domain.EpisodeLogEntry) error
}

// Option configures optional behaviour for the Log.
type Option func(*Log)

// WithLogger overrides the logger used to report save failures.
func WithLogger(logger *log.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithSaveTimeout bounds each background save.
func WithSaveTimeout(timeout time.Duration) Option {
	return func(l *Log) {
		if timeout > 0 {
			l.saveTimeout = timeout
		}
	}
}

// Log is the in-memory episode sequence, newest first. Every mutation schedules a
// background save of the full snapshot.
type Log struct {
	mu      sync.RWMutex
	entries []domain.EpisodeLogEntry
	version uint64

	store       Store
	logger      *log.Logger
	saveTimeout time.Duration

	saveMu    sync.Mutex
	lastSaved uint64
	saves     sync.WaitGroup
}

// NewLog loads the persisted entries once and returns a ready Log.
func NewLog(ctx context.Context, store Store, opts ...Option) (*Log, error) {
	l := &Log{
		store:       store,
		logger:      log.New(log.Writer(), "[episodelog] ", log.LstdFlags|log.Lshortfile),
		saveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	l.entries = append(make([]domain.EpisodeLogEntry, 0, len(entries)), entries...)
	sortNewestFirst(l.entries)
	recordEntries(len(l.entries))
	return l, nil
}

// Append records a newly confirmed episode.
func (l *Log) Append(entry domain.EpisodeLogEntry) {
	l.mu.Lock()
	idx := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].StartedAt.After(entry.StartedAt)
	})
	l.entries = append(l.entries, domain.EpisodeLogEntry{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = entry
	snapshot, version := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(snapshot, version)
}

// Finalize closes the most recently opened open entry of the given activity. It reports
// whether an entry was found.
func (l *Log) Finalize(activity domain.ActivityType, now time.Time) bool {
	l.mu.Lock()
	idx := l.openIndexLocked(activity)
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	ended := now.UTC()
	l.entries[idx].EndedAt = &ended
	snapshot, version := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(snapshot, version)
	return true
}

// Open returns the open entry for the activity, if any.
func (l *Log) Open(activity domain.ActivityType) (domain.EpisodeLogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.openIndexLocked(activity)
	if idx < 0 {
		return domain.EpisodeLogEntry{}, false
	}
	return cloneEntry(l.entries[idx]), true
}

// List returns a copy of all entries ordered by start time, newest first.
func (l *Log) List() []domain.EpisodeLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.EpisodeLogEntry, len(l.entries))
	for i, entry := range l.entries {
		out[i] = cloneEntry(entry)
	}
	return out
}

// Clear removes every entry and persists the empty log.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	snapshot, version := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(snapshot, version)
}

// Wait blocks until all scheduled saves have completed.
func (l *Log) Wait() {
	l.saves.Wait()
}

// Page returns up to limit entries following cursor (nil for the first page) and the cursor
// for the next page, which is nil when the listing is exhausted.
func (l *Log) Page(cursor *domain.Cursor, limit int) ([]domain.EpisodeLogEntry, *domain.Cursor) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if cursor != nil {
		start = l.indexAfterLocked(*cursor)
	}
	end := start + limit
	if limit <= 0 || end > len(l.entries) {
		end = len(l.entries)
	}

	out := make([]domain.EpisodeLogEntry, 0, end-start)
	for _, entry := range l.entries[start:end] {
		out = append(out, cloneEntry(entry))
	}

	var next *domain.Cursor
	if end < len(l.entries) && len(out) > 0 {
		last := out[len(out)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return out, next
}

// indexAfterLocked resumes right after the cursor entry, or at the first older entry when the
// cursor entry no longer exists.
func (l *Log) indexAfterLocked(cursor domain.Cursor) int {
	for i, entry := range l.entries {
		if entry.ID == cursor.ID {
			return i + 1
		}
	}
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].StartedAt.Before(cursor.StartedAt)
	})
}

func (l *Log) openIndexLocked(activity domain.ActivityType) int {
	// entries are newest first, so the first open match is the most recently opened one.
	for i, entry := range l.entries {
		if entry.ActivityType == activity && entry.Open() {
			return i
		}
	}
	return -1
}

func (l *Log) snapshotLocked() ([]domain.EpisodeLogEntry, uint64) {
	l.version++
	out := make([]domain.EpisodeLogEntry, len(l.entries))
	for i, entry := range l.entries {
		out[i] = cloneEntry(entry)
	}
	recordEntries(len(out))
	return out, l.version
}

func (l *Log) persist(snapshot []domain.EpisodeLogEntry, version uint64) {
	l.saves.Add(1)
	go func() {
		defer l.saves.Done()

		l.saveMu.Lock()
		defer l.saveMu.Unlock()
		if version <= l.lastSaved {
			// a newer snapshot already reached the store.
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.saveTimeout)
		defer cancel()
		if err := l.store.Save(ctx, snapshot); err != nil {
			l.logger.Printf("warning: could not save episode log (entries=%d): %v", len(snapshot), err)
			recordSaveFailure()
			return
		}
		l.lastSaved = version
		recordSaved(time.Now())
	}()
}

func sortNewestFirst(entries []domain.EpisodeLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
}

func cloneEntry(entry domain.EpisodeLogEntry) domain.EpisodeLogEntry {
	if entry.EndedAt != nil {
		ended := *entry.EndedAt
		entry.EndedAt = &ended
	}
	return entry
}
