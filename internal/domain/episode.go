package domain

import (
	"time"

	"github.com/google/uuid"
)

// EpisodeLogEntry records one confirmed activity episode.
type EpisodeLogEntry struct {
	ID           string       `json:"id"`
	ActivityType ActivityType `json:"activity_type"`
	StartedAt    time.Time    `json:"started_at"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	OverrideName string       `json:"override_name,omitempty"`
}

// NewEpisode builds an open entry with a fresh identifier.
func NewEpisode(activity ActivityType, startedAt time.Time, overrideName string) EpisodeLogEntry {
	return EpisodeLogEntry{
		ID:           uuid.NewString(),
		ActivityType: activity,
		StartedAt:    startedAt.UTC(),
		OverrideName: overrideName,
	}
}

// Open reports whether the episode has not been finalized yet.
func (e EpisodeLogEntry) Open() bool {
	return e.EndedAt == nil
}

// Duration returns the episode length, measured to now for open entries.
func (e EpisodeLogEntry) Duration(now time.Time) time.Duration {
	end := now
	if e.EndedAt != nil {
		end = *e.EndedAt
	}
	if end.Before(e.StartedAt) {
		return 0
	}
	return end.Sub(e.StartedAt)
}

// Cursor marks a position in the newest-first episode listing.
type Cursor struct {
	StartedAt time.Time
	ID        string
}
