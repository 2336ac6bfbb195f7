// Package events defines the episode payloads published for downstream consumers.
package events

import "time"

// Event type names, used as schema record names and Kafka headers.
const (
	TypeEpisodeConfirmed = "episode.confirmed"
	TypeEpisodeEnded     = "episode.ended"
)

// EpisodeConfirmed is emitted when an activity has been sustained long enough for its override
// to be applied.
type EpisodeConfirmed struct {
	EventID      string    `json:"event_id"`
	ActivityType string    `json:"activity_type"`
	OverrideName string    `json:"override_name"`
	OccurredAt   time.Time `json:"occurred_at"`
	Version      string    `json:"version"`
}

// EpisodeEnded is emitted whenever tracking of an activity stops, whether or not it was
// confirmed. Consumers remove any override they applied.
type EpisodeEnded struct {
	EventID      string    `json:"event_id"`
	ActivityType string    `json:"activity_type"`
	OverrideName string    `json:"override_name,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	Version      string    `json:"version"`
}

// SchemaVersion is stamped on every payload.
const SchemaVersion = "v1"
