package overrides

import "example.com/activitymonitor/internal/events"

const episodeConfirmedSchema = `{
  "type": "object",
  "title": "EpisodeConfirmed",
  "properties": {
    "event_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["walking", "running", "cycling", "other"]},
    "override_name": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["event_id", "activity_type", "override_name", "occurred_at", "version"],
  "additionalProperties": false
}`

const episodeEndedSchema = `{
  "type": "object",
  "title": "EpisodeEnded",
  "properties": {
    "event_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["walking", "running", "cycling", "other"]},
    "override_name": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["event_id", "activity_type", "occurred_at", "version"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeEpisodeConfirmed: episodeConfirmedSchema,
	events.TypeEpisodeEnded:     episodeEndedSchema,
}
