// Package domain defines the activity types, raw samples and episode records shared by the
// detection engine and its collaborators.
package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrUnknownActivity is returned when an activity name cannot be mapped to an ActivityType.
var ErrUnknownActivity = errors.New("unknown activity type")

// ActivityType is the canonical tag for a sustained physical activity.
type ActivityType string

const (
	ActivityWalking ActivityType = "walking"
	ActivityRunning ActivityType = "running"
	ActivityCycling ActivityType = "cycling"
	ActivityOther   ActivityType = "other"
)

// ActivityTypes lists every canonical activity in classifier priority order.
var ActivityTypes = []ActivityType{ActivityRunning, ActivityWalking, ActivityCycling, ActivityOther}

// ParseActivityType normalises a free-form activity name.
func ParseActivityType(raw string) (ActivityType, error) {
	switch ActivityType(strings.ToLower(strings.TrimSpace(raw))) {
	case ActivityWalking:
		return ActivityWalking, nil
	case ActivityRunning:
		return ActivityRunning, nil
	case ActivityCycling:
		return ActivityCycling, nil
	case ActivityOther:
		return ActivityOther, nil
	default:
		return "", ErrUnknownActivity
	}
}

// Confidence is the sensing platform's certainty about a raw sample.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// RawSample is a single activity observation as delivered by the sample source.
type RawSample struct {
	Walking    bool       `json:"walking"`
	Running    bool       `json:"running"`
	Cycling    bool       `json:"cycling"`
	Automotive bool       `json:"automotive"`
	Unknown    bool       `json:"unknown"`
	Confidence Confidence `json:"confidence"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// AuthorizationStatus mirrors the platform permission state for activity sensing.
type AuthorizationStatus string

const (
	AuthorizationNotDetermined AuthorizationStatus = "not_determined"
	AuthorizationAuthorized    AuthorizationStatus = "authorized"
	AuthorizationDenied        AuthorizationStatus = "denied"
)

// ActivitySettings holds the user's per-activity preferences.
type ActivitySettings struct {
	Enabled      bool   `json:"enabled"`
	OverrideName string `json:"override_name"`
}

// EnablementConfig is the user-controlled configuration read by the classifier and engine.
type EnablementConfig struct {
	Walking        ActivitySettings `json:"walking"`
	Running        ActivitySettings `json:"running"`
	Cycling        ActivitySettings `json:"cycling"`
	Other          ActivitySettings `json:"other"`
	MinimumSustain time.Duration    `json:"minimum_sustain"`
	StopGrace      time.Duration    `json:"stop_grace"`
}

// Settings returns the preferences for a single activity.
func (c EnablementConfig) Settings(activity ActivityType) ActivitySettings {
	switch activity {
	case ActivityWalking:
		return c.Walking
	case ActivityRunning:
		return c.Running
	case ActivityCycling:
		return c.Cycling
	case ActivityOther:
		return c.Other
	default:
		return ActivitySettings{}
	}
}

// Enabled reports whether detection is switched on for the activity.
func (c EnablementConfig) Enabled(activity ActivityType) bool {
	return c.Settings(activity).Enabled
}

// OverrideName returns the configured override for the activity, or "" when none is set.
func (c EnablementConfig) OverrideName(activity ActivityType) string {
	return strings.TrimSpace(c.Settings(activity).OverrideName)
}

// Candidate is the activity currently being tracked by the engine.
type Candidate struct {
	Activity        ActivityType `json:"activity"`
	StartedAt       time.Time    `json:"started_at"`
	ValidationCount int          `json:"validation_count"`
}
