// Package config centralises configuration parsing for the activity monitor.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/settings"
)

// Config captures runtime configuration values for the activity monitor.
type Config struct {
	HTTPAddress       string
	MetricsAddress    string
	PostgresURL       string // empty selects in-memory stores
	KafkaBrokers      []string
	SampleTopic       string
	SampleGroupID     string
	OverrideTopic     string
	SchemaRegistryURL string // empty publishes plain JSON
	JWTSecret         string
	JWTIssuer         string

	SampleFeedAuthorized  bool
	SampleHistorySize     int
	SampleRetention       time.Duration
	OverridePublishBuffer int

	Enablement domain.EnablementConfig
	Detection  detection.EngineConfig
}

// Load reads environment variables into Config, applying defaults for local dev.
func Load() Config {
	defaults := detection.DefaultEngineConfig()

	cfg := Config{
		HTTPAddress:       getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:    getEnv("METRICS_ADDRESS", ":9090"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		SampleTopic:       getEnv("SAMPLE_TOPIC", "activity_samples"),
		SampleGroupID:     getEnv("SAMPLE_GROUP_ID", "activity-monitor"),
		OverrideTopic:     getEnv("OVERRIDE_TOPIC", "episode_events"),
		SchemaRegistryURL: getEnv("SCHEMA_REGISTRY_URL", ""),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:         getEnv("JWT_ISSUER", "activity-monitor"),

		SampleFeedAuthorized:  getBoolEnv("SAMPLE_FEED_AUTHORIZED", true),
		SampleHistorySize:     getIntEnv("SAMPLE_HISTORY_SIZE", 1024),
		SampleRetention:       getDurationEnv("SAMPLE_RETENTION", time.Hour),
		OverridePublishBuffer: getIntEnv("OVERRIDE_PUBLISH_BUFFER", 64),

		Enablement: domain.EnablementConfig{
			Walking:        activitySettings("WALKING", true, "Walk"),
			Running:        activitySettings("RUNNING", true, "Run"),
			Cycling:        activitySettings("CYCLING", true, "Ride"),
			Other:          activitySettings("OTHER", false, ""),
			MinimumSustain: settings.Minutes(getIntEnv("ACTIVITY_MIN_SUSTAIN_MINUTES", 5)),
			StopGrace:      settings.Minutes(getIntEnv("ACTIVITY_STOP_GRACE_MINUTES", 2)),
		},
		Detection: detection.EngineConfig{
			ValidationInterval:  getDurationEnv("DETECTION_VALIDATION_INTERVAL", defaults.ValidationInterval),
			LookBack:            getDurationEnv("DETECTION_LOOK_BACK", defaults.LookBack),
			RequiredValidations: getIntEnv("DETECTION_REQUIRED_VALIDATIONS", defaults.RequiredValidations),
			QueryTimeout:        getDurationEnv("DETECTION_QUERY_TIMEOUT", defaults.QueryTimeout),
		},
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"))
	return cfg
}

func activitySettings(name string, enabled bool, override string) domain.ActivitySettings {
	return domain.ActivitySettings{
		Enabled:      getBoolEnv("ACTIVITY_"+name+"_ENABLED", enabled),
		OverrideName: getEnv("ACTIVITY_"+name+"_OVERRIDE", override),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
