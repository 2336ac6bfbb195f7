// Package settings holds the user's live activity preferences.
package settings

import (
	"errors"
	"sync"
	"time"

	"example.com/activitymonitor/internal/domain"
)

var (
	// ErrNegativeDuration is returned when an update carries a negative sustain or grace period.
	ErrNegativeDuration = errors.New("durations must not be negative")
)

// Store is a concurrency-safe holder for the current EnablementConfig. Readers always see
// the latest update; timers already armed by the engine keep the values they were armed with.
type Store struct {
	mu  sync.RWMutex
	cfg domain.EnablementConfig
}

// NewStore seeds a Store with the initial configuration.
func NewStore(initial domain.EnablementConfig) *Store {
	return &Store{cfg: initial}
}

// EnablementConfig returns the current configuration.
func (s *Store) EnablementConfig() domain.EnablementConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update replaces the configuration after validating it.
func (s *Store) Update(cfg domain.EnablementConfig) error {
	if cfg.MinimumSustain < 0 || cfg.StopGrace < 0 {
		return ErrNegativeDuration
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// Minutes converts a whole number of minutes to a duration.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
