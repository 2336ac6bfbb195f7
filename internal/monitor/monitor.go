// Package monitor starts and stops sample delivery into the detection engine, gated on
// sensing availability and user authorization.
package monitor

import (
	"context"
	"log"
	"sync"

	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/observability"
)

// SampleSource is the platform activity feed.
type SampleSource interface {
	detection.SampleSource
	Available() bool
	AuthorizationStatus() domain.AuthorizationStatus
	RequestAuthorization(ctx context.Context) (bool, error)
	// Subscribe starts delivering samples to fn and returns a function that stops delivery.
	// Neither call may invoke fn synchronously or wait for an in-flight fn to return.
	Subscribe(fn func(domain.RawSample)) (cancel func())
}

// Engine is the part of the detection engine the monitor drives.
type Engine interface {
	HandleSample(activity domain.ActivityType, ok bool)
	Stop()
	Snapshot() detection.Snapshot
}

// Status describes the monitor for status endpoints.
type Status struct {
	Running       bool                       `json:"running"`
	Available     bool                       `json:"available"`
	Authorization domain.AuthorizationStatus `json:"authorization"`
	Detection     detection.Snapshot         `json:"detection"`
}

// Option configures optional behaviour for the Monitor.
type Option func(*Monitor)

// WithLogger overrides the logger used for lifecycle diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// Monitor owns the running flag and the sample subscription.
type Monitor struct {
	source   SampleSource
	engine   Engine
	settings detection.ConfigProvider
	logger   *log.Logger

	mu          sync.Mutex
	running     bool
	starting    bool
	abortStart  bool
	unsubscribe func()
}

// New constructs a stopped Monitor.
func New(source SampleSource, engine Engine, settings detection.ConfigProvider, opts ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		engine:   engine,
		settings: settings,
		logger:   log.New(log.Writer(), "[monitor] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins monitoring. It is a no-op when already running, when sensing is unavailable, or
// when authorization is not granted.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.starting {
		m.mu.Unlock()
		return
	}
	if !m.source.Available() {
		m.mu.Unlock()
		m.logger.Printf("activity sensing unavailable, monitoring not started")
		return
	}
	m.starting = true
	m.abortStart = false
	m.mu.Unlock()

	granted := m.authorize(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if !granted {
		return
	}
	if m.abortStart {
		m.logger.Printf("stop requested during authorization, monitoring not started")
		return
	}

	m.unsubscribe = m.source.Subscribe(m.handleSample)
	m.running = true
	observability.RecordMonitoringRunning(true)
	m.logger.Printf("activity monitoring started")
}

// Stop ends monitoring and finalizes any open candidate. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		if m.starting {
			m.abortStart = true
		}
		return
	}

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.engine.Stop()
	m.running = false
	observability.RecordMonitoringRunning(false)
	m.logger.Printf("activity monitoring stopped")
}

// Running reports whether samples are currently being delivered.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns availability, authorization and engine state.
func (m *Monitor) Status() Status {
	return Status{
		Running:       m.Running(),
		Available:     m.source.Available(),
		Authorization: m.source.AuthorizationStatus(),
		Detection:     m.engine.Snapshot(),
	}
}

func (m *Monitor) authorize(ctx context.Context) bool {
	switch m.source.AuthorizationStatus() {
	case domain.AuthorizationAuthorized:
		return true
	case domain.AuthorizationDenied:
		m.logger.Printf("activity sensing authorization denied, monitoring not started")
		return false
	}

	granted, err := m.source.RequestAuthorization(ctx)
	if err != nil {
		m.logger.Printf("authorization request failed: %v", err)
		return false
	}
	if !granted {
		m.logger.Printf("activity sensing authorization not granted, monitoring not started")
	}
	return granted
}

// handleSample classifies against the live settings. It holds mu so that no sample can reach
// the engine after Stop has finalized it.
func (m *Monitor) handleSample(sample domain.RawSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	activity, ok := domain.Classify(sample, m.settings.EnablementConfig())
	m.engine.HandleSample(activity, ok)
}
