// Package detection implements the activity confirmation state machine. It turns classified
// samples and periodic history checks into exactly one confirmed/ended notification pair per
// sustained activity episode.
package detection

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/activitymonitor/internal/clock"
	"example.com/activitymonitor/internal/domain"
)

// State is the engine's externally observable phase.
type State string

const (
	StateIdle          State = "idle"
	StateTracking      State = "tracking"
	StateStoppingGrace State = "stopping_grace"
)

// SampleSource answers historical sample queries used by the validation timer.
type SampleSource interface {
	Query(ctx context.Context, from, to time.Time) ([]domain.RawSample, error)
}

// ConfigProvider exposes the live user configuration.
type ConfigProvider interface {
	EnablementConfig() domain.EnablementConfig
}

// EpisodeLog records confirmed episodes.
type EpisodeLog interface {
	Append(entry domain.EpisodeLogEntry)
	Finalize(activity domain.ActivityType, now time.Time) bool
}

// Listener is notified when an episode is confirmed and when it ends. Callbacks run while the
// engine holds its lock; they must not block or call back into the engine.
type Listener interface {
	OnActivityConfirmed(activity domain.ActivityType)
	OnActivityEnded(activity domain.ActivityType)
}

// EngineConfig holds the fixed tuning constants of the state machine.
type EngineConfig struct {
	ValidationInterval  time.Duration
	LookBack            time.Duration
	RequiredValidations int
	QueryTimeout        time.Duration
}

// DefaultEngineConfig returns the production tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ValidationInterval:  20 * time.Second,
		LookBack:            30 * time.Second,
		RequiredValidations: 2,
		QueryTimeout:        10 * time.Second,
	}
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	State         State             `json:"state"`
	Candidate     *domain.Candidate `json:"candidate,omitempty"`
	Confirmed     bool              `json:"confirmed"`
	GraceDeadline *time.Time        `json:"grace_deadline,omitempty"`
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithListener registers a listener for confirmed/ended notifications.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// WithConfig overrides the default tuning. Zero fields keep their defaults.
func WithConfig(cfg EngineConfig) Option {
	return func(e *Engine) {
		if cfg.ValidationInterval > 0 {
			e.cfg.ValidationInterval = cfg.ValidationInterval
		}
		if cfg.LookBack > 0 {
			e.cfg.LookBack = cfg.LookBack
		}
		if cfg.RequiredValidations > 0 {
			e.cfg.RequiredValidations = cfg.RequiredValidations
		}
		if cfg.QueryTimeout > 0 {
			e.cfg.QueryTimeout = cfg.QueryTimeout
		}
	}
}

// timerSlot holds one of the engine's three timers. seq is bumped on every arm and cancel so a
// callback that was already in flight when its timer was superseded can recognise itself as stale.
type timerSlot struct {
	name  string
	timer clock.Timer
	seq   uint64
}

// Engine is the confirmation state machine. All state lives behind mu; sample, timer and
// query-result paths each take it before touching any field.
type Engine struct {
	cfg       EngineConfig
	source    SampleSource
	settings  ConfigProvider
	episodes  EpisodeLog
	listeners []Listener
	clock     clock.Clock
	logger    *log.Logger
	spawn     func(func())

	mu            sync.Mutex
	state         State
	candidate     *domain.Candidate
	confirmed     bool
	generation    uint64
	graceDeadline time.Time
	validation    timerSlot
	confirmation  timerSlot
	grace         timerSlot
}

// NewEngine constructs an idle Engine.
func NewEngine(source SampleSource, settings ConfigProvider, episodes EpisodeLog, opts ...Option) *Engine {
	e := &Engine{
		cfg:          DefaultEngineConfig(),
		source:       source,
		settings:     settings,
		episodes:     episodes,
		clock:        clock.System(),
		logger:       log.New(log.Writer(), "[detection] ", log.LstdFlags|log.Lshortfile),
		spawn:        func(fn func()) { go fn() },
		state:        StateIdle,
		validation:   timerSlot{name: "validation"},
		confirmation: timerSlot{name: "confirmation"},
		grace:        timerSlot{name: "stop_grace"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleSample feeds one classified sample into the state machine. ok=false means the sample
// did not classify to any enabled activity.
func (e *Engine) HandleSample(activity domain.ActivityType, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !ok {
		e.noActivityLocked("sample")
		return
	}

	switch {
	case e.candidate == nil:
		e.beginLocked(activity)
	case e.candidate.Activity == activity:
		e.continueLocked()
	default:
		e.logger.Printf("activity changed from %s to %s", e.candidate.Activity, activity)
		e.finalizeLocked("superseded")
		e.beginLocked(activity)
	}
}

// Stop cancels all timers and finalizes any open candidate.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finalizeLocked("monitoring stopped")
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{State: e.state, Confirmed: e.confirmed}
	if e.candidate != nil {
		c := *e.candidate
		snap.Candidate = &c
	}
	if e.state == StateStoppingGrace {
		deadline := e.graceDeadline
		snap.GraceDeadline = &deadline
	}
	return snap
}

func (e *Engine) beginLocked(activity domain.ActivityType) {
	cfg := e.settings.EnablementConfig()

	e.generation++
	e.candidate = &domain.Candidate{
		Activity:        activity,
		StartedAt:       e.clock.Now(),
		ValidationCount: 1,
	}
	e.confirmed = false
	e.state = StateTracking

	e.armLocked(&e.validation, e.cfg.ValidationInterval, e.onValidationTick)
	e.armLocked(&e.confirmation, cfg.MinimumSustain, func() func() {
		e.onConfirmationDue(activity)
		return nil
	})

	recordDetected(activity)
	e.logger.Printf("tracking %s (confirm after %s, %d validations required)", activity, cfg.MinimumSustain, e.cfg.RequiredValidations)
}

func (e *Engine) continueLocked() {
	e.candidate.ValidationCount++
	if e.grace.timer != nil {
		e.cancelLocked(&e.grace)
		e.logger.Printf("%s resumed, stop cancelled", e.candidate.Activity)
	}
	e.state = StateTracking
}

// noActivityLocked starts the stop-grace countdown. A countdown already in progress keeps its
// original deadline so repeated misses cannot postpone the stop indefinitely.
func (e *Engine) noActivityLocked(reason string) {
	if e.candidate == nil {
		return
	}
	e.state = StateStoppingGrace
	if e.grace.timer != nil {
		return
	}

	stopGrace := e.settings.EnablementConfig().StopGrace
	e.graceDeadline = e.clock.Now().Add(stopGrace)
	e.armLocked(&e.grace, stopGrace, func() func() {
		e.finalizeLocked("stop grace elapsed")
		return nil
	})
	e.logger.Printf("no %s detected (%s), stopping in %s", e.candidate.Activity, reason, stopGrace)
}

func (e *Engine) onValidationTick() func() {
	if e.candidate == nil {
		return nil
	}
	e.armLocked(&e.validation, e.cfg.ValidationInterval, e.onValidationTick)

	generation := e.generation
	activity := e.candidate.Activity
	to := e.clock.Now()
	from := to.Add(-e.cfg.LookBack)
	return func() {
		e.spawn(func() {
			e.validate(generation, activity, from, to)
		})
	}
}

// validate runs outside the lock and hands its verdict back into the critical section.
func (e *Engine) validate(generation uint64, activity domain.ActivityType, from, to time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.QueryTimeout)
	samples, err := e.source.Query(ctx, from, to)
	cancel()

	matched := false
	outcome := validationMiss
	if err != nil {
		outcome = validationError
		e.logger.Printf("history query failed: %v", err)
	} else if latest, ok := latestSample(samples); ok {
		got, classified := domain.Classify(latest, e.settings.EnablementConfig())
		matched = classified && got == activity
	}
	if matched {
		outcome = validationMatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.candidate == nil || e.generation != generation {
		recordValidation(activity, validationStale)
		return
	}
	recordValidation(activity, outcome)

	if !matched {
		e.noActivityLocked("validation")
		return
	}
	e.candidate.ValidationCount++
	e.logger.Printf("%s validated (%d/%d)", activity, e.candidate.ValidationCount, e.cfg.RequiredValidations)
}

func (e *Engine) onConfirmationDue(armed domain.ActivityType) {
	if e.candidate == nil || e.candidate.Activity != armed {
		return
	}
	if e.candidate.ValidationCount < e.cfg.RequiredValidations {
		recordAbandoned(armed)
		e.logger.Printf("%s not confirmed: %d/%d validations", armed, e.candidate.ValidationCount, e.cfg.RequiredValidations)
		return
	}

	overrideName := e.settings.EnablementConfig().OverrideName(armed)
	if overrideName == "" {
		e.logger.Printf("%s confirmed but no override configured", armed)
		return
	}

	e.confirmed = true
	for _, l := range e.listeners {
		l.OnActivityConfirmed(armed)
	}
	e.episodes.Append(domain.NewEpisode(armed, e.candidate.StartedAt, overrideName))
	recordConfirmed(armed)
	e.logger.Printf("%s confirmed, override %q applied", armed, overrideName)
}

// finalizeLocked closes out the candidate, confirmed or not, and returns the engine to idle.
func (e *Engine) finalizeLocked(reason string) {
	e.cancelLocked(&e.validation)
	e.cancelLocked(&e.confirmation)
	e.cancelLocked(&e.grace)
	e.graceDeadline = time.Time{}

	if e.candidate == nil {
		e.state = StateIdle
		return
	}

	activity := e.candidate.Activity
	closed := e.episodes.Finalize(activity, e.clock.Now())
	// Listeners hear about every end, including candidates that were never confirmed.
	for _, l := range e.listeners {
		l.OnActivityEnded(activity)
	}
	recordFinalized(activity, closed)
	e.logger.Printf("%s ended (%s, logged=%t)", activity, reason, closed)

	e.candidate = nil
	e.confirmed = false
	e.state = StateIdle
}

// armLocked (re)starts a timer slot. fire runs with the lock held; the func it returns, if
// any, runs after the lock is released.
func (e *Engine) armLocked(slot *timerSlot, d time.Duration, fire func() func()) {
	e.cancelLocked(slot)
	seq := slot.seq
	slot.timer = e.clock.AfterFunc(d, func() {
		e.mu.Lock()
		if slot.seq != seq {
			e.mu.Unlock()
			return
		}
		slot.timer = nil
		after := fire()
		e.mu.Unlock()

		if after != nil {
			after()
		}
	})
}

func (e *Engine) cancelLocked(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.seq++
}

// latestSample picks the most recent sample; among equal timestamps the later element wins.
func latestSample(samples []domain.RawSample) (domain.RawSample, bool) {
	if len(samples) == 0 {
		return domain.RawSample{}, false
	}
	latest := samples[0]
	for _, s := range samples[1:] {
		if !s.RecordedAt.Before(latest.RecordedAt) {
			latest = s
		}
	}
	return latest, true
}
