package detection

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitymonitor/internal/clock"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/episodelog"
)

var testStart = time.Date(2025, time.October, 27, 7, 30, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	clock    *clock.Manual
	log      *episodelog.Log
	listener *recordingListener
	source   *stubSource
	settings *staticSettings
	spawned  []func()
}

func newHarness(t *testing.T, tuning ...EngineConfig) *harness {
	t.Helper()

	h := &harness{
		clock:    clock.NewManual(testStart),
		listener: &recordingListener{},
		source:   &stubSource{},
		settings: &staticSettings{cfg: domain.EnablementConfig{
			Walking:        domain.ActivitySettings{Enabled: true, OverrideName: "Walk"},
			Running:        domain.ActivitySettings{Enabled: true, OverrideName: "Run"},
			Cycling:        domain.ActivitySettings{Enabled: true, OverrideName: "Ride"},
			Other:          domain.ActivitySettings{Enabled: true},
			MinimumSustain: 5 * time.Minute,
			StopGrace:      2 * time.Minute,
		}},
	}

	logger := log.New(testWriter{t}, "", 0)
	var err error
	h.log, err = episodelog.NewLog(context.Background(), episodelog.NewMemoryStore(), episodelog.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(h.log.Wait)

	opts := []Option{
		WithClock(h.clock),
		WithLogger(logger),
		WithListener(h.listener),
		// Keep periodic validation out of the way unless a test opts in.
		WithConfig(EngineConfig{ValidationInterval: time.Hour}),
	}
	for _, cfg := range tuning {
		opts = append(opts, WithConfig(cfg))
	}
	h.engine = NewEngine(h.source, h.settings, h.log, opts...)
	h.engine.spawn = func(fn func()) { fn() }
	return h
}

// deferQueries parks validation queries instead of running them inline.
func (h *harness) deferQueries() {
	h.engine.spawn = func(fn func()) { h.spawned = append(h.spawned, fn) }
}

func (h *harness) sample(activity domain.ActivityType) {
	h.engine.HandleSample(activity, true)
}

func (h *harness) noActivity() {
	h.engine.HandleSample("", false)
}

func TestConfirmationAbandonedWithTooFewValidations(t *testing.T) {
	h := newHarness(t, EngineConfig{RequiredValidations: 3})

	h.sample(domain.ActivityRunning)
	h.sample(domain.ActivityRunning)
	h.clock.Advance(5 * time.Minute)

	require.Empty(t, h.listener.events())
	require.Empty(t, h.log.List())

	snap := h.engine.Snapshot()
	require.Equal(t, StateTracking, snap.State)
	require.NotNil(t, snap.Candidate)
	require.Equal(t, 2, snap.Candidate.ValidationCount)
	require.False(t, snap.Confirmed)
}

func TestSingleSampleIsNotConfirmed(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.clock.Advance(5 * time.Minute)

	require.Empty(t, h.listener.events())
	require.Empty(t, h.log.List())
}

func TestConfirmationAfterRequiredValidations(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.clock.Advance(time.Minute)
	h.sample(domain.ActivityRunning)
	h.clock.Advance(4 * time.Minute)

	require.Equal(t, []string{"confirmed:running"}, h.listener.events())

	entries := h.log.List()
	require.Len(t, entries, 1)
	require.Equal(t, domain.ActivityRunning, entries[0].ActivityType)
	require.True(t, entries[0].StartedAt.Equal(testStart))
	require.Nil(t, entries[0].EndedAt)
	require.Equal(t, "Run", entries[0].OverrideName)

	// The confirmation timer is one-shot.
	h.sample(domain.ActivityRunning)
	h.clock.Advance(30 * time.Minute)
	require.Equal(t, []string{"confirmed:running"}, h.listener.events())
	require.Len(t, h.log.List(), 1)
	require.True(t, h.engine.Snapshot().Confirmed)
}

func TestStopGraceFinalizesConfirmedEpisode(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.sample(domain.ActivityRunning)
	h.clock.Advance(5 * time.Minute)

	h.noActivity()
	snap := h.engine.Snapshot()
	require.Equal(t, StateStoppingGrace, snap.State)
	require.NotNil(t, snap.GraceDeadline)
	stopAt := testStart.Add(7 * time.Minute)
	require.True(t, snap.GraceDeadline.Equal(stopAt))

	h.clock.Advance(2 * time.Minute)

	require.Equal(t, []string{"confirmed:running", "ended:running"}, h.listener.events())
	entries := h.log.List()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].EndedAt)
	require.True(t, entries[0].EndedAt.Equal(stopAt))

	snap = h.engine.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Nil(t, snap.Candidate)
	require.Zero(t, h.clock.Pending())
}

func TestSameActivityCancelsStopGrace(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityWalking)
	h.sample(domain.ActivityWalking)
	h.noActivity()
	h.clock.Advance(time.Minute)
	h.sample(domain.ActivityWalking)

	require.Equal(t, StateTracking, h.engine.Snapshot().State)

	h.clock.Advance(10 * time.Minute)
	require.Equal(t, []string{"confirmed:walking"}, h.listener.events())
	require.Equal(t, 3, h.engine.Snapshot().Candidate.ValidationCount)
}

func TestRepeatedMissesKeepOriginalGraceDeadline(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityCycling)
	h.noActivity()
	h.clock.Advance(90 * time.Second)
	h.noActivity()
	h.clock.Advance(30 * time.Second)

	require.Equal(t, []string{"ended:cycling"}, h.listener.events())
	require.Equal(t, StateIdle, h.engine.Snapshot().State)
}

func TestNoActivityWithoutCandidateIsNoop(t *testing.T) {
	h := newHarness(t)

	h.noActivity()
	require.Equal(t, StateIdle, h.engine.Snapshot().State)
	require.Zero(t, h.clock.Pending())
	require.Empty(t, h.listener.events())
}

func TestSwitchingActivityFinalizesPreviousFirst(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.sample(domain.ActivityRunning)
	h.clock.Advance(5 * time.Minute)

	h.sample(domain.ActivityWalking)
	require.Equal(t, []string{"confirmed:running", "ended:running"}, h.listener.events())

	snap := h.engine.Snapshot()
	require.Equal(t, StateTracking, snap.State)
	require.Equal(t, domain.ActivityWalking, snap.Candidate.Activity)
	require.Equal(t, 1, snap.Candidate.ValidationCount)

	h.sample(domain.ActivityWalking)
	h.clock.Advance(5 * time.Minute)
	require.Equal(t, []string{"confirmed:running", "ended:running", "confirmed:walking"}, h.listener.events())

	entries := h.log.List()
	require.Len(t, entries, 2)
	require.Equal(t, domain.ActivityWalking, entries[0].ActivityType)
	require.Nil(t, entries[0].EndedAt)
	require.Equal(t, domain.ActivityRunning, entries[1].ActivityType)
	require.NotNil(t, entries[1].EndedAt)
}

func TestSwitchingUnconfirmedActivityStillReportsEnd(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.clock.Advance(time.Minute)
	h.sample(domain.ActivityCycling)

	require.Equal(t, []string{"ended:running"}, h.listener.events())
	require.Empty(t, h.log.List())

	// The running confirmation timer was cancelled with its candidate.
	h.clock.Advance(4 * time.Minute)
	require.Equal(t, []string{"ended:running"}, h.listener.events())
}

func TestStopFinalizesOnceAndIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)
	h.sample(domain.ActivityRunning)
	h.clock.Advance(5 * time.Minute)
	h.noActivity()

	h.engine.Stop()
	h.engine.Stop()

	require.Equal(t, []string{"confirmed:running", "ended:running"}, h.listener.events())
	require.Zero(t, h.clock.Pending())
	require.Equal(t, StateIdle, h.engine.Snapshot().State)

	h.clock.Advance(time.Hour)
	require.Equal(t, []string{"confirmed:running", "ended:running"}, h.listener.events())

	entries := h.log.List()
	require.Len(t, entries, 1)
	require.True(t, entries[0].EndedAt.Equal(testStart.Add(5*time.Minute)))
}

func TestMissingOverrideNameSkipsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.settings.cfg.Other.OverrideName = ""

	h.sample(domain.ActivityOther)
	h.sample(domain.ActivityOther)
	h.clock.Advance(5 * time.Minute)

	require.Empty(t, h.listener.events())
	require.Empty(t, h.log.List())

	h.engine.Stop()
	require.Equal(t, []string{"ended:other"}, h.listener.events())
}

func TestValidationTickCountsMatchingHistory(t *testing.T) {
	h := newHarness(t, EngineConfig{ValidationInterval: 20 * time.Second})
	h.source.samples = []domain.RawSample{
		{Walking: true, Confidence: domain.ConfidenceMedium, RecordedAt: testStart},
		{Running: true, Confidence: domain.ConfidenceMedium, RecordedAt: testStart.Add(10 * time.Second)},
	}

	h.sample(domain.ActivityRunning)
	h.clock.Advance(20 * time.Second)

	require.Equal(t, 2, h.engine.Snapshot().Candidate.ValidationCount)
	from, to := h.source.lastWindow()
	require.True(t, to.Equal(testStart.Add(20*time.Second)))
	require.Equal(t, 30*time.Second, to.Sub(from))

	h.clock.Advance(5*time.Minute - 20*time.Second)
	require.Equal(t, []string{"confirmed:running"}, h.listener.events())
	require.Equal(t, StateTracking, h.engine.Snapshot().State)
}

func TestValidationMissStartsStopGrace(t *testing.T) {
	h := newHarness(t, EngineConfig{ValidationInterval: 20 * time.Second})

	h.sample(domain.ActivityRunning)
	h.clock.Advance(20 * time.Second)

	snap := h.engine.Snapshot()
	require.Equal(t, StateStoppingGrace, snap.State)
	require.Equal(t, 1, snap.Candidate.ValidationCount)
	require.True(t, snap.GraceDeadline.Equal(testStart.Add(140*time.Second)))

	// Further misses do not move the deadline.
	h.clock.Advance(2 * time.Minute)
	require.Equal(t, []string{"ended:running"}, h.listener.events())
	require.Zero(t, h.clock.Pending())
}

func TestValidationQueryErrorTreatedAsMiss(t *testing.T) {
	h := newHarness(t, EngineConfig{ValidationInterval: 20 * time.Second})
	h.source.err = errors.New("sensor offline")
	h.source.samples = []domain.RawSample{{Running: true, Confidence: domain.ConfidenceMedium}}

	h.sample(domain.ActivityRunning)
	h.clock.Advance(20 * time.Second)

	require.Equal(t, StateStoppingGrace, h.engine.Snapshot().State)
}

func TestValidationLowConfidenceHistoryIsMiss(t *testing.T) {
	h := newHarness(t, EngineConfig{ValidationInterval: 20 * time.Second})
	h.source.samples = []domain.RawSample{{Running: true, Confidence: domain.ConfidenceHigh, RecordedAt: testStart}}

	h.sample(domain.ActivityRunning)
	h.clock.Advance(20 * time.Second)

	snap := h.engine.Snapshot()
	require.Equal(t, StateStoppingGrace, snap.State)
	require.Equal(t, 1, snap.Candidate.ValidationCount)
}

func TestStaleValidationResultIsDiscarded(t *testing.T) {
	h := newHarness(t, EngineConfig{ValidationInterval: 20 * time.Second})
	h.deferQueries()
	h.source.samples = []domain.RawSample{{Running: true, Confidence: domain.ConfidenceMedium}}

	h.sample(domain.ActivityRunning)
	h.clock.Advance(20 * time.Second)
	require.Len(t, h.spawned, 1)

	h.engine.Stop()
	h.sample(domain.ActivityRunning)

	h.spawned[0]()

	snap := h.engine.Snapshot()
	require.Equal(t, StateTracking, snap.State)
	require.Equal(t, 1, snap.Candidate.ValidationCount)
}

func TestConcurrentSamplesAreSerialized(t *testing.T) {
	h := newHarness(t)

	h.sample(domain.ActivityRunning)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.sample(domain.ActivityRunning)
		}()
	}
	wg.Wait()

	require.Equal(t, 51, h.engine.Snapshot().Candidate.ValidationCount)
}

func TestLatestSamplePrefersNewestTimestamp(t *testing.T) {
	_, ok := latestSample(nil)
	require.False(t, ok)

	got, ok := latestSample([]domain.RawSample{
		{Cycling: true, RecordedAt: testStart.Add(time.Minute)},
		{Walking: true, RecordedAt: testStart},
	})
	require.True(t, ok)
	require.True(t, got.Cycling)
}

type staticSettings struct {
	cfg domain.EnablementConfig
}

func (s *staticSettings) EnablementConfig() domain.EnablementConfig {
	return s.cfg
}

type stubSource struct {
	mu      sync.Mutex
	samples []domain.RawSample
	err     error
	from    time.Time
	to      time.Time
}

func (s *stubSource) Query(_ context.Context, from, to time.Time) ([]domain.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to = from, to
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.RawSample(nil), s.samples...), nil
}

func (s *stubSource) lastWindow() (time.Time, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, s.to
}

type recordingListener struct {
	mu  sync.Mutex
	log []string
}

func (l *recordingListener) OnActivityConfirmed(activity domain.ActivityType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, "confirmed:"+string(activity))
}

func (l *recordingListener) OnActivityEnded(activity domain.ActivityType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, "ended:"+string(activity))
}

func (l *recordingListener) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.log...)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
