package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/activitymonitor/internal/clock"
	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/episodelog"
	"example.com/activitymonitor/internal/settings"
)

var testStart = time.Date(2025, time.October, 27, 7, 30, 0, 0, time.UTC)

func testConfig() domain.EnablementConfig {
	return domain.EnablementConfig{
		Walking:        domain.ActivitySettings{Enabled: true, OverrideName: "Walk"},
		Running:        domain.ActivitySettings{Enabled: true, OverrideName: "Run"},
		Cycling:        domain.ActivitySettings{Enabled: false},
		Other:          domain.ActivitySettings{Enabled: false},
		MinimumSustain: 5 * time.Minute,
		StopGrace:      2 * time.Minute,
	}
}

type fixture struct {
	monitor  *Monitor
	source   *stubSource
	engine   *detection.Engine
	clock    *clock.Manual
	episodes *episodelog.Log
	listener *recordingListener
	settings *settings.Store
}

func newFixture(t *testing.T, source *stubSource) *fixture {
	t.Helper()

	logger := log.New(testWriter{t}, "", 0)
	episodes, err := episodelog.NewLog(context.Background(), episodelog.NewMemoryStore(), episodelog.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(episodes.Wait)

	f := &fixture{
		source:   source,
		clock:    clock.NewManual(testStart),
		episodes: episodes,
		listener: &recordingListener{},
		settings: settings.NewStore(testConfig()),
	}
	f.engine = detection.NewEngine(source, f.settings, episodes,
		detection.WithClock(f.clock),
		detection.WithLogger(logger),
		detection.WithListener(f.listener),
		detection.WithConfig(detection.EngineConfig{ValidationInterval: time.Hour}),
	)
	f.monitor = New(source, f.engine, f.settings, WithLogger(logger))
	return f
}

func medium(s domain.RawSample) domain.RawSample {
	s.Confidence = domain.ConfidenceMedium
	s.RecordedAt = testStart
	return s
}

func TestStartSubscribesWhenAuthorized(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})

	f.monitor.Start(context.Background())

	require.True(t, f.monitor.Running())
	require.Equal(t, 1, f.source.subscribeCount())
	require.Zero(t, f.source.requestCount(), "already authorized sources are not asked again")
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})

	f.monitor.Start(context.Background())
	f.monitor.Start(context.Background())

	require.Equal(t, 1, f.source.subscribeCount())
}

func TestStartWhenUnavailableIsNoop(t *testing.T) {
	f := newFixture(t, &stubSource{available: false, status: domain.AuthorizationAuthorized})

	f.monitor.Start(context.Background())

	require.False(t, f.monitor.Running())
	require.Zero(t, f.source.subscribeCount())
}

func TestStartWhenDeniedIsNoop(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationDenied})

	f.monitor.Start(context.Background())

	require.False(t, f.monitor.Running())
	require.Zero(t, f.source.requestCount())
	require.Zero(t, f.source.subscribeCount())
}

func TestStartRequestsAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		grant   bool
		err     error
		running bool
	}{
		{name: "granted", grant: true, running: true},
		{name: "refused", grant: false},
		{name: "request error", grant: true, err: errors.New("prompt dismissed")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &stubSource{
				available: true,
				status:    domain.AuthorizationNotDetermined,
				grant:     tc.grant,
				reqErr:    tc.err,
			})

			f.monitor.Start(context.Background())

			require.Equal(t, tc.running, f.monitor.Running())
			require.Equal(t, 1, f.source.requestCount())
		})
	}
}

func TestStopDuringAuthorizationAbortsStart(t *testing.T) {
	source := &stubSource{available: true, status: domain.AuthorizationNotDetermined, grant: true}
	f := newFixture(t, source)
	source.onRequest = f.monitor.Stop

	f.monitor.Start(context.Background())

	require.False(t, f.monitor.Running())
	require.Zero(t, source.subscribeCount())
}

func TestSamplesAreClassifiedAgainstLiveSettings(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})
	f.monitor.Start(context.Background())

	f.source.deliver(medium(domain.RawSample{Cycling: true}))
	require.Equal(t, detection.StateIdle, f.engine.Snapshot().State, "cycling is disabled")

	cfg := testConfig()
	cfg.Cycling = domain.ActivitySettings{Enabled: true, OverrideName: "Ride"}
	require.NoError(t, f.settings.Update(cfg))

	f.source.deliver(medium(domain.RawSample{Cycling: true}))
	snap := f.engine.Snapshot()
	require.Equal(t, detection.StateTracking, snap.State)
	require.NotNil(t, snap.Candidate)
	require.Equal(t, domain.ActivityCycling, snap.Candidate.Activity)
}

func TestStopFinalizesOpenCandidateOnce(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})
	f.monitor.Start(context.Background())

	f.source.deliver(medium(domain.RawSample{Walking: true}))
	f.clock.Advance(time.Minute)
	f.source.deliver(medium(domain.RawSample{Walking: true}))
	f.clock.Advance(4 * time.Minute)
	require.Equal(t, []string{"confirmed:walking"}, f.listener.events())

	f.monitor.Stop()
	f.monitor.Stop()

	require.False(t, f.monitor.Running())
	require.Equal(t, 1, f.source.cancelCount())
	require.Equal(t, []string{"confirmed:walking", "ended:walking"}, f.listener.events())
	require.Equal(t, detection.StateIdle, f.engine.Snapshot().State)
	require.Zero(t, f.clock.Pending())

	entries := f.episodes.List()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].EndedAt)
}

func TestNoSampleReachesEngineAfterStop(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})
	f.monitor.Start(context.Background())
	handler := f.source.handler()

	f.monitor.Stop()
	handler(medium(domain.RawSample{Running: true}))

	require.Equal(t, detection.StateIdle, f.engine.Snapshot().State)
	require.Empty(t, f.listener.events())
}

func TestStatusReportsSourceAndEngine(t *testing.T) {
	f := newFixture(t, &stubSource{available: true, status: domain.AuthorizationAuthorized})
	f.monitor.Start(context.Background())
	f.source.deliver(medium(domain.RawSample{Running: true}))

	status := f.monitor.Status()
	require.True(t, status.Running)
	require.True(t, status.Available)
	require.Equal(t, domain.AuthorizationAuthorized, status.Authorization)
	require.Equal(t, detection.StateTracking, status.Detection.State)
}

type stubSource struct {
	available bool
	status    domain.AuthorizationStatus
	grant     bool
	reqErr    error
	onRequest func()

	mu         sync.Mutex
	fn         func(domain.RawSample)
	subscribes int
	cancels    int
	requests   int
}

func (s *stubSource) Query(context.Context, time.Time, time.Time) ([]domain.RawSample, error) {
	return nil, nil
}

func (s *stubSource) Available() bool { return s.available }

func (s *stubSource) AuthorizationStatus() domain.AuthorizationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubSource) RequestAuthorization(context.Context) (bool, error) {
	s.mu.Lock()
	s.requests++
	hook := s.onRequest
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.reqErr != nil {
		return false, s.reqErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant {
		s.status = domain.AuthorizationAuthorized
	} else {
		s.status = domain.AuthorizationDenied
	}
	return s.grant, nil
}

func (s *stubSource) Subscribe(fn func(domain.RawSample)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	s.fn = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancels++
		s.fn = nil
	}
}

func (s *stubSource) handler() func(domain.RawSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn
}

func (s *stubSource) deliver(sample domain.RawSample) {
	if fn := s.handler(); fn != nil {
		fn(sample)
	}
}

func (s *stubSource) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribes
}

func (s *stubSource) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func (s *stubSource) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
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
