package samplefeed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/activitymonitor/internal/domain"
)

// ErrUnavailable is returned by Query when the feed is not configured.
var ErrUnavailable = errors.New("activity sample feed unavailable")

// FeedOption configures optional behaviour for the Feed.
type FeedOption func(*Feed)

// WithLogger overrides the logger used by the Feed.
func WithLogger(logger *log.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithAvailability marks whether the feed has a working upstream.
func WithAvailability(available bool) FeedOption {
	return func(f *Feed) {
		f.available = available
	}
}

// WithAuthorizationPolicy decides how a pending authorization request is answered.
func WithAuthorizationPolicy(grant bool) FeedOption {
	return func(f *Feed) {
		f.grant = grant
	}
}

// Feed is the sample source consumed by the monitor: it records every handled sample into a
// History and fans it out to live subscribers.
type Feed struct {
	history   History
	logger    *log.Logger
	available bool
	grant     bool

	mu          sync.RWMutex
	status      domain.AuthorizationStatus
	subscribers map[int]func(domain.RawSample)
	nextID      int
}

// NewFeed constructs a Feed backed by the given history.
func NewFeed(history History, opts ...FeedOption) *Feed {
	f := &Feed{
		history:     history,
		logger:      log.New(log.Writer(), "[samplefeed] ", log.LstdFlags|log.Lshortfile),
		available:   true,
		status:      domain.AuthorizationNotDetermined,
		subscribers: make(map[int]func(domain.RawSample)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Available reports whether samples can be delivered at all.
func (f *Feed) Available() bool {
	return f.available
}

// AuthorizationStatus returns the current authorization state.
func (f *Feed) AuthorizationStatus() domain.AuthorizationStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// RequestAuthorization resolves a pending authorization according to the feed's policy. An
// already decided status is returned unchanged.
func (f *Feed) RequestAuthorization(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == domain.AuthorizationNotDetermined {
		if f.grant {
			f.status = domain.AuthorizationAuthorized
		} else {
			f.status = domain.AuthorizationDenied
		}
		f.logger.Printf("authorization resolved: %s", f.status)
	}
	return f.status == domain.AuthorizationAuthorized, nil
}

// Subscribe registers fn for live samples.
func (f *Feed) Subscribe(fn func(domain.RawSample)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	f.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, id)
			f.mu.Unlock()
		})
	}
}

// Query returns recorded samples within [from, to].
func (f *Feed) Query(ctx context.Context, from, to time.Time) ([]domain.RawSample, error) {
	if !f.available {
		return nil, ErrUnavailable
	}
	samples, err := f.history.Between(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sample history: %w", err)
	}
	return samples, nil
}

// Handle implements Handler for the Kafka processor.
func (f *Feed) Handle(ctx context.Context, msg Message) error {
	return f.Publish(ctx, msg.Sample)
}

// Publish records a sample and delivers it to subscribers. A history write failure is
// reported but does not stop live delivery.
func (f *Feed) Publish(ctx context.Context, sample domain.RawSample) error {
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}

	recordErr := f.history.Record(ctx, sample)
	if recordErr != nil {
		f.logger.Printf("warning: could not record sample: %v", recordErr)
	}

	f.mu.RLock()
	targets := make([]func(domain.RawSample), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		targets = append(targets, fn)
	}
	f.mu.RUnlock()

	for _, fn := range targets {
		fn(sample)
	}
	recordDelivered(len(targets))

	if recordErr != nil {
		return fmt.Errorf("record sample: %w", recordErr)
	}
	return nil
}
