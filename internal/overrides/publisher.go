// Package overrides applies episode overrides downstream by publishing confirmation and end
// events to Kafka.
package overrides

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"example.com/activitymonitor/internal/clock"
	"example.com/activitymonitor/internal/detection"
	"example.com/activitymonitor/internal/domain"
	"example.com/activitymonitor/internal/events"
)

const defaultDrainTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

type record struct {
	eventType string
	key       string
	payload   any
}

// Option configures optional behaviour for the Publisher.
type Option func(*Publisher)

// WithLogger overrides the publisher logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) {
		p.clock = c
	}
}

// WithRegistry enables Schema Registry framing. Without a registry payloads are written as
// plain JSON.
func WithRegistry(registry schemaRegistrar) Option {
	return func(p *Publisher) {
		p.registry = registry
	}
}

// WithBuffer sets the queue capacity. Events beyond it are dropped.
func WithBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan record, size)
		}
	}
}

// Publisher implements detection.Listener. Notifications are queued without blocking the engine
// and delivered by the loop started with Start.
type Publisher struct {
	producer messageWriter
	registry schemaRegistrar
	settings detection.ConfigProvider
	topic    string
	clock    clock.Clock
	logger   *log.Logger

	queue            chan record
	schemaIDCache    sync.Map
	drainTimeout     time.Duration
	shutdownComplete chan struct{}
}

// NewPublisher constructs a Publisher writing to topic. settings supplies the override name
// stamped on each event.
func NewPublisher(producer messageWriter, settings detection.ConfigProvider, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:         producer,
		settings:         settings,
		topic:            topic,
		clock:            clock.System(),
		logger:           log.New(log.Writer(), "[overrides] ", log.LstdFlags|log.Lshortfile),
		queue:            make(chan record, 64),
		drainTimeout:     defaultDrainTimeout,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnActivityConfirmed implements detection.Listener.
func (p *Publisher) OnActivityConfirmed(activity domain.ActivityType) {
	p.enqueue(record{
		eventType: events.TypeEpisodeConfirmed,
		key:       string(activity),
		payload: events.EpisodeConfirmed{
			EventID:      uuid.NewString(),
			ActivityType: string(activity),
			OverrideName: p.settings.EnablementConfig().OverrideName(activity),
			OccurredAt:   p.clock.Now().UTC(),
			Version:      events.SchemaVersion,
		},
	})
}

// OnActivityEnded implements detection.Listener.
func (p *Publisher) OnActivityEnded(activity domain.ActivityType) {
	p.enqueue(record{
		eventType: events.TypeEpisodeEnded,
		key:       string(activity),
		payload: events.EpisodeEnded{
			EventID:      uuid.NewString(),
			ActivityType: string(activity),
			OverrideName: p.settings.EnablementConfig().OverrideName(activity),
			OccurredAt:   p.clock.Now().UTC(),
			Version:      events.SchemaVersion,
		},
	})
}

func (p *Publisher) enqueue(rec record) {
	select {
	case p.queue <- rec:
		queueDepthGauge.Set(float64(len(p.queue)))
	default:
		droppedCounter.Inc()
		p.logger.Printf("publish queue full, dropping %s for %s", rec.eventType, rec.key)
	}
}

// Start runs the delivery loop until ctx is cancelled, then flushes what is still queued. It
// should be called in a goroutine.
func (p *Publisher) Start(ctx context.Context) {
	defer close(p.shutdownComplete)

	for {
		select {
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return
		case rec := <-p.queue:
			queueDepthGauge.Set(float64(len(p.queue)))
			p.publish(ctx, rec)
		}
	}
}

// Wait blocks until Start has returned.
func (p *Publisher) Wait() {
	<-p.shutdownComplete
}

func (p *Publisher) drain(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, p.drainTimeout)
	defer cancel()

	for {
		select {
		case rec := <-p.queue:
			queueDepthGauge.Set(float64(len(p.queue)))
			p.publish(ctx, rec)
		default:
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec record) {
	start := time.Now()
	defer func() {
		publishDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.deliver(ctx, rec); err != nil {
		failedCounter.WithLabelValues(rec.eventType).Inc()
		p.logger.Printf("warning: could not publish %s for %s: %v", rec.eventType, rec.key, err)
		return
	}
	deliveredCounter.WithLabelValues(rec.eventType).Inc()
}

func (p *Publisher) deliver(ctx context.Context, rec record) error {
	payload, err := json.Marshal(rec.payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.eventType, err)
	}

	if p.registry != nil {
		schemaID, err := p.schemaID(ctx, rec.eventType)
		if err != nil {
			return err
		}
		payload = encodeWireFormat(schemaID, payload)
	}

	msg := kafka.Message{
		Key:   []byte(rec.key),
		Value: payload,
		Time:  p.clock.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.eventType)},
		},
	}
	return p.producer.WriteMessages(ctx, p.topic, msg)
}

func (p *Publisher) schemaID(ctx context.Context, eventType string) (int, error) {
	schema, ok := schemaCatalog[eventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", eventType)
	}
	subject := fmt.Sprintf("%s-%s", p.topic, eventType)
	if cached, found := p.schemaIDCache.Load(subject); found {
		return cached.(int), nil
	}

	id, err := p.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure schema %s: %w", subject, err)
	}
	p.schemaIDCache.Store(subject, id)
	return id, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
