// Package samplefeed ingests raw activity samples from Kafka and serves them to the monitor
// as a live subscription plus a queryable history.
package samplefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/activitymonitor/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded samples.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded sample record together with its Kafka coordinates.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Sample    domain.RawSample
}

// ProcessorOption configures optional behaviour for the Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger overrides the logger used to report errors.
func WithProcessorLogger(logger *log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls sample records from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...ProcessorOption) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[samplefeed] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes sample records until ctx is cancelled. Records are committed once handled;
// records that cannot be decoded are committed as well so they are never redelivered.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		decoded, ok := p.process(ctx, msg)
		if !ok {
			continue
		}
		if err := p.reader.CommitMessages(ctx, msg); err != nil {
			p.logger.Printf("commit error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
			continue
		}
		if decoded != nil {
			recordProcessed(*decoded)
		}
	}
}

// process decodes and dispatches one record. It reports whether the record should be committed
// and, when it was delivered, the decoded message.
func (p *Processor) process(ctx context.Context, msg kafka.Message) (*Message, bool) {
	decoded, err := decodeMessage(msg)
	if err != nil {
		p.logger.Printf("dropping malformed sample (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, err)
		recordDecodeError(msg.Topic)
		return nil, true
	}

	if err := p.handler.Handle(ctx, decoded); err != nil {
		p.logger.Printf("handler error (topic=%s, offset=%d): %v", decoded.Topic, decoded.Offset, err)
		recordHandlerError(decoded.Topic)
		return nil, false
	}
	return &decoded, true
}

// decodeMessage accepts plain JSON or JSON behind the Confluent wire header (magic byte plus
// four-byte schema id).
func decodeMessage(msg kafka.Message) (Message, error) {
	payload := msg.Value
	if len(payload) >= 5 && payload[0] == 0x00 {
		payload = payload[5:]
	}
	if len(payload) == 0 {
		return Message{}, errors.New("empty payload")
	}

	var sample domain.RawSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return Message{}, fmt.Errorf("invalid sample payload: %w", err)
	}
	switch sample.Confidence {
	case domain.ConfidenceLow, domain.ConfidenceMedium, domain.ConfidenceHigh:
	default:
		return Message{}, fmt.Errorf("invalid confidence %q", sample.Confidence)
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = msg.Time
	}
	sample.RecordedAt = sample.RecordedAt.UTC()

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Sample:    sample,
	}, nil
}
