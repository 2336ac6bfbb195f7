package overrides

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer writes episode events through one shared kafka.Writer. The destination topic is
// set per message, so a single writer serves every topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers. Messages are hash balanced on their key
// so the confirmation and the end of an activity land on the same partition.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// WriteMessages synchronously writes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	routed := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		msg.Topic = topic
		routed[i] = msg
	}
	return p.writer.WriteMessages(ctx, routed...)
}

// Close flushes pending writes and releases the broker connections.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
