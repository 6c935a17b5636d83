package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrMissingKey is returned for records without a partition key. Activity
// events are keyed by user id so one user's changes stay ordered.
var ErrMissingKey = errors.New("activity event record has no partition key")

// ProducerOption tunes the per-topic writers.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) { p.batchTimeout = d }
}

// KafkaProducer publishes activity change events with one synchronous writer
// per topic, hashing record keys onto partitions.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer for brokers.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages publishes msgs to topic and returns once all replicas acked.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		if len(msgs[i].Key) == 0 {
			return fmt.Errorf("%w (topic=%s, index=%d)", ErrMissingKey, topic, i)
		}
	}
	return p.writerFor(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		BatchTimeout: p.batchTimeout,
	}
	p.writers[topic] = w
	return w
}

// Close flushes and releases every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
