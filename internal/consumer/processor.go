// Package consumer reads activity change events from Kafka and applies
// their side effects.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/stravasync/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *slog.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  slog.Default().With("component", "consumer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.ErrorContext(ctx, "fetch error", "error", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.WarnContext(ctx, "decode error", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", decodeErr)
			recordMalformed(msg.Topic, decodeReason(decodeErr))
			// Malformed records are committed so they cannot block the partition.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.ErrorContext(ctx, "commit error after decode failure", "error", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.ErrorContext(ctx, "handler error", "event_type", event.EventType, "user_id", event.UserID, "error", handleErr)
			recordFailed(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.ErrorContext(ctx, "commit error", "error", commitErr)
		} else {
			recordApplied(event, time.Now())
		}
	}
}

// decodeError tags why a record was rejected.
type decodeError struct {
	reason string
	err    error
}

func (e *decodeError) Error() string { return e.err.Error() }

func rejectRecord(reason string, err error) error {
	return &decodeError{reason: reason, err: err}
}

func decodeReason(err error) string {
	var de *decodeError
	if errors.As(err, &de) {
		return de.reason
	}
	return "unknown"
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, rejectRecord("short_frame", fmt.Errorf("invalid payload length: %d", len(msg.Value)))
	}
	if msg.Value[0] != 0 {
		return Message{}, rejectRecord("bad_magic", fmt.Errorf("unknown wire format magic byte %d", msg.Value[0]))
	}

	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok {
		return Message{}, rejectRecord("missing_event_type", errors.New("missing event_type header"))
	}
	userID, ok := headerValue(msg, events.HeaderUserID)
	if !ok {
		userID = msg.Key
	}
	schemaSubject, _ := headerValue(msg, events.HeaderSchemaSubject)

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, rejectRecord("invalid_json", errors.New("payload is not valid JSON"))
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
