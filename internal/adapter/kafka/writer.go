package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/config"
	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces place changes to the change topic.
// It implements service.ChangeFeed.
type Writer struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates an asynchronous Kafka producer for the change topic.
// Delivery failures are reported through the logger.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaChangeTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Error("change feed delivery failed", "messages", len(msgs), "error", err)
			}
		},
	}
	return newWriter(w, clockwork.NewRealClock(), logger)
}

func newWriter(w messageWriter, clock clockwork.Clock, logger *slog.Logger) *Writer {
	return &Writer{writer: w, clock: clock, logger: logger}
}

// Name identifies the feed in metrics and logs.
func (w *Writer) Name() string { return config.FeedKafka }

// Publish serializes the event and hands it to the producer.
func (w *Writer) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := serializeToMessage(domain.NewChangeRecord(ev, w.clock.Now()))
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a change record into a Kafka message keyed for
// per-place ordering.
func serializeToMessage(rec domain.ChangeRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s: %w", rec.Kind, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(rec.Kind)},
			{Key: "emitted_at", Value: []byte(rec.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
