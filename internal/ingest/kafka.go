package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
}

// ConsumeKafka stores every message from r until ctx is done. The message
// key, when set, is the fallback sessionId. Offsets are committed after each
// write attempt, so rejected payloads are not redelivered.
func (i *Ingestor) ConsumeKafka(ctx context.Context, r KafkaReader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		id, err := i.Ingest(ctx, string(msg.Key), msg.Value)
		if err != nil {
			slog.Warn("kafka reading rejected", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else {
			slog.Debug("kafka reading ingested", "id", id, "offset", msg.Offset)
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
