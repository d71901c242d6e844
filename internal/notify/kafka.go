package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per record, keyed by symbol.
type Kafka struct {
	writer messageWriter
	logger zerolog.Logger
}

// kafkaEvent is the message payload.
type kafkaEvent struct {
	Kind   Kind                    `json:"kind"`
	RunID  string                  `json:"run_id,omitempty"`
	SentAt time.Time               `json:"sent_at"`
	Record models.PredictionRecord `json:"record"`
}

// NewKafka creates a producer for topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return newKafka(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	})
}

func newKafka(w messageWriter) *Kafka {
	return &Kafka{writer: w, logger: log.With().Str("component", "kafka").Logger()}
}

func (k *Kafka) Notify(ctx context.Context, ev Event) error {
	if len(ev.Records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]kafka.Message, 0, len(ev.Records))
	for _, rec := range ev.Records {
		value, err := json.Marshal(kafkaEvent{Kind: ev.Kind, RunID: ev.RunID, SentAt: now, Record: rec})
		if err != nil {
			return fmt.Errorf("encoding %s: %w", rec.Key(), err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.Symbol),
			Value: value,
			Headers: []kafka.Header{
				{Key: "kind", Value: []byte(ev.Kind)},
			},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.logger.Error().Err(err).Int("messages", len(msgs)).Msg("Failed to publish")
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	k.logger.Debug().Str("kind", string(ev.Kind)).Int("messages", len(msgs)).Msg("Published")
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
