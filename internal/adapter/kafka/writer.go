package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/urban-pulse-etl/internal/config"
	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// Writer produces derived stress samples to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg config.KafkaConfig, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and publishes every sample to the sink topic in a single
// WriteMessages call. Messages are keyed by batch id and position.
func (w *Writer) Publish(ctx context.Context, batchID string, samples []domain.StressSample) error {
	if len(samples) == 0 {
		return nil
	}
	processedAt := domain.Now()
	msgs := make([]kafkago.Message, len(samples))
	for i := range samples {
		msg, err := serializeToMessage(batchID, i, samples[i], processedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	w.logger.Debug("samples published", "topic", w.writer.Topic, "count", len(msgs), "batch_id", batchID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a StressSample into a Kafka message.
func serializeToMessage(batchID string, pos int, sample domain.StressSample, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(sample)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize stress sample: %w", err)
	}
	anomaly := string(sample.Anomaly)
	if anomaly == "" {
		anomaly = "unscored"
	}
	return kafkago.Message{
		Key:   []byte(batchID + "-" + strconv.Itoa(pos)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "anomaly", Value: []byte(anomaly)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
