package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"fritzwatch/internal/config"
	"fritzwatch/internal/model"
)

// KafkaForwarder publishes freshly incorporated records to a topic, one
// JSON message per record, keyed by identity so that updates to the
// same logical entry land in the same partition.
type KafkaForwarder struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafka(cfg config.ForwardConfig, logger *slog.Logger) *KafkaForwarder {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("forwarding disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("forwarding enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &KafkaForwarder{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
		logger: logger,
	}
}

func (f *KafkaForwarder) Forward(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(records))
	for _, record := range records {
		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		key := record.Key()
		messages = append(messages, kafka.Message{
			Key:   fmt.Appendf(nil, "%d/%d/%d", key.EarliestMilli, key.MessageID, key.CategoryID),
			Value: value,
		})
	}
	return f.writer.WriteMessages(ctx, messages...)
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
