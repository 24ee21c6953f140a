package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
)

// KafkaSink writes one message per event, keyed by instrument so a
// partition sees an instrument's events in order.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, b engine.Batch) error {
	msgs, err := kafkaMessages(b, time.Now())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func kafkaMessages(b engine.Batch, now time.Time) ([]kafka.Message, error) {
	events := Events(b, now)
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		val, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(b.Instrument),
			Value: val,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
			},
		})
	}
	return msgs, nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
