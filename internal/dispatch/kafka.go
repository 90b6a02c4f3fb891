package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each fact as one message keyed by Fact.Key so facts
// for the same user land on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, batch []Fact) error {
	msgs, err := encodeMessages(batch)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessages(batch []Fact) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, f := range batch {
		value, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode fact %s: %w", f.Type, err)
		}
		at := f.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		headers := []kafka.Header{{Key: "fact-type", Value: []byte(f.Type)}}
		if f.ID != "" {
			headers = append(headers, kafka.Header{Key: "fact-id", Value: []byte(f.ID)})
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(f.Key),
			Value:   value,
			Time:    at,
			Headers: headers,
		})
	}
	return msgs, nil
}
