package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes envelopes to one topic per event type.
type KafkaPublisher struct {
	w      *kafka.Writer
	topics map[string]string
}

// NewKafkaPublisher builds a synchronous writer; topics maps event type to topic name.
func NewKafkaPublisher(brokers []string, topics map[string]string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		topics: topics,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	msg, err := p.message(key, env)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s to %s: %w", env.EventType, msg.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) message(key string, env Envelope) (kafka.Message, error) {
	topic, ok := p.topics[env.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("events: no topic for %s", env.EventType)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("events: encode envelope: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}, nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
