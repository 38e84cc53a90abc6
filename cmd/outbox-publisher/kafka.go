package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/settlement-backend/pkg/outbox/registry"
)

type kafkaWriter interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// kafkaTransport writes each outbox row as one keyed record. The writer
// blocks until the brokers acknowledge.
type kafkaTransport struct {
	writer kafkaWriter
}

func newKafkaTransport(w kafkaWriter) (*kafkaTransport, error) {
	if w == nil {
		return nil, errors.New("kafka writer is required")
	}
	return &kafkaTransport{writer: w}, nil
}

func (t *kafkaTransport) Name() string { return "kafka" }

// Ping is a no-op; kafka-go dials lazily on the first write.
func (t *kafkaTransport) Ping(context.Context) error { return nil }

func (t *kafkaTransport) Send(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return registry.NewNonRetryableError(errors.New("event has no kafka topic"))
	}
	return t.writer.Publish(ctx, topic, msg.Key, msg.Data, msg.Attributes)
}
