package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/settlement-backend/pkg/outbox/registry"
)

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubTransport publishes with the aggregate id as ordering key. A failed
// publish pauses its key on the client, so it is resumed before the error is
// returned for the outbox retry.
type pubsubTransport struct {
	client pubSubClient
}

func (t *pubsubTransport) Name() string { return "pubsub" }

func (t *pubsubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t *pubsubTransport) Send(ctx context.Context, topic string, msg Message) error {
	publisher := t.client.Publisher(topic)
	if publisher == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	_, err := publisher.Publish(ctx, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	}).Get(ctx)
	if err != nil && msg.Key != "" {
		publisher.ResumePublish(msg.Key)
	}
	return err
}
