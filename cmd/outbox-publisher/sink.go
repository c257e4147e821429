package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/kafka"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox/registry"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/pubsub"
)

// outboundMessage is what the relay hands to a broker after resolving a row.
type outboundMessage struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

type sink interface {
	Name() string
	Ping(context.Context) error
	Send(context.Context, outboundMessage) error
}

type pubSubPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

// pubsubSink orders messages by aggregate key when the client has ordered
// delivery enabled.
type pubsubSink struct {
	client pubSubPublisher
}

func (s *pubsubSink) Name() string { return "pubsub" }

func (s *pubsubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubsubSink) Send(ctx context.Context, msg outboundMessage) error {
	_, err := s.client.Publish(ctx, msg.Topic, &gcppubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	})
	if errors.Is(err, pubsub.ErrUnknownTopic) {
		return registry.NewNonRetryableError(err)
	}
	return err
}

type kafkaProducer interface {
	Ping(context.Context) error
	Publish(context.Context, kafka.Message) error
}

type kafkaSink struct {
	producer kafkaProducer
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Ping(ctx context.Context) error {
	return s.producer.Ping(ctx)
}

func (s *kafkaSink) Send(ctx context.Context, msg outboundMessage) error {
	return s.producer.Publish(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}
