package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/localdev/hostd/internal/logging"
	"github.com/localdev/hostd/internal/metrics"
)

// Broker owns an embedded single-node NATS server (mirroring the teacher's
// NATS.EmbeddedServer test mode) plus one JetStream-backed watermill
// Publisher/Subscriber pair and the Registry of configured queues.
type Broker struct {
	srv        *natsserver.Server
	publisher  message.Publisher
	subscriber message.Subscriber
	registry   *Registry
	url        string
}

// NewEmbeddedBroker starts an in-process NATS server bound to a random
// loopback port (no persistence directory needed beyond its own JetStream
// store dir) and wires a watermill JetStream publisher/subscriber pair.
func NewEmbeddedBroker(storeDir string) (*Broker, error) {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // let the OS assign
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("queue: starting embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("queue: embedded nats server did not become ready")
	}

	url := srv.ClientURL()
	logger := logging.NewSlogLogger()
	wmLogger := watermill.NewSlogLogger(logger)

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       url,
		Marshaler: &nats.NATSMarshaler{},
		JetStream: nats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			AckAsync:      false,
		},
	}, wmLogger)
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("queue: creating publisher: %w", err)
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: "hostd",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		Unmarshaler:      &nats.NATSMarshaler{},
		JetStream: nats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: "hostd",
		},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("queue: creating subscriber: %w", err)
	}

	return &Broker{srv: srv, publisher: pub, subscriber: sub, registry: NewRegistry(), url: url}, nil
}

// RegisterQueue adds def to the broker's registry (configuration time).
func (b *Broker) RegisterQueue(def Definition) error {
	return b.registry.Add(def)
}

// ValidateTopology runs the dead-letter-cycle check across every
// registered queue; call once after all queues for an instance are added.
func (b *Broker) ValidateTopology() error {
	return b.registry.Validate()
}

// Publish sends a batch of messages to the named queue's subject,
// enforcing the configured size limits first (spec §4.4).
func (b *Broker) Publish(ctx context.Context, queueName string, messages []Message) error {
	if err := ValidateBatch(messages); err != nil {
		metrics.StorageOps.WithLabelValues("queue", "publish", "rejected").Inc()
		return err
	}

	wmMessages := make([]*message.Message, 0, len(messages))
	for _, m := range messages {
		wmMsg := message.NewMessage(watermill.NewUUID(), m.Body)
		wmMsg.Metadata.Set("content-type", string(m.ContentType))
		wmMessages = append(wmMessages, wmMsg)
	}

	if err := b.publisher.Publish(queueName, wmMessages...); err != nil {
		metrics.StorageOps.WithLabelValues("queue", "publish", "error").Inc()
		return fmt.Errorf("queue: publishing batch: %w", err)
	}
	metrics.QueueBacklog.WithLabelValues(queueName).Add(float64(len(messages)))
	metrics.StorageOps.WithLabelValues("queue", "publish", "success").Inc()
	return nil
}

// Subscribe returns the channel of incoming messages for queueName. This
// package does not read the channel or hand its messages to a consumer
// worker.
func (b *Broker) Subscribe(ctx context.Context, queueName string) (<-chan *message.Message, error) {
	ch, err := b.subscriber.Subscribe(ctx, queueName)
	if err != nil {
		return nil, fmt.Errorf("queue: subscribing: %w", err)
	}
	return ch, nil
}

// Close tears down the publisher/subscriber and the embedded server.
func (b *Broker) Close() error {
	_ = b.publisher.Close()
	_ = b.subscriber.Close()
	b.srv.Shutdown()
	return nil
}
