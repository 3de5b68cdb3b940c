package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	authgate "github.com/tradewire/authgate"
)

// DefaultTopic is the topic identity events land on unless overridden.
const DefaultTopic = "authgate.identity.resolved"

// KafkaPublisher implements [authgate.EventPublisher] on a kafka-go writer.
// The member id is the message key so events for one member stay ordered
// within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher writing to topic on the given
// brokers. An empty topic falls back to [DefaultTopic].
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: at least one broker required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaPublisher{writer: writer}, nil
}

// NewKafkaPublisherFromWriter wraps an already configured writer. The caller
// keeps ownership of the writer's lifecycle only if it also skips Close here.
func NewKafkaPublisherFromWriter(writer *kafka.Writer) (*KafkaPublisher, error) {
	if writer == nil {
		return nil, errors.New("events: nil writer")
	}
	return &KafkaPublisher{writer: writer}, nil
}

// PublishIdentityResolved describes the publishidentityresolved operation and its observable behavior.
//
// PublishIdentityResolved may return an error when input validation, dependency calls, or security checks fail.
// PublishIdentityResolved does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *KafkaPublisher) PublishIdentityResolved(ctx context.Context, event authgate.IdentityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.IdentityID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
