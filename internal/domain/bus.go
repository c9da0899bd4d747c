package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels, NATS or Kafka.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats", "kafka" or "none"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// Kafka settings
	KafkaBrokers string
	KafkaGroupID string
}

// Topic names for the asynchronous scoring pipeline.
const (
	TopicScoreRequested = "fraudscore.score.requested"
	TopicScoreCompleted = "fraudscore.score.completed"
	TopicAlert          = "fraudscore.alert"
)

// ScoreRequestEvent is published to request asynchronous scoring.
type ScoreRequestEvent struct {
	RequestID   string            `json:"requestId"`
	Transaction TransactionRecord `json:"transaction"`
	// TransactionID is the caller's reference, echoed on the result.
	TransactionID string `json:"transactionId,omitempty"`
}
