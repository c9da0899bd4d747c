package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

const (
	kafkaPollTimeoutMs  = 100
	kafkaFlushTimeoutMs = 5000
	kafkaPingTimeoutMs  = 2000
)

// KafkaBus implements EventBus using Kafka.
// One producer is shared by all publishers; each subscription owns a consumer.
type KafkaBus struct {
	mu            sync.Mutex
	producer      *kafka.Producer
	subscriptions map[string]*kafkaSubscription
	config        domain.EventBusConfig
	closed        bool
}

type kafkaSubscription struct {
	id       string
	topic    string
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
	bus      *KafkaBus
}

// NewKafkaBus creates a Kafka-backed event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if cfg.KafkaBrokers == "" {
		cfg.KafkaBrokers = "localhost:9092"
	}
	if cfg.KafkaGroupID == "" {
		cfg.KafkaGroupID = "fraudscore"
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBrokers,
		"client.id":         "fraudscore",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	b := &KafkaBus{
		producer:      producer,
		subscriptions: make(map[string]*kafkaSubscription),
		config:        cfg,
	}
	go b.deliveryReports()

	slog.Info("kafka producer created", "brokers", cfg.KafkaBrokers)
	return b, nil
}

// deliveryReports drains producer events and logs failed deliveries.
func (b *KafkaBus) deliveryReports() {
	for ev := range b.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				slog.Error("kafka delivery failed",
					"topic", *e.TopicPartition.Topic,
					"error", e.TopicPartition.Error,
				)
			}
		case kafka.Error:
			slog.Error("kafka producer error", "error", e)
		}
	}
}

// Publish produces a message envelope to the Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := encodeEnvelope(topic, payload)
	if err != nil {
		return err
	}

	return b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          data,
	}, nil)
}

// Subscribe starts a consumer in the configured group and polls topic until
// the subscription or ctx is cancelled.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": b.config.KafkaBrokers,
		"group.id":          b.config.KafkaGroupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := consumer.SubscribeTopics([]string{topic}, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		id:       uuid.New().String(),
		topic:    topic,
		consumer: consumer,
		cancel:   cancel,
		done:     make(chan struct{}),
		bus:      b,
	}
	b.subscriptions[sub.id] = sub

	go sub.poll(subCtx, handler)

	return sub, nil
}

func (s *kafkaSubscription) poll(ctx context.Context, handler domain.MessageHandler) {
	defer close(s.done)
	defer s.consumer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := s.consumer.Poll(kafkaPollTimeoutMs)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			var msg domain.Message
			if err := json.Unmarshal(e.Value, &msg); err != nil {
				slog.Error("failed to unmarshal kafka message",
					"topic", s.topic,
					"offset", e.TopicPartition.Offset.String(),
					"error", err,
				)
				continue
			}
			if err := handler(ctx, &msg); err != nil {
				slog.Error("handler error",
					"topic", s.topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		case kafka.PartitionEOF:
			slog.Debug("kafka partition EOF", "topic", s.topic)
		case kafka.Error:
			slog.Error("kafka consumer error",
				"topic", s.topic,
				"code", e.Code().String(),
				"error", e,
			)
		}
	}
}

// Ping checks broker connectivity by fetching cluster metadata.
func (b *KafkaBus) Ping(ctx context.Context) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	timeout := kafkaPingTimeoutMs
	if deadline, ok := ctx.Deadline(); ok {
		if ms := int(time.Until(deadline).Milliseconds()); ms > 0 && ms < timeout {
			timeout = ms
		}
	}

	if _, err := b.producer.GetMetadata(nil, false, timeout); err != nil {
		return fmt.Errorf("kafka not reachable: %w", err)
	}
	return nil
}

// Close stops all consumers, flushes pending messages and closes the producer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscriptions
	b.subscriptions = make(map[string]*kafkaSubscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}

	if remaining := b.producer.Flush(kafkaFlushTimeoutMs); remaining > 0 {
		slog.Warn("kafka producer closed with undelivered messages", "count", remaining)
	}
	b.producer.Close()
	return nil
}

// Unsubscribe stops the consumer and waits for its poll loop to exit.
func (s *kafkaSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}
