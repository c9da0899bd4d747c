package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func waitGroupTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timeout waiting for messages")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var mu sync.Mutex
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicScoreCompleted, func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			receivedMsg = msg
			mu.Unlock()
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicScoreCompleted, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitGroupTimeout(t, &wg, time.Second)

		mu.Lock()
		defer mu.Unlock()
		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicScoreCompleted {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicScoreCompleted, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" {
			t.Error("expected message ID to be set")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var alerts, completed atomic.Int32

		bus.Subscribe(ctx, "isolation.alert", func(ctx context.Context, msg *domain.Message) error {
			alerts.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "isolation.completed", func(ctx context.Context, msg *domain.Message) error {
			completed.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.alert", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if alerts.Load() != 1 {
			t.Errorf("alert subscriber should receive 1 message, got %d", alerts.Load())
		}
		if completed.Load() != 0 {
			t.Errorf("completed subscriber should receive 0 messages, got %d", completed.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", []byte("data")); err == nil {
			t.Error("expected error for empty topic")
		}

		_, err := bus.Subscribe(ctx, "", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty topic")
		}
	})

	t.Run("RequiresHandler", func(t *testing.T) {
		if _, err := bus.Subscribe(ctx, "nil.handler", nil); err == nil {
			t.Error("expected error for nil handler")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		time.Sleep(50 * time.Millisecond)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("HandlerErrorDoesNotStopDelivery", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		bus.Subscribe(ctx, "failing.topic", func(ctx context.Context, msg *domain.Message) error {
			wg.Done()
			return errors.New("boom")
		})

		bus.Publish(ctx, "failing.topic", []byte("one"))
		bus.Publish(ctx, "failing.topic", []byte("two"))

		waitGroupTimeout(t, &wg, time.Second)
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	_, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe after close, got %v", err)
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if bus != nil {
			t.Error("expected nil bus for none type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "rabbitmq"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	waitGroupTimeout(t, &wg, 5*time.Second)

	if received.Load() != messageCount {
		t.Errorf("expected %d messages, got %d", messageCount, received.Load())
	}
}
