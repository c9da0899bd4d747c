//go:build integration

package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestNATSBus(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	bus, err := NewNATSBus(domain.EventBusConfig{
		NATSUrl:           fmt.Sprintf("nats://%s", endpoint),
		NATSMaxReconnects: 3,
		NATSReconnectWait: 1,
	})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer bus.Close()

	if err := bus.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte

	sub, err := bus.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		got = msg.Payload
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := bus.Publish(ctx, domain.TopicAlert, []byte(`{"risk_level":"HIGH"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitGroupTimeout(t, &wg, 5*time.Second)

	if string(got) != `{"risk_level":"HIGH"}` {
		t.Errorf("unexpected payload: %s", got)
	}
}
