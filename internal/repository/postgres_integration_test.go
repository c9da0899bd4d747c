//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("fraudscore"),
		postgres.WithUsername("fraudscore"),
		postgres.WithPassword("fraudscore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}

	repo, err := New(domain.RepositoryConfig{
		Driver:           "postgres",
		PostgresHost:     host,
		PostgresPort:     port.Int(),
		PostgresUser:     "fraudscore",
		PostgresPassword: "fraudscore",
		PostgresDB:       "fraudscore",
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.SaveScore(ctx, newTestScore("pg-001", 0.93, domain.RiskHigh, true, at)); err != nil {
		t.Fatalf("SaveScore failed: %v", err)
	}

	got, err := repo.GetScore(ctx, "pg-001")
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if !got.IsFraud || got.RiskLevel != domain.RiskHigh {
		t.Errorf("unexpected score: %+v", got.ScoringResult)
	}
	if !got.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, got.Timestamp)
	}

	list, err := repo.ListScores(ctx, domain.ScoreFilter{FraudOnly: true})
	if err != nil {
		t.Fatalf("ListScores failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 fraud score, got %d", len(list))
	}
}
