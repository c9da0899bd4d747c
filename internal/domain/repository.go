// Package domain defines the core interfaces and types for fraudscore.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for persisting scoring results.
type Repository interface {
	// SaveScore stores a scoring result with the transaction that produced it.
	SaveScore(ctx context.Context, score *ScoreRecord) error

	// GetScore retrieves a stored score by result ID.
	GetScore(ctx context.Context, id string) (*ScoreRecord, error)

	// ListScores returns the most recent scores matching filter.
	ListScores(ctx context.Context, filter ScoreFilter) ([]*ScoreRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
