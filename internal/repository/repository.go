// Package repository provides persistence for scoring results.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const defaultListLimit = 100

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a repository based on configuration and applies migrations.
// Driver "none" disables persistence and returns nil.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := Migrate(context.Background(), db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLRepository{db: db, driver: cfg.Driver}, nil
}

// SaveScore stores a scoring result with its input transaction.
func (r *SQLRepository) SaveScore(ctx context.Context, score *domain.ScoreRecord) error {
	if score == nil || score.ScoringResult == nil || score.ID == "" {
		return fmt.Errorf("%w: score with ID is required", ErrInvalidInput)
	}

	actions, err := json.Marshal(score.RecommendedActions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	txData, err := json.Marshal(score.Transaction)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	metadata, err := json.Marshal(score.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO scores (
			id, transaction_id, is_fraud, fraud_probability, risk_level,
			recommended_actions, confidence, model_version, scored_at,
			transaction_data, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		score.ID, score.TransactionID, boolToInt(score.IsFraud), score.FraudProbability,
		string(score.RiskLevel), string(actions), score.Confidence, score.ModelVersion,
		score.Timestamp, string(txData), string(metadata),
	)
	return err
}

// GetScore retrieves a stored score by result ID.
func (r *SQLRepository) GetScore(ctx context.Context, id string) (*domain.ScoreRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}

	query := selectScores + ` WHERE id = ?`
	rec, err := scanScore(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListScores returns the most recent scores matching filter, newest first.
func (r *SQLRepository) ListScores(ctx context.Context, filter domain.ScoreFilter) ([]*domain.ScoreRecord, error) {
	var where []string
	var args []any

	if filter.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	if filter.FraudOnly {
		where = append(where, "is_fraud = ?")
		args = append(args, 1)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}

	query := selectScores
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scored_at DESC LIMIT " + strconv.Itoa(limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []*domain.ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, rec)
	}
	return scores, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const selectScores = `
	SELECT id, transaction_id, is_fraud, fraud_probability, risk_level,
		   recommended_actions, confidence, model_version, scored_at,
		   transaction_data, metadata
	FROM scores`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*domain.ScoreRecord, error) {
	res := &domain.ScoringResult{}
	var isFraud int
	var riskLevel, actions, txData, metadata string

	err := row.Scan(
		&res.ID, &res.TransactionID, &isFraud, &res.FraudProbability, &riskLevel,
		&actions, &res.Confidence, &res.ModelVersion, &res.Timestamp,
		&txData, &metadata,
	)
	if err != nil {
		return nil, err
	}

	res.IsFraud = isFraud != 0
	res.RiskLevel = domain.RiskLevel(riskLevel)
	res.Timestamp = res.Timestamp.UTC()

	rec := &domain.ScoreRecord{ScoringResult: res}
	if err := json.Unmarshal([]byte(actions), &res.RecommendedActions); err != nil {
		return nil, fmt.Errorf("failed to decode actions for score %s: %w", res.ID, err)
	}
	if err := json.Unmarshal([]byte(txData), &rec.Transaction); err != nil {
		return nil, fmt.Errorf("failed to decode transaction for score %s: %w", res.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &res.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for score %s: %w", res.ID, err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
