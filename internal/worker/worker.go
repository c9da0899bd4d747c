// Package worker provides async score processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/risk"
)

// Scorer scores a single transaction record.
type Scorer interface {
	Score(ctx context.Context, rec domain.TransactionRecord) (*domain.ScoringResult, error)
}

// Worker consumes score requests from the EventBus, scores them and
// publishes the results.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	scorer  Scorer
	metrics *metrics.Metrics

	jobs          chan *domain.Message
	subscriptions []domain.Subscription
	mu            sync.Mutex
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of concurrent scoring goroutines
	WorkerCount int
}

// NewWorker creates a new async worker. repo and m may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, scorer Scorer, m *metrics.Metrics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		scorer:  scorer,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to score requests and launches the scoring goroutines.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.jobs = make(chan *domain.Message, cfg.WorkerCount)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicScoreRequested, w.enqueue)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	for i := 0; i < cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run()
	}

	slog.Info("workers started",
		"worker_count", cfg.WorkerCount,
		"topic", domain.TopicScoreRequested,
	)

	return nil
}

// enqueue hands a message to the pool, blocking until a goroutine is free.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- msg:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.jobs:
			_ = w.processRequest(w.ctx, msg)
		}
	}
}

// processRequest scores one request, persists it and publishes the outcome.
func (w *Worker) processRequest(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ScoreRequestEvent
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse score request",
			"message_id", msg.ID,
			"error", err,
		)
		w.metrics.ObserveAsync("invalid")
		return err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}

	slog.Debug("processing score request",
		"request_id", requestID,
		"transaction_id", req.TransactionID,
	)

	result, err := w.scorer.Score(ctx, req.Transaction)
	if err != nil {
		outcome := "failed"
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			outcome = "invalid"
		}
		slog.Error("async scoring failed",
			"request_id", requestID,
			"error", err,
		)
		w.metrics.ObserveAsync(outcome)
		return err
	}

	// The request ID doubles as the result ID so callers can look it up later.
	result.ID = requestID
	result.TransactionID = req.TransactionID

	if w.repo != nil {
		if err := w.repo.SaveScore(ctx, &domain.ScoreRecord{ScoringResult: result, Transaction: req.Transaction}); err != nil {
			slog.Error("failed to save score",
				"request_id", requestID,
				"error", err,
			)
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		w.metrics.ObserveAsync("failed")
		return err
	}

	if err := w.bus.Publish(ctx, domain.TopicScoreCompleted, payload); err != nil {
		slog.Error("failed to publish score",
			"request_id", requestID,
			"error", err,
		)
	}

	if risk.ShouldAlert(result) {
		if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"request_id", requestID,
				"error", err,
			)
		}
	}

	w.metrics.ObserveAsync("scored")

	slog.Info("score request processed",
		"request_id", requestID,
		"transaction_id", req.TransactionID,
		"risk_level", result.RiskLevel,
		"probability", result.FraudProbability,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers. Requests not yet picked up are dropped.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
