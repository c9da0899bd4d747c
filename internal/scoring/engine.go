// Package scoring orchestrates encoding, inference and risk classification.
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/model"
	"github.com/opensource-finance/fraudscore/internal/risk"
)

var tracer = otel.Tracer("fraudscore-scoring")

const defaultMaxWorkers = 10

// Engine scores transactions against a loaded model.
// All state is read-only after construction; Engine is safe for concurrent use.
type Engine struct {
	mc          *ModelContext
	risk        *risk.Classifier
	unavailable error

	cache      domain.Cache
	cacheTTL   time.Duration
	metrics    *metrics.Metrics
	maxWorkers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache caches probabilities by feature vector for ttl.
func WithCache(c domain.Cache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithMetrics records scoring metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxWorkers bounds batch parallelism.
func WithMaxWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// NewEngine creates an engine for mc using the risk classifier rc.
func NewEngine(mc *ModelContext, rc *risk.Classifier, opts ...Option) (*Engine, error) {
	if mc == nil {
		return nil, fmt.Errorf("%w: model context is nil", domain.ErrModelUnavailable)
	}
	if rc == nil {
		return nil, errors.New("risk classifier is required")
	}

	e := &Engine{mc: mc, risk: rc, maxWorkers: defaultMaxWorkers}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil && mc.Version() == "" {
		slog.Warn("score cache disabled: model artifact and metadata carry no version")
		e.cache = nil
	}
	e.metrics.SetModelLoaded(true)
	return e, nil
}

// NewUnavailableEngine creates an engine that refuses to score.
// cause is reported by ModelInfo and wrapped into every scoring error.
func NewUnavailableEngine(cause error, rc *risk.Classifier, opts ...Option) *Engine {
	if cause == nil {
		cause = domain.ErrModelUnavailable
	}
	e := &Engine{risk: rc, unavailable: cause, maxWorkers: defaultMaxWorkers}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.SetModelLoaded(false)
	return e
}

// Available reports whether a model is loaded.
func (e *Engine) Available() bool {
	return e.mc != nil
}

// Err reports why the engine cannot score, or nil when a model is loaded.
func (e *Engine) Err() error {
	if e.mc != nil {
		return nil
	}
	return e.unavailableErr()
}

// Version returns the loaded model version, or "" when unavailable.
func (e *Engine) Version() string {
	if e.mc == nil {
		return ""
	}
	return e.mc.Version()
}

// Validate checks rec against the loaded feature metadata without running
// inference. It fails with ErrModelUnavailable when no model is loaded.
func (e *Engine) Validate(rec domain.TransactionRecord) error {
	if e.mc == nil {
		return e.unavailableErr()
	}
	_, err := e.mc.codec.Encode(rec)
	return err
}

// Score encodes rec, runs inference and classifies the probability.
// Errors are *domain.ValidationError, *domain.ModelError or wrap
// domain.ErrModelUnavailable; no partial result is returned.
func (e *Engine) Score(ctx context.Context, rec domain.TransactionRecord) (*domain.ScoringResult, error) {
	if e.mc == nil {
		e.metrics.ObserveError("unavailable")
		return nil, e.unavailableErr()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "scoring.Score")
	defer span.End()

	vec, err := e.mc.codec.Encode(rec)
	if err != nil {
		e.fail(span, err)
		return nil, err
	}
	encoded := time.Now()

	p, cached, err := e.predict(ctx, vec)
	if err != nil {
		e.fail(span, err)
		return nil, err
	}
	inferred := time.Now()

	a := e.risk.Classify(p)
	result := &domain.ScoringResult{
		ID:                 uuid.New().String(),
		IsFraud:            a.IsFraud,
		FraudProbability:   p,
		RiskLevel:          a.Level,
		RecommendedActions: a.Actions,
		Confidence:         a.Confidence,
		ModelVersion:       e.mc.Version(),
		Timestamp:          time.Now().UTC(),
		Metadata: domain.ScoringMetadata{
			EncodeUs:  encoded.Sub(start).Microseconds(),
			InferUs:   inferred.Sub(encoded).Microseconds(),
			TotalUs:   time.Since(start).Microseconds(),
			Cached:    cached,
			ModelType: e.mc.model.Type,
		},
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		result.Metadata.TraceID = sc.TraceID().String()
	}

	span.SetAttributes(
		attribute.String("score.id", result.ID),
		attribute.Float64("score.probability", p),
		attribute.String("score.risk_level", string(a.Level)),
		attribute.Bool("score.is_fraud", a.IsFraud),
		attribute.Bool("score.cached", cached),
	)
	e.metrics.ObserveScore(string(a.Level), a.IsFraud, p, time.Since(start))

	slog.Debug("transaction scored",
		"score_id", result.ID,
		"probability", p,
		"risk_level", a.Level,
		"is_fraud", a.IsFraud,
	)

	return result, nil
}

// ScoreBatch scores each record independently with bounded parallelism.
// The returned slice has one item per record, in input order.
func (e *Engine) ScoreBatch(ctx context.Context, recs []domain.TransactionRecord) []domain.BatchItem {
	results := make([]domain.BatchItem, len(recs))
	if len(recs) == 0 {
		return results
	}
	e.metrics.ObserveBatch(len(recs))

	ctx, span := tracer.Start(ctx, "scoring.ScoreBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(recs)))

	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i := range recs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}: // Acquire
			case <-ctx.Done():
				results[idx] = domain.BatchItem{Index: idx, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }() // Release

			res, err := e.Score(ctx, recs[idx])
			results[idx] = domain.BatchItem{Index: idx, Result: res, Err: err}
		}(i)
	}

	wg.Wait()

	return results
}

// ModelInfo describes the loaded model and the active risk policy.
func (e *Engine) ModelInfo() domain.ModelInfo {
	info := domain.ModelInfo{Status: domain.ModelStatusUnavailable}
	if e.risk != nil {
		info.DecisionThreshold = e.risk.Threshold()
		info.RiskBands = e.risk.Bands()
	}

	if e.mc == nil {
		info.Error = e.unavailable.Error()
		return info
	}

	meta := e.mc.codec.Metadata()
	info.Status = domain.ModelStatusActive
	info.ModelType = e.mc.model.Type
	info.Version = e.mc.Version()
	info.Features = e.mc.codec.FeatureNames()
	if len(meta.Metrics) > 0 {
		info.Metrics = make(map[string]float64, len(meta.Metrics))
		for k, v := range meta.Metrics {
			info.Metrics[k] = v
		}
	}
	return info
}

func (e *Engine) predict(ctx context.Context, vec features.Vector) (float64, bool, error) {
	if e.cache == nil {
		p, err := model.PredictProbability(vec, e.mc.model.Classifier)
		return p, false, err
	}

	key := e.cacheKey(vec)
	if data, err := e.cache.Get(ctx, key); err != nil {
		slog.Warn("score cache lookup failed", "error", err)
	} else if data != nil {
		if p, err := strconv.ParseFloat(string(data), 64); err == nil && p >= 0 && p <= 1 {
			e.metrics.ObserveCache(true)
			return p, true, nil
		}
	}
	e.metrics.ObserveCache(false)

	p, err := model.PredictProbability(vec, e.mc.model.Classifier)
	if err != nil {
		return 0, false, err
	}

	if err := e.cache.Set(ctx, key, []byte(strconv.FormatFloat(p, 'g', -1, 64)), e.cacheTTL); err != nil {
		slog.Warn("score cache write failed", "error", err)
	}
	return p, false, nil
}

// cacheKey identifies a vector under the current model version, type and
// feature layout.
func (e *Engine) cacheKey(vec features.Vector) string {
	h := sha256.New()
	h.Write([]byte(e.mc.Version()))
	h.Write([]byte{0})
	h.Write([]byte(e.mc.model.Type))
	h.Write([]byte{0})
	for _, name := range e.mc.codec.FeatureNames() {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	var buf [8]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return "score:" + hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) unavailableErr() error {
	if errors.Is(e.unavailable, domain.ErrModelUnavailable) {
		return e.unavailable
	}
	return fmt.Errorf("%w: %w", domain.ErrModelUnavailable, e.unavailable)
}

func (e *Engine) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.ObserveError(ErrorKind(err))
}

// ErrorKind classifies a scoring error for metrics and API responses.
func ErrorKind(err error) string {
	var ve *domain.ValidationError
	var me *domain.ModelError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &me):
		return string(me.Kind)
	case errors.Is(err, domain.ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
