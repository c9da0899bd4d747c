package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/repository"
	"github.com/opensource-finance/fraudscore/internal/risk"
	"github.com/opensource-finance/fraudscore/internal/scoring"
)

const maxBodyBytes = 10 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	engine       *scoring.Engine
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	metrics      *metrics.Metrics
	maxBatchSize int
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	maxBatch := deps.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Handler{
		engine:       deps.Engine,
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		metrics:      deps.Metrics,
		maxBatchSize: maxBatch,
		version:      deps.Version,
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// BatchRequest is the request body for POST /api/predict/batch.
type BatchRequest struct {
	Transactions []domain.ScoreRequest `json:"transactions"`
}

// BatchResult is the outcome for one transaction of a batch.
type BatchResult struct {
	Index         int                   `json:"index"`
	TransactionID string                `json:"transaction_id,omitempty"`
	Result        *domain.ScoringResult `json:"result,omitempty"`
	Error         string                `json:"error,omitempty"`
	Field         string                `json:"field,omitempty"`
}

// BatchResponse is the response for POST /api/predict/batch.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Count   int           `json:"count"`
	Failed  int           `json:"failed"`
}

// AsyncResponse is the response for POST /api/predict/async.
type AsyncResponse struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status       string    `json:"status"`
	ModelLoaded  bool      `json:"model_loaded"`
	ModelVersion string    `json:"model_version,omitempty"`
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

// Predict handles POST /api/predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.ScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := req.ToRecord()
	if err != nil {
		writeScoreError(w, err)
		return
	}

	result, err := h.engine.Score(ctx, rec)
	if err != nil {
		writeScoreError(w, err)
		return
	}
	result.TransactionID = req.TransactionID

	h.persist(r, result, rec)
	writeJSON(w, http.StatusOK, result)
}

// PredictBatch handles POST /api/predict/batch.
// Each transaction succeeds or fails on its own; the response keeps input order.
func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	n := len(req.Transactions)
	if n == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "transactions must not be empty"})
		return
	}
	if n > h.maxBatchSize {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("batch of %d exceeds maximum of %d", n, h.maxBatchSize),
		})
		return
	}
	if err := h.engine.Err(); err != nil {
		writeScoreError(w, err)
		return
	}

	resp := BatchResponse{Results: make([]BatchResult, n), Count: n}

	// Requests missing attributes fail here; the rest go to the engine together.
	recs := make([]domain.TransactionRecord, 0, n)
	positions := make([]int, 0, n)
	for i := range req.Transactions {
		resp.Results[i] = BatchResult{Index: i, TransactionID: req.Transactions[i].TransactionID}
		rec, err := req.Transactions[i].ToRecord()
		if err != nil {
			resp.Results[i].setError(err)
			continue
		}
		recs = append(recs, rec)
		positions = append(positions, i)
	}

	for j, item := range h.engine.ScoreBatch(ctx, recs) {
		i := positions[j]
		if item.Err != nil {
			resp.Results[i].setError(item.Err)
			continue
		}
		item.Result.TransactionID = resp.Results[i].TransactionID
		resp.Results[i].Result = item.Result
		h.persist(r, item.Result, recs[j])
	}

	for _, res := range resp.Results {
		if res.Result == nil {
			resp.Failed++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (b *BatchResult) setError(err error) {
	b.Error = err.Error()
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		b.Field = verr.Field
	}
}

// PredictAsync handles POST /api/predict/async.
// The request is fully validated before it is published for a worker to score.
func (h *Handler) PredictAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "async scoring not available"})
		return
	}
	if err := h.engine.Err(); err != nil {
		writeScoreError(w, err)
		return
	}

	var req domain.ScoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := req.ToRecord()
	if err != nil {
		writeScoreError(w, err)
		return
	}
	if err := h.engine.Validate(rec); err != nil {
		h.metrics.ObserveAsync("invalid")
		writeScoreError(w, err)
		return
	}

	evt := domain.ScoreRequestEvent{
		RequestID:     uuid.New().String(),
		Transaction:   rec,
		TransactionID: req.TransactionID,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to encode request"})
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicScoreRequested, payload); err != nil {
		slog.Error("failed to publish score request",
			"request_id", evt.RequestID,
			"error", err,
		)
		h.metrics.ObserveAsync("publish_failed")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "failed to queue score request"})
		return
	}
	h.metrics.ObserveAsync("queued")

	writeJSON(w, http.StatusAccepted, AsyncResponse{RequestID: evt.RequestID, Status: "queued"})
}

// ModelInfo handles GET /api/model_info.
func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	info := h.engine.ModelInfo()
	if info.Status != domain.ModelStatusActive {
		writeJSON(w, http.StatusServiceUnavailable, info)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetScore handles GET /api/scores/{id}.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	score, err := h.repo.GetScore(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "score not found"})
		return
	}
	if err != nil {
		slog.Error("failed to get score", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to load score"})
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// ListScores handles GET /api/scores?risk_level=HIGH&fraud_only=true&limit=50.
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	q := r.URL.Query()
	filter := domain.ScoreFilter{RiskLevel: domain.RiskLevel(q.Get("risk_level"))}
	if filter.RiskLevel != "" && !filter.RiskLevel.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unknown risk level", Field: "risk_level"})
		return
	}
	if v := q.Get("fraud_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "fraud_only must be a boolean", Field: "fraud_only"})
			return
		}
		filter.FraudOnly = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Field: "limit"})
			return
		}
		filter.Limit = n
	}

	scores, err := h.repo.ListScores(ctx, filter)
	if err != nil {
		slog.Error("failed to list scores", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list scores"})
		return
	}
	if scores == nil {
		scores = []*domain.ScoreRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scores": scores,
		"count":  len(scores),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := HealthResponse{
		Status:       "healthy",
		ModelLoaded:  h.engine.Available(),
		ModelVersion: h.engine.Version(),
		Version:      h.version,
		Timestamp:    time.Now().UTC(),
	}

	if !resp.ModelLoaded {
		resp.Status = "degraded"
	}
	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Warn("repository ping failed", "error", err)
			resp.Status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			slog.Warn("cache ping failed", "error", err)
			resp.Status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			slog.Warn("event bus ping failed", "error", err)
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept scoring traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.engine.Available() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

// persist stores a synchronous result and raises an alert for risky scores.
// Failures are logged; the caller still gets its score.
func (h *Handler) persist(r *http.Request, result *domain.ScoringResult, rec domain.TransactionRecord) {
	ctx := r.Context()

	if h.repo != nil {
		if err := h.repo.SaveScore(ctx, &domain.ScoreRecord{ScoringResult: result, Transaction: rec}); err != nil {
			slog.Error("failed to save score", "score_id", result.ID, "error", err)
		}
	}

	if h.bus != nil && risk.ShouldAlert(result) {
		payload, err := json.Marshal(result)
		if err == nil {
			err = h.bus.Publish(ctx, domain.TopicAlert, payload)
		}
		if err != nil {
			slog.Error("failed to publish alert", "score_id", result.ID, "error", err)
		}
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		resp := ErrorResponse{Error: "invalid JSON request body"}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			resp.Error = fmt.Sprintf("invalid %s: expected %s", typeErr.Field, typeErr.Type)
			resp.Field = typeErr.Field
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

// writeScoreError maps scoring errors to HTTP statuses.
func writeScoreError(w http.ResponseWriter, err error) {
	kind := scoring.ErrorKind(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Field = verr.Field
		writeJSON(w, http.StatusBadRequest, resp)
	case kind == "unavailable":
		writeJSON(w, http.StatusServiceUnavailable, resp)
	case kind == "canceled":
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		slog.Error("scoring failed", "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
