package domain

import (
	"time"
)

// RiskLevel is the coarse risk category of a scored transaction.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskBand maps a probability range to a risk level.
// Lower is inclusive, Upper is exclusive except for a band ending at 1.0.
type RiskBand struct {
	Level RiskLevel `json:"level"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// ScoringResult is the outcome of scoring one transaction.
type ScoringResult struct {
	ID                 string          `json:"id"`
	TransactionID      string          `json:"transaction_id,omitempty"`
	IsFraud            bool            `json:"is_fraud"`
	FraudProbability   float64         `json:"fraud_probability"`
	RiskLevel          RiskLevel       `json:"risk_level"`
	RecommendedActions []string        `json:"recommended_actions"`
	Confidence         float64         `json:"confidence"`
	ModelVersion       string          `json:"model_version"`
	Timestamp          time.Time       `json:"timestamp"`
	Metadata           ScoringMetadata `json:"metadata"`
}

// ScoringMetadata contains processing information.
type ScoringMetadata struct {
	TraceID   string `json:"traceId,omitempty"`
	EncodeUs  int64  `json:"encodeUs"`
	InferUs   int64  `json:"inferUs"`
	TotalUs   int64  `json:"totalUs"`
	Cached    bool   `json:"cached"`
	ModelType string `json:"modelType"`
}

// BatchItem is the outcome of one record in a batch.
// Exactly one of Result and Err is set.
type BatchItem struct {
	Index  int
	Result *ScoringResult
	Err    error
}

// ScoreRecord is a persisted scoring result together with its input.
type ScoreRecord struct {
	*ScoringResult
	Transaction TransactionRecord `json:"transaction"`
}

// ScoreFilter narrows a score listing.
type ScoreFilter struct {
	RiskLevel RiskLevel
	FraudOnly bool
	Limit     int
}

// Model status values reported by ModelInfo.
const (
	ModelStatusActive      = "active"
	ModelStatusUnavailable = "unavailable"
)

// ModelInfo describes the loaded model.
type ModelInfo struct {
	ModelType         string             `json:"model_type"`
	Version           string             `json:"version"`
	Features          []string           `json:"features"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
	Status            string             `json:"status"`
	DecisionThreshold float64            `json:"decision_threshold"`
	RiskBands         []RiskBand         `json:"risk_bands"`
	Error             string             `json:"error,omitempty"`
}
