package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		input   string
		want    Flag
		wantErr bool
	}{
		{"true", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0", false, false},
		{"2", false, true},
		{`"yes"`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f Flag
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				var typeErr *json.UnmarshalTypeError
				assert.True(t, errors.As(err, &typeErr), "expected UnmarshalTypeError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestScoreRequestInvalidFlagNamesField(t *testing.T) {
	body := `{"amount": 10, "foreign_transaction": "yes"}`

	var req ScoreRequest
	err := json.Unmarshal([]byte(body), &req)

	var typeErr *json.UnmarshalTypeError
	require.True(t, errors.As(err, &typeErr), "expected UnmarshalTypeError, got %v", err)
	assert.Equal(t, "foreign_transaction", typeErr.Field)
}

func TestScoreRequestToRecord(t *testing.T) {
	body := `{
		"amount": 45.5,
		"transaction_hour": 14,
		"merchant_category": "Grocery",
		"foreign_transaction": 0,
		"location_mismatch": false,
		"device_trust_score": 85,
		"velocity_last_24h": 2,
		"cardholder_age": 35
	}`

	var req ScoreRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	rec, err := req.ToRecord()
	require.NoError(t, err)
	assert.Equal(t, "45.5", rec.Amount.String())
	assert.Equal(t, 14, rec.TransactionHour)
	assert.Equal(t, "Grocery", rec.MerchantCategory)
	assert.False(t, bool(rec.ForeignTransaction))
	assert.Equal(t, 35, rec.CardholderAge)
}

func TestScoreRequestMissingField(t *testing.T) {
	// transaction_hour and cardholder_age are both missing; the first in wire order wins
	body := `{"amount": 10, "merchant_category": "Food", "foreign_transaction": 1,
		"location_mismatch": 0, "device_trust_score": 50, "velocity_last_24h": 1}`

	var req ScoreRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	_, err := req.ToRecord()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "transaction_hour", ve.Field)
	assert.Equal(t, "invalid transaction_hour: is required", ve.Error())
}

func TestModelErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("scoring: %w", &ModelError{Kind: ModelErrorInference, Err: cause})

	assert.True(t, IsModelError(err))
	assert.False(t, IsValidationError(err))
	assert.ErrorIs(t, err, cause)
}

func TestIsMerchantCategory(t *testing.T) {
	assert.True(t, IsMerchantCategory("Travel"))
	assert.False(t, IsMerchantCategory("Unknown"))
	assert.False(t, IsMerchantCategory("travel"))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, TierCommunity, cfg.Tier)
	assert.Equal(t, 0.5, cfg.Risk.DecisionThreshold)
	assert.Equal(t, 0.3, cfg.Risk.MediumLower)
	assert.Equal(t, 0.7, cfg.Risk.HighLower)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FRAUDSCORE_TIER", "pro")
	t.Setenv("FRAUDSCORE_PORT", "9090")
	t.Setenv("FRAUDSCORE_DECISION_THRESHOLD", "0.65")
	t.Setenv("FRAUDSCORE_BUS", "kafka")
	t.Setenv("FRAUDSCORE_KAFKA_BROKERS", "broker:9092")
	t.Setenv("FRAUDSCORE_SCORE_CACHE_TTL", "30s")
	t.Setenv("FRAUDSCORE_DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.65, cfg.Risk.DecisionThreshold)
	assert.Equal(t, "kafka", cfg.EventBus.Type)
	assert.Equal(t, "broker:9092", cfg.EventBus.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.Scoring.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	t.Run("bad number", func(t *testing.T) {
		t.Setenv("FRAUDSCORE_PORT", "eighty")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FRAUDSCORE_PORT")
	})

	t.Run("threshold out of range", func(t *testing.T) {
		t.Setenv("FRAUDSCORE_DECISION_THRESHOLD", "1.5")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("bands out of order", func(t *testing.T) {
		t.Setenv("FRAUDSCORE_RISK_MEDIUM", "0.8")
		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
