package features

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

func loadDemoMetadata(t *testing.T) *Metadata {
	t.Helper()
	meta, err := LoadMetadata("../../models/feature_info.json")
	require.NoError(t, err)
	return meta
}

func legitRecord() domain.TransactionRecord {
	return domain.TransactionRecord{
		Amount:             decimal.RequireFromString("45.50"),
		TransactionHour:    14,
		MerchantCategory:   "Grocery",
		ForeignTransaction: false,
		LocationMismatch:   false,
		DeviceTrustScore:   85,
		VelocityLast24h:    2,
		CardholderAge:      35,
	}
}

func TestCodecEncode(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)
	require.Equal(t, 12, codec.Len())

	vec, err := codec.Encode(legitRecord())
	require.NoError(t, err)

	want := Vector{
		(45.5 - 250) / 400,
		(14 - 12) / 6.5,
		(85 - 65) / 20.0,
		(2 - 3) / 2.5,
		(35 - 42) / 14.0,
		0, 0, 0, 1, 0,
		0, 0,
	}
	require.Len(t, vec, len(want))
	for i := range want {
		assert.InDelta(t, want[i], vec[i], 1e-9, "feature %s", codec.FeatureNames()[i])
	}
}

func TestCodecFlags(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)

	rec := legitRecord()
	rec.ForeignTransaction = true
	rec.LocationMismatch = true
	rec.MerchantCategory = "Electronics"

	vec, err := codec.Encode(rec)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vec[6])
	assert.Equal(t, 0.0, vec[8])
	assert.Equal(t, 1.0, vec[10])
	assert.Equal(t, 1.0, vec[11])
}

func TestCodecValidation(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*domain.TransactionRecord)
		field  string
	}{
		{"unknown category", func(r *domain.TransactionRecord) { r.MerchantCategory = "Unknown" }, "merchant_category"},
		{"empty category", func(r *domain.TransactionRecord) { r.MerchantCategory = "" }, "merchant_category"},
		{"trust score too high", func(r *domain.TransactionRecord) { r.DeviceTrustScore = 150 }, "device_trust_score"},
		{"trust score negative", func(r *domain.TransactionRecord) { r.DeviceTrustScore = -1 }, "device_trust_score"},
		{"hour too high", func(r *domain.TransactionRecord) { r.TransactionHour = 24 }, "transaction_hour"},
		{"negative amount", func(r *domain.TransactionRecord) { r.Amount = decimal.NewFromInt(-5) }, "amount"},
		{"amount beyond float range", func(r *domain.TransactionRecord) { r.Amount = decimal.RequireFromString("1e400") }, "amount"},
		{"negative velocity", func(r *domain.TransactionRecord) { r.VelocityLast24h = -1 }, "velocity_last_24h"},
		{"zero age", func(r *domain.TransactionRecord) { r.CardholderAge = 0 }, "cardholder_age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := legitRecord()
			tt.mutate(&rec)

			vec, err := codec.Encode(rec)
			assert.Nil(t, vec)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCodecBoundaries(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)

	rec := legitRecord()
	rec.Amount = decimal.Zero
	rec.TransactionHour = 23
	rec.DeviceTrustScore = 100
	rec.VelocityLast24h = 0
	rec.CardholderAge = 1

	_, err = codec.Encode(rec)
	assert.NoError(t, err)

	rec.TransactionHour = 0
	rec.DeviceTrustScore = 0
	_, err = codec.Encode(rec)
	assert.NoError(t, err)
}

func TestCodecReportsFirstFieldInWireOrder(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)

	rec := legitRecord()
	rec.MerchantCategory = "Unknown"
	rec.DeviceTrustScore = 150

	_, err = codec.Encode(rec)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "merchant_category", ve.Field)
}

func TestCodecRejectsCategoryOutsideMetadata(t *testing.T) {
	meta := &Metadata{
		Version:      "test",
		FeatureOrder: []string{"amount", "merchant_category_Food", "merchant_category_Travel"},
		Categorical: map[string]CategoricalSpec{
			"merchant_category": {Encoding: EncodingOneHot, Categories: []string{"Food", "Travel"}},
		},
	}
	codec, err := NewCodec(meta)
	require.NoError(t, err)

	rec := legitRecord() // Grocery is a domain category but unknown to this model
	_, err = codec.Encode(rec)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "merchant_category", ve.Field)
}

func TestCodecDeterministicAndConcurrent(t *testing.T) {
	codec, err := NewCodec(loadDemoMetadata(t))
	require.NoError(t, err)

	first, err := codec.Encode(legitRecord())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := codec.Encode(legitRecord())
			assert.NoError(t, err)
			assert.Equal(t, first, vec)
		}()
	}
	wg.Wait()
}

func TestOrdinalAndMinMax(t *testing.T) {
	meta := &Metadata{
		Version:      "ordinal",
		FeatureOrder: []string{"merchant_category", "device_trust_score", "location_mismatch"},
		Categorical: map[string]CategoricalSpec{
			"merchant_category": {Encoding: EncodingOrdinal, Categories: domain.MerchantCategories},
		},
		Numeric: map[string]NumericSpec{
			"device_trust_score": {Method: NormalizeMinMax, Min: 0, Max: 100},
		},
	}

	vec, err := Encode(legitRecord(), meta)
	require.NoError(t, err)
	assert.Equal(t, Vector{3, 0.85, 0}, vec)
}

func TestNewCodecUnresolvableFeature(t *testing.T) {
	tests := []struct {
		name string
		meta *Metadata
	}{
		{"unknown raw field", &Metadata{FeatureOrder: []string{"amount", "ip_risk"}}},
		{"one-hot without categorical spec", &Metadata{FeatureOrder: []string{"merchant_category_Food"}}},
		{"one-hot for unlisted category", &Metadata{
			FeatureOrder: []string{"merchant_category_Travel"},
			Categorical: map[string]CategoricalSpec{
				"merchant_category": {Encoding: EncodingOneHot, Categories: []string{"Food"}},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(tt.meta)
			assert.Error(t, err)
		})
	}
}

func TestParseMetadataValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"empty order", `{"feature_order": []}`},
		{"duplicate feature", `{"feature_order": ["amount", "amount"]}`},
		{"zero std", `{"feature_order": ["amount"], "numeric": {"amount": {"method": "standard", "std": 0}}}`},
		{"empty range", `{"feature_order": ["amount"], "numeric": {"amount": {"method": "minmax", "min": 1, "max": 1}}}`},
		{"unknown category", `{"feature_order": ["amount"], "categorical": {"merchant_category": {"encoding": "onehot", "categories": ["Casino"]}}}`},
		{"bad encoding", `{"feature_order": ["amount"], "categorical": {"merchant_category": {"encoding": "hash", "categories": ["Food"]}}}`},
		{"malformed", `{"feature_order": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}
