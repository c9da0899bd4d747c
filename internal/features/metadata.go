// Package features turns raw transaction records into model-ready vectors.
package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Categorical encodings.
const (
	EncodingOneHot  = "onehot"
	EncodingOrdinal = "ordinal"
)

// Numeric normalisation methods.
const (
	NormalizeNone     = "none"
	NormalizeStandard = "standard"
	NormalizeMinMax   = "minmax"
)

// Metadata is the feature description produced at training time.
type Metadata struct {
	Version      string                    `json:"version"`
	FeatureOrder []string                  `json:"feature_order"`
	Categorical  map[string]CategoricalSpec `json:"categorical"`
	Numeric      map[string]NumericSpec     `json:"numeric"`
	Metrics      map[string]float64         `json:"metrics,omitempty"`
}

// CategoricalSpec describes how a categorical field is encoded.
type CategoricalSpec struct {
	Encoding   string    `json:"encoding"`
	Categories []string  `json:"categories"`
	// Values overrides the ordinal code of each category. Defaults to its index.
	Values []float64 `json:"values,omitempty"`
}

// NumericSpec describes how a numeric field is normalised.
type NumericSpec struct {
	Method string  `json:"method"`
	Mean   float64 `json:"mean,omitempty"`
	Std    float64 `json:"std,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
}

// LoadMetadata reads and validates a metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature metadata: %w", err)
	}
	return ParseMetadata(data)
}

// ParseMetadata decodes and validates metadata JSON.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse feature metadata: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural consistency of the metadata.
// Feature name resolution is checked by NewCodec.
func (m *Metadata) Validate() error {
	if len(m.FeatureOrder) == 0 {
		return fmt.Errorf("feature metadata: feature_order is empty")
	}

	seen := make(map[string]struct{}, len(m.FeatureOrder))
	for _, name := range m.FeatureOrder {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("feature metadata: duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}

	for field, spec := range m.Categorical {
		if field != fieldMerchantCategory {
			return fmt.Errorf("feature metadata: unsupported categorical field %q", field)
		}
		if len(spec.Categories) == 0 {
			return fmt.Errorf("feature metadata: %s has no categories", field)
		}
		for _, c := range spec.Categories {
			if !domain.IsMerchantCategory(c) {
				return fmt.Errorf("feature metadata: unknown %s category %q", field, c)
			}
		}
		switch spec.Encoding {
		case EncodingOneHot:
		case EncodingOrdinal:
			if len(spec.Values) > 0 && len(spec.Values) != len(spec.Categories) {
				return fmt.Errorf("feature metadata: %s has %d ordinal values for %d categories",
					field, len(spec.Values), len(spec.Categories))
			}
		default:
			return fmt.Errorf("feature metadata: unsupported encoding %q for %s", spec.Encoding, field)
		}
	}

	for field, spec := range m.Numeric {
		if _, ok := numericFields[field]; !ok {
			return fmt.Errorf("feature metadata: unknown numeric field %q", field)
		}
		switch spec.Method {
		case "", NormalizeNone:
		case NormalizeStandard:
			if spec.Std == 0 {
				return fmt.Errorf("feature metadata: %s has zero standard deviation", field)
			}
		case NormalizeMinMax:
			if spec.Max == spec.Min {
				return fmt.Errorf("feature metadata: %s has an empty min/max range", field)
			}
		default:
			return fmt.Errorf("feature metadata: unsupported normalisation %q for %s", spec.Method, field)
		}
	}

	return nil
}

// Categories returns the merchant categories the model was trained on.
func (m *Metadata) Categories() []string {
	spec, ok := m.Categorical[fieldMerchantCategory]
	if !ok {
		return nil
	}
	out := make([]string, len(spec.Categories))
	copy(out, spec.Categories)
	return out
}
