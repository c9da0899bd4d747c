package features

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

const fieldMerchantCategory = "merchant_category"

// Vector is an ordered feature vector matching Metadata.FeatureOrder.
type Vector []float64

// numericFields maps raw record attributes to their numeric value.
var numericFields = map[string]func(*domain.TransactionRecord) float64{
	"amount": func(r *domain.TransactionRecord) float64 {
		f, _ := r.Amount.Float64()
		return f
	},
	"transaction_hour":    func(r *domain.TransactionRecord) float64 { return float64(r.TransactionHour) },
	"device_trust_score":  func(r *domain.TransactionRecord) float64 { return float64(r.DeviceTrustScore) },
	"velocity_last_24h":   func(r *domain.TransactionRecord) float64 { return float64(r.VelocityLast24h) },
	"cardholder_age":      func(r *domain.TransactionRecord) float64 { return float64(r.CardholderAge) },
	"foreign_transaction": func(r *domain.TransactionRecord) float64 { return r.ForeignTransaction.Float() },
	"location_mismatch":   func(r *domain.TransactionRecord) float64 { return r.LocationMismatch.Float() },
}

type featureFunc func(*domain.TransactionRecord) float64

// Codec encodes transaction records using compiled feature metadata.
// A Codec is read-only after construction and safe for concurrent use.
type Codec struct {
	meta       *Metadata
	plan       []featureFunc
	categories map[string]struct{}
	validate   *validator.Validate
}

// NewCodec compiles metadata into an encoding plan.
// Every name in feature_order must resolve to a record attribute or a category column.
func NewCodec(meta *Metadata) (*Codec, error) {
	if meta == nil {
		return nil, errors.New("feature metadata is nil")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	c := &Codec{
		meta:       meta,
		plan:       make([]featureFunc, 0, len(meta.FeatureOrder)),
		categories: make(map[string]struct{}),
	}
	for _, cat := range meta.Categories() {
		c.categories[cat] = struct{}{}
	}

	for _, name := range meta.FeatureOrder {
		fn, err := c.compile(name)
		if err != nil {
			return nil, err
		}
		c.plan = append(c.plan, fn)
	}

	c.validate = c.newValidator()
	return c, nil
}

func (c *Codec) compile(name string) (featureFunc, error) {
	if get, ok := numericFields[name]; ok {
		return normalizer(get, c.meta.Numeric[name]), nil
	}

	spec, ok := c.meta.Categorical[fieldMerchantCategory]
	if !ok {
		return nil, fmt.Errorf("feature %q cannot be resolved", name)
	}

	switch spec.Encoding {
	case EncodingOrdinal:
		if name != fieldMerchantCategory {
			return nil, fmt.Errorf("feature %q cannot be resolved", name)
		}
		codes := make(map[string]float64, len(spec.Categories))
		for i, cat := range spec.Categories {
			codes[cat] = float64(i)
			if len(spec.Values) > 0 {
				codes[cat] = spec.Values[i]
			}
		}
		return func(r *domain.TransactionRecord) float64 {
			return codes[r.MerchantCategory]
		}, nil

	default:
		cat, found := strings.CutPrefix(name, fieldMerchantCategory+"_")
		if !found {
			return nil, fmt.Errorf("feature %q cannot be resolved", name)
		}
		if _, known := c.categories[cat]; !known {
			return nil, fmt.Errorf("feature %q refers to unknown category %q", name, cat)
		}
		return func(r *domain.TransactionRecord) float64 {
			if r.MerchantCategory == cat {
				return 1
			}
			return 0
		}, nil
	}
}

func normalizer(get featureFunc, spec NumericSpec) featureFunc {
	switch spec.Method {
	case NormalizeStandard:
		return func(r *domain.TransactionRecord) float64 {
			return (get(r) - spec.Mean) / spec.Std
		}
	case NormalizeMinMax:
		span := spec.Max - spec.Min
		return func(r *domain.TransactionRecord) float64 {
			return (get(r) - spec.Min) / span
		}
	default:
		return get
	}
}

func (c *Codec) newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// merchant_category is checked in struct order so the first invalid
	// attribute in wire order is the one reported.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := c.categories[fl.Field().String()]
		return ok
	})

	// Amounts beyond float64 range convert to an infinity.
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.Float64 && field.Kind() != reflect.Float32 {
			return true
		}
		f := field.Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})

	return v
}

// Encode validates rec and returns its feature vector.
// Invalid attributes are reported as *domain.ValidationError.
func (c *Codec) Encode(rec domain.TransactionRecord) (Vector, error) {
	if err := c.validate.Struct(rec); err != nil {
		return nil, toValidationError(err)
	}

	vec := make(Vector, len(c.plan))
	for i, fn := range c.plan {
		vec[i] = fn(&rec)
	}
	return vec, nil
}

// Encode is a convenience wrapper that compiles meta and encodes rec.
// Callers encoding many records should build a Codec once.
func Encode(rec domain.TransactionRecord, meta *Metadata) (Vector, error) {
	c, err := NewCodec(meta)
	if err != nil {
		return nil, err
	}
	return c.Encode(rec)
}

// FeatureNames returns a copy of the feature order.
func (c *Codec) FeatureNames() []string {
	out := make([]string, len(c.meta.FeatureOrder))
	copy(out, c.meta.FeatureOrder)
	return out
}

// Len returns the vector length produced by Encode.
func (c *Codec) Len() int {
	return len(c.plan)
}

// Metadata returns the metadata the codec was compiled from.
func (c *Codec) Metadata() *Metadata {
	return c.meta
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("failed to validate transaction: %w", err)
	}

	fe := fieldErrs[0]
	return &domain.ValidationError{
		Field:  fe.Field(),
		Reason: reason(fe),
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "category":
		return fmt.Sprintf("unknown category %q", fe.Value())
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be > %s, got %v", fe.Param(), fe.Value())
	case "finite":
		return "must be a finite number"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
