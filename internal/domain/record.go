package domain

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/shopspring/decimal"
)

// Merchant categories known to the scoring engine. Feature metadata may list
// a subset; anything outside this table is rejected at metadata load time.
const (
	CategoryClothing    = "Clothing"
	CategoryElectronics = "Electronics"
	CategoryFood        = "Food"
	CategoryGrocery     = "Grocery"
	CategoryTravel      = "Travel"
)

// MerchantCategories lists the supported merchant categories in training order.
var MerchantCategories = []string{
	CategoryClothing,
	CategoryElectronics,
	CategoryFood,
	CategoryGrocery,
	CategoryTravel,
}

// IsMerchantCategory reports whether name is a supported merchant category.
func IsMerchantCategory(name string) bool {
	for _, c := range MerchantCategories {
		if c == name {
			return true
		}
	}
	return false
}

// TransactionRecord is the raw description of a single card transaction.
// Field order matches the wire order used for validation error reporting.
// The category tag is registered by the feature codec against its metadata.
type TransactionRecord struct {
	Amount             decimal.Decimal `json:"amount" validate:"gte=0,finite"`
	TransactionHour    int             `json:"transaction_hour" validate:"gte=0,lte=23"`
	MerchantCategory   string          `json:"merchant_category" validate:"required,category"`
	ForeignTransaction Flag            `json:"foreign_transaction"`
	LocationMismatch   Flag            `json:"location_mismatch"`
	DeviceTrustScore   int             `json:"device_trust_score" validate:"gte=0,lte=100"`
	VelocityLast24h    int             `json:"velocity_last_24h" validate:"gte=0"`
	CardholderAge      int             `json:"cardholder_age" validate:"gt=0"`
}

// Flag is a boolean that also accepts 0 and 1 on the wire.
type Flag bool

// UnmarshalJSON accepts true, false, 0 and 1.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		// encoding/json fills in the field name for type errors.
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(false)}
	}
	return nil
}

// Float returns 1 for a set flag and 0 otherwise.
func (f Flag) Float() float64 {
	if f {
		return 1
	}
	return 0
}

// ScoreRequest is the API payload for scoring a transaction.
// Pointer fields distinguish a missing attribute from its zero value.
type ScoreRequest struct {
	TransactionID      string           `json:"transaction_id,omitempty"`
	Amount             *decimal.Decimal `json:"amount"`
	TransactionHour    *int             `json:"transaction_hour"`
	MerchantCategory   *string          `json:"merchant_category"`
	ForeignTransaction *Flag            `json:"foreign_transaction"`
	LocationMismatch   *Flag            `json:"location_mismatch"`
	DeviceTrustScore   *int             `json:"device_trust_score"`
	VelocityLast24h    *int             `json:"velocity_last_24h"`
	CardholderAge      *int             `json:"cardholder_age"`
}

// ToRecord converts a request to a TransactionRecord.
// The first missing attribute in wire order is reported as a ValidationError.
func (r *ScoreRequest) ToRecord() (TransactionRecord, error) {
	switch {
	case r.Amount == nil:
		return TransactionRecord{}, missingField("amount")
	case r.TransactionHour == nil:
		return TransactionRecord{}, missingField("transaction_hour")
	case r.MerchantCategory == nil:
		return TransactionRecord{}, missingField("merchant_category")
	case r.ForeignTransaction == nil:
		return TransactionRecord{}, missingField("foreign_transaction")
	case r.LocationMismatch == nil:
		return TransactionRecord{}, missingField("location_mismatch")
	case r.DeviceTrustScore == nil:
		return TransactionRecord{}, missingField("device_trust_score")
	case r.VelocityLast24h == nil:
		return TransactionRecord{}, missingField("velocity_last_24h")
	case r.CardholderAge == nil:
		return TransactionRecord{}, missingField("cardholder_age")
	}

	return TransactionRecord{
		Amount:             *r.Amount,
		TransactionHour:    *r.TransactionHour,
		MerchantCategory:   *r.MerchantCategory,
		ForeignTransaction: *r.ForeignTransaction,
		LocationMismatch:   *r.LocationMismatch,
		DeviceTrustScore:   *r.DeviceTrustScore,
		VelocityLast24h:    *r.VelocityLast24h,
		CardholderAge:      *r.CardholderAge,
	}, nil
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}
