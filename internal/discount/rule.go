package discount

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies how a discount is triggered.
type Type string

const (
	TypeManual          Type = "MANUAL"
	TypeMinimumPurchase Type = "MINIMUM_PURCHASE"
	TypeBOGO            Type = "BOGO"
	TypeRegular         Type = "REGULAR"
)

// ValueType identifies how Rule.Value is interpreted.
type ValueType string

const (
	ValuePercentage ValueType = "PERCENTAGE"
	ValueNominal    ValueType = "NOMINAL"
)

// ErrInvalidRule is returned when a rule violates its structural invariants.
var ErrInvalidRule = errors.New("discount: invalid rule")

var hundred = decimal.NewFromInt(100)

// maxCount is the largest usage limit or BOGO quantity the rules table can hold.
const maxCount = math.MaxInt32

// BogoConfig configures a buy-X-get-Y rule.
type BogoConfig struct {
	BuyQuantity int  `json:"buyQuantity" validate:"gte=0,lte=2147483647"`
	GetQuantity int  `json:"getQuantity" validate:"gte=0,lte=2147483647"`
	MaxSets     *int `json:"maxSets,omitempty" validate:"omitempty,gte=0,lte=2147483647"`
}

// Rule is a discount definition maintained by store admins. The pricing
// engine only reads it.
type Rule struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Type                Type            `json:"type"`
	ValueType           ValueType       `json:"valueType"`
	Value               decimal.Decimal `json:"value"`
	MaxDiscountAmount   *int64          `json:"maxDiscountAmount,omitempty"`
	MinTransactionValue *int64          `json:"minTransactionValue,omitempty"`
	StartDate           time.Time       `json:"startDate"`
	EndDate             time.Time       `json:"endDate"`
	TotalUsageLimit     *int            `json:"totalUsageLimit,omitempty"`
	MaxUsagePerCustomer *int            `json:"maxUsagePerCustomer,omitempty"`
	CurrentUsageCount   int             `json:"currentUsageCount"`
	IsActive            bool            `json:"isActive"`
	Bogo                *BogoConfig     `json:"bogoConfig,omitempty"`
	ProductIDs          []uuid.UUID     `json:"productIds,omitempty"`
}

// ParseType normalises a user supplied discount type.
func ParseType(value string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(value)))
	switch t {
	case TypeManual, TypeMinimumPurchase, TypeBOGO, TypeRegular:
		return t, nil
	}
	return "", fmt.Errorf("unknown type %q: %w", value, ErrInvalidRule)
}

// ParseValueType normalises a user supplied value type.
func ParseValueType(value string) (ValueType, error) {
	v := ValueType(strings.ToUpper(strings.TrimSpace(value)))
	switch v {
	case ValuePercentage, ValueNominal:
		return v, nil
	}
	return "", fmt.Errorf("unknown value type %q: %w", value, ErrInvalidRule)
}

// Validate checks the structural invariants of the rule.
func (r Rule) Validate() error {
	if _, err := ParseType(string(r.Type)); err != nil {
		return err
	}
	if r.Type == TypeBOGO {
		if r.Bogo == nil {
			return fmt.Errorf("bogo config is required: %w", ErrInvalidRule)
		}
		if r.Bogo.BuyQuantity < 1 || r.Bogo.GetQuantity < 1 {
			return fmt.Errorf("bogo buy and get quantities must be at least 1: %w", ErrInvalidRule)
		}
		if r.Bogo.MaxSets != nil && *r.Bogo.MaxSets < 0 {
			return fmt.Errorf("bogo max sets must not be negative: %w", ErrInvalidRule)
		}
		if r.Bogo.BuyQuantity > maxCount || r.Bogo.GetQuantity > maxCount || (r.Bogo.MaxSets != nil && *r.Bogo.MaxSets > maxCount) {
			return fmt.Errorf("bogo quantities must not exceed %d: %w", maxCount, ErrInvalidRule)
		}
	} else {
		if _, err := ParseValueType(string(r.ValueType)); err != nil {
			return err
		}
	}
	if r.Value.IsNegative() {
		return fmt.Errorf("value must not be negative: %w", ErrInvalidRule)
	}
	if r.ValueType == ValuePercentage && r.Value.GreaterThan(hundred) {
		return fmt.Errorf("percentage must be between 0 and 100: %w", ErrInvalidRule)
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("start and end dates are required: %w", ErrInvalidRule)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("end date precedes start date: %w", ErrInvalidRule)
	}
	if r.MaxDiscountAmount != nil && *r.MaxDiscountAmount < 0 {
		return fmt.Errorf("max discount amount must not be negative: %w", ErrInvalidRule)
	}
	if r.MinTransactionValue != nil && *r.MinTransactionValue < 0 {
		return fmt.Errorf("minimum transaction value must not be negative: %w", ErrInvalidRule)
	}
	if r.Type == TypeMinimumPurchase && r.MinTransactionValue == nil {
		return fmt.Errorf("minimum purchase rule requires minTransactionValue: %w", ErrInvalidRule)
	}
	if r.TotalUsageLimit != nil && *r.TotalUsageLimit < 0 {
		return fmt.Errorf("total usage limit must not be negative: %w", ErrInvalidRule)
	}
	if r.MaxUsagePerCustomer != nil && *r.MaxUsagePerCustomer < 0 {
		return fmt.Errorf("per-customer limit must not be negative: %w", ErrInvalidRule)
	}
	if (r.TotalUsageLimit != nil && *r.TotalUsageLimit > maxCount) || (r.MaxUsagePerCustomer != nil && *r.MaxUsagePerCustomer > maxCount) {
		return fmt.Errorf("usage limits must not exceed %d: %w", maxCount, ErrInvalidRule)
	}
	return nil
}

// AppliesTo reports whether the rule targets the product. Rules without a
// product scope apply to every product.
func (r Rule) AppliesTo(productID uuid.UUID) bool {
	if len(r.ProductIDs) == 0 {
		return true
	}
	for _, id := range r.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}
