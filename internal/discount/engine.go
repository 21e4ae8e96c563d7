package discount

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when the pricing context is malformed.
var ErrInvalidInput = errors.New("discount: invalid input")

// Reason explains why a rule was not applied.
type Reason string

const (
	ReasonInactive              Reason = "inactive"
	ReasonNotStarted            Reason = "not_started"
	ReasonExpired               Reason = "expired"
	ReasonUsageLimitReached     Reason = "usage_limit_reached"
	ReasonCustomerLimitReached  Reason = "customer_limit_reached"
	ReasonMinimumPurchaseNotMet Reason = "minimum_purchase_not_met"
	ReasonBogoQuantityNotMet    Reason = "bogo_quantity_not_met"
	ReasonZeroDiscount          Reason = "zero_discount"
)

var reasonMessages = map[Reason]string{
	ReasonInactive:              "discount is not active",
	ReasonNotStarted:            "discount has not started yet",
	ReasonExpired:               "discount has expired",
	ReasonUsageLimitReached:     "discount quota has been used up",
	ReasonCustomerLimitReached:  "you have used this discount the maximum number of times",
	ReasonMinimumPurchaseNotMet: "minimum purchase not met",
	ReasonBogoQuantityNotMet:    "add more items to get the free ones",
	ReasonZeroDiscount:          "discount does not reduce the price",
}

// Message returns a customer facing description of the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Context is the input of a single pricing evaluation. Amounts are whole
// currency units. A zero Now means the current time.
type Context struct {
	ProductPrice       int64
	Quantity           int
	CartSubtotal       int64
	Rule               Rule
	CustomerUsageCount *int
	Now                time.Time
}

// Result is the outcome of evaluating a rule.
type Result struct {
	UnitDiscountAmount  int64  `json:"unitDiscountAmount"`
	EffectiveUnitPrice  int64  `json:"effectiveUnitPrice"`
	TotalDiscountAmount int64  `json:"totalDiscountAmount"`
	DiscountedUnits     int    `json:"discountedUnits"`
	Applied             bool   `json:"applied"`
	RejectionReason     Reason `json:"rejectionReason,omitempty"`
}

// Evaluate validates the rule against the context and computes the discount.
// Business rejections are reported through Result.RejectionReason; only
// malformed input produces an error.
func Evaluate(c Context) (Result, error) {
	if err := validateInput(c); err != nil {
		return Result{}, err
	}
	if err := c.Rule.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	now := c.Now
	if now.IsZero() {
		now = time.Now()
	}
	if reason := rejection(c, now); reason != "" {
		return reject(c, reason), nil
	}

	var res Result
	if c.Rule.Type == TypeBOGO {
		res = computeBogo(c)
	} else {
		res = computeUnit(c)
	}
	if res.TotalDiscountAmount <= 0 {
		return reject(c, ReasonZeroDiscount), nil
	}
	res.Applied = true
	return res, nil
}

// Best evaluates every rule against the same context and returns the applied
// rule with the largest total discount. Earlier rules win ties. Rules that
// fail their own invariants are skipped.
func Best(c Context, rules []Rule) (Rule, Result, bool, error) {
	if err := validateInput(c); err != nil {
		return Rule{}, Result{}, false, err
	}
	var (
		bestRule Rule
		best     Result
		found    bool
	)
	for _, r := range rules {
		c.Rule = r
		res, err := Evaluate(c)
		if err != nil || !res.Applied {
			continue
		}
		if !found || res.TotalDiscountAmount > best.TotalDiscountAmount {
			bestRule, best, found = r, res, true
		}
	}
	return bestRule, best, found, nil
}

func validateInput(c Context) error {
	if c.ProductPrice < 0 {
		return fmt.Errorf("product price must not be negative: %w", ErrInvalidInput)
	}
	if c.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative: %w", ErrInvalidInput)
	}
	if c.CartSubtotal < 0 {
		return fmt.Errorf("cart subtotal must not be negative: %w", ErrInvalidInput)
	}
	// line totals are price x quantity; both discount paths stay below that product
	if c.ProductPrice > 0 && int64(c.Quantity) > math.MaxInt64/c.ProductPrice {
		return fmt.Errorf("product price times quantity overflows: %w", ErrInvalidInput)
	}
	if c.CustomerUsageCount != nil && *c.CustomerUsageCount < 0 {
		return fmt.Errorf("customer usage count must not be negative: %w", ErrInvalidInput)
	}
	return nil
}

// rejection applies the validation checks in order and returns the first failure.
func rejection(c Context, now time.Time) Reason {
	r := c.Rule
	if !r.IsActive {
		return ReasonInactive
	}
	if now.Before(r.StartDate) {
		return ReasonNotStarted
	}
	if now.After(r.EndDate) {
		return ReasonExpired
	}
	if r.TotalUsageLimit != nil && r.CurrentUsageCount >= *r.TotalUsageLimit {
		return ReasonUsageLimitReached
	}
	if r.MaxUsagePerCustomer != nil && c.CustomerUsageCount != nil && *c.CustomerUsageCount >= *r.MaxUsagePerCustomer {
		return ReasonCustomerLimitReached
	}
	if r.Type == TypeMinimumPurchase && r.MinTransactionValue != nil && c.CartSubtotal < *r.MinTransactionValue {
		return ReasonMinimumPurchaseNotMet
	}
	if r.Type == TypeBOGO && c.Quantity < r.Bogo.BuyQuantity {
		return ReasonBogoQuantityNotMet
	}
	return ""
}

func reject(c Context, reason Reason) Result {
	return Result{EffectiveUnitPrice: c.ProductPrice, RejectionReason: reason}
}

func computeUnit(c Context) Result {
	price := c.ProductPrice
	var unit int64
	switch c.Rule.ValueType {
	case ValuePercentage:
		unit = roundMoney(decimal.NewFromInt(price).Mul(c.Rule.Value).Div(hundred))
		if c.Rule.MaxDiscountAmount != nil && unit > *c.Rule.MaxDiscountAmount {
			unit = *c.Rule.MaxDiscountAmount
		}
	case ValueNominal:
		unit = roundMoney(c.Rule.Value)
	}
	if unit > price {
		unit = price
	}
	if unit < 0 {
		unit = 0
	}
	return Result{
		UnitDiscountAmount:  unit,
		EffectiveUnitPrice:  price - unit,
		TotalDiscountAmount: unit * int64(c.Quantity),
		DiscountedUnits:     c.Quantity,
	}
}

// computeBogo grants free units; the rule's value settings are not used.
func computeBogo(c Context) Result {
	cfg := c.Rule.Bogo
	free := (c.Quantity / cfg.BuyQuantity) * cfg.GetQuantity
	if cfg.MaxSets != nil {
		if limit := *cfg.MaxSets * cfg.GetQuantity; free > limit {
			free = limit
		}
	}
	if free > c.Quantity {
		free = c.Quantity
	}
	total := int64(free) * c.ProductPrice
	var unit int64
	if c.Quantity > 0 {
		unit = roundMoney(decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(c.Quantity))))
	}
	effective := c.ProductPrice - unit
	if effective < 0 {
		effective = 0
	}
	return Result{
		UnitDiscountAmount:  unit,
		EffectiveUnitPrice:  effective,
		TotalDiscountAmount: total,
		DiscountedUnits:     free,
	}
}

// roundMoney rounds to the nearest whole unit, halves away from zero.
func roundMoney(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
