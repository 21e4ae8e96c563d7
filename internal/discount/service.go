package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/obs"
)

var (
	// ErrNotFound is returned when a rule does not exist.
	ErrNotFound = errors.New("discount rule not found")
	// ErrUsageLimitReached indicates the rule exhausted its global quota at redemption time.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
	// ErrCustomerLimitReached indicates the customer exhausted the per-customer allowance at redemption time.
	ErrCustomerLimitReached = errors.New("discount per-customer limit reached")
	// ErrLimitBelowUsage is returned when an update sets the total usage limit
	// below the number of redemptions already recorded.
	ErrLimitBelowUsage = errors.New("discount usage limit below current usage")
	// ErrNotRedeemable is returned when the rule rejects the redemption context.
	ErrNotRedeemable = errors.New("discount not redeemable")
)

// Usage is a single redemption of a rule for an order.
type Usage struct {
	RuleID     uuid.UUID
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
	Amount     int64
}

// Querier captures the persistence methods required by the discount service.
type Querier interface {
	GetRule(ctx context.Context, id uuid.UUID) (Rule, error)
	ListRules(ctx context.Context, limit, offset int) ([]Rule, int, error)
	ListActiveRules(ctx context.Context, now time.Time) ([]Rule, error)
	CreateRule(ctx context.Context, r Rule) (Rule, error)
	UpdateRule(ctx context.Context, r Rule) (Rule, error)
	CountCustomerUsage(ctx context.Context, ruleID, customerID uuid.UUID) (int, error)
	RecordUsage(ctx context.Context, u Usage) (bool, error)
}

// Cache stores rule snapshots in front of the Querier.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// Input is the caller supplied part of a pricing context.
type Input struct {
	ProductPrice int64
	Quantity     int
	CartSubtotal int64
	CustomerID   *uuid.UUID
}

// Evaluation pairs a rule with its pricing result.
type Evaluation struct {
	Rule   Rule   `json:"rule"`
	Result Result `json:"result"`
}

// Redemption describes a recorded redemption.
type Redemption struct {
	RuleID    uuid.UUID `json:"ruleId"`
	OrderID   uuid.UUID `json:"orderId"`
	Amount    int64     `json:"amount"`
	Duplicate bool      `json:"duplicate"`
}

// Locker serialises redemptions of the same rule across API replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service loads rules and runs them through the pricing engine.
type Service struct {
	Q      Querier
	Cache  Cache
	Lock   Locker
	Now    func() time.Time
	Logger zerolog.Logger
}

// Evaluate prices a product against a single rule.
func (s *Service) Evaluate(ctx context.Context, ruleID uuid.UUID, in Input) (Evaluation, error) {
	if s == nil || s.Q == nil {
		return Evaluation{}, errors.New("discount service not configured")
	}
	rule, err := s.cachedRule(ctx, ruleID)
	if err != nil {
		return Evaluation{}, err
	}
	pc, err := s.context(ctx, rule, in)
	if err != nil {
		return Evaluation{}, err
	}
	res, err := Evaluate(pc)
	if err != nil {
		obs.IncDiscountEvaluation(string(rule.Type), "invalid")
		return Evaluation{}, err
	}
	obs.IncDiscountEvaluation(string(rule.Type), resultLabel(res))
	return Evaluation{Rule: rule, Result: res}, nil
}

// BestForProduct evaluates every active rule scoped to the product and
// returns the one giving the largest discount. ok is false when none apply.
func (s *Service) BestForProduct(ctx context.Context, productID uuid.UUID, in Input) (Evaluation, bool, error) {
	if s == nil || s.Q == nil {
		return Evaluation{}, false, errors.New("discount service not configured")
	}
	now := s.now()
	rules, err := s.Q.ListActiveRules(ctx, now)
	if err != nil {
		return Evaluation{}, false, fmt.Errorf("list active rules: %w", err)
	}
	scoped := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppliesTo(productID) {
			scoped = append(scoped, r)
		}
	}
	pc := Context{ProductPrice: in.ProductPrice, Quantity: in.Quantity, CartSubtotal: in.CartSubtotal, Now: now}
	// per-customer allowances are enforced at redemption; the storefront
	// listing shows the best discount available in general
	rule, res, ok, err := Best(pc, scoped)
	if err != nil {
		return Evaluation{}, false, err
	}
	if !ok {
		return Evaluation{}, false, nil
	}
	obs.IncDiscountEvaluation(string(rule.Type), resultLabel(res))
	return Evaluation{Rule: rule, Result: res}, true, nil
}

// Redeem re-evaluates the rule against fresh state and records usage for the
// order. Redeeming the same order twice is a no-op reported as Duplicate.
func (s *Service) Redeem(ctx context.Context, ruleID, orderID uuid.UUID, in Input) (Redemption, error) {
	if s == nil || s.Q == nil {
		return Redemption{}, errors.New("discount service not configured")
	}
	if s.Lock == nil {
		return s.redeem(ctx, ruleID, orderID, in)
	}
	var out Redemption
	err := s.Lock.WithLock(ctx, "discount:redeem:"+ruleID.String(), 10*time.Second, func(ctx context.Context) error {
		var err error
		out, err = s.redeem(ctx, ruleID, orderID, in)
		return err
	})
	return out, err
}

// redeem re-evaluates the rule against live usage counts and records the usage.
func (s *Service) redeem(ctx context.Context, ruleID, orderID uuid.UUID, in Input) (Redemption, error) {
	rule, err := s.Q.GetRule(ctx, ruleID)
	if err != nil {
		return Redemption{}, err
	}
	pc, err := s.context(ctx, rule, in)
	if err != nil {
		return Redemption{}, err
	}
	res, err := Evaluate(pc)
	if err != nil {
		return Redemption{}, err
	}
	if !res.Applied {
		obs.IncDiscountRedemption("rejected")
		return Redemption{}, fmt.Errorf("%w: %s", ErrNotRedeemable, res.RejectionReason)
	}
	inserted, err := s.Q.RecordUsage(ctx, Usage{RuleID: ruleID, OrderID: orderID, CustomerID: in.CustomerID, Amount: res.TotalDiscountAmount})
	if err != nil {
		obs.IncDiscountRedemption("error")
		return Redemption{}, err
	}
	out := Redemption{RuleID: ruleID, OrderID: orderID, Amount: res.TotalDiscountAmount, Duplicate: !inserted}
	if !inserted {
		obs.IncDiscountRedemption("duplicate")
		return out, nil
	}
	obs.IncDiscountRedemption("recorded")
	s.invalidate(ctx, ruleID)
	s.Logger.Info().Str("rule_id", ruleID.String()).Str("order_id", orderID.String()).Int64("amount", out.Amount).Msg("discount_redeemed")
	return out, nil
}

// Get returns a rule by id, bypassing the cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Rule, error) {
	if s == nil || s.Q == nil {
		return Rule{}, errors.New("discount service not configured")
	}
	return s.Q.GetRule(ctx, id)
}

// List returns a page of rules and the total count.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Rule, int, error) {
	if s == nil || s.Q == nil {
		return nil, 0, errors.New("discount service not configured")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.Q.ListRules(ctx, perPage, (page-1)*perPage)
}

// Create validates and persists a new rule.
func (s *Service) Create(ctx context.Context, r Rule) (Rule, error) {
	if s == nil || s.Q == nil {
		return Rule{}, errors.New("discount service not configured")
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	r.CurrentUsageCount = 0
	return s.Q.CreateRule(ctx, r)
}

// Update validates and persists changes to an existing rule. The usage
// counter is owned by redemption and never overwritten here.
func (s *Service) Update(ctx context.Context, r Rule) (Rule, error) {
	if s == nil || s.Q == nil {
		return Rule{}, errors.New("discount service not configured")
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	updated, err := s.Q.UpdateRule(ctx, r)
	if err != nil {
		return Rule{}, err
	}
	s.invalidate(ctx, r.ID)
	return updated, nil
}

func (s *Service) context(ctx context.Context, rule Rule, in Input) (Context, error) {
	pc := Context{
		ProductPrice: in.ProductPrice,
		Quantity:     in.Quantity,
		CartSubtotal: in.CartSubtotal,
		Rule:         rule,
		Now:          s.now(),
	}
	if in.CustomerID != nil && rule.MaxUsagePerCustomer != nil {
		used, err := s.Q.CountCustomerUsage(ctx, rule.ID, *in.CustomerID)
		if err != nil {
			return Context{}, fmt.Errorf("count customer usage: %w", err)
		}
		pc.CustomerUsageCount = &used
	}
	return pc, nil
}

func (s *Service) cachedRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	key := ruleCacheKey(id)
	if s.Cache != nil {
		var cached Rule
		hit, err := s.Cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.Logger.Warn().Err(err).Str("rule_id", id.String()).Msg("discount cache read")
		} else if hit {
			return cached, nil
		}
	}
	rule, err := s.Q.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if s.Cache != nil {
		if err := s.Cache.SetJSON(ctx, key, rule); err != nil {
			s.Logger.Warn().Err(err).Str("rule_id", id.String()).Msg("discount cache write")
		}
	}
	return rule, nil
}

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, ruleCacheKey(id)); err != nil {
		s.Logger.Warn().Err(err).Str("rule_id", id.String()).Msg("discount cache invalidate")
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func ruleCacheKey(id uuid.UUID) string {
	return "discount:rule:" + id.String()
}

func resultLabel(res Result) string {
	if res.Applied {
		return "applied"
	}
	return string(res.RejectionReason)
}
