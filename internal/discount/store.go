package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const ruleColumns = `id, name, type, value_type, value::text, max_discount_amount, min_transaction_value,
	start_date, end_date, total_usage_limit, max_usage_per_customer, current_usage_count, is_active,
	bogo_buy_quantity, bogo_get_quantity, bogo_max_sets, product_ids`

const (
	getRuleSQL       = `SELECT ` + ruleColumns + ` FROM discount_rules WHERE id = $1`
	getRuleLockedSQL = getRuleSQL + ` FOR UPDATE`
	listRulesSQL     = `SELECT ` + ruleColumns + ` FROM discount_rules ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	countRulesSQL    = `SELECT count(*) FROM discount_rules`
	listActiveSQL    = `SELECT ` + ruleColumns + ` FROM discount_rules
	WHERE is_active AND start_date <= $1 AND end_date >= $1
	ORDER BY created_at, id`
	insertRuleSQL = `INSERT INTO discount_rules (
	name, type, value_type, value, max_discount_amount, min_transaction_value, start_date, end_date,
	total_usage_limit, max_usage_per_customer, is_active, bogo_buy_quantity, bogo_get_quantity,
	bogo_max_sets, product_ids
) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING ` + ruleColumns
	updateRuleSQL = `UPDATE discount_rules SET
	name = $2, type = $3, value_type = $4, value = $5::numeric, max_discount_amount = $6,
	min_transaction_value = $7, start_date = $8, end_date = $9, total_usage_limit = $10,
	max_usage_per_customer = $11, is_active = $12, bogo_buy_quantity = $13, bogo_get_quantity = $14,
	bogo_max_sets = $15, product_ids = $16, updated_at = now()
WHERE id = $1
RETURNING ` + ruleColumns
	countCustomerUsageSQL = `SELECT count(*) FROM discount_usages WHERE rule_id = $1 AND customer_id = $2`
	insertUsageSQL        = `INSERT INTO discount_usages (rule_id, order_id, customer_id, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT (rule_id, order_id) DO NOTHING`
	incrementUsageSQL = `UPDATE discount_rules
SET current_usage_count = current_usage_count + 1, updated_at = now()
WHERE id = $1 AND (total_usage_limit IS NULL OR current_usage_count < total_usage_limit)`
)

const (
	pgCheckViolation      = "23514"
	usageWithinLimitCheck = "discount_rules_usage_within_limit"
)

// PGStore implements Querier on a Postgres pool.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore constructs a Postgres backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

// GetRule loads a rule by id.
func (s *PGStore) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	rule, err := scanRule(s.Pool.QueryRow(ctx, getRuleSQL, pgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	return rule, err
}

// ListRules returns a page of rules, newest first, with the total count.
func (s *PGStore) ListRules(ctx context.Context, limit, offset int) ([]Rule, int, error) {
	var total int
	if err := s.Pool.QueryRow(ctx, countRulesSQL).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, listRulesSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	rules, err := collectRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// ListActiveRules returns active rules whose window contains now.
func (s *PGStore) ListActiveRules(ctx context.Context, now time.Time) ([]Rule, error) {
	rows, err := s.Pool.Query(ctx, listActiveSQL, now)
	if err != nil {
		return nil, err
	}
	return collectRules(rows)
}

// CreateRule inserts a rule and returns the stored row.
func (s *PGStore) CreateRule(ctx context.Context, r Rule) (Rule, error) {
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	buy, get, sets := bogoColumns(r.Bogo)
	rule, err := scanRule(s.Pool.QueryRow(ctx, insertRuleSQL,
		r.Name, string(r.Type), string(r.ValueType), r.Value.String(),
		nullInt8(r.MaxDiscountAmount), nullInt8(r.MinTransactionValue),
		r.StartDate, r.EndDate, nullInt4(r.TotalUsageLimit), nullInt4(r.MaxUsagePerCustomer),
		r.IsActive, buy, get, sets, pgUUIDs(r.ProductIDs),
	))
	if err != nil {
		return Rule{}, ruleWriteError(err)
	}
	return rule, nil
}

// UpdateRule overwrites the editable columns of an existing rule.
func (s *PGStore) UpdateRule(ctx context.Context, r Rule) (Rule, error) {
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	buy, get, sets := bogoColumns(r.Bogo)
	rule, err := scanRule(s.Pool.QueryRow(ctx, updateRuleSQL,
		pgUUID(r.ID), r.Name, string(r.Type), string(r.ValueType), r.Value.String(),
		nullInt8(r.MaxDiscountAmount), nullInt8(r.MinTransactionValue),
		r.StartDate, r.EndDate, nullInt4(r.TotalUsageLimit), nullInt4(r.MaxUsagePerCustomer),
		r.IsActive, buy, get, sets, pgUUIDs(r.ProductIDs),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Rule{}, ErrNotFound
	}
	if err != nil {
		return Rule{}, ruleWriteError(err)
	}
	return rule, nil
}

// ruleWriteError turns constraint violations caused by admin input into
// domain errors. Anything else passes through.
func ruleWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgCheckViolation {
		return err
	}
	if pgErr.ConstraintName == usageWithinLimitCheck {
		return fmt.Errorf("%w: %s", ErrLimitBelowUsage, pgErr.Message)
	}
	return fmt.Errorf("%s: %w", pgErr.Message, ErrInvalidRule)
}

// CountCustomerUsage returns how many times the customer redeemed the rule.
func (s *PGStore) CountCustomerUsage(ctx context.Context, ruleID, customerID uuid.UUID) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx, countCustomerUsageSQL, pgUUID(ruleID), pgUUID(customerID)).Scan(&n)
	return n, err
}

// RecordUsage stores a redemption and increments the rule counter in one
// transaction. The rule row is locked so concurrent redemptions cannot
// overshoot either limit. It returns false when the order was already recorded.
func (s *PGStore) RecordUsage(ctx context.Context, u Usage) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, err := scanRule(tx.QueryRow(ctx, getRuleLockedSQL, pgUUID(u.RuleID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	var customer pgtype.UUID
	if u.CustomerID != nil {
		customer = pgUUID(*u.CustomerID)
		if rule.MaxUsagePerCustomer != nil {
			var used int
			if err := tx.QueryRow(ctx, countCustomerUsageSQL, pgUUID(u.RuleID), customer).Scan(&used); err != nil {
				return false, err
			}
			if used >= *rule.MaxUsagePerCustomer {
				return false, ErrCustomerLimitReached
			}
		}
	}
	tag, err := tx.Exec(ctx, insertUsageSQL, pgUUID(u.RuleID), pgUUID(u.OrderID), customer, u.Amount)
	if err != nil {
		return false, fmt.Errorf("insert usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	tag, err = tx.Exec(ctx, incrementUsageSQL, pgUUID(u.RuleID))
	if err != nil {
		return false, fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrUsageLimitReached
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func collectRules(rows pgx.Rows) ([]Rule, error) {
	defer rows.Close()
	out := make([]Rule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row pgx.Row) (Rule, error) {
	var (
		id                        pgtype.UUID
		r                         Rule
		typ, valueType, value     string
		maxDiscount, minTx        pgtype.Int8
		totalLimit, perCustomer   pgtype.Int4
		bogoBuy, bogoGet, bogoMax pgtype.Int4
		products                  []pgtype.UUID
	)
	err := row.Scan(&id, &r.Name, &typ, &valueType, &value, &maxDiscount, &minTx,
		&r.StartDate, &r.EndDate, &totalLimit, &perCustomer, &r.CurrentUsageCount, &r.IsActive,
		&bogoBuy, &bogoGet, &bogoMax, &products)
	if err != nil {
		return Rule{}, err
	}
	r.ID = uuid.UUID(id.Bytes)
	r.Type = Type(typ)
	r.ValueType = ValueType(valueType)
	r.Value, err = decimal.NewFromString(value)
	if err != nil {
		return Rule{}, fmt.Errorf("parse rule value: %w", err)
	}
	if maxDiscount.Valid {
		r.MaxDiscountAmount = &maxDiscount.Int64
	}
	if minTx.Valid {
		r.MinTransactionValue = &minTx.Int64
	}
	r.TotalUsageLimit = intFromPG(totalLimit)
	r.MaxUsagePerCustomer = intFromPG(perCustomer)
	if bogoBuy.Valid && bogoGet.Valid {
		r.Bogo = &BogoConfig{BuyQuantity: int(bogoBuy.Int32), GetQuantity: int(bogoGet.Int32), MaxSets: intFromPG(bogoMax)}
	}
	for _, p := range products {
		if p.Valid {
			r.ProductIDs = append(r.ProductIDs, uuid.UUID(p.Bytes))
		}
	}
	return r, nil
}

// bogoColumns and nullInt4 assume Rule.Validate bounded the values to int32.
func bogoColumns(b *BogoConfig) (pgtype.Int4, pgtype.Int4, pgtype.Int4) {
	if b == nil {
		return pgtype.Int4{}, pgtype.Int4{}, pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(b.BuyQuantity), Valid: true},
		pgtype.Int4{Int32: int32(b.GetQuantity), Valid: true},
		nullInt4(b.MaxSets)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgUUIDs(ids []uuid.UUID) []pgtype.UUID {
	out := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		out = append(out, pgUUID(id))
	}
	return out
}

func nullInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func nullInt4(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

func intFromPG(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
