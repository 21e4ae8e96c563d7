package discount

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRuleWriteErrorMapsCheckViolations(t *testing.T) {
	belowUsage := &pgconn.PgError{
		Code:           pgCheckViolation,
		ConstraintName: usageWithinLimitCheck,
		Message:        `new row for relation "discount_rules" violates check constraint`,
	}
	err := ruleWriteError(belowUsage)
	require.ErrorIs(t, err, ErrLimitBelowUsage)
	require.NotErrorIs(t, err, ErrInvalidRule)

	other := &pgconn.PgError{Code: pgCheckViolation, ConstraintName: "discount_rules_value_check", Message: "violates check"}
	require.ErrorIs(t, ruleWriteError(other), ErrInvalidRule)

	unique := &pgconn.PgError{Code: "23505"}
	require.Same(t, unique, ruleWriteError(unique))

	plain := errors.New("connection reset")
	require.Equal(t, plain, ruleWriteError(plain))
}

func TestPGStoreRejectsOutOfRangeCountsBeforeWriting(t *testing.T) {
	rule := baseRule(TypeRegular, ValueNominal, 1_000)
	rule.TotalUsageLimit = ptr(int(math.MaxInt32) + 2)

	store := &PGStore{}
	_, err := store.CreateRule(context.Background(), rule)
	require.ErrorIs(t, err, ErrInvalidRule)
	_, err = store.UpdateRule(context.Background(), rule)
	require.ErrorIs(t, err, ErrInvalidRule)
}
