package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"12.5", 1250},
		{"99.99", 9999},
		{"0.005", 1},
		{"17.999", 1800},
		{"1.7982", 180},
		{"0.5994", 60},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := toCents(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, fromCents(1250).Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, "99.99", fromCents(9999).StringFixed(2))
}

func newRetryRepo() *PostgresRepository {
	return &PostgresRepository{retryDelays: []time.Duration{time.Millisecond, time.Millisecond}}
}

func TestWithRetry_RetriesSerializationFailure(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update progress: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure})
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterDelays(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_DoesNotRetryBusinessErrors(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return fmt.Errorf("%w: RWD-AAAAAAAA", ErrRewardCodeTaken)
	})

	assert.ErrorIs(t, err, ErrRewardCodeTaken)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ConnectionErrorBecomesUnavailable(t *testing.T) {
	r := newRetryRepo()

	err := r.withRetry(context.Background(), func() error {
		return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	})

	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.withRetry(ctx, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: "orders_order_number_key",
	})

	assert.True(t, isUniqueViolation(err, "orders_order_number_key"))
	assert.True(t, isUniqueViolation(err, ""))
	assert.False(t, isUniqueViolation(err, "loyalty_rewards_reward_code_key"))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, unavailable(nil))

	plain := errors.New("syntax error")
	assert.Same(t, plain, unavailable(plain))

	wrapped := unavailable(errors.New("write: broken pipe"))
	assert.ErrorIs(t, wrapped, ErrUnavailable)
	assert.ErrorIs(t, unavailable(wrapped), ErrUnavailable)
}
