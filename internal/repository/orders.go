package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

const orderColumns = `id, order_number, user_id, customer_name, customer_phone, customer_email,
	items, total_cents, tax_cents, shipping_cents, status, notes, created_at, updated_at`

// CreateOrder сохраняет новый заказ вместе со снимком позиций.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.OrderNumber, o.UserID, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		items, toCents(o.TotalAmount), toCents(o.Tax), toCents(o.ShippingCost),
		string(o.Status), o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return fmt.Errorf("%w: %s", ErrOrderNumberTaken, o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", unavailable(err))
	}

	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", unavailable(err))
	}
	return o, nil
}

// ListOrders возвращает заказы от новых к старым. Нулевой limit снимает ограничение.
func (r *PostgresRepository) ListOrders(ctx context.Context, status *model.OrderStatus, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any

	if status != nil {
		args = append(args, string(*status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", unavailable(err))
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// UpdateOrder применяет патч под блокировкой строки и возвращает заказ и его прежний статус.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, id string, patch model.OrderPatch, now time.Time) (*model.Order, model.OrderStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, "", ErrOrderNotFound
	}

	var (
		updated *model.Order
		prev    model.OrderStatus
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		prev = o.Status
		patch.Apply(o, now)

		_, err = tx.Exec(ctx,
			`UPDATE orders
			 SET status = $2, notes = $3, customer_name = $4, customer_phone = $5, customer_email = $6, updated_at = $7
			 WHERE id = $1`,
			id, string(o.Status), o.Notes, o.CustomerName, o.CustomerPhone, o.CustomerEmail, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	return updated, prev, nil
}

// CompleteIfPreparing завершает заказ, только если он всё ещё в статусе preparing.
func (r *PostgresRepository) CompleteIfPreparing(ctx context.Context, id string, now time.Time) (*model.Order, bool, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $3, updated_at = $2
		 WHERE id = $1 AND status = $4
		 RETURNING `+orderColumns,
		id, now, string(model.OrderStatusCompleted), string(model.OrderStatusPreparing),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("complete order: %w", unavailable(err))
	}
	return o, true, nil
}

// ClaimLoyaltyCredit отмечает, что покупка по заказу учтена в лояльности.
// Возвращает false, если заказ уже был учтён раньше.
func (r *PostgresRepository) ClaimLoyaltyCredit(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET loyalty_credited_at = $2
		 WHERE id = $1 AND loyalty_credited_at IS NULL`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("claim loyalty credit: %w", unavailable(err))
	}
	return tag.RowsAffected() == 1, nil
}

// MaxOrderSequence возвращает наибольший числовой суффикс среди номеров заказов или 0.
func (r *PostgresRepository) MaxOrderSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(CAST(substring(order_number FROM '[0-9]+$') AS BIGINT)), 0) FROM orders`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max order sequence: %w", unavailable(err))
	}
	return seq, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                                   model.Order
		id                                  uuid.UUID
		items                               []byte
		totalCents, taxCents, shippingCents int64
		status                              string
	)

	err := row.Scan(&id, &o.OrderNumber, &o.UserID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&items, &totalCents, &taxCents, &shippingCents, &status, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}

	o.ID = id.String()
	o.TotalAmount = fromCents(totalCents)
	o.Tax = fromCents(taxCents)
	o.ShippingCost = fromCents(shippingCents)
	o.Status = model.OrderStatus(status)
	return &o, nil
}
