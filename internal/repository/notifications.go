package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

const notificationColumns = `id, user_id, type, program_id, reward_code, title, message, is_read, delivered_at, created_at`

// Notify сохраняет уведомление в исходящую очередь.
func (r *PostgresRepository) Notify(ctx context.Context, n *model.Notification) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, program_id, reward_code, title, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		n.UserID, string(n.Type), n.ProgramID, n.RewardCode, n.Title, n.Message, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", unavailable(err))
	}
	return nil
}

// ListNotifications возвращает уведомления пользователя, начиная с новых.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	return r.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
}

// UndeliveredNotifications возвращает ещё не доставленные уведомления в порядке создания.
func (r *PostgresRepository) UndeliveredNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	return r.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE delivered_at IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
}

// MarkDelivered отмечает уведомление доставленным.
func (r *PostgresRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET delivered_at = $2 WHERE id = $1 AND delivered_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", unavailable(err))
	}
	return nil
}

func (r *PostgresRepository) queryNotifications(ctx context.Context, query string, args ...any) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", unavailable(err))
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n     model.Notification
			nType string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &nType, &n.ProgramID, &n.RewardCode, &n.Title, &n.Message,
			&n.IsRead, &n.DeliveredAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(nType)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
