package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bakeryshop/internal/model"
)

// ProgressChange — новое состояние прогресса и, возможно, выданная награда.
type ProgressChange struct {
	Progress model.UserLoyaltyProgress
	Reward   *model.LoyaltyReward
}

// ProgressFunc рассчитывает изменение прогресса. exists ложно, если строки прогресса ещё не было.
type ProgressFunc func(current model.UserLoyaltyProgress, exists bool) (ProgressChange, error)

const rewardColumns = `id, user_id, loyalty_program_id, reward_code, is_used, used_at, expires_at, created_at`

// ActivePrograms возвращает активные программы заданного типа.
func (r *PostgresRepository) ActivePrograms(ctx context.Context, programType model.LoyaltyProgramType) ([]model.LoyaltyProgram, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, type, required_count, reward_description, is_active
		 FROM loyalty_programs
		 WHERE type = $1 AND is_active
		 ORDER BY id`,
		string(programType),
	)
	if err != nil {
		return nil, fmt.Errorf("select programs: %w", unavailable(err))
	}
	defer rows.Close()

	var res []model.LoyaltyProgram
	for rows.Next() {
		var (
			p     model.LoyaltyProgram
			pType string
		)
		if err := rows.Scan(&p.ID, &p.Name, &pType, &p.RequiredCount, &p.RewardDescription, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan program: %w", err)
		}
		p.Type = model.LoyaltyProgramType(pType)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateProgress читает прогресс под блокировкой строки, вызывает fn и в той же транзакции
// сохраняет новый прогресс и выданную награду. Конфликт сериализации повторяет всю транзакцию.
func (r *PostgresRepository) UpdateProgress(ctx context.Context, userID, programID int64, fn ProgressFunc) (*model.LoyaltyReward, error) {
	var minted *model.LoyaltyReward

	err := r.withRetry(ctx, func() error {
		minted = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`INSERT INTO user_loyalty_progress (user_id, loyalty_program_id)
			 VALUES ($1, $2)
			 ON CONFLICT (user_id, loyalty_program_id) DO NOTHING`,
			userID, programID,
		)
		if err != nil {
			return fmt.Errorf("ensure progress row: %w", err)
		}
		exists := tag.RowsAffected() == 0

		cur := model.UserLoyaltyProgress{UserID: userID, LoyaltyProgramID: programID}
		err = tx.QueryRow(ctx,
			`SELECT current_count, completed_count, last_action_date
			 FROM user_loyalty_progress
			 WHERE user_id = $1 AND loyalty_program_id = $2
			 FOR UPDATE`,
			userID, programID,
		).Scan(&cur.CurrentCount, &cur.CompletedCount, &cur.LastActionDate)
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}

		change, err := fn(cur, exists)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE user_loyalty_progress
			 SET current_count = $3, completed_count = $4, last_action_date = $5
			 WHERE user_id = $1 AND loyalty_program_id = $2`,
			userID, programID, change.Progress.CurrentCount, change.Progress.CompletedCount, change.Progress.LastActionDate,
		)
		if err != nil {
			return fmt.Errorf("update progress: %w", err)
		}

		if rw := change.Reward; rw != nil {
			err = tx.QueryRow(ctx,
				`INSERT INTO loyalty_rewards (user_id, loyalty_program_id, reward_code, expires_at, created_at)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id`,
				rw.UserID, rw.LoyaltyProgramID, rw.RewardCode, rw.ExpiresAt, rw.CreatedAt,
			).Scan(&rw.ID)
			if err != nil {
				if isUniqueViolation(err, "loyalty_rewards_reward_code_key") {
					return fmt.Errorf("%w: %s", ErrRewardCodeTaken, rw.RewardCode)
				}
				return fmt.Errorf("insert reward: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		minted = change.Reward
		return nil
	})
	if err != nil {
		return nil, err
	}

	return minted, nil
}

// CreateReview сохраняет отзыв пользователя.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv *model.GoogleReview) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO google_reviews (user_id, rating, comment, review_url, is_verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		rv.UserID, rv.Rating, rv.Comment, rv.ReviewURL, rv.IsVerified, rv.CreatedAt,
	).Scan(&rv.ID)
	if err != nil {
		return fmt.Errorf("insert review: %w", unavailable(err))
	}
	return nil
}

// VerifyReview отмечает отзыв проверенным. Повторная проверка не меняет verified_at.
func (r *PostgresRepository) VerifyReview(ctx context.Context, reviewID int64, now time.Time) (*model.GoogleReview, error) {
	var rv model.GoogleReview
	err := r.pool.QueryRow(ctx,
		`UPDATE google_reviews
		 SET is_verified = TRUE, verified_at = COALESCE(verified_at, $2)
		 WHERE id = $1
		 RETURNING id, user_id, rating, comment, review_url, is_verified, verified_at, created_at`,
		reviewID, now,
	).Scan(&rv.ID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.ReviewURL, &rv.IsVerified, &rv.VerifiedAt, &rv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("verify review: %w", unavailable(err))
	}
	return &rv, nil
}

// CountVerifiedReviews возвращает число проверенных отзывов пользователя с заданной оценкой.
func (r *PostgresRepository) CountVerifiedReviews(ctx context.Context, userID int64, rating int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM google_reviews WHERE user_id = $1 AND rating = $2 AND is_verified`,
		userID, rating,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", unavailable(err))
	}
	return n, nil
}

// RedeemReward гасит награду одним условным обновлением: код существует, не использован и не истёк.
func (r *PostgresRepository) RedeemReward(ctx context.Context, code string, now time.Time) (*model.LoyaltyReward, error) {
	rw, err := scanReward(r.pool.QueryRow(ctx,
		`UPDATE loyalty_rewards
		 SET is_used = TRUE, used_at = $2
		 WHERE reward_code = $1 AND NOT is_used AND expires_at > $2
		 RETURNING `+rewardColumns,
		code, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRewardNotRedeemable
		}
		return nil, fmt.Errorf("redeem reward: %w", unavailable(err))
	}
	return rw, nil
}

// ListProgress возвращает прогресс пользователя по всем программам.
func (r *PostgresRepository) ListProgress(ctx context.Context, userID int64) ([]model.UserLoyaltyProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, loyalty_program_id, current_count, completed_count, last_action_date
		 FROM user_loyalty_progress
		 WHERE user_id = $1
		 ORDER BY loyalty_program_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", unavailable(err))
	}
	defer rows.Close()

	var res []model.UserLoyaltyProgress
	for rows.Next() {
		var p model.UserLoyaltyProgress
		if err := rows.Scan(&p.UserID, &p.LoyaltyProgramID, &p.CurrentCount, &p.CompletedCount, &p.LastActionDate); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListRewards возвращает награды пользователя, начиная с новых.
func (r *PostgresRepository) ListRewards(ctx context.Context, userID int64) ([]model.LoyaltyReward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+rewardColumns+` FROM loyalty_rewards WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", unavailable(err))
	}
	defer rows.Close()

	var res []model.LoyaltyReward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		res = append(res, *rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanReward(row pgx.Row) (*model.LoyaltyReward, error) {
	var rw model.LoyaltyReward
	err := row.Scan(&rw.ID, &rw.UserID, &rw.LoyaltyProgramID, &rw.RewardCode, &rw.IsUsed, &rw.UsedAt, &rw.ExpiresAt, &rw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rw, nil
}
