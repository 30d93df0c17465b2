// Package loyalty ведёт прогресс пользователей в программах лояльности и выдаёт награды.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bakeryshop/internal/model"
	"github.com/mmeshcher/bakeryshop/internal/repository"
)

const (
	// RewardTTL — срок действия награды с момента выдачи.
	RewardTTL = 30 * 24 * time.Hour

	codeAttempts = 5
)

var (
	// ErrRewardNotRedeemable объединяет случаи: кода нет, награда использована или истекла.
	ErrRewardNotRedeemable = errors.New("reward not redeemable")
	// ErrNotFound возвращается, если запись лояльности не найдена.
	ErrNotFound = errors.New("loyalty record not found")
	// ErrInvalidReview возвращается для отзыва с некорректной оценкой.
	ErrInvalidReview = errors.New("invalid review")
)

// Store описывает хранилище программ, прогресса, отзывов и наград.
type Store interface {
	ActivePrograms(ctx context.Context, programType model.LoyaltyProgramType) ([]model.LoyaltyProgram, error)
	UpdateProgress(ctx context.Context, userID, programID int64, fn repository.ProgressFunc) (*model.LoyaltyReward, error)
	CreateReview(ctx context.Context, r *model.GoogleReview) error
	VerifyReview(ctx context.Context, reviewID int64, now time.Time) (*model.GoogleReview, error)
	CountVerifiedReviews(ctx context.Context, userID int64, rating int) (int, error)
	RedeemReward(ctx context.Context, code string, now time.Time) (*model.LoyaltyReward, error)
	ListProgress(ctx context.Context, userID int64) ([]model.UserLoyaltyProgress, error)
	ListRewards(ctx context.Context, userID int64) ([]model.LoyaltyReward, error)
}

// Notifier принимает событие о полученной награде. Доставка — забота получателя.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCodeGenerator подменяет генератор кодов наград.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(e *Engine) {
		e.newCode = gen
	}
}

// Engine реализует два независимых пути начисления прогресса: покупки и отзывы.
type Engine struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

// NewEngine создаёт движок лояльности.
func NewEngine(store Store, notifier Notifier, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newCode:  NewRewardCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordPurchase засчитывает покупку во всех активных программах типа purchase_count.
func (e *Engine) RecordPurchase(ctx context.Context, userID int64) ([]model.LoyaltyReward, error) {
	programs, err := e.store.ActivePrograms(ctx, model.LoyaltyProgramPurchaseCount)
	if err != nil {
		return nil, fmt.Errorf("load purchase programs: %w", err)
	}
	return e.advance(ctx, userID, programs, purchaseStrategy{})
}

// OnOrderCompleted засчитывает завершённый заказ его владельцу. Гостевые заказы пропускаются.
// Подходит как order.CompletionHook: ошибки только логируются.
func (e *Engine) OnOrderCompleted(ctx context.Context, o model.Order) {
	if o.UserID == nil {
		return
	}

	if _, err := e.RecordPurchase(ctx, *o.UserID); err != nil {
		e.logger.Error("record purchase error", zap.Error(err),
			zap.String("orderID", o.ID), zap.Int64("userID", *o.UserID))
	}
}

// ReviewInput — отзыв, присланный пользователем.
type ReviewInput struct {
	Rating    int
	Comment   string
	ReviewURL string
}

// ReviewResult — итог обработки отзыва.
type ReviewResult struct {
	Review model.GoogleReview
	// Eligible ложно для оценок ниже пяти: отзыв сохранён, но счётчики не двигаются.
	Eligible bool
	Rewards  []model.LoyaltyReward
}

// RecordGoogleReview сохраняет отзыв и пересчитывает прогресс по проверенным пятизвёздочным отзывам.
// Новый отзыв сохраняется непроверенным и учитывается после VerifyReview.
func (e *Engine) RecordGoogleReview(ctx context.Context, userID int64, in ReviewInput) (ReviewResult, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return ReviewResult{}, fmt.Errorf("%w: rating %d", ErrInvalidReview, in.Rating)
	}

	review := model.GoogleReview{
		UserID:    userID,
		Rating:    in.Rating,
		Comment:   in.Comment,
		ReviewURL: in.ReviewURL,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateReview(ctx, &review); err != nil {
		return ReviewResult{}, fmt.Errorf("save review: %w", err)
	}

	if review.Rating != 5 {
		e.logger.Info("review recorded without loyalty credit",
			zap.Int64("userID", userID), zap.Int("rating", review.Rating))
		return ReviewResult{Review: review}, nil
	}

	rewards, err := e.syncReviewPrograms(ctx, userID)
	if err != nil {
		return ReviewResult{Review: review, Eligible: true}, err
	}
	return ReviewResult{Review: review, Eligible: true, Rewards: rewards}, nil
}

// VerifyReview отмечает отзыв проверенным и пересчитывает прогресс его автора.
func (e *Engine) VerifyReview(ctx context.Context, reviewID int64) (ReviewResult, error) {
	review, err := e.store.VerifyReview(ctx, reviewID, e.now())
	if err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return ReviewResult{}, fmt.Errorf("%w: review %d", ErrNotFound, reviewID)
		}
		return ReviewResult{}, fmt.Errorf("verify review: %w", err)
	}

	res := ReviewResult{Review: *review, Eligible: review.Rating == 5}
	if !res.Eligible {
		return res, nil
	}

	res.Rewards, err = e.syncReviewPrograms(ctx, review.UserID)
	return res, err
}

func (e *Engine) syncReviewPrograms(ctx context.Context, userID int64) ([]model.LoyaltyReward, error) {
	programs, err := e.store.ActivePrograms(ctx, model.LoyaltyProgramGoogleReview)
	if err != nil {
		return nil, fmt.Errorf("load review programs: %w", err)
	}
	if len(programs) == 0 {
		return nil, nil
	}

	verified, err := e.store.CountVerifiedReviews(ctx, userID, 5)
	if err != nil {
		return nil, fmt.Errorf("count verified reviews: %w", err)
	}

	return e.advance(ctx, userID, programs, reviewStrategy{verified: verified})
}

// UseReward гасит награду по коду одним условным обновлением.
func (e *Engine) UseReward(ctx context.Context, code string) (*model.LoyaltyReward, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	reward, err := e.store.RedeemReward(ctx, code, e.now())
	if err != nil {
		if errors.Is(err, repository.ErrRewardNotRedeemable) {
			return nil, fmt.Errorf("%w: %s", ErrRewardNotRedeemable, code)
		}
		return nil, fmt.Errorf("redeem reward: %w", err)
	}

	e.logger.Info("reward redeemed", zap.Int64("userID", reward.UserID), zap.String("code", reward.RewardCode))
	return reward, nil
}

// Overview содержит прогресс и награды пользователя.
type Overview struct {
	Progress []model.UserLoyaltyProgress `json:"progress"`
	Rewards  []model.LoyaltyReward       `json:"rewards"`
}

// Overview возвращает прогресс и награды пользователя.
func (e *Engine) Overview(ctx context.Context, userID int64) (*Overview, error) {
	progress, err := e.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	rewards, err := e.store.ListRewards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return &Overview{Progress: progress, Rewards: rewards}, nil
}

func (e *Engine) advance(ctx context.Context, userID int64, programs []model.LoyaltyProgram, s strategy) ([]model.LoyaltyReward, error) {
	var rewards []model.LoyaltyReward

	for _, p := range programs {
		if p.RequiredCount < 1 {
			e.logger.Warn("loyalty program has no threshold", zap.Int64("programID", p.ID))
			continue
		}

		reward, err := e.updateProgram(ctx, userID, p, s)
		if err != nil {
			return rewards, fmt.Errorf("update progress for program %d: %w", p.ID, err)
		}
		if reward == nil {
			continue
		}

		rewards = append(rewards, *reward)
		e.logger.Info("loyalty reward minted",
			zap.Int64("userID", userID),
			zap.Int64("programID", p.ID),
			zap.String("code", reward.RewardCode),
		)
		e.notify(ctx, p, reward)
	}

	return rewards, nil
}

// updateProgram выполняет расчёт под блокировкой строки прогресса. При конфликте кода награды
// вся транзакция откатывается и расчёт повторяется по заново прочитанному состоянию.
func (e *Engine) updateProgram(ctx context.Context, userID int64, p model.LoyaltyProgram, s strategy) (*model.LoyaltyReward, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate reward code: %w", err)
		}

		now := e.now()
		reward, err := e.store.UpdateProgress(ctx, userID, p.ID, func(cur model.UserLoyaltyProgress, exists bool) (repository.ProgressChange, error) {
			next, minted := s.next(cur, exists, p.RequiredCount)
			next.UserID = userID
			next.LoyaltyProgramID = p.ID
			next.LastActionDate = now

			change := repository.ProgressChange{Progress: next}
			if minted {
				change.Reward = &model.LoyaltyReward{
					UserID:           userID,
					LoyaltyProgramID: p.ID,
					RewardCode:       code,
					ExpiresAt:        now.Add(RewardTTL),
					CreatedAt:        now,
				}
			}
			return change, nil
		})
		if errors.Is(err, repository.ErrRewardCodeTaken) {
			e.logger.Warn("reward code collision, regenerating", zap.String("code", code))
			continue
		}
		return reward, err
	}

	return nil, fmt.Errorf("no unique reward code after %d attempts: %w", codeAttempts, repository.ErrRewardCodeTaken)
}

func (e *Engine) notify(ctx context.Context, p model.LoyaltyProgram, r *model.LoyaltyReward) {
	if e.notifier == nil {
		return
	}

	n := &model.Notification{
		UserID:     r.UserID,
		Type:       model.NotificationRewardEarned,
		ProgramID:  p.ID,
		RewardCode: r.RewardCode,
		Title:      fmt.Sprintf("%s: reward earned", p.Name),
		Message:    fmt.Sprintf("%s. Your code: %s", p.RewardDescription, r.RewardCode),
		CreatedAt:  e.now(),
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Error("reward notification error", zap.Error(err),
			zap.Int64("userID", r.UserID), zap.String("code", r.RewardCode))
	}
}
