package model

import "time"

// LoyaltyProgramType описывает источник событий программы лояльности.
type LoyaltyProgramType string

const (
	LoyaltyProgramPurchaseCount LoyaltyProgramType = "purchase_count"
	LoyaltyProgramGoogleReview  LoyaltyProgramType = "google_review"
)

// LoyaltyProgram описывает программу лояльности с порогом для получения награды.
type LoyaltyProgram struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	Type              LoyaltyProgramType `json:"type"`
	RequiredCount     int                `json:"required_count"`
	RewardDescription string             `json:"reward_description"`
	IsActive          bool               `json:"is_active"`
}

// UserLoyaltyProgress хранит прогресс пользователя в одной программе.
type UserLoyaltyProgress struct {
	UserID           int64     `json:"user_id"`
	LoyaltyProgramID int64     `json:"loyalty_program_id"`
	CurrentCount     int       `json:"current_count"`
	CompletedCount   int       `json:"completed_count"`
	LastActionDate   time.Time `json:"last_action_date"`
}

// LoyaltyReward описывает выданную награду.
type LoyaltyReward struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	LoyaltyProgramID int64      `json:"loyalty_program_id"`
	RewardCode       string     `json:"reward_code"`
	IsUsed           bool       `json:"is_used"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Redeemable сообщает, можно ли погасить награду в момент now.
func (r LoyaltyReward) Redeemable(now time.Time) bool {
	return !r.IsUsed && r.ExpiresAt.After(now)
}

// GoogleReview описывает отзыв покупателя. Учитывается только после проверки администратором.
type GoogleReview struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Rating     int        `json:"rating"`
	Comment    string     `json:"comment,omitempty"`
	ReviewURL  string     `json:"review_url,omitempty"`
	IsVerified bool       `json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NotificationType описывает тип уведомления.
type NotificationType string

const NotificationRewardEarned NotificationType = "reward_earned"

// Notification — событие для пользователя; доставкой занимается внешний получатель.
type Notification struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Type        NotificationType `json:"type"`
	ProgramID   int64            `json:"program_id"`
	RewardCode  string           `json:"reward_code"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	IsRead      bool             `json:"is_read"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
