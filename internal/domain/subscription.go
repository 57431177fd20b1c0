package domain

import (
	"time"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription представляет собой запись подписки пользователя.
// Инвариант: не более одной записи со статусом active на пользователя.
type Subscription struct {
	ID        string             `db:"id" json:"id"`
	UserID    string             `db:"user_id" json:"user_id"`
	PlanID    string             `db:"plan_id" json:"plan_id"`
	Status    SubscriptionStatus `db:"status" json:"status"`
	StartsAt  time.Time          `db:"starts_at" json:"starts_at"`
	ExpiresAt *time.Time         `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus учитывает истечение срока: active с прошедшим expires_at считается expired.
// Подписка без expires_at (бесплатный план) не истекает.
func (s Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionStatusCancelled {
		return SubscriptionStatusCancelled
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
		return SubscriptionStatusExpired
	}
	return s.Status
}

// SubscriptionView подписка с данными плана для API статуса.
type SubscriptionView struct {
	PlanName      PlanName           `json:"plan_name"`
	DailyRequests int                `json:"daily_requests"`
	Status        SubscriptionStatus `json:"status"`
	ExpiresAt     *time.Time         `json:"expires_at"`
}

// FreeSubscriptionView значение по умолчанию для пользователей без активной подписки.
func FreeSubscriptionView() SubscriptionView {
	return SubscriptionView{
		PlanName:      PlanFree,
		DailyRequests: DailyRequests(PlanFree),
		Status:        SubscriptionStatusActive,
	}
}
