// Package subscription записывает результат оплаты в подписку пользователя.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/repository"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/google/uuid"
)

// Reconciler поддерживает не более одной активной подписки на пользователя.
type Reconciler struct {
	subs  repository.SubscriptionRepository
	plans repository.PlanRepository
	now   func() time.Time
	log   *logger.Logger
}

// NewReconciler создает Reconciler.
func NewReconciler(subs repository.SubscriptionRepository, plans repository.PlanRepository, log *logger.Logger) *Reconciler {
	return &Reconciler{
		subs:  subs,
		plans: plans,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.Named("reconciler"),
	}
}

// Activate делает planID активным планом пользователя до expiresAt (nil - бессрочно).
// Идемпотентна: существующая активная запись обновляется на месте, иначе создается новая.
// Конфликт вставки означает, что параллельный вызов уже создал запись; тогда она обновляется.
func (r *Reconciler) Activate(ctx context.Context, userID, planID string, expiresAt *time.Time) (*domain.Subscription, error) {
	if userID == "" || planID == "" {
		return nil, fmt.Errorf("%w: user and plan are required", domain.ErrInvalidInput)
	}

	sub, err := r.subs.FindActive(ctx, userID)
	switch {
	case err == nil:
		return r.update(ctx, sub, planID, expiresAt)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("subscription: find active: %w", err)
	}

	now := r.now()
	sub = &domain.Subscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanID:    planID,
		Status:    domain.SubscriptionStatusActive,
		StartsAt:  now,
		ExpiresAt: expiresAt,
	}

	err = r.subs.Insert(ctx, sub)
	if errors.Is(err, repository.ErrDuplicate) {
		r.log.Infow("Concurrent activation detected, updating existing row", "userID", userID)
		existing, findErr := r.subs.FindActive(ctx, userID)
		if findErr != nil {
			return nil, fmt.Errorf("subscription: refetch after conflict: %w", findErr)
		}
		return r.update(ctx, existing, planID, expiresAt)
	}
	if err != nil {
		return nil, fmt.Errorf("subscription: insert: %w", err)
	}

	r.log.Infow("Subscription created", "userID", userID, "planID", planID, "subscriptionID", sub.ID)
	return sub, nil
}

func (r *Reconciler) update(ctx context.Context, sub *domain.Subscription, planID string, expiresAt *time.Time) (*domain.Subscription, error) {
	sub.PlanID = planID
	sub.Status = domain.SubscriptionStatusActive
	sub.StartsAt = r.now()
	sub.ExpiresAt = expiresAt

	if err := r.subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("subscription: update: %w", err)
	}
	r.log.Infow("Subscription updated", "userID", sub.UserID, "planID", planID, "subscriptionID", sub.ID)
	return sub, nil
}

// ActivatePlan находит план по имени и активирует его на период.
// Бесплатный план не истекает.
func (r *Reconciler) ActivatePlan(ctx context.Context, userID string, name domain.PlanName, period domain.BillingPeriod) (*domain.Subscription, error) {
	plan, err := r.plans.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan not found: %s", domain.ErrInvalidInput, name)
		}
		return nil, fmt.Errorf("subscription: get plan: %w", err)
	}
	return r.Activate(ctx, userID, plan.ID, r.expiry(plan.Name, period))
}

// Reconcile ручная сверка: активирует план по идентификатору.
func (r *Reconciler) Reconcile(ctx context.Context, userID, planID string, period domain.BillingPeriod) (*domain.Subscription, error) {
	plan, err := r.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan not found: %s", domain.ErrInvalidInput, planID)
		}
		return nil, fmt.Errorf("subscription: get plan: %w", err)
	}
	r.log.Warnw("Manual reconciliation", "userID", userID, "plan", plan.Name, "period", period)
	return r.Activate(ctx, userID, plan.ID, r.expiry(plan.Name, period))
}

// Status возвращает эффективное состояние подписки; без активной записи - бесплатный план.
func (r *Reconciler) Status(ctx context.Context, userID string) (domain.SubscriptionView, error) {
	sub, err := r.subs.FindActive(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.FreeSubscriptionView(), nil
		}
		return domain.SubscriptionView{}, fmt.Errorf("subscription: find active: %w", err)
	}

	plan, err := r.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return domain.SubscriptionView{}, fmt.Errorf("subscription: get plan: %w", err)
	}

	status := sub.EffectiveStatus(r.now())
	if status != domain.SubscriptionStatusActive {
		view := domain.FreeSubscriptionView()
		view.Status = status
		view.ExpiresAt = sub.ExpiresAt
		return view, nil
	}
	return domain.SubscriptionView{
		PlanName:      plan.Name,
		DailyRequests: plan.DailyRequests,
		Status:        status,
		ExpiresAt:     sub.ExpiresAt,
	}, nil
}

func (r *Reconciler) expiry(name domain.PlanName, period domain.BillingPeriod) *time.Time {
	if name == domain.PlanFree {
		return nil
	}
	exp := period.ExpiresAt(r.now())
	return &exp
}
