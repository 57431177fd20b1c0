package repository

import (
	"context"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием активной подписки.
// Ошибки кеша не прерывают операцию.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache SubscriptionCache
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(repo SubscriptionRepository, cache SubscriptionCache, log *logger.Logger) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// FindActive читает сначала из кеша, потом из БД
func (r *CachedSubscriptionRepository) FindActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetActive(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil && cached.Status == domain.SubscriptionStatusActive {
		return cached, nil
	}

	sub, err := r.repo.FindActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetActive(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", userID)
	}
	return sub, nil
}

// Insert сохраняет подписку в БД и сбрасывает кеш пользователя
func (r *CachedSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	if err := r.repo.Insert(ctx, sub); err != nil {
		return err
	}
	r.invalidate(ctx, sub.UserID)
	return nil
}

// Update обновляет подписку в БД и сбрасывает кеш пользователя
func (r *CachedSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	if err := r.repo.Update(ctx, sub); err != nil {
		return err
	}
	r.invalidate(ctx, sub.UserID)
	return nil
}

func (r *CachedSubscriptionRepository) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *CachedSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	return r.repo.ListByUser(ctx, userID)
}

func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", userID)
	}
}
