package repository

import (
	"context"

	"github.com/Dhoini/findxo-settlement/internal/domain"
)

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
type SubscriptionRepository interface {
	// FindActive возвращает активную подписку пользователя или ErrNotFound.
	FindActive(ctx context.Context, userID string) (*domain.Subscription, error)

	// Insert сохраняет новую подписку. ErrDuplicate, если у пользователя уже есть активная.
	Insert(ctx context.Context, sub *domain.Subscription) error

	// Update обновляет план, статус и сроки существующей подписки.
	Update(ctx context.Context, sub *domain.Subscription) error

	// DeleteByUser удаляет все подписки пользователя.
	DeleteByUser(ctx context.Context, userID string) error

	// ListByUser возвращает историю подписок, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error)
}

// PlanRepository справочник тарифных планов.
type PlanRepository interface {
	GetByName(ctx context.Context, name domain.PlanName) (*domain.Plan, error)
	GetByID(ctx context.Context, id string) (*domain.Plan, error)
}

// SettlementRepository журнал обработанных транзакций.
type SettlementRepository interface {
	// Record сохраняет запись. created == false, если ссылка уже была использована.
	Record(ctx context.Context, s *domain.Settlement) (created bool, err error)

	GetByReference(ctx context.Context, reference string) (*domain.Settlement, error)
}
