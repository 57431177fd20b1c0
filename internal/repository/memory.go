package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
)

func nowUTC() time.Time { return time.Now().UTC() }

// InMemorySubscriptionRepository реализация хранилища подписок в памяти.
// Соблюдает тот же инвариант, что и частичный индекс в PostgreSQL.
type InMemorySubscriptionRepository struct {
	mutex sync.RWMutex
	subs  map[string]domain.Subscription
	log   *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[string]domain.Subscription),
		log:  log,
	}
}

func (r *InMemorySubscriptionRepository) FindActive(_ context.Context, userID string) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subs {
		if sub.UserID == userID && sub.Status == domain.SubscriptionStatusActive {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemorySubscriptionRepository) Insert(_ context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.subs[sub.ID]; exists {
		return ErrDuplicate
	}
	if sub.Status == domain.SubscriptionStatusActive && r.hasActiveLocked(sub.UserID, "") {
		return ErrDuplicate
	}

	sub.CreatedAt = nowUTC()
	sub.UpdatedAt = sub.CreatedAt
	r.subs[sub.ID] = *sub
	r.log.Debugw("Subscription inserted", "subscriptionID", sub.ID, "userID", sub.UserID)
	return nil
}

func (r *InMemorySubscriptionRepository) Update(_ context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	existing, ok := r.subs[sub.ID]
	if !ok {
		return ErrNotFound
	}
	if sub.Status == domain.SubscriptionStatusActive && r.hasActiveLocked(sub.UserID, sub.ID) {
		return ErrDuplicate
	}

	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = nowUTC()
	r.subs[sub.ID] = *sub
	return nil
}

func (r *InMemorySubscriptionRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, sub := range r.subs {
		if sub.UserID == userID {
			delete(r.subs, id)
		}
	}
	return nil
}

func (r *InMemorySubscriptionRepository) ListByUser(_ context.Context, userID string) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	subs := []domain.Subscription{}
	for _, sub := range r.subs {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

func (r *InMemorySubscriptionRepository) hasActiveLocked(userID, exceptID string) bool {
	for id, sub := range r.subs {
		if id != exceptID && sub.UserID == userID && sub.Status == domain.SubscriptionStatusActive {
			return true
		}
	}
	return false
}

// InMemoryPlanRepository справочник планов из каталога.
type InMemoryPlanRepository struct {
	plans []domain.Plan
}

// NewInMemoryPlanRepository создает справочник, засеянный domain.Catalogue.
func NewInMemoryPlanRepository() *InMemoryPlanRepository {
	return &InMemoryPlanRepository{plans: domain.Catalogue()}
}

func (r *InMemoryPlanRepository) GetByName(_ context.Context, name domain.PlanName) (*domain.Plan, error) {
	for _, p := range r.plans {
		if p.Name == name {
			plan := p
			return &plan, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryPlanRepository) GetByID(_ context.Context, id string) (*domain.Plan, error) {
	for _, p := range r.plans {
		if p.ID == id {
			plan := p
			return &plan, nil
		}
	}
	return nil, ErrNotFound
}

// InMemorySettlementRepository журнал расчетов в памяти.
type InMemorySettlementRepository struct {
	mutex       sync.RWMutex
	settlements map[string]domain.Settlement
}

func NewInMemorySettlementRepository() *InMemorySettlementRepository {
	return &InMemorySettlementRepository{settlements: make(map[string]domain.Settlement)}
}

func (r *InMemorySettlementRepository) Record(_ context.Context, s *domain.Settlement) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.settlements[s.Reference]; exists {
		return false, nil
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = nowUTC()
	}
	r.settlements[s.Reference] = *s
	return true, nil
}

func (r *InMemorySettlementRepository) GetByReference(_ context.Context, reference string) (*domain.Settlement, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.settlements[reference]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}
