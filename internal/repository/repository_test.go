package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSub(id, userID string) *domain.Subscription {
	return &domain.Subscription{
		ID:       id,
		UserID:   userID,
		PlanID:   "plan",
		Status:   domain.SubscriptionStatusActive,
		StartsAt: time.Now(),
	}
}

func TestInMemorySubscriptionRepository_OneActivePerUser(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.NewNop())

	require.NoError(t, repo.Insert(ctx, activeSub("s1", "u1")))
	assert.ErrorIs(t, repo.Insert(ctx, activeSub("s2", "u1")), ErrDuplicate)
	require.NoError(t, repo.Insert(ctx, activeSub("s3", "u2")))

	cancelled := activeSub("s4", "u1")
	cancelled.Status = domain.SubscriptionStatusCancelled
	require.NoError(t, repo.Insert(ctx, cancelled))

	subs, err := repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestInMemorySubscriptionRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySubscriptionRepository(logger.NewNop())
	require.NoError(t, repo.Insert(ctx, activeSub("s1", "u1")))

	sub, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	sub.PlanID = "other"
	require.NoError(t, repo.Update(ctx, sub))

	got, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "other", got.PlanID)

	assert.ErrorIs(t, repo.Update(ctx, activeSub("missing", "u1")), ErrNotFound)

	require.NoError(t, repo.DeleteByUser(ctx, "u1"))
	_, err = repo.FindActive(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInMemoryPlanRepository(t *testing.T) {
	repo := NewInMemoryPlanRepository()

	plan, err := repo.GetByName(context.Background(), domain.PlanInvestigator)
	require.NoError(t, err)
	assert.Equal(t, 100000, plan.DailyRequests)
	assert.True(t, plan.PriceFor(domain.BillingMonthly).Equal(decimal.NewFromInt(300)))

	byID, err := repo.GetByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanInvestigator, byID.Name)

	_, err = repo.GetByName(context.Background(), "enterprise")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemorySettlementRepository_RecordOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemorySettlementRepository()
	s := &domain.Settlement{Reference: "ref", UserID: "u1", PlanID: "p"}

	created, err := repo.Record(ctx, s)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Record(ctx, &domain.Settlement{Reference: "ref", UserID: "u2"})
	require.NoError(t, err)
	assert.False(t, created)

	got, err := repo.GetByReference(ctx, "ref")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.Subscription
	getErr  error
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.Subscription)}
}

func (c *fakeCache) GetActive(_ context.Context, userID string) (*domain.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	sub, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (c *fakeCache) SetActive(_ context.Context, sub *domain.Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sub.UserID] = *sub
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

func TestCachedSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySubscriptionRepository(logger.NewNop())
	cache := newFakeCache()
	repo := NewCachedSubscriptionRepository(store, cache, logger.NewNop())

	require.NoError(t, repo.Insert(ctx, activeSub("s1", "u1")))

	_, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, cache.entries, "u1", "read-through populates cache")

	sub, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	sub.PlanID = "upgraded"
	require.NoError(t, repo.Update(ctx, sub))
	assert.NotContains(t, cache.entries, "u1", "write invalidates cache")

	got, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "upgraded", got.PlanID)
}

func TestCachedSubscriptionRepository_CacheErrorFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySubscriptionRepository(logger.NewNop())
	require.NoError(t, store.Insert(ctx, activeSub("s1", "u1")))

	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	repo := NewCachedSubscriptionRepository(store, cache, logger.NewNop())

	got, err := repo.FindActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain")))
}
