package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	activeSubscriptionKeyPrefix = "active_subscription:"

	defaultCacheTTL = 15 * time.Minute
)

// SubscriptionCache кеш активной подписки пользователя.
type SubscriptionCache interface {
	// GetActive возвращает (nil, nil) при промахе.
	GetActive(ctx context.Context, userID string) (*domain.Subscription, error)
	SetActive(ctx context.Context, sub *domain.Subscription) error
	Invalidate(ctx context.Context, userID string) error
}

// RedisCacheRepository реализует SubscriptionCache с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis кеша и проверяет соединение
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		ttl:    defaultCacheTTL,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis.
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func activeKey(userID string) string {
	return activeSubscriptionKeyPrefix + userID
}

// SetActive кеширует активную подписку
func (r *RedisCacheRepository) SetActive(ctx context.Context, sub *domain.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, activeKey(sub.UserID), data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "subscriptionID", sub.ID, "userID", sub.UserID)
	return nil
}

// GetActive получает активную подписку из кеша
func (r *RedisCacheRepository) GetActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	data, err := r.client.Get(ctx, activeKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached subscription", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	r.log.Debugw("Subscription retrieved from cache", "userID", userID)
	return &sub, nil
}

// Invalidate удаляет подписку пользователя из кеша
func (r *RedisCacheRepository) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, activeKey(userID)).Err(); err != nil {
		r.log.Errorw("Failed to invalidate subscription cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}
