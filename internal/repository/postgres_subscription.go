package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const pgUniqueViolation = "23505"

const subscriptionColumns = `id, user_id, plan_id, status, starts_at, expires_at, created_at, updated_at`

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
	}
}

// FindActive возвращает активную подписку пользователя.
func (r *postgresSubscriptionRepo) FindActive(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1 AND status = 'active'`

	err := r.db.GetContext(ctx, &sub, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get active subscription from DB", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to get active subscription: %w", err)
	}

	return &sub, nil
}

// Insert сохраняет новую подписку в базе данных.
// Частичный уникальный индекс по (user_id) WHERE status = 'active' превращает гонку в ErrDuplicate.
func (r *postgresSubscriptionRepo) Insert(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
        INSERT INTO user_subscriptions (` + subscriptionColumns + `)
        VALUES (:id, :user_id, :plan_id, :status, :starts_at, :expires_at, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		if isUniqueViolation(err) {
			r.log.Warnw("Active subscription already exists", "userID", sub.UserID)
			return ErrDuplicate
		}
		r.log.Errorw("Failed to insert subscription in DB", "error", err, "userID", sub.UserID)
		return fmt.Errorf("repository: failed to insert subscription: %w", err)
	}

	r.log.Debugw("Subscription inserted", "subscriptionID", sub.ID, "userID", sub.UserID)
	return nil
}

// Update обновляет план, статус и сроки подписки.
func (r *postgresSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE user_subscriptions SET
            plan_id = :plan_id,
            status = :status,
            starts_at = :starts_at,
            expires_at = :expires_at,
            updated_at = :updated_at
        WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.log.Errorw("Failed to update subscription in DB", "error", err, "subscriptionID", sub.ID)
		return fmt.Errorf("repository: failed to update subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.log.Warnw("Subscription update affected 0 rows", "subscriptionID", sub.ID)
		return ErrNotFound
	}

	r.log.Debugw("Subscription updated", "subscriptionID", sub.ID, "status", sub.Status)
	return nil
}

// DeleteByUser удаляет все подписки пользователя.
func (r *postgresSubscriptionRepo) DeleteByUser(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		r.log.Errorw("Failed to delete subscriptions", "error", err, "userID", userID)
		return fmt.Errorf("repository: failed to delete subscriptions: %w", err)
	}
	n, _ := result.RowsAffected()
	r.log.Debugw("Subscriptions deleted", "userID", userID, "rows", n)
	return nil
}

// ListByUser возвращает все подписки пользователя, новые первыми.
func (r *postgresSubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	subs := []domain.Subscription{}
	query := `SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
        ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &subs, query, userID); err != nil {
		r.log.Errorw("Failed to list subscriptions", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
