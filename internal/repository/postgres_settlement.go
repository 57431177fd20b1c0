package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/jmoiron/sqlx"
)

type postgresSettlementRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSettlementRepository создает журнал расчетов в таблице payment_settlements.
func NewPostgresSettlementRepository(db *sqlx.DB, log *logger.Logger) SettlementRepository {
	return &postgresSettlementRepo{db: db, log: log}
}

// Record вставляет запись; повторная ссылка не ошибка, а created == false.
func (r *postgresSettlementRepo) Record(ctx context.Context, s *domain.Settlement) (bool, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO payment_settlements (reference, user_id, plan_id, crypto_amount, fiat_amount, created_at)
        VALUES (:reference, :user_id, :plan_id, :crypto_amount, :fiat_amount, :created_at)
        ON CONFLICT (reference) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, s)
	if err != nil {
		r.log.Errorw("Failed to record settlement", "error", err, "reference", s.Reference)
		return false, fmt.Errorf("repository: failed to record settlement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repository: failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *postgresSettlementRepo) GetByReference(ctx context.Context, reference string) (*domain.Settlement, error) {
	var s domain.Settlement
	query := `
        SELECT reference, user_id, plan_id, crypto_amount, fiat_amount, created_at
        FROM payment_settlements
        WHERE reference = $1`

	if err := r.db.GetContext(ctx, &s, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get settlement", "error", err, "reference", reference)
		return nil, fmt.Errorf("repository: failed to get settlement: %w", err)
	}
	return &s, nil
}
