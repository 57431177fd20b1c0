package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const planColumns = `id, name, daily_requests, monthly_price_eur, yearly_price_eur`

type postgresPlanRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresPlanRepository создает справочник планов поверх таблицы subscription_plans.
func NewPostgresPlanRepository(db *sqlx.DB, log *logger.Logger) PlanRepository {
	return &postgresPlanRepo{db: db, log: log}
}

func (r *postgresPlanRepo) GetByName(ctx context.Context, name domain.PlanName) (*domain.Plan, error) {
	return r.get(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE name = $1`, string(name))
}

func (r *postgresPlanRepo) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	return r.get(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id)
}

func (r *postgresPlanRepo) get(ctx context.Context, query string, arg string) (*domain.Plan, error) {
	var plan domain.Plan
	if err := r.db.GetContext(ctx, &plan, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Warnw("Plan not found", "key", arg)
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get plan from DB", "error", err, "key", arg)
		return nil, fmt.Errorf("repository: failed to get plan: %w", err)
	}
	return &plan, nil
}
