package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

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

const subscriptionColumns = `
	id, owner_id, plan_tier, status, billing_customer_ref,
	billing_subscription_ref, period_start, period_end, created_at, updated_at`

// FindCurrentByOwner возвращает последнюю по created_at запись владельца.
func (r *postgresSubscriptionRepo) FindCurrentByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1
        ORDER BY created_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("No current subscription for owner", "ownerID", ownerID)
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get current subscription from DB", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return &sub, nil
}

// FindByBillingRef возвращает подписку по её идентификатору в платёжной системе.
// Среди исторических записей с одним ref авторитетна последняя по created_at.
func (r *postgresSubscriptionRepo) FindByBillingRef(ctx context.Context, billingSubscriptionRef string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE billing_subscription_ref = $1
        ORDER BY created_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &sub, query, billingSubscriptionRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Subscription not found by billing ref", "billingSubscriptionRef", billingSubscriptionRef)
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by billing ref from DB", "error", err, "billingSubscriptionRef", billingSubscriptionRef)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return &sub, nil
}

// FindByID возвращает подписку по её ID.
func (r *postgresSubscriptionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE id = $1`

	err := r.db.GetContext(ctx, &sub, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by ID from DB", "error", err, "id", id)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return &sub, nil
}

// Insert сохраняет новую подписку в базе данных.
func (r *postgresSubscriptionRepo) Insert(ctx context.Context, sub *domain.Subscription) error {
	now := time.Now()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
        INSERT INTO subscriptions (
            id, owner_id, plan_tier, status, billing_customer_ref,
            billing_subscription_ref, period_start, period_end, created_at, updated_at
        ) VALUES (
            :id, :owner_id, :plan_tier, :status, :billing_customer_ref,
            :billing_subscription_ref, :period_start, :period_end, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		r.log.Errorw("Failed to insert subscription in DB", "error", err, "id", sub.ID, "ownerID", sub.OwnerID)
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	r.log.Debugw("Subscription inserted", "id", sub.ID, "ownerID", sub.OwnerID)
	return nil
}

// Update обновляет изменяемые поля существующей подписки.
// Не трогаем: id, owner_id, created_at.
func (r *postgresSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now()

	query := `
        UPDATE subscriptions SET
            plan_tier = :plan_tier,
            status = :status,
            billing_customer_ref = :billing_customer_ref,
            billing_subscription_ref = :billing_subscription_ref,
            period_start = :period_start,
            period_end = :period_end,
            updated_at = :updated_at
        WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, sub)
	if err != nil {
		r.log.Errorw("Failed to update subscription in DB", "error", err, "id", sub.ID)
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		r.log.Errorw("Failed to get rows affected after update", "error", err, "id", sub.ID)
	}
	if rowsAffected == 0 {
		r.log.Warnw("Subscription update affected 0 rows", "id", sub.ID)
		return ErrNotFound
	}

	r.log.Debugw("Subscription updated", "id", sub.ID, "rowsAffected", rowsAffected)
	return nil
}

// ListByOwner возвращает записи владельца по убыванию created_at.
func (r *postgresSubscriptionRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1
        ORDER BY created_at DESC`

	var err error
	if limit > 0 {
		err = r.db.SelectContext(ctx, &subs, query+` LIMIT $2`, ownerID, limit)
	} else {
		err = r.db.SelectContext(ctx, &subs, query, ownerID)
	}
	if err != nil {
		r.log.Errorw("Failed to list subscriptions by owner from DB", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return subs, nil
}

// ListAll возвращает все записи подписок.
func (r *postgresSubscriptionRepo) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &subs, query); err != nil {
		r.log.Errorw("Failed to list subscriptions from DB", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return subs, nil
}
