package repository

import (
	"context"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием
// текущей подписки владельца. Ошибки кеша не фатальны: чтение уходит в
// основное хранилище, запись продолжается без кеша.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// FindCurrentByOwner получает текущую подписку (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) FindCurrentByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	cached, err := r.cache.GetCachedCurrentSubscription(ctx, ownerID)
	if err == nil && cached != nil {
		return cached, nil
	}
	if err != nil {
		r.log.Warnw("Cache read failed, falling back to store", "error", err, "ownerID", ownerID)
	}

	sub, err := r.repo.FindCurrentByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if cacheErr := r.cache.CacheCurrentSubscription(ctx, sub); cacheErr != nil {
		r.log.Warnw("Failed to cache current subscription", "error", cacheErr, "ownerID", ownerID)
	}
	return sub, nil
}

// FindByBillingRef всегда идёт в основное хранилище: путь записи вебхука
// не должен видеть устаревшие данные из кеша
func (r *CachedSubscriptionRepository) FindByBillingRef(ctx context.Context, billingSubscriptionRef string) (*domain.Subscription, error) {
	return r.repo.FindByBillingRef(ctx, billingSubscriptionRef)
}

// FindByID проксирует запрос в основное хранилище
func (r *CachedSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.repo.FindByID(ctx, id)
}

// Insert сохраняет подписку в БД и обновляет кеш владельца
func (r *CachedSubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	if err := r.repo.Insert(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.CacheCurrentSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after insert", "error", err, "ownerID", sub.OwnerID)
	}
	return nil
}

// Update обновляет подписку в БД и сбрасывает кеш владельца
func (r *CachedSubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	if err := r.repo.Update(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.InvalidateOwnerCache(ctx, sub.OwnerID); err != nil {
		r.log.Warnw("Failed to invalidate owner cache after update", "error", err, "ownerID", sub.OwnerID)
	}
	return nil
}

// ListByOwner проксирует запрос в основное хранилище
func (r *CachedSubscriptionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Subscription, error) {
	return r.repo.ListByOwner(ctx, ownerID, limit)
}

// ListAll проксирует запрос в основное хранилище
func (r *CachedSubscriptionRepository) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	return r.repo.ListAll(ctx)
}
