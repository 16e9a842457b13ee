package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	ownerSubscriptionKeyPrefix = "subscription:owner:"
	processedEventKeyPrefix    = "billing_event:"

	// TTL для кэша текущей подписки
	defaultCacheTTL = 15 * time.Minute

	// TTL для отметок об обработанных событиях: повторные доставки
	// платёжной системы укладываются в этот интервал с большим запасом
	processedEventTTL = 72 * time.Hour
)

// RedisCacheRepository реализует кеширование текущих подписок и учёт
// обработанных биллинговых событий с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheCurrentSubscription кеширует текущую подписку владельца
func (r *RedisCacheRepository) CacheCurrentSubscription(ctx context.Context, sub *domain.Subscription) error {
	key := ownerSubscriptionKeyPrefix + sub.OwnerID.String()

	data, err := json.Marshal(sub)
	if err != nil {
		r.log.Errorw("Failed to marshal subscription for caching", "error", err, "ownerID", sub.OwnerID)
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription in Redis", "error", err, "ownerID", sub.OwnerID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Current subscription cached", "ownerID", sub.OwnerID)
	return nil
}

// GetCachedCurrentSubscription получает текущую подписку владельца из кеша.
// Возвращает (nil, nil), если ключа в кеше нет.
func (r *RedisCacheRepository) GetCachedCurrentSubscription(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	key := ownerSubscriptionKeyPrefix + ownerID.String()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		r.log.Errorw("Failed to unmarshal cached subscription", "error", err, "ownerID", ownerID)
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	r.log.Debugw("Current subscription retrieved from cache", "ownerID", ownerID)
	return &sub, nil
}

// InvalidateOwnerCache сбрасывает кеш текущей подписки владельца
func (r *RedisCacheRepository) InvalidateOwnerCache(ctx context.Context, ownerID uuid.UUID) error {
	key := ownerSubscriptionKeyPrefix + ownerID.String()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate owner subscription cache", "error", err, "ownerID", ownerID)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// Seen сообщает, было ли биллинговое событие уже обработано
func (r *RedisCacheRepository) Seen(ctx context.Context, sourceEventID string) (bool, error) {
	key := processedEventKeyPrefix + sourceEventID

	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.log.Errorw("Failed to check billing event in Redis", "error", err, "sourceEventID", sourceEventID)
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed атомарно помечает биллинговое событие обработанным
// через SETNX. Возвращает false, если событие уже встречалось.
func (r *RedisCacheRepository) MarkProcessed(ctx context.Context, sourceEventID string) (bool, error) {
	key := processedEventKeyPrefix + sourceEventID

	ok, err := r.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), processedEventTTL).Result()
	if err != nil {
		r.log.Errorw("Failed to mark billing event processed in Redis", "error", err, "sourceEventID", sourceEventID)
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}

	return ok, nil
}
