package repository

import (
	"context"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/google/uuid"
)

// SubscriptionRepository определяет методы для работы с хранилищем подписок.
// Хранилище не гарантирует уникальность "текущей" записи для владельца —
// её всегда заново выводит FindCurrentByOwner по убыванию created_at.
type SubscriptionRepository interface {
	// FindCurrentByOwner возвращает авторитетную (последнюю по created_at)
	// запись подписки владельца. ErrNotFound, если записей нет.
	FindCurrentByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error)

	// FindByBillingRef возвращает подписку по её внешнему идентификатору
	// в платёжной системе. Нужен для обработки вебхуков.
	FindByBillingRef(ctx context.Context, billingSubscriptionRef string) (*domain.Subscription, error)

	// FindByID возвращает подписку по её ID. ErrNotFound, если записи нет.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error)

	// Insert сохраняет новую подписку; проставляет ID и временные метки.
	Insert(ctx context.Context, sub *domain.Subscription) error

	// Update обновляет изменяемые поля существующей подписки по ID.
	Update(ctx context.Context, sub *domain.Subscription) error

	// ListByOwner возвращает записи владельца по убыванию created_at,
	// не больше limit (limit <= 0 — без ограничения).
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Subscription, error)

	// ListAll возвращает все записи подписок.
	ListAll(ctx context.Context) ([]domain.Subscription, error)
}

// ProcessedEventStore хранит идентификаторы уже обработанных биллинговых
// событий. Закрывает at-least-once доставку: повтор source_event_id
// распознаётся до применения события к записи.
// Отметка ставится только после успешного применения: повторная доставка
// после отклонённой записи не должна приниматься за дубликат.
type ProcessedEventStore interface {
	// Seen сообщает, было ли событие уже обработано.
	Seen(ctx context.Context, sourceEventID string) (bool, error)

	// MarkProcessed атомарно помечает событие обработанным.
	// Возвращает false, если событие уже было помечено ранее.
	MarkProcessed(ctx context.Context, sourceEventID string) (bool, error)
}
