package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/google/uuid"
)

// InMemorySubscriptionRepository реализация репозитория подписок в памяти.
// Используется в тестах и при локальной разработке без базы данных.
type InMemorySubscriptionRepository struct {
	subs  map[uuid.UUID]domain.Subscription
	mutex sync.RWMutex
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository() *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subs: make(map[uuid.UUID]domain.Subscription),
	}
}

// FindCurrentByOwner возвращает последнюю по created_at запись владельца
func (r *InMemorySubscriptionRepository) FindCurrentByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var current *domain.Subscription
	for _, sub := range r.subs {
		if sub.OwnerID != ownerID {
			continue
		}
		if current == nil || sub.CreatedAt.After(current.CreatedAt) {
			s := sub
			current = &s
		}
	}

	if current == nil {
		return nil, ErrNotFound
	}
	return current, nil
}

// FindByBillingRef возвращает подписку по её идентификатору в платёжной системе
func (r *InMemorySubscriptionRepository) FindByBillingRef(ctx context.Context, billingSubscriptionRef string) (*domain.Subscription, error) {
	if billingSubscriptionRef == "" {
		return nil, ErrNotFound
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var found *domain.Subscription
	for _, sub := range r.subs {
		if sub.BillingSubscriptionRef != billingSubscriptionRef {
			continue
		}
		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			s := sub
			found = &s
		}
	}

	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// FindByID возвращает подписку по её ID
func (r *InMemorySubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sub, exists := r.subs[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// Insert сохраняет новую подписку
func (r *InMemorySubscriptionRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	r.subs[sub.ID] = *sub
	return nil
}

// Update обновляет существующую подписку
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, exists := r.subs[sub.ID]
	if !exists {
		return ErrNotFound
	}

	sub.OwnerID = stored.OwnerID
	sub.CreatedAt = stored.CreatedAt
	sub.UpdatedAt = time.Now()

	r.subs[sub.ID] = *sub
	return nil
}

// ListByOwner возвращает записи владельца по убыванию created_at
func (r *InMemorySubscriptionRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	subs := make([]domain.Subscription, 0)
	for _, sub := range r.subs {
		if sub.OwnerID == ownerID {
			subs = append(subs, sub)
		}
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})

	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

// ListAll возвращает все записи подписок
func (r *InMemorySubscriptionRepository) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	subs := make([]domain.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// InMemoryProcessedEventStore хранит идентификаторы обработанных событий
// в памяти. Используется в тестах и когда Redis недоступен.
type InMemoryProcessedEventStore struct {
	seen  map[string]time.Time
	mutex sync.Mutex
}

// NewInMemoryProcessedEventStore создает новое хранилище обработанных событий
func NewInMemoryProcessedEventStore() *InMemoryProcessedEventStore {
	return &InMemoryProcessedEventStore{
		seen: make(map[string]time.Time),
	}
}

// Seen сообщает, было ли событие уже обработано
func (s *InMemoryProcessedEventStore) Seen(ctx context.Context, sourceEventID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, exists := s.seen[sourceEventID]
	return exists, nil
}

// MarkProcessed помечает событие обработанным; false при повторе
func (s *InMemoryProcessedEventStore) MarkProcessed(ctx context.Context, sourceEventID string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.seen[sourceEventID]; exists {
		return false, nil
	}

	s.seen[sourceEventID] = time.Now()
	return true, nil
}
