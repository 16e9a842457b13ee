package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/billing"
	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/internal/metrics"
	"github.com/Dhoini/Subscription-microservice/internal/repository"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
)

// SubscriptionService интерфейс сервиса для работы с подписками
type SubscriptionService interface {
	// CreateOrRenew создает подписку владельца или продлевает существующую
	CreateOrRenew(ctx context.Context, req domain.SubscriptionRequest) (*domain.Subscription, error)

	// SetStatus меняет статус подписки по её ID
	SetStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error

	// ListAll возвращает подписки; statusFilter == "" — без фильтра
	ListAll(ctx context.Context, statusFilter domain.SubscriptionStatus) ([]domain.Subscription, error)

	// Stats возвращает агрегированную статистику по подпискам
	Stats(ctx context.Context) (domain.SubscriptionStats, error)

	// CheckAccess вычисляет право доступа владельца. Никогда не
	// возвращает ошибку: любой сбой чтения превращается в fail-open
	// триальный доступ по умолчанию.
	CheckAccess(ctx context.Context, ownerID string) domain.Entitlement
}

// subscriptionService реализация сервиса подписок
type subscriptionService struct {
	repo      repository.SubscriptionRepository
	reconcile ReconcileService
	metrics   metrics.SubscriptionMetrics
	log       *logger.Logger
}

// NewSubscriptionService создает новый сервис для работы с подписками
func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	reconcile ReconcileService,
	m metrics.SubscriptionMetrics,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		repo:      repo,
		reconcile: reconcile,
		metrics:   m,
		log:       log,
	}
}

// CreateOrRenew создает или продлевает подписку владельца.
// Запрос проходит через движок реконсиляции тем же путём, что и
// activation-событие платёжной системы: одна точка записи, одна
// сериализация по владельцу.
func (s *subscriptionService) CreateOrRenew(ctx context.Context, req domain.SubscriptionRequest) (*domain.Subscription, error) {
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		s.log.Warnw("Invalid owner ID in subscription request", "ownerID", req.OwnerID)
		return nil, fmt.Errorf("%w: invalid owner_id", domain.ErrInvalidInput)
	}

	tier := domain.PlanTier(req.PlanTier)
	if !tier.IsValid() {
		s.log.Warnw("Invalid plan tier in subscription request", "planTier", req.PlanTier)
		return nil, fmt.Errorf("%w: invalid plan_tier %q", domain.ErrInvalidInput, req.PlanTier)
	}

	event := &domain.BillingEvent{
		Kind:                   domain.EventSubscriptionActivated,
		OwnerID:                ownerID,
		PlanTier:               tier,
		BillingCustomerRef:     req.BillingCustomerRef,
		BillingSubscriptionRef: req.BillingSubscriptionRef,
		OccurredAt:             time.Now(),
	}

	result, err := s.reconcile.Apply(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to create or renew subscription: %w", err)
	}

	s.metrics.IncSubscriptionCreated(string(tier))
	s.log.Infow("Subscription created or renewed", "ownerID", ownerID, "tier", tier)

	return result.Subscription, nil
}

// SetStatus меняет статус подписки
func (s *subscriptionService) SetStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error {
	subID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid subscription id", domain.ErrInvalidInput)
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrInvalidInput, status)
	}

	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	sub.Status = status
	if err := s.repo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	s.log.Infow("Subscription status updated", "id", subID, "status", status)
	return nil
}

// ListAll возвращает подписки с необязательным фильтром по статусу
func (s *subscriptionService) ListAll(ctx context.Context, statusFilter domain.SubscriptionStatus) ([]domain.Subscription, error) {
	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	if statusFilter == "" {
		return subs, nil
	}

	filtered := make([]domain.Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == statusFilter {
			filtered = append(filtered, sub)
		}
	}
	return filtered, nil
}

// Stats считает агрегаты по текущей записи каждого владельца.
// Исторические строки продлений в агрегаты не попадают — иначе
// каждое продление завышало бы выручку и churn.
func (s *subscriptionService) Stats(ctx context.Context) (domain.SubscriptionStats, error) {
	subs, err := s.repo.ListAll(ctx)
	if err != nil {
		return domain.SubscriptionStats{}, fmt.Errorf("failed to compute stats: %w", err)
	}

	current := make(map[uuid.UUID]domain.Subscription, len(subs))
	for _, sub := range subs {
		if prev, ok := current[sub.OwnerID]; !ok || sub.CreatedAt.After(prev.CreatedAt) {
			current[sub.OwnerID] = sub
		}
	}

	var stats domain.SubscriptionStats
	var cancelled int
	for _, sub := range current {
		stats.Total++
		if sub.Status == domain.SubscriptionStatusActive {
			stats.Active++
		}
		if sub.Status == domain.SubscriptionStatusCancelled {
			cancelled++
		}
		if sub.PlanTier == domain.PlanTierTrial {
			stats.Trial++
		} else if sub.PlanTier.IsPaid() {
			stats.Paid++
		}
		stats.RevenueEstimate += billing.TierPrice(sub.PlanTier)
	}

	if stats.Total > 0 {
		stats.ChurnRate = float64(cancelled) / float64(stats.Total) * 100
	}

	return stats, nil
}

// CheckAccess вычисляет право доступа владельца.
// Отсутствие записи и отказ хранилища равнозначны: владелец получает
// триальный доступ по умолчанию, а не отказ. Лучше дать бесплатный
// доступ на время сбоя, чем закрыть сервис платящему клиенту.
func (s *subscriptionService) CheckAccess(ctx context.Context, ownerID string) domain.Entitlement {
	now := time.Now()

	id, err := uuid.Parse(ownerID)
	if err != nil {
		s.log.Warnw("Invalid owner ID in access check, failing open", "ownerID", ownerID)
		decision := billing.Evaluate(nil, now)
		s.metrics.IncAccessCheck(decision.HasAccess, true)
		return decision
	}

	sub, err := s.repo.FindCurrentByOwner(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Errorw("Store failure during access check, failing open", "error", err, "ownerID", ownerID)
		}
		decision := billing.Evaluate(nil, now)
		s.metrics.IncAccessCheck(decision.HasAccess, true)
		return decision
	}

	decision := billing.Evaluate(sub, now)
	s.metrics.IncAccessCheck(decision.HasAccess, false)
	return decision
}
