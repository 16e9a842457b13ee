package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/billing"
	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/internal/kafka"
	"github.com/Dhoini/Subscription-microservice/internal/metrics"
	"github.com/Dhoini/Subscription-microservice/internal/repository"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
)

// ApplyOutcome итог применения события к записи подписки
type ApplyOutcome string

const (
	// OutcomeApplied событие изменило запись подписки
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeSkipped событие не нашло запись и было пропущено
	OutcomeSkipped ApplyOutcome = "skipped"
	// OutcomeDuplicate событие с таким source_event_id уже применялось
	OutcomeDuplicate ApplyOutcome = "duplicate"
)

// ApplyResult результат реконсиляции одного биллингового события.
// Вызывающая сторона сама решает, подтверждать доставку или нет:
// ошибок здесь нет — любой из трёх итогов означает успешную обработку.
type ApplyResult struct {
	Outcome      ApplyOutcome
	Reason       string
	Subscription *domain.Subscription
}

// ReconcileService интерфейс движка реконсиляции подписок
type ReconcileService interface {
	// Apply применяет каноническое биллинговое событие к записи подписки.
	// Ошибка возвращается только при отказе хранилища на пути записи —
	// такую доставку нужно отклонить, чтобы платёжная система повторила её.
	Apply(ctx context.Context, event *domain.BillingEvent) (ApplyResult, error)
}

// ownerLock мьютекс одного владельца со счётчиком ссылок
type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// reconcileService реализация движка реконсиляции.
//
// Все записи для одного владельца сериализуются через мьютекс по OwnerID:
// пара "найти текущую запись — записать" становится атомарной без
// транзакций хранилища, и два конкурентных activation-события не могут
// создать две "текущие" строки.
type reconcileService struct {
	repo     repository.SubscriptionRepository
	events   repository.ProcessedEventStore
	producer kafka.Producer
	metrics  metrics.SubscriptionMetrics
	log      *logger.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*ownerLock
}

// NewReconcileService создает новый движок реконсиляции подписок
func NewReconcileService(
	repo repository.SubscriptionRepository,
	events repository.ProcessedEventStore,
	producer kafka.Producer,
	m metrics.SubscriptionMetrics,
	log *logger.Logger,
) ReconcileService {
	return &reconcileService{
		repo:     repo,
		events:   events,
		producer: producer,
		metrics:  m,
		log:      log,
		locks:    make(map[uuid.UUID]*ownerLock),
	}
}

// lockOwner захватывает мьютекс владельца; возвращённая функция освобождает
// его и удаляет из таблицы, когда он больше никому не нужен
func (s *reconcileService) lockOwner(ownerID uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &ownerLock{}
		s.locks[ownerID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, ownerID)
		}
		s.mu.Unlock()
	}
}

// Apply применяет каноническое событие к записи подписки
func (s *reconcileService) Apply(ctx context.Context, event *domain.BillingEvent) (ApplyResult, error) {
	started := time.Now()

	result, err := s.apply(ctx, event)
	if err != nil {
		return ApplyResult{}, err
	}

	s.metrics.IncWebhookEvent(string(event.Kind), string(result.Outcome))
	s.metrics.ObserveReconcileDuration(string(event.Kind), time.Since(started).Seconds())
	return result, nil
}

func (s *reconcileService) apply(ctx context.Context, event *domain.BillingEvent) (ApplyResult, error) {
	if !event.Kind.IsValid() {
		return ApplyResult{}, fmt.Errorf("%w: unknown event kind %q", domain.ErrInvalidInput, event.Kind)
	}

	switch event.Kind {
	case domain.EventSubscriptionActivated:
		return s.applyActivation(ctx, event)
	case domain.EventInvoicePaid, domain.EventInvoiceFailed, domain.EventSubscriptionCancelled:
		return s.applyByBillingRef(ctx, event)
	default:
		// Недостижимо после IsValid; новая ветка обязана появиться
		// вместе с новым значением EventKind
		return ApplyResult{}, fmt.Errorf("%w: unhandled event kind %q", domain.ErrInternal, event.Kind)
	}
}

// applyActivation обрабатывает subscription_activated: upsert текущей записи
func (s *reconcileService) applyActivation(ctx context.Context, event *domain.BillingEvent) (ApplyResult, error) {
	unlock := s.lockOwner(event.OwnerID)
	defer unlock()

	if dup, err := s.isDuplicate(ctx, event); err == nil && dup {
		return s.duplicateResult(event), nil
	}

	now := time.Now()
	duration := billing.PeriodDuration(event.PlanTier)

	current, err := s.repo.FindCurrentByOwner(ctx, event.OwnerID)
	switch {
	case err == nil:
		// Повторная активация перезаписывает тариф и ссылки
		// и заново отсчитывает период от текущего момента
		current.PlanTier = event.PlanTier
		current.Status = domain.SubscriptionStatusActive
		current.BillingCustomerRef = event.BillingCustomerRef
		current.BillingSubscriptionRef = event.BillingSubscriptionRef
		current.PeriodStart = now
		current.PeriodEnd = now.Add(duration)

		if err := s.repo.Update(ctx, current); err != nil {
			return ApplyResult{}, fmt.Errorf("reconcile: failed to update subscription on activation: %w", err)
		}
	case errors.Is(err, repository.ErrNotFound):
		current = &domain.Subscription{
			OwnerID:                event.OwnerID,
			PlanTier:               event.PlanTier,
			Status:                 domain.SubscriptionStatusActive,
			BillingCustomerRef:     event.BillingCustomerRef,
			BillingSubscriptionRef: event.BillingSubscriptionRef,
			PeriodStart:            now,
			PeriodEnd:              now.Add(duration),
		}

		if err := s.repo.Insert(ctx, current); err != nil {
			return ApplyResult{}, fmt.Errorf("reconcile: failed to insert subscription on activation: %w", err)
		}
	default:
		return ApplyResult{}, fmt.Errorf("reconcile: failed to load current subscription: %w", err)
	}

	s.markProcessed(ctx, event)
	s.publish(ctx, kafka.TopicSubscriptionActivated, current)

	s.log.Infow("Subscription activated",
		"ownerID", event.OwnerID, "tier", event.PlanTier, "sourceEventID", event.SourceEventID)

	return ApplyResult{Outcome: OutcomeApplied, Subscription: current}, nil
}

// applyByBillingRef обрабатывает события, привязанные к подписке платёжной
// системы: invoice_paid, invoice_failed, subscription_cancelled
func (s *reconcileService) applyByBillingRef(ctx context.Context, event *domain.BillingEvent) (ApplyResult, error) {
	sub, err := s.repo.FindByBillingRef(ctx, event.BillingSubscriptionRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Подписка могла быть создана другой системой или до появления
			// этого сервиса — пропускаем и подтверждаем доставку
			s.log.Warnw("No subscription for billing ref, skipping event",
				"billingSubscriptionRef", event.BillingSubscriptionRef,
				"kind", event.Kind, "sourceEventID", event.SourceEventID)
			return ApplyResult{
				Outcome: OutcomeSkipped,
				Reason:  "no subscription for billing ref",
			}, nil
		}
		return ApplyResult{}, fmt.Errorf("reconcile: failed to find subscription by billing ref: %w", err)
	}

	unlock := s.lockOwner(sub.OwnerID)
	defer unlock()

	if dup, err := s.isDuplicate(ctx, event); err == nil && dup {
		return s.duplicateResult(event), nil
	}

	// Перечитываем под мьютексом: запись могла измениться,
	// пока мы ждали своей очереди
	sub, err = s.repo.FindByBillingRef(ctx, event.BillingSubscriptionRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ApplyResult{
				Outcome: OutcomeSkipped,
				Reason:  "no subscription for billing ref",
			}, nil
		}
		return ApplyResult{}, fmt.Errorf("reconcile: failed to reload subscription by billing ref: %w", err)
	}

	var topic string
	switch event.Kind {
	case domain.EventInvoicePaid:
		sub.Status = domain.SubscriptionStatusActive
		if event.PeriodStart != nil && event.PeriodEnd != nil {
			// Платёжная система сообщила границы оплаченного периода
			sub.PeriodStart = *event.PeriodStart
			sub.PeriodEnd = *event.PeriodEnd
		} else {
			now := time.Now()
			sub.PeriodStart = now
			sub.PeriodEnd = now.Add(billing.PeriodDuration(sub.PlanTier))
		}
		topic = kafka.TopicSubscriptionRenewed
	case domain.EventInvoiceFailed:
		// Период не трогаем: до его конца доступ сохраняется
		sub.Status = domain.SubscriptionStatusPastDue
		topic = kafka.TopicSubscriptionPastDue
	case domain.EventSubscriptionCancelled:
		sub.Status = domain.SubscriptionStatusCancelled
		topic = kafka.TopicSubscriptionCancelled
	default:
		return ApplyResult{}, fmt.Errorf("%w: unhandled reference-bound event kind %q", domain.ErrInternal, event.Kind)
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return ApplyResult{}, fmt.Errorf("reconcile: failed to update subscription for %s: %w", event.Kind, err)
	}

	s.markProcessed(ctx, event)
	s.publish(ctx, topic, sub)

	s.log.Infow("Billing event applied",
		"kind", event.Kind, "ownerID", sub.OwnerID,
		"status", sub.Status, "sourceEventID", event.SourceEventID)

	return ApplyResult{Outcome: OutcomeApplied, Subscription: sub}, nil
}

// isDuplicate проверяет, не применялось ли событие раньше.
// Отказ хранилища дедупликации не блокирует обработку: повтор события
// для той же записи сходится к тому же состоянию.
func (s *reconcileService) isDuplicate(ctx context.Context, event *domain.BillingEvent) (bool, error) {
	if event.SourceEventID == "" {
		return false, nil
	}

	seen, err := s.events.Seen(ctx, event.SourceEventID)
	if err != nil {
		s.log.Warnw("Dedup store check failed, processing event anyway",
			"error", err, "sourceEventID", event.SourceEventID)
		return false, err
	}
	return seen, nil
}

// markProcessed ставит отметку об обработке после успешного применения
func (s *reconcileService) markProcessed(ctx context.Context, event *domain.BillingEvent) {
	if event.SourceEventID == "" {
		return
	}

	if _, err := s.events.MarkProcessed(ctx, event.SourceEventID); err != nil {
		s.log.Warnw("Failed to mark billing event processed",
			"error", err, "sourceEventID", event.SourceEventID)
	}
}

// duplicateResult логирует и оформляет итог для повторной доставки
func (s *reconcileService) duplicateResult(event *domain.BillingEvent) ApplyResult {
	s.log.Infow("Duplicate billing event, acknowledging without processing",
		"kind", event.Kind, "sourceEventID", event.SourceEventID)
	return ApplyResult{
		Outcome: OutcomeDuplicate,
		Reason:  "source event already processed",
	}
}

// publish отправляет событие жизненного цикла в Kafka.
// Публикация не критична для реконсиляции: ошибка только логируется.
func (s *reconcileService) publish(ctx context.Context, topic string, sub *domain.Subscription) {
	if err := s.producer.PublishSubscriptionEvent(ctx, topic, sub); err != nil {
		s.log.Errorw("Failed to publish subscription event", "error", err, "topic", topic, "id", sub.ID)
	}
}
