package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/internal/kafka"
	"github.com/Dhoini/Subscription-microservice/internal/metrics"
	"github.com/Dhoini/Subscription-microservice/internal/repository"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reconcileFixture собирает движок реконсиляции на реализациях в памяти
type reconcileFixture struct {
	service ReconcileService
	repo    *repository.InMemorySubscriptionRepository
	events  *repository.InMemoryProcessedEventStore
}

func newReconcileFixture() *reconcileFixture {
	log := logger.New(logger.ERROR)
	repo := repository.NewInMemorySubscriptionRepository()
	events := repository.NewInMemoryProcessedEventStore()
	m := metrics.NewSubscriptionMetrics(prometheus.NewRegistry(), log)

	return &reconcileFixture{
		service: NewReconcileService(repo, events, kafka.NoOpProducer{}, m, log),
		repo:    repo,
		events:  events,
	}
}

func activationEvent(ownerID uuid.UUID, tier domain.PlanTier, sourceEventID string) *domain.BillingEvent {
	return &domain.BillingEvent{
		Kind:                   domain.EventSubscriptionActivated,
		OwnerID:                ownerID,
		PlanTier:               tier,
		BillingCustomerRef:     "cus_1",
		BillingSubscriptionRef: "sub_1",
		OccurredAt:             time.Now(),
		SourceEventID:          sourceEventID,
	}
}

func TestApply_ActivationCreatesSubscription(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	result, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, "evt_1"))

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	require.NotNil(t, result.Subscription)

	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierMonthly, sub.PlanTier)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "sub_1", sub.BillingSubscriptionRef)
	assert.WithinDuration(t, sub.PeriodStart.Add(30*24*time.Hour), sub.PeriodEnd, time.Second)
}

func TestApply_RepeatActivationReanchors(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, "evt_1"))
	require.NoError(t, err)

	result, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierAnnual, "evt_2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	// Запись одна: повторная активация обновляет её, а не плодит новую
	all, err := f.repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.PlanTierAnnual, all[0].PlanTier)
	assert.WithinDuration(t, all[0].PeriodStart.Add(365*24*time.Hour), all[0].PeriodEnd, time.Second)
}

func TestApply_DuplicateSourceEventAcknowledged(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	first, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, "evt_dup"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, first.Outcome)

	second, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierAnnual, "evt_dup"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	// Повтор не применился: тариф остался от первой доставки
	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierMonthly, sub.PlanTier)
}

func TestApply_EmptySourceEventIDNeverDeduplicated(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	for i := 0; i < 2; i++ {
		result, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, ""))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, result.Outcome)
	}
}

func TestApply_InvoicePaidExplicitPeriod(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, "evt_1"))
	require.NoError(t, err)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	end := start.Add(30 * 24 * time.Hour)
	result, err := f.service.Apply(ctx, &domain.BillingEvent{
		Kind:                   domain.EventInvoicePaid,
		BillingSubscriptionRef: "sub_1",
		PeriodStart:            &start,
		PeriodEnd:              &end,
		OccurredAt:             time.Now(),
		SourceEventID:          "evt_2",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.PeriodStart.Equal(start))
	assert.True(t, sub.PeriodEnd.Equal(end))
}

func TestApply_InvoicePaidWithoutPeriodExtendsFromNow(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierSemiannual, "evt_1"))
	require.NoError(t, err)

	result, err := f.service.Apply(ctx, &domain.BillingEvent{
		Kind:                   domain.EventInvoicePaid,
		BillingSubscriptionRef: "sub_1",
		OccurredAt:             time.Now(),
		SourceEventID:          "evt_2",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.WithinDuration(t, sub.PeriodStart.Add(180*24*time.Hour), sub.PeriodEnd, time.Second)
}

func TestApply_InvoiceFailedMarksPastDueKeepsPeriod(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierMonthly, "evt_1"))
	require.NoError(t, err)

	before, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)

	result, err := f.service.Apply(ctx, &domain.BillingEvent{
		Kind:                   domain.EventInvoiceFailed,
		BillingSubscriptionRef: "sub_1",
		OccurredAt:             time.Now(),
		SourceEventID:          "evt_2",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, sub.Status)
	// Доступ до конца оплаченного периода сохраняется
	assert.True(t, sub.PeriodStart.Equal(before.PeriodStart))
	assert.True(t, sub.PeriodEnd.Equal(before.PeriodEnd))
	assert.False(t, sub.IsActive(time.Now()))
}

func TestApply_CancellationRevokesAccess(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	_, err := f.service.Apply(ctx, activationEvent(ownerID, domain.PlanTierAnnual, "evt_1"))
	require.NoError(t, err)

	result, err := f.service.Apply(ctx, &domain.BillingEvent{
		Kind:                   domain.EventSubscriptionCancelled,
		BillingSubscriptionRef: "sub_1",
		OccurredAt:             time.Now(),
		SourceEventID:          "evt_2",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	sub, err := f.repo.FindCurrentByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, sub.Status)
	assert.False(t, sub.IsActive(time.Now()))
}

func TestApply_UnknownBillingRefSkipped(t *testing.T) {
	f := newReconcileFixture()

	result, err := f.service.Apply(context.Background(), &domain.BillingEvent{
		Kind:                   domain.EventInvoicePaid,
		BillingSubscriptionRef: "sub_unknown",
		OccurredAt:             time.Now(),
		SourceEventID:          "evt_1",
	})

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Nil(t, result.Subscription)
}

func TestApply_InvalidKindRejected(t *testing.T) {
	f := newReconcileFixture()

	_, err := f.service.Apply(context.Background(), &domain.BillingEvent{
		Kind:    domain.EventKind("payment_bounced"),
		OwnerID: uuid.New(),
	})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestApply_ConcurrentActivationsSingleRecord(t *testing.T) {
	f := newReconcileFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tier := domain.PlanTierMonthly
			if n%2 == 0 {
				tier = domain.PlanTierAnnual
			}
			_, err := f.service.Apply(ctx, activationEvent(ownerID, tier, ""))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Записи для одного владельца сериализуются: строка ровно одна
	all, err := f.repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.SubscriptionStatusActive, all[0].Status)
}

// failingRepository имитирует отказ хранилища на пути записи
type failingRepository struct {
	*repository.InMemorySubscriptionRepository
}

func (failingRepository) Insert(ctx context.Context, sub *domain.Subscription) error {
	return domain.ErrStoreUnavailable
}

func TestApply_StoreFailureLeavesEventUnmarked(t *testing.T) {
	log := logger.New(logger.ERROR)
	events := repository.NewInMemoryProcessedEventStore()
	repo := failingRepository{repository.NewInMemorySubscriptionRepository()}
	m := metrics.NewSubscriptionMetrics(prometheus.NewRegistry(), log)
	svc := NewReconcileService(repo, events, kafka.NoOpProducer{}, m, log)
	ctx := context.Background()

	_, err := svc.Apply(ctx, activationEvent(uuid.New(), domain.PlanTierMonthly, "evt_retry"))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	// Событие не помечено обработанным: повторная доставка не должна
	// быть принята за дубликат
	seen, err := events.Seen(ctx, "evt_retry")
	require.NoError(t, err)
	assert.False(t, seen)
}
