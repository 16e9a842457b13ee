package service

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/billing"
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

// subscriptionFixture собирает сервис подписок на реализациях в памяти
type subscriptionFixture struct {
	service SubscriptionService
	repo    *repository.InMemorySubscriptionRepository
}

func newSubscriptionFixture() *subscriptionFixture {
	log := logger.New(logger.ERROR)
	repo := repository.NewInMemorySubscriptionRepository()
	events := repository.NewInMemoryProcessedEventStore()
	m := metrics.NewSubscriptionMetrics(prometheus.NewRegistry(), log)
	reconcile := NewReconcileService(repo, events, kafka.NoOpProducer{}, m, log)

	return &subscriptionFixture{
		service: NewSubscriptionService(repo, reconcile, m, log),
		repo:    repo,
	}
}

func createSubscription(t *testing.T, f *subscriptionFixture, tier string) *domain.Subscription {
	t.Helper()
	sub, err := f.service.CreateOrRenew(context.Background(), domain.SubscriptionRequest{
		OwnerID:  uuid.NewString(),
		PlanTier: tier,
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func TestCreateOrRenew_ThenCheckAccess(t *testing.T) {
	f := newSubscriptionFixture()
	sub := createSubscription(t, f, "annual")

	decision := f.service.CheckAccess(context.Background(), sub.OwnerID.String())

	assert.True(t, decision.HasAccess)
	assert.Equal(t, billing.Features(domain.PlanTierAnnual), decision.Features)
	assert.Equal(t, domain.Unlimited, decision.Features.MaxCustomers)
	assert.True(t, decision.Features.CustomBranding)
	assert.Equal(t, 365, decision.DaysRemaining)
}

func TestCreateOrRenew_RenewalKeepsSingleRecord(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()
	ownerID := uuid.NewString()

	for _, tier := range []string{"trial", "monthly"} {
		_, err := f.service.CreateOrRenew(ctx, domain.SubscriptionRequest{OwnerID: ownerID, PlanTier: tier})
		require.NoError(t, err)
	}

	all, err := f.repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.PlanTierMonthly, all[0].PlanTier)
}

func TestCreateOrRenew_InvalidInput(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()

	_, err := f.service.CreateOrRenew(ctx, domain.SubscriptionRequest{OwnerID: "not-a-uuid", PlanTier: "monthly"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.CreateOrRenew(ctx, domain.SubscriptionRequest{OwnerID: uuid.NewString(), PlanTier: "platinum"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheckAccess_UnknownOwnerFailsOpen(t *testing.T) {
	f := newSubscriptionFixture()

	decision := f.service.CheckAccess(context.Background(), uuid.NewString())

	assert.True(t, decision.HasAccess)
	assert.Equal(t, billing.Features(domain.PlanTierTrial), decision.Features)
	assert.Equal(t, 30, decision.DaysRemaining)
}

func TestCheckAccess_InvalidOwnerIDFailsOpen(t *testing.T) {
	f := newSubscriptionFixture()

	decision := f.service.CheckAccess(context.Background(), "not-a-uuid")

	assert.True(t, decision.HasAccess)
	assert.Equal(t, billing.Features(domain.PlanTierTrial), decision.Features)
}

// unavailableRepository имитирует недоступное хранилище на пути чтения
type unavailableRepository struct {
	*repository.InMemorySubscriptionRepository
}

func (unavailableRepository) FindCurrentByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.Subscription, error) {
	return nil, domain.ErrStoreUnavailable
}

func TestCheckAccess_StoreFailureFailsOpen(t *testing.T) {
	log := logger.New(logger.ERROR)
	repo := unavailableRepository{repository.NewInMemorySubscriptionRepository()}
	m := metrics.NewSubscriptionMetrics(prometheus.NewRegistry(), log)
	reconcile := NewReconcileService(repo, repository.NewInMemoryProcessedEventStore(), kafka.NoOpProducer{}, m, log)
	svc := NewSubscriptionService(repo, reconcile, m, log)

	decision := svc.CheckAccess(context.Background(), uuid.NewString())

	assert.True(t, decision.HasAccess)
	assert.Equal(t, billing.Features(domain.PlanTierTrial), decision.Features)
	assert.Equal(t, 30, decision.DaysRemaining)
}

func TestSetStatus(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()
	sub := createSubscription(t, f, "monthly")

	err := f.service.SetStatus(ctx, sub.ID.String(), domain.SubscriptionStatusCancelled)
	require.NoError(t, err)

	stored, err := f.repo.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)
}

func TestSetStatus_Errors(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()
	sub := createSubscription(t, f, "monthly")

	assert.ErrorIs(t, f.service.SetStatus(ctx, "not-a-uuid", domain.SubscriptionStatusActive), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.service.SetStatus(ctx, sub.ID.String(), domain.SubscriptionStatus("frozen")), domain.ErrInvalidInput)
	assert.ErrorIs(t, f.service.SetStatus(ctx, uuid.NewString(), domain.SubscriptionStatusActive), domain.ErrNotFound)
}

func TestListAll_StatusFilter(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()

	active := createSubscription(t, f, "monthly")
	cancelled := createSubscription(t, f, "annual")
	require.NoError(t, f.service.SetStatus(ctx, cancelled.ID.String(), domain.SubscriptionStatusCancelled))

	all, err := f.service.ListAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := f.service.ListAll(ctx, domain.SubscriptionStatusActive)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active.ID, onlyActive[0].ID)
}

func TestStats(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()

	createSubscription(t, f, "trial")
	createSubscription(t, f, "monthly")
	createSubscription(t, f, "annual")
	cancelled := createSubscription(t, f, "semiannual")
	require.NoError(t, f.service.SetStatus(ctx, cancelled.ID.String(), domain.SubscriptionStatusCancelled))

	stats, err := f.service.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Active)
	assert.Equal(t, 1, stats.Trial)
	assert.Equal(t, 3, stats.Paid)
	assert.InDelta(t, 2.99+19.99+9.99, stats.RevenueEstimate, 0.001)
	assert.InDelta(t, 25.0, stats.ChurnRate, 0.001)
}

func TestStats_Empty(t *testing.T) {
	f := newSubscriptionFixture()

	stats, err := f.service.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStats{}, stats)
}

func TestStats_CountsOnlyCurrentRecordPerOwner(t *testing.T) {
	f := newSubscriptionFixture()
	ctx := context.Background()
	ownerID := uuid.New()

	// История продлений: две строки одного владельца
	old := &domain.Subscription{
		OwnerID:  ownerID,
		PlanTier: domain.PlanTierMonthly,
		Status:   domain.SubscriptionStatusExpired,
	}
	require.NoError(t, f.repo.Insert(ctx, old))
	time.Sleep(5 * time.Millisecond)
	current := &domain.Subscription{
		OwnerID:  ownerID,
		PlanTier: domain.PlanTierAnnual,
		Status:   domain.SubscriptionStatusActive,
	}
	require.NoError(t, f.repo.Insert(ctx, current))

	stats, err := f.service.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.InDelta(t, 19.99, stats.RevenueEstimate, 0.001)
	assert.Equal(t, 0.0, stats.ChurnRate)
}
