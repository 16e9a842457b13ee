package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Типы событий Stripe, которые сервис отображает на канонические
const (
	eventTypeSubscriptionCreated = "customer.subscription.created"
	eventTypeSubscriptionUpdated = "customer.subscription.updated"
	eventTypeSubscriptionDeleted = "customer.subscription.deleted"
	eventTypeInvoicePaid         = "invoice.payment_succeeded"
	eventTypeInvoiceFailed       = "invoice.payment_failed"
)

// WebhookEvent представляет событие от Stripe Webhook
type WebhookEvent struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// eventData вложенный объект события
type eventData struct {
	Object json.RawMessage `json:"object"`
}

// subscriptionObject данные объекта subscription в событии.
// Наш owner_id и тариф приходят в метаданных — их проставляет
// приложение при создании подписки на стороне Stripe.
type subscriptionObject struct {
	ID       string            `json:"id" validate:"required"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata" validate:"required"`
}

// invoiceObject данные объекта invoice в событии
type invoiceObject struct {
	ID           string `json:"id" validate:"required"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription" validate:"required"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
}

// Ingestor нормализует входящие уведомления Stripe в канонические
// биллинговые события. Проверка подписи выполняется до разбора тела.
type Ingestor struct {
	verifier *Verifier
	validate *validator.Validate
	log      *logger.Logger
}

// NewIngestor создает новый нормализатор уведомлений
func NewIngestor(verifier *Verifier, log *logger.Logger) *Ingestor {
	return &Ingestor{
		verifier: verifier,
		validate: validator.New(),
		log:      log,
	}
}

// Ingest проверяет подпись и превращает сырое уведомление в каноническое
// событие. Для намеренно игнорируемых типов возвращает (nil, nil) —
// уведомление подтверждается без дальнейшей обработки, чтобы платёжная
// система не повторяла доставку.
func (i *Ingestor) Ingest(payload []byte, sigHeader string, receivedAt time.Time) (*domain.BillingEvent, error) {
	if err := i.verifier.Verify(payload, sigHeader, receivedAt); err != nil {
		return nil, err
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			Description: "failed to parse webhook event",
		}
	}

	i.log.Infow("Received Stripe webhook event", "id", event.ID, "type", event.Type)

	// Метка времени из самого события, иначе — время получения
	occurredAt := receivedAt
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0)
	}

	switch event.Type {
	case eventTypeSubscriptionCreated, eventTypeSubscriptionUpdated:
		return i.subscriptionEvent(event, domain.EventSubscriptionActivated, occurredAt)
	case eventTypeSubscriptionDeleted:
		return i.subscriptionEvent(event, domain.EventSubscriptionCancelled, occurredAt)
	case eventTypeInvoicePaid:
		return i.invoiceEvent(event, domain.EventInvoicePaid, occurredAt)
	case eventTypeInvoiceFailed:
		return i.invoiceEvent(event, domain.EventInvoiceFailed, occurredAt)
	default:
		// Неизвестный тип — не ошибка: подтверждаем и не обрабатываем
		i.log.Infow("Ignored webhook event type", "type", event.Type)
		return nil, nil
	}
}

// unmarshalObject достает и валидирует data.object из события
func (i *Ingestor) unmarshalObject(event WebhookEvent, target interface{}) error {
	var data eventData
	if err := json.Unmarshal(event.Data, &data); err != nil || len(data.Object) == 0 {
		return &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			EventType:   event.Type,
			Description: "event data has no object",
		}
	}

	if err := json.Unmarshal(data.Object, target); err != nil {
		return &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			EventType:   event.Type,
			Description: "failed to parse event object",
		}
	}

	if err := i.validate.Struct(target); err != nil {
		return &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			EventType:   event.Type,
			Description: fmt.Sprintf("missing required fields: %v", err),
		}
	}

	return nil
}

// subscriptionEvent строит каноническое событие из объекта subscription
func (i *Ingestor) subscriptionEvent(event WebhookEvent, kind domain.EventKind, occurredAt time.Time) (*domain.BillingEvent, error) {
	var sub subscriptionObject
	if err := i.unmarshalObject(event, &sub); err != nil {
		return nil, err
	}

	ownerID, err := uuid.Parse(sub.Metadata["owner_id"])
	if err != nil {
		return nil, &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			EventType:   event.Type,
			Description: "owner_id missing or invalid in subscription metadata",
		}
	}

	tier := domain.PlanTier(sub.Metadata["plan_tier"])
	if kind == domain.EventSubscriptionActivated && !tier.IsValid() {
		return nil, &domain.IngestError{
			Reason:      domain.ErrPayloadMalformed,
			EventType:   event.Type,
			Description: "plan_tier missing or invalid in subscription metadata",
		}
	}

	return &domain.BillingEvent{
		Kind:                   kind,
		OwnerID:                ownerID,
		PlanTier:               tier,
		BillingCustomerRef:     sub.Customer,
		BillingSubscriptionRef: sub.ID,
		OccurredAt:             occurredAt,
		SourceEventID:          event.ID,
	}, nil
}

// invoiceEvent строит каноническое событие из объекта invoice.
// OwnerID в счетах не передаётся — движок находит подписку по
// BillingSubscriptionRef.
func (i *Ingestor) invoiceEvent(event WebhookEvent, kind domain.EventKind, occurredAt time.Time) (*domain.BillingEvent, error) {
	var inv invoiceObject
	if err := i.unmarshalObject(event, &inv); err != nil {
		return nil, err
	}

	be := &domain.BillingEvent{
		Kind:                   kind,
		BillingCustomerRef:     inv.Customer,
		BillingSubscriptionRef: inv.Subscription,
		OccurredAt:             occurredAt,
		SourceEventID:          event.ID,
	}

	// Границы оплаченного периода, если платёжная система их сообщила
	if kind == domain.EventInvoicePaid && inv.PeriodStart > 0 && inv.PeriodEnd > inv.PeriodStart {
		start := time.Unix(inv.PeriodStart, 0)
		end := time.Unix(inv.PeriodEnd, 0)
		be.PeriodStart = &start
		be.PeriodEnd = &end
	}

	return be, nil
}
