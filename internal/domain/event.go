package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind канонический тип биллингового события
type EventKind string

const (
	EventSubscriptionActivated EventKind = "subscription_activated"
	EventInvoicePaid           EventKind = "invoice_paid"
	EventInvoiceFailed         EventKind = "invoice_failed"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
)

// IsValid проверяет, что тип события входит в перечисление
func (k EventKind) IsValid() bool {
	switch k {
	case EventSubscriptionActivated, EventInvoicePaid,
		EventInvoiceFailed, EventSubscriptionCancelled:
		return true
	}
	return false
}

// BillingEvent каноническое внутреннее представление уведомления
// от платёжной системы. Не сохраняется в хранилище — живёт только
// на время обработки одного уведомления.
type BillingEvent struct {
	Kind                   EventKind  `json:"kind"`
	OwnerID                uuid.UUID  `json:"owner_id"`
	PlanTier               PlanTier   `json:"plan_tier,omitempty"`
	BillingCustomerRef     string     `json:"billing_customer_ref,omitempty"`
	BillingSubscriptionRef string     `json:"billing_subscription_ref,omitempty"`
	// PeriodStart и PeriodEnd заполняются, когда платёжная система
	// сообщила границы оплаченного периода (invoice_paid)
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
	SourceEventID string     `json:"source_event_id"`
}
