package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier уровень тарифного плана подписки
type PlanTier string

const (
	PlanTierTrial      PlanTier = "trial"
	PlanTierMonthly    PlanTier = "monthly"
	PlanTierSemiannual PlanTier = "semiannual"
	PlanTierAnnual     PlanTier = "annual"
)

// IsValid проверяет, что значение тарифа входит в перечисление
func (t PlanTier) IsValid() bool {
	switch t {
	case PlanTierTrial, PlanTierMonthly, PlanTierSemiannual, PlanTierAnnual:
		return true
	}
	return false
}

// IsPaid возвращает true для платных тарифов
func (t PlanTier) IsPaid() bool {
	return t.IsValid() && t != PlanTierTrial
}

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
)

// IsValid проверяет, что значение статуса входит в перечисление
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusExpired,
		SubscriptionStatusCancelled, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// Subscription представляет собой запись о подписке аккаунта.
// Для одного OwnerID в хранилище может существовать несколько строк
// (история продлений); авторитетной считается строка с самым поздним
// CreatedAt — её всегда выбирает репозиторий, а не хранилище.
type Subscription struct {
	ID                     uuid.UUID          `json:"id" db:"id"`
	OwnerID                uuid.UUID          `json:"owner_id" db:"owner_id"`
	PlanTier               PlanTier           `json:"plan_tier" db:"plan_tier"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	BillingCustomerRef     string             `json:"billing_customer_ref,omitempty" db:"billing_customer_ref"`
	BillingSubscriptionRef string             `json:"billing_subscription_ref,omitempty" db:"billing_subscription_ref"`
	PeriodStart            time.Time          `json:"period_start" db:"period_start"`
	PeriodEnd              time.Time          `json:"period_end" db:"period_end"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// IsActive возвращает true, если подписка активна в момент now
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.PeriodEnd.After(now)
}

// Unlimited обозначает отсутствие ограничения в FeatureSet.
// Ноль остаётся допустимым значением лимита.
const Unlimited = -1

// FeatureSet набор возможностей, доступных на тарифе
type FeatureSet struct {
	MaxCustomers      int  `json:"max_customers"`
	MaxBranches       int  `json:"max_branches"`
	AdvancedAnalytics bool `json:"advanced_analytics"`
	PrioritySupport   bool `json:"priority_support"`
	CustomBranding    bool `json:"custom_branding"`
	APIAccess         bool `json:"api_access"`
}

// Entitlement решение о праве доступа, вычисляемое по запросу
type Entitlement struct {
	HasAccess     bool       `json:"has_access"`
	Features      FeatureSet `json:"features"`
	DaysRemaining int        `json:"days_remaining"`
}

// SubscriptionStats агрегированная статистика по подпискам
type SubscriptionStats struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Trial           int     `json:"trial"`
	Paid            int     `json:"paid"`
	RevenueEstimate float64 `json:"revenue_estimate"`
	ChurnRate       float64 `json:"churn_rate"`
}

// SubscriptionRequest представляет запрос на создание или продление подписки
type SubscriptionRequest struct {
	OwnerID                string `json:"owner_id" binding:"required" validate:"required,uuid"`
	PlanTier               string `json:"plan_tier" binding:"required" validate:"required"`
	BillingCustomerRef     string `json:"billing_customer_ref,omitempty"`
	BillingSubscriptionRef string `json:"billing_subscription_ref,omitempty"`
}

// StatusUpdateRequest представляет запрос на смену статуса подписки
type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required" validate:"required"`
}
