package billing

import (
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
)

// Длительность биллингового периода по тарифам
const (
	trialPeriodDays      = 30
	monthlyPeriodDays    = 30
	semiannualPeriodDays = 180
	annualPeriodDays     = 365
)

// periodDays статическая таблица длительностей периодов.
// Единственный источник истины для расчёта границ периода.
var periodDays = map[domain.PlanTier]int{
	domain.PlanTierTrial:      trialPeriodDays,
	domain.PlanTierMonthly:    monthlyPeriodDays,
	domain.PlanTierSemiannual: semiannualPeriodDays,
	domain.PlanTierAnnual:     annualPeriodDays,
}

// tierPrices фиксированная таблица цен за период по тарифам.
// Используется только для оценки выручки в статистике.
var tierPrices = map[domain.PlanTier]float64{
	domain.PlanTierTrial:      0,
	domain.PlanTierMonthly:    2.99,
	domain.PlanTierSemiannual: 9.99,
	domain.PlanTierAnnual:     19.99,
}

// PeriodDuration возвращает длительность биллингового периода для тарифа.
// Для неизвестного тарифа возвращает безопасные 30 дней — функция
// никогда не завершается ошибкой.
func PeriodDuration(tier domain.PlanTier) time.Duration {
	days, ok := periodDays[tier]
	if !ok {
		days = trialPeriodDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// TierPrice возвращает цену тарифа за период. Неизвестный тариф стоит 0.
func TierPrice(tier domain.PlanTier) float64 {
	return tierPrices[tier]
}

// Features возвращает набор возможностей для тарифа.
// Триал получает жёсткие лимиты, любой платный тариф — безлимит;
// брендинг и API открываются начиная с полугодового тарифа.
func Features(tier domain.PlanTier) domain.FeatureSet {
	if !tier.IsPaid() {
		return domain.FeatureSet{
			MaxCustomers: 100,
			MaxBranches:  1,
		}
	}

	return domain.FeatureSet{
		MaxCustomers:      domain.Unlimited,
		MaxBranches:       domain.Unlimited,
		AdvancedAnalytics: true,
		PrioritySupport:   true,
		CustomBranding:    tier != domain.PlanTierMonthly,
		APIAccess:         tier != domain.PlanTierMonthly,
	}
}
