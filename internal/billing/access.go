package billing

import (
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
)

// trialGraceDays срок действия триала по умолчанию для аккаунтов без записи
const trialGraceDays = 30

// Evaluate вычисляет право доступа по записи подписки на момент now.
//
// Отсутствие записи (sub == nil) трактуется как fail-open: аккаунт
// получает триальный набор возможностей на 30 дней. Проверка доступа
// не должна блокировать работу, когда запись не найдена или хранилище
// недоступно — подмену nil при ошибке чтения выполняет вызывающая сторона.
//
// Функция чистая и никогда не завершается ошибкой.
func Evaluate(sub *domain.Subscription, now time.Time) domain.Entitlement {
	if sub == nil {
		return domain.Entitlement{
			HasAccess:     true,
			Features:      Features(domain.PlanTierTrial),
			DaysRemaining: trialGraceDays,
		}
	}

	return domain.Entitlement{
		HasAccess:     sub.IsActive(now),
		Features:      Features(sub.PlanTier),
		DaysRemaining: daysRemaining(sub.PeriodEnd, now),
	}
}

// daysRemaining возвращает число полных и неполных дней до end,
// округляя вверх; прошедший период даёт 0.
func daysRemaining(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}

	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}
