package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrSignatureInvalid не удалось проверить подпись уведомления
	ErrSignatureInvalid = errors.New("webhook signature verification failed")

	// ErrSignatureMissing в запросе отсутствует заголовок с подписью
	ErrSignatureMissing = errors.New("no signature")

	// ErrPayloadMalformed тело уведомления не разбирается или неполное
	ErrPayloadMalformed = errors.New("webhook payload malformed")

	// ErrStoreUnavailable хранилище записей недоступно
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrDuplicateEvent событие с таким source_event_id уже обработано
	ErrDuplicateEvent = errors.New("duplicate billing event")

	// ErrInternal внутренняя ошибка
	ErrInternal = errors.New("internal error")
)

// SubscriptionError представляет ошибку обработки подписки
type SubscriptionError struct {
	Code           string
	Message        string
	SubscriptionID string
	OriginalErr    error
}

// Error реализует интерфейс error
func (e *SubscriptionError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("subscription error [%s]: %s: %v (subscription_id: %s)", e.Code, e.Message, e.OriginalErr, e.SubscriptionID)
	}
	return fmt.Sprintf("subscription error [%s]: %s (subscription_id: %s)", e.Code, e.Message, e.SubscriptionID)
}

// Unwrap возвращает оригинальную ошибку
func (e *SubscriptionError) Unwrap() error {
	return e.OriginalErr
}

// NewSubscriptionError создает новую ошибку подписки
func NewSubscriptionError(code, message, subscriptionID string, err error) *SubscriptionError {
	return &SubscriptionError{
		Code:           code,
		Message:        message,
		SubscriptionID: subscriptionID,
		OriginalErr:    err,
	}
}

// IngestError представляет ошибку нормализации входящего уведомления
type IngestError struct {
	Reason      error
	EventType   string
	Description string
}

// Error реализует интерфейс error
func (e *IngestError) Error() string {
	if e.EventType != "" {
		return fmt.Sprintf("ingest error: %s (event type: %s): %v", e.Description, e.EventType, e.Reason)
	}
	return fmt.Sprintf("ingest error: %s: %v", e.Description, e.Reason)
}

// Unwrap возвращает причину ошибки для errors.Is
func (e *IngestError) Unwrap() error {
	return e.Reason
}
