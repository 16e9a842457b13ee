package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/internal/integration/stripe"
	"github.com/Dhoini/Subscription-microservice/internal/service"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/gin-gonic/gin"
)

// WebhookHandler обработчик для вебхуков платёжной системы
type WebhookHandler struct {
	ingestor  *stripe.Ingestor
	reconcile service.ReconcileService
	log       *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(ingestor *stripe.Ingestor, reconcile service.ReconcileService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor:  ingestor,
		reconcile: reconcile,
		log:       log,
	}
}

// HandleStripeWebhook обрабатывает вебхуки от Stripe.
// Любой отказ отдаётся 400-м кодом: платёжная система повторит доставку.
// Успех, включая намеренные no-op и пропуски, подтверждается
// ответом {"received": true}.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Errorw("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read webhook body"})
		return
	}

	sigHeader := c.GetHeader(stripe.SignatureHeader)

	event, err := h.ingestor.Ingest(body, sigHeader, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignatureMissing):
			h.log.Warnw("Webhook without signature rejected", "remote", c.ClientIP())
			c.JSON(http.StatusBadRequest, gin.H{"error": "no signature"})
		case errors.Is(err, domain.ErrSignatureInvalid):
			h.log.Warnw("Webhook signature verification failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		case errors.Is(err, domain.ErrPayloadMalformed):
			h.log.Warnw("Malformed webhook payload rejected", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Errorw("Failed to ingest webhook", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	// Намеренно игнорируемый тип события: подтверждаем без обработки
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result, err := h.reconcile.Apply(c.Request.Context(), event)
	if err != nil {
		// Отказ записи не заглатываем: отклоняем доставку,
		// чтобы платёжная система повторила её
		h.log.Errorw("Failed to apply billing event", "error", err,
			"kind", event.Kind, "sourceEventID", event.SourceEventID)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.log.Debugw("Webhook processed", "kind", event.Kind, "outcome", result.Outcome)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// HandlePreflight отвечает на CORS preflight перед POST вебхука
func (h *WebhookHandler) HandlePreflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
