package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/internal/service"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler обработчик административных операций с подписками
type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(service service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		log:     log,
	}
}

// CreateSubscription создает или продлевает подписку владельца
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	var req domain.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}

	sub, err := h.service.CreateOrRenew(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Errorw("Failed to create subscription", "error", err, "ownerID", req.OwnerID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// UpdateStatus меняет статус подписки
func (h *SubscriptionHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")

	var req domain.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}

	err := h.service.SetStatus(c.Request.Context(), id, domain.SubscriptionStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		default:
			h.log.Errorw("Failed to update subscription status", "error", err, "id", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscriptions возвращает подписки, опционально по статусу
func (h *SubscriptionHandler) GetSubscriptions(c *gin.Context) {
	statusFilter := domain.SubscriptionStatus(c.Query("status"))
	if statusFilter != "" && !statusFilter.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	subs, err := h.service.ListAll(c.Request.Context(), statusFilter)
	if err != nil {
		h.log.Errorw("Failed to list subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// GetStats возвращает агрегированную статистику по подпискам
func (h *SubscriptionHandler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.log.Errorw("Failed to compute subscription stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CheckAccess возвращает решение о праве доступа владельца.
// Никогда не отвечает ошибкой: все сбои поглощает fail-open.
func (h *SubscriptionHandler) CheckAccess(c *gin.Context) {
	ownerID := c.Param("ownerID")

	decision := h.service.CheckAccess(c.Request.Context(), ownerID)
	c.JSON(http.StatusOK, decision)
}
