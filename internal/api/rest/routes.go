package rest

import (
	"github.com/Dhoini/Subscription-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Subscription-microservice/internal/api/rest/middleware"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(
	webhookHandler *handlers.WebhookHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
	registry *prometheus.Registry,
	log *logger.Logger,
) *gin.Engine {
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.HealthCheck)

	// Prometheus метрики
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		// Вебхуки платёжной системы
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
			webhooks.OPTIONS("/stripe", webhookHandler.HandlePreflight)
		}

		// Подписки
		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.GET("", subscriptionHandler.GetSubscriptions)
			subscriptions.POST("", subscriptionHandler.CreateSubscription)
			subscriptions.GET("/stats", subscriptionHandler.GetStats)
			subscriptions.PATCH("/:id/status", subscriptionHandler.UpdateStatus)
		}

		// Проверка права доступа
		v1.GET("/access/:ownerID", subscriptionHandler.CheckAccess)
	}

	return r
}
