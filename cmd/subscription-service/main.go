package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/Subscription-microservice/config"
	"github.com/Dhoini/Subscription-microservice/internal/api/rest"
	"github.com/Dhoini/Subscription-microservice/internal/api/rest/handlers"
	"github.com/Dhoini/Subscription-microservice/internal/db"
	"github.com/Dhoini/Subscription-microservice/internal/integration/stripe"
	"github.com/Dhoini/Subscription-microservice/internal/kafka"
	"github.com/Dhoini/Subscription-microservice/internal/metrics"
	"github.com/Dhoini/Subscription-microservice/internal/repository"
	"github.com/Dhoini/Subscription-microservice/internal/service"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		// Логгер ещё не создан
		panic("failed to load configuration: " + err.Error())
	}

	// Инициализируем логгер
	log := logger.New(logger.ParseLevel(cfg.Logging.Level))
	log.Infow("Subscription microservice starting up...")

	if cfg.Stripe.WebhookSecret == "" {
		log.Warnw("Stripe webhook secret is not set, signature verification will reject all webhooks")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключаемся к базе данных
	dbClient, err := db.NewDBClient(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Errorw("Error closing database connection", "error", err)
		}
	}()
	log.Infow("Database connection established")

	// Инициализируем Redis кеш
	redisCache, err := repository.NewRedisCacheRepository(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		log,
	)
	if err != nil {
		// Не фатально, но предупреждаем
		log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		redisCache = nil
	} else {
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Errorw("Error closing Redis connection", "error", err)
			}
		}()
	}

	// Инициализируем базовый репозиторий
	baseRepo := repository.NewPostgresSubscriptionRepository(dbClient.DB(), log)

	// Создаем репозиторий с кешированием, если Redis доступен
	var subscriptionRepo repository.SubscriptionRepository
	var eventStore repository.ProcessedEventStore
	if redisCache != nil {
		subscriptionRepo = repository.NewCachedSubscriptionRepository(baseRepo, redisCache, log)
		eventStore = redisCache
		log.Infow("Using cached subscription repository")
	} else {
		subscriptionRepo = baseRepo
		eventStore = repository.NewInMemoryProcessedEventStore()
		log.Infow("Using non-cached subscription repository with in-memory event dedup")
	}

	// Инициализируем Kafka Producer
	var producer kafka.Producer
	producer, err = kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		producer = kafka.NoOpProducer{}
	} else {
		defer func() {
			if err := producer.Close(); err != nil {
				log.Errorw("Error closing Kafka producer", "error", err)
			}
		}()
	}

	// Метрики Prometheus
	registry := prometheus.NewRegistry()
	subscriptionMetrics := metrics.NewSubscriptionMetrics(registry, log)

	// Собираем сервисы
	reconcileService := service.NewReconcileService(subscriptionRepo, eventStore, producer, subscriptionMetrics, log)
	subscriptionService := service.NewSubscriptionService(subscriptionRepo, reconcileService, subscriptionMetrics, log)

	// Нормализатор вебхуков Stripe
	verifier := stripe.NewVerifier(cfg.Stripe.WebhookSecret, log)
	ingestor := stripe.NewIngestor(verifier, log)

	// Обработчики HTTP
	webhookHandler := handlers.NewWebhookHandler(ingestor, reconcileService, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, log)

	// Маршрутизатор и сервер
	router := rest.SetupRouter(webhookHandler, subscriptionHandler, registry, log)
	server := rest.NewServer(router, cfg, log)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("Server failed", "error", err)
		}
	}()
	log.Infow("Subscription microservice started", "port", cfg.Server.Port)

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server shutdown failed", "error", err)
	}

	log.Infow("Subscription microservice stopped")
}
