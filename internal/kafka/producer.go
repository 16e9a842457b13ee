package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/Subscription-microservice/internal/domain"
	"github.com/Dhoini/Subscription-microservice/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Топики жизненного цикла подписки для downstream-консьюмеров
const (
	TopicSubscriptionActivated = "subscription.activated"
	TopicSubscriptionRenewed   = "subscription.renewed"
	TopicSubscriptionPastDue   = "subscription.past_due"
	TopicSubscriptionCancelled = "subscription.cancelled"
)

// Producer определяет интерфейс для публикации событий подписок в Kafka.
type Producer interface {
	// PublishSubscriptionEvent отправляет событие жизненного цикла подписки.
	// Ключ сообщения — OwnerID: все события одного владельца попадают
	// в одну партицию и сохраняют порядок.
	PublishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishSubscriptionEvent преобразует подписку в JSON и отправляет в топик.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) error {
	messageKey := []byte(sub.OwnerID.String())

	messageValue, err := json.Marshal(sub)
	if err != nil {
		k.log.Errorw("Failed to marshal subscription for Kafka", "error", err, "id", sub.ID, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   messageKey,
		Value: messageValue,
		Time:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "id", sub.ID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Subscription event published", "topic", topic, "id", sub.ID, "ownerID", sub.OwnerID)
	return nil
}

// Close закрывает Kafka writer.
func (k *kafkaProducer) Close() error {
	return k.writer.Close()
}

// NoOpProducer заглушка продюсера: используется, когда Kafka не настроена,
// и в тестах.
type NoOpProducer struct{}

// PublishSubscriptionEvent ничего не делает
func (NoOpProducer) PublishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) error {
	return nil
}

// Close ничего не делает
func (NoOpProducer) Close() error { return nil }
