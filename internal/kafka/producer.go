package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Топики событий расчетов
const (
	TopicSubscriptionActivated = "subscription_activated"
	TopicPaymentFailed         = "payment_failed"
)

// TopicFor выбирает топик по терминальному статусу платежа.
func TopicFor(status domain.PaymentStatus) string {
	if status == domain.PaymentStatusSucceeded {
		return TopicSubscriptionActivated
	}
	return TopicPaymentFailed
}

// Producer определяет интерфейс для публикации событий расчетов.
type Producer interface {
	// PublishSettlementEvent отправляет событие; ключ сообщения - UserID,
	// чтобы события одного пользователя шли в одну партицию.
	PublishSettlementEvent(ctx context.Context, topic string, event *domain.SettlementEvent) error
	Close() error
}

// kafkaProducer реализует Producer, используя segmentio/kafka-go.
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

	log.Infow("Kafka producer initialized", "brokers", brokers, "driver", DriverSegmentio)
	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishSettlementEvent сериализует событие в JSON и отправляет в топик.
func (k *kafkaProducer) PublishSettlementEvent(ctx context.Context, topic string, event *domain.SettlementEvent) error {
	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(event.UserID),
		Value: messageValue,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(topic)},
		},
		Time: time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "handle", event.Handle)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "handle", event.Handle)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Published settlement event", "topic", topic, "handle", event.Handle, "status", event.Status)
	return nil
}

// Close закрывает Kafka Writer.
func (k *kafkaProducer) Close() error {
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
