package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/IBM/sarama"
)

type saramaProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewSaramaProducer создает синхронный продюсер Sarama с ожиданием подтверждения всех реплик.
func NewSaramaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig(NewProducerConfig()))
	if err != nil {
		log.Errorw("Failed to create Sarama producer", "error", err, "brokers", brokers)
		return nil, fmt.Errorf("kafka: failed to create sarama producer: %w", err)
	}
	log.Infow("Kafka producer initialized", "brokers", brokers, "driver", DriverSarama)
	return newSaramaProducer(producer, log), nil
}

func newSaramaProducer(producer sarama.SyncProducer, log *logger.Logger) Producer {
	return &saramaProducer{producer: producer, log: log}
}

// PublishSettlementEvent публикует событие и ждет подтверждения брокера.
func (p *saramaProducer) PublishSettlementEvent(_ context.Context, topic string, event *domain.SettlementEvent) error {
	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal settlement event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.UserID),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(topic)},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Errorw("Failed to publish settlement event", "error", err, "topic", topic, "handle", event.Handle)
		return fmt.Errorf("kafka: failed to publish settlement event: %w", err)
	}

	p.log.Infow("Published settlement event", "topic", topic, "partition", partition, "offset", offset, "handle", event.Handle)
	return nil
}

func (p *saramaProducer) Close() error {
	return p.producer.Close()
}
