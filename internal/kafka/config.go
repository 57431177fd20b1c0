package kafka

import (
	"fmt"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/IBM/sarama"
)

// Драйверы продюсера
const (
	DriverSegmentio = "segmentio"
	DriverSarama    = "sarama"
)

// ProducerConfig настройки продюсера Sarama
type ProducerConfig struct {
	MaxMessageBytes  int
	Compression      sarama.CompressionCodec
	RequiredAcks     sarama.RequiredAcks
	FlushMaxMessages int
}

// NewProducerConfig значения по умолчанию
func NewProducerConfig() ProducerConfig {
	return ProducerConfig{
		MaxMessageBytes:  1000000,
		Compression:      sarama.CompressionSnappy,
		RequiredAcks:     sarama.WaitForAll,
		FlushMaxMessages: 100,
	}
}

// NewSaramaConfig создает конфигурацию Sarama для синхронного продюсера
func NewSaramaConfig(cfg ProducerConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = "settlement-service"

	saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Compression
	saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	saramaConfig.Producer.Flush.MaxMessages = cfg.FlushMaxMessages
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}

// NewProducer создает продюсер выбранного драйвера.
func NewProducer(driver string, brokers []string, log *logger.Logger) (Producer, error) {
	switch driver {
	case "", DriverSegmentio:
		return NewKafkaProducer(brokers, log)
	case DriverSarama:
		return NewSaramaProducer(brokers, log)
	default:
		return nil, fmt.Errorf("kafka: unknown producer driver %q", driver)
	}
}
