package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics топики, которые публикует сервис.
func RequiredTopics() []kafkaGo.TopicConfig {
	return []kafkaGo.TopicConfig{
		{Topic: TopicSubscriptionActivated, NumPartitions: 3, ReplicationFactor: 1},
		{Topic: TopicPaymentFailed, NumPartitions: 2, ReplicationFactor: 1},
	}
}

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka.
func EnsureKafkaTopics(ctx context.Context, brokers []string, log *logger.Logger) error {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if _, _, err := net.SplitHostPort(broker); err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialLeader(connCtx, "tcp", broker, "", 0)
	if err != nil {
		log.Errorw("Failed to connect to Kafka broker for topic creation", "broker", broker, "error", err)
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	missing := MissingTopics(RequiredTopics(), existing)
	if len(missing) == 0 {
		log.Infow("All required topics already exist")
		return nil
	}

	log.Infow("Creating Kafka topics", "topics", topicNames(missing))
	if err := conn.CreateTopics(missing...); err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		log.Errorw("Failed to create topics", "error", err, "topics", topicNames(missing))
		return fmt.Errorf("kafka create topics failed: %w", err)
	}
	return nil
}

// MissingTopics возвращает конфигурации топиков, которых нет в existing.
func MissingTopics(required []kafkaGo.TopicConfig, existing map[string]bool) []kafkaGo.TopicConfig {
	var missing []kafkaGo.TopicConfig
	for _, cfg := range required {
		if !existing[cfg.Topic] {
			missing = append(missing, cfg)
		}
	}
	return missing
}

func topicNames(configs []kafkaGo.TopicConfig) []string {
	names := make([]string, 0, len(configs))
	for _, tc := range configs {
		names = append(names, tc.Topic)
	}
	sort.Strings(names)
	return names
}
