package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/log"
)

// Notification is the payload produced for the downstream push system.
type Notification struct {
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaNotifier produces chat notifications to a Kafka topic consumed by
// the push-notification system.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

// NewKafkaNotifier creates the producer and ensures the topic exists.
func NewKafkaNotifier(cfg config.KafkaConfig) (*KafkaNotifier, error) {
	if err := ensureTopic(cfg.Brokers, cfg.Topic, cfg.Partitions); err != nil {
		log.L().Warn().Err(err).Str("topic", cfg.Topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	n := &KafkaNotifier{
		producer: p,
		topic:    cfg.Topic,
		doneCh:   make(chan struct{}),
	}
	go n.deliveryReportHandler()
	return n, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}
	return nil
}

func (n *KafkaNotifier) deliveryReportHandler() {
	for e := range n.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.L().Error().Err(ev.TopicPartition.Error).Msg("notification delivery failed")
			}
		}
	}
	close(n.doneCh)
}

// Notify enqueues a notification for userID about roomID.
func (n *KafkaNotifier) Notify(ctx context.Context, userID, roomID string) error {
	value, err := json.Marshal(Notification{
		UserID:    userID,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Key by user so one user's notifications stay ordered.
	err = n.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &n.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(userID),
		Value: value,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to produce notification: %w", err)
	}
	return nil
}

// Close flushes pending notifications and shuts the producer down.
func (n *KafkaNotifier) Close() error {
	n.producer.Flush(5000)
	n.producer.Close()
	<-n.doneCh
	return nil
}
