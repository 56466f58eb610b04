package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

const kafkaWriteTimeout = 10 * time.Second

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes transitions keyed by alarm id, so every transition of
// one alarm lands on the same partition in order.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic cannot be empty")
	}

	brokers := strings.Split(cfg.Brokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: kafkaWriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.WithFields(map[string]interface{}{
		"brokers": brokers,
		"topic":   cfg.Topic,
	}).Info("Kafka notifier configured")

	return NewKafkaNotifierWithWriter(writer, cfg.Topic), nil
}

func NewKafkaNotifierWithWriter(writer MessageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, alarm *models.Alarm, previous, state models.AlarmState, reason string) error {
	notification := NewNotification(alarm, previous, state, reason)

	payload, err := json.Marshal(notification)
	if err != nil {
		return sinkError("kafka", alarm.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(alarm.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "notification_id", Value: []byte(notification.NotificationID)},
			{Key: "state", Value: []byte(state)},
		},
		Time: notification.Timestamp,
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return sinkError("kafka", alarm.ID, err)
	}

	return nil
}

func (n *KafkaNotifier) Close() error {
	logger.Infof("Closing Kafka notifier for topic %s", n.topic)
	return n.writer.Close()
}
