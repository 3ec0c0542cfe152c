package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/metrics"
)

const DefaultTopic = "successful_payments"

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// KafkaPublisher sends settled grants to the successful-payments topic and
// waits for the broker's delivery report.
type KafkaPublisher struct {
	producer producer
	topic    string
	log      *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"client.id":          "creditsettle",
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return newKafkaPublisher(p, topic), nil
}

func newKafkaPublisher(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, log: logging.Component("kafka")}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev Settlement) error {
	if ev.Kind != KindSettled {
		return nil
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode settlement: %w", err)
	}

	delivery := make(chan kafka.Event, 1)

	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            []byte(ev.UserID),
		Value:          value,
		Headers:        []kafka.Header{{Key: "kind", Value: []byte(ev.Kind)}},
	}, delivery)
	if err != nil {
		metrics.SettlementEvents.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("produce settlement: %w", err)
	}

	select {
	case <-ctx.Done():
		metrics.SettlementEvents.WithLabelValues("kafka", "timeout").Inc()
		return fmt.Errorf("await delivery: %w", ctx.Err())
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			metrics.SettlementEvents.WithLabelValues("kafka", "error").Inc()
			return fmt.Errorf("unexpected delivery event %T", e)
		}
		if m.TopicPartition.Error != nil {
			metrics.SettlementEvents.WithLabelValues("kafka", "error").Inc()
			return fmt.Errorf("deliver settlement: %w", m.TopicPartition.Error)
		}
	}

	metrics.SettlementEvents.WithLabelValues("kafka", "delivered").Inc()
	k.log.Debug("settlement delivered", "transaction_id", ev.TransactionID, "topic", k.topic)

	return nil
}

// Close flushes pending messages for up to the context deadline.
func (k *KafkaPublisher) Close(ctx context.Context) error {
	timeoutMs := 5000
	if dl, ok := ctx.Deadline(); ok {
		if ms := int(time.Until(dl).Milliseconds()); ms > 0 {
			timeoutMs = ms
		}
	}

	left := k.producer.Flush(timeoutMs)
	k.producer.Close()

	if left > 0 {
		return fmt.Errorf("kafka close: %d message(s) not delivered", left)
	}
	return nil
}
