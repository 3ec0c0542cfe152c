package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/metrics"
)

type consumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	Close() error
}

// KafkaConsumer relays settlements written by other processes (API replicas,
// ledgerctl) from the successful-payments topic to a local publisher, usually
// the in-process Bus.
type KafkaConsumer struct {
	consumer consumer
	topic    string
	target   Publisher
	log      *slog.Logger
}

// NewKafkaConsumer joins groupID and subscribes to topic. Every process that
// keeps its own cache needs its own group so it sees every event.
func NewKafkaConsumer(brokers []string, topic, groupID string, target Publisher) (*KafkaConsumer, error) {
	if topic == "" {
		topic = DefaultTopic
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return newKafkaConsumer(c, topic, target)
}

func newKafkaConsumer(c consumer, topic string, target Publisher) (*KafkaConsumer, error) {
	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	k := &KafkaConsumer{consumer: c, topic: topic, target: target, log: logging.Component("kafka")}
	k.log.Info("subscribed to settlements", "topic", topic)

	return k, nil
}

// Run polls until ctx is done or the client reports a fatal error.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev := k.consumer.Poll(100)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			k.relay(ctx, e)
		case kafka.Error:
			k.log.Error("kafka consumer error", "error", e)
			if e.IsFatal() {
				return fmt.Errorf("kafka consumer: %w", e)
			}
		}
	}
}

func (k *KafkaConsumer) relay(ctx context.Context, m *kafka.Message) {
	var ev Settlement
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		metrics.SettlementEvents.WithLabelValues("kafka-in", "invalid").Inc()
		k.log.Warn("undecodable settlement skipped", "error", err, "offset", m.TopicPartition.Offset)
		return
	}
	if ev.Kind == "" {
		ev.Kind = KindSettled
	}

	if err := k.target.Publish(ctx, ev); err != nil {
		metrics.SettlementEvents.WithLabelValues("kafka-in", "error").Inc()
		k.log.Error("relay settlement", "error", err, "user_id", ev.UserID)
		return
	}
	metrics.SettlementEvents.WithLabelValues("kafka-in", "relayed").Inc()
}

func (k *KafkaConsumer) Close(context.Context) error {
	return k.consumer.Close()
}
