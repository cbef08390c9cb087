package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaPublisher sends tick events keyed by simulation id, so one
// simulation's ticks stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a new Kafka producer
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = "arena"
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev TickEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Type == "" {
		ev.Type = TickCompleted
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal tick event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.SimulationID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(ev.Type)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send tick event: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
