package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/rs/zerolog/log"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

type (
	// producer is the part of *kafka.Producer the sink uses
	producer interface {
		Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	}

	KafkaSink struct {
		p     producer
		topic string
	}
)

// NewKafkaProducer creates a producer for server, e.g. "kafka:9092"
func NewKafkaProducer(server, clientID string) (*kafka.Producer, error) {
	// https://github.com/edenhill/librdkafka/blob/master/CONFIGURATION.md
	return kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":     server,
		"client.id":             clientID,
		"broker.address.family": "v4",
	})
}

// LogDeliveries reports failed deliveries until events is closed
func LogDeliveries(events chan kafka.Event) {
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				log.Error().Err(ev.TopicPartition.Error).Str("partition", ev.TopicPartition.String()).Msg("delivery failed")
			}
		case kafka.Error:
			log.Error().Err(ev).Msg("producer error")
		}
	}
}

func NewKafkaSink(p producer, topic string) *KafkaSink {
	return &KafkaSink{p: p, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

// Send produces evt keyed by zone so all transitions of a zone stay in one partition
func (s *KafkaSink) Send(ctx context.Context, evt *internal.GeofenceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	err = s.p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(evt.Zone),
		Value: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}
