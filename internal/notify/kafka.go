package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"tracker-svr/internal/dispatcher"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka emite un evento por posición, con key = id interno del dispositivo para
// conservar el orden por dispositivo dentro de la partición.
type Kafka struct {
	writer messageWriter
}

func NewKafka(cfg KafkaConfig) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}}
}

func (k *Kafka) Close() error { return k.writer.Close() }

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Deliver(ctx context.Context, d dispatcher.Delivery) error {
	value, err := json.Marshal(NewEvent(d))
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(d.Position.DeviceID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "protocol", Value: []byte(d.Position.Protocol)},
			{Key: "outcome", Value: []byte(d.Outcome.String())},
		},
		Time: d.Position.Time,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write device %d: %w", d.Position.DeviceID, err)
	}
	return nil
}
