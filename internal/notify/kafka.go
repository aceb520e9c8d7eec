package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes notifications to a topic keyed by ticket id.
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender builds a producer for the given brokers and topic.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (s *KafkaSender) Name() string { return ChannelKafka }

func (s *KafkaSender) Send(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.TicketID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "tenant_id", Value: []byte(n.TenantID)},
			{Key: "trigger", Value: []byte(n.Trigger)},
		},
	})
}

// Close flushes and closes the producer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}
