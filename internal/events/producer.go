// Package events publishes domain events to Kafka for downstream
// consumers (search indexers, push gateways). Publishing is
// fire-and-forget: a broker outage is logged, never surfaced to the
// request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TopicMessageCreated      = "chat.message.created"
	TopicMemberJoined        = "chat.member.joined"
	TopicNotificationCreated = "chat.notification.created"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any)
	Close() error
}

type kafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewKafkaPublisher(brokers []string, log *zap.SugaredLogger) Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &kafkaPublisher{writer: writer, log: log}
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic, key string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Warnw("marshal event", "topic", topic, "err", err)
		return
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("kafka publish", "topic", topic, "err", err)
	}
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop backs tests and deployments without brokers configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) {}
func (Nop) Close() error                                 { return nil }

// New picks the kafka publisher when brokers are configured, Nop
// otherwise.
func New(brokers []string, log *zap.SugaredLogger) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(brokers, log)
}
