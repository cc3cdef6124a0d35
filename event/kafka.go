package event

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"messenger-core/config"
)

type Kafka struct {
	writer  *kafka.Writer
	brokers []string
	groupID string
	log     *zap.Logger
}

var (
	_ Publisher  = (*Kafka)(nil)
	_ Subscriber = (*Kafka)(nil)
)

func NewKafka(s config.KafkaSettings, log *zap.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(s.Brokers...),
		Topic:                  s.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, brokers: s.Brokers, groupID: s.GroupID, log: log}
}

func (k *Kafka) Publish(ctx context.Context, action string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(action),
		Value:   data,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: ActionHeader, Value: []byte(action)}},
	})
}

func (k *Kafka) Subscribe(ctx context.Context, topic string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    topic,
		GroupID:  k.groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()
	k.log.Info("subscribed to kafka topic", zap.String("topic", topic))

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			k.log.Warn("kafka read error", zap.String("topic", topic), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		action, ok := headerAction(m.Headers)
		if !ok {
			k.log.Warn("message without action header dropped", zap.String("topic", topic))
			continue
		}
		if err := h(ctx, Delivery{Action: action, Data: m.Value}); err != nil {
			k.log.Warn("event handler failed", zap.String("topic", topic), zap.String("action", action), zap.Error(err))
		}
	}
}

func headerAction(headers []kafka.Header) (string, bool) {
	for _, hdr := range headers {
		if hdr.Key == ActionHeader && len(hdr.Value) > 0 {
			return string(hdr.Value), true
		}
	}
	return "", false
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
