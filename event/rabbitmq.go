package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"messenger-core/config"
)

const publishTimeout = 5 * time.Second

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *zap.Logger
}

var (
	_ Publisher  = (*RabbitMQ)(nil)
	_ Subscriber = (*RabbitMQ)(nil)
)

// NewRabbitMQ dials the broker and declares the outbound queue and the push queue.
func NewRabbitMQ(s config.RabbitMQSettings, log *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(s.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	log.Info("connection opened to RabbitMQ server")

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel: %w", err)
	}

	for _, name := range []string{s.Queue, s.PushQueue} {
		if _, err := ch.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare RabbitMQ queue %s: %w", name, err)
		}
		log.Info("declared RabbitMQ queue", zap.String("queue", name))
	}

	return &RabbitMQ{conn: conn, channel: ch, queue: s.Queue, log: log}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, action string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		"",      // exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now(),
			Headers:      amqp.Table{ActionHeader: action},
			Body:         data,
		},
	)
}

func (r *RabbitMQ) Subscribe(ctx context.Context, queue string, h Handler) error {
	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer on %s: %w", queue, err)
	}
	r.log.Info("subscribed to RabbitMQ queue", zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.handle(ctx, queue, msg, h)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, queue string, msg amqp.Delivery, h Handler) {
	action, ok := tableAction(msg.Headers)
	if !ok {
		r.log.Warn("message without action header dropped", zap.String("queue", queue))
		_ = msg.Ack(false)
		return
	}
	if err := h(ctx, Delivery{Action: action, Data: msg.Body}); err != nil {
		r.log.Warn("event handler failed", zap.String("queue", queue), zap.String("action", action), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func tableAction(headers amqp.Table) (string, bool) {
	action, ok := headers[ActionHeader].(string)
	return action, ok && action != ""
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}
