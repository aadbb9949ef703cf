package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/garage-campaigns/internal/metrics"
)

const attemptHeader = "x-attempt"

// AMQPQueue publishes and consumes jobs through RabbitMQ. A failed delivery is
// re-published with its attempt counter incremented; once MaxAttempts is
// reached the body is parked on "<topic>.dead".
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	pubMu     sync.Mutex
	declared  map[string]bool
	consumers []string

	MaxAttempts int

	// republish routes a failed delivery; it is q.publish outside tests.
	republish func(topic string, body []byte, attempt int) error

	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewAMQPQueue(url string, maxAttempts int, logger zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	// one unacked campaign at a time per consumer
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	q := &AMQPQueue{
		conn:        conn,
		ch:          ch,
		declared:    map[string]bool{},
		MaxAttempts: maxAttempts,
		logger:      logger,
	}
	q.republish = q.publish
	return q, nil
}

func (q *AMQPQueue) declare(name string) error {
	if q.declared[name] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	q.declared[name] = true
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}
	return q.publish(topic, body, 1)
}

func (q *AMQPQueue) publish(topic string, body []byte, attempt int) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{attemptHeader: int32(attempt)},
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	tag := topic + "-" + uuid.NewString()
	q.pubMu.Lock()
	err := q.declare(topic)
	if err == nil {
		q.consumers = append(q.consumers, tag)
	}
	q.pubMu.Unlock()
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		topic,
		tag,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range msgs {
			q.deliver(topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) deliver(topic string, d amqp.Delivery, handler Handler) {
	attempt := attemptFrom(d.Headers)
	// handlers run to completion even while Close is draining consumers
	err := handler(context.Background(), d.Body)
	if err == nil {
		metrics.IncJobAttempt(topic, "ack")
		_ = d.Ack(false)
		return
	}

	next, result := topic, "retry"
	if attempt >= q.MaxAttempts {
		next, result = topic+".dead", "dead"
	}
	if perr := q.republish(next, d.Body, attempt+1); perr != nil {
		q.logger.Error().Err(perr).Str("handler_error", err.Error()).Str("topic", next).Msg("failed to re-publish job, requeueing delivery")
		_ = d.Nack(false, true)
		return
	}
	metrics.IncJobAttempt(topic, result)
	q.logger.Warn().Err(err).
		Str("topic", topic).
		Int("attempt", attempt).
		Int("max_attempts", q.MaxAttempts).
		Str("routed_to", next).
		Msg("job failed")
	_ = d.Ack(false)
}

// attemptFrom reads the attempt counter; deliveries without one are first attempts.
func attemptFrom(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int:
		return v
	case int8:
		return int(v)
	default:
		return 1
	}
}

// Close stops consuming, waits for in-flight handlers to finish and settle
// their deliveries, then releases the connection.
func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	tags := q.consumers
	q.consumers = nil
	q.pubMu.Unlock()

	for _, tag := range tags {
		if err := q.ch.Cancel(tag, false); err != nil {
			q.logger.Warn().Err(err).Str("consumer", tag).Msg("failed to cancel consumer")
		}
	}
	q.wg.Wait()

	chErr := q.ch.Close()
	if err := q.conn.Close(); err != nil {
		return err
	}
	return chErr
}

var _ Queue = (*AMQPQueue)(nil)
