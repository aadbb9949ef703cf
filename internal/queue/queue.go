package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/garage-campaigns/internal/metrics"
)

// Handler processes one delivery. A non-nil error asks the queue to retry.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue is an in-process queue with bounded retry. Deliveries are
// at-least-once within the lifetime of the process.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	closed   bool

	MaxAttempts int
	Backoff     time.Duration

	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger zerolog.Logger, maxAttempts int, backoff time.Duration) *InMemoryQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers:    make(map[string][]Handler),
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue closed")
	}
	handlers := q.handlers[topic]
	if len(handlers) == 0 {
		q.mu.Unlock()
		return fmt.Errorf("no subscribers for topic %s", topic)
	}
	q.wg.Add(len(handlers))
	q.mu.Unlock()

	for _, handler := range handlers {
		go q.processJob(topic, handler, body)
	}
	return nil
}

// processJob handles retries and errors. A running handler is never cancelled;
// Close only abandons jobs waiting out a backoff.
func (q *InMemoryQueue) processJob(topic string, handler Handler, body []byte) {
	defer q.wg.Done()

	runCtx := context.WithoutCancel(q.ctx)
	for attempt := 1; attempt <= q.MaxAttempts; attempt++ {
		err := handler(runCtx, body)
		if err == nil {
			metrics.IncJobAttempt(topic, "ack")
			return
		}

		log := q.logger.Warn().Err(err).Str("topic", topic).Int("attempt", attempt).Int("max_attempts", q.MaxAttempts)
		if attempt == q.MaxAttempts {
			metrics.IncJobAttempt(topic, "dead")
			log.Msg("job permanently failed")
			return
		}
		metrics.IncJobAttempt(topic, "retry")
		log.Msg("job failed, retrying")

		// Linear backoff before retry
		select {
		case <-q.ctx.Done():
			q.logger.Warn().Str("topic", topic).Int("attempt", attempt).Msg("queue closed, abandoning retry")
			return
		case <-time.After(time.Duration(attempt) * q.Backoff):
		}
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every in-flight job has finished.
func (q *InMemoryQueue) Wait() { q.wg.Wait() }

// Close rejects new jobs, cancels pending retries and waits for running
// handlers to return.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
