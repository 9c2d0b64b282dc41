package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/picgen-bot/internal/genlog"
	"go.uber.org/zap"
)

const maxConcurrency = 50

// EventHandler processes one generation event. An error dead-letters it.
type EventHandler func(ctx context.Context, ev genlog.GenerationEvent) error

// Consumer reads generation events with a fixed pool of workers.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	deliveries  <-chan amqp.Delivery
	concurrency int
	logger      *zap.Logger
}

func NewConsumer(url, queue string, concurrency int, logger *zap.Logger) (*Consumer, error) {
	concurrency = clampConcurrency(concurrency)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	fail := func(err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := declareQueues(ch, queue); err != nil {
		return fail(err)
	}
	// never hold more unacked messages than there are workers
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fail(err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fail(err)
	}

	c := newConsumer(msgs, concurrency, logger)
	c.conn, c.ch = conn, ch
	return c, nil
}

func newConsumer(deliveries <-chan amqp.Delivery, concurrency int, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		deliveries:  deliveries,
		concurrency: clampConcurrency(concurrency),
		logger:      logger,
	}
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run feeds deliveries to the worker pool until ctx is cancelled or the
// broker closes the delivery channel. In-flight events finish before it returns.
func (c *Consumer) Run(ctx context.Context, handle EventHandler) error {
	jobs := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.process(ctx, workerID, d, handle)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("event consumer shutting down")
			return nil
		case d, ok := <-c.deliveries:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				// unacked, the broker redelivers it
				return nil
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, workerID int, d amqp.Delivery, handle EventHandler) {
	var ev genlog.GenerationEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil || ev.EntryID == 0 {
		c.logger.Warn("bad generation event", zap.Int("worker", workerID), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, ev); err != nil {
		c.logger.Warn("generation event failed",
			zap.Int("worker", workerID),
			zap.Uint64("entry_id", ev.EntryID),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("ack failed", zap.Int("worker", workerID), zap.Uint64("entry_id", ev.EntryID), zap.Error(err))
	}
}
