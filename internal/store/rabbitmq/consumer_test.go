package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/picgen-bot/internal/genlog"
	"go.uber.org/goleak"
)

type ackRecorder struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *ackRecorder) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.nacked)
}

func delivery(t *testing.T, acks *ackRecorder, tag uint64, body any) amqp.Delivery {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: acks, DeliveryTag: tag, Body: raw}
}

func TestConsumer_AcksHandledAndDeadLettersFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	acks := &ackRecorder{}
	msgs := make(chan amqp.Delivery, 4)
	msgs <- delivery(t, acks, 1, genlog.GenerationEvent{EntryID: 1, Prompt: "ok"})
	msgs <- delivery(t, acks, 2, []byte("not json"))
	msgs <- delivery(t, acks, 3, genlog.GenerationEvent{EntryID: 3, Prompt: "boom"})
	msgs <- delivery(t, acks, 4, genlog.GenerationEvent{Prompt: "no id"})

	var mu sync.Mutex
	var seen []uint64
	handle := func(_ context.Context, ev genlog.GenerationEvent) error {
		mu.Lock()
		seen = append(seen, ev.EntryID)
		mu.Unlock()
		if ev.Prompt == "boom" {
			return errors.New("sink down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := newConsumer(msgs, 2, nil)
	go func() { done <- c.Run(ctx, handle) }()

	require.Eventually(t, func() bool {
		a, n := acks.counts()
		return a+n == 4
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	acked, nacked := acks.counts()
	assert.Equal(t, 1, acked)
	assert.Equal(t, 3, nacked)
	mu.Lock()
	assert.ElementsMatch(t, []uint64{1, 3}, seen)
	mu.Unlock()
}

func TestConsumer_ClosedDeliveriesEndRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	msgs := make(chan amqp.Delivery)
	close(msgs)
	c := newConsumer(msgs, 1, nil)
	err := c.Run(context.Background(), func(context.Context, genlog.GenerationEvent) error { return nil })
	assert.Error(t, err)
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 2, clampConcurrency(0))
	assert.Equal(t, 2, clampConcurrency(-3))
	assert.Equal(t, 7, clampConcurrency(7))
	assert.Equal(t, maxConcurrency, clampConcurrency(500))
}
