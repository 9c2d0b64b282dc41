package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/suPer8Hu/picgen-bot/internal/common"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Handler is what the dispatcher runs for each command. *Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, cmd Command, r Replier) Outcome
}

// Dispatcher runs every command on its own goroutine.
type Dispatcher struct {
	handler Handler
	dedup   Deduper
	sem     *semaphore.Weighted
	logger  *zap.Logger

	wg sync.WaitGroup
}

// NewDispatcher bounds concurrent commands to maxInflight; zero means unbounded.
// dedup may be nil.
func NewDispatcher(h Handler, dedup Deduper, maxInflight int64, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{handler: h, dedup: dedup, logger: logger}
	if maxInflight > 0 {
		d.sem = semaphore.NewWeighted(maxInflight)
	}
	return d
}

// Dispatch starts cmd and returns without waiting for it. It blocks only while
// the in-flight limit is reached. It reports whether the command was started.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, r Replier) bool {
	if d.dedup != nil && cmd.UpdateID != "" {
		first, err := d.dedup.FirstSeen(ctx, cmd.UpdateID)
		if err != nil {
			d.logger.Warn("dedup check failed, processing anyway", zap.String("update_id", cmd.UpdateID), zap.Error(err))
		} else if !first {
			d.logger.Debug("duplicate update dropped", zap.String("update_id", cmd.UpdateID))
			return false
		}
	}

	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Warn("command dropped", zap.String("update_id", cmd.UpdateID), zap.Error(err))
			return false
		}
	}

	if cmd.RequestID == "" {
		rid, err := common.NewULID()
		if err != nil {
			d.logger.Warn("request id", zap.Error(err))
		}
		cmd.RequestID = rid
	}

	// the command outlives a webhook request's context
	runCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			defer d.sem.Release(1)
		}
		d.run(runCtx, cmd, r)
	}()
	return true
}

func (d *Dispatcher) run(ctx context.Context, cmd Command, r Replier) {
	logger := d.logger.With(zap.String("request_id", cmd.RequestID))
	defer func() {
		if p := recover(); p != nil {
			logger.Error("command panicked",
				zap.Error(fmt.Errorf("panic: %v", p)),
				zap.ByteString("stack", debug.Stack()),
			)
			if err := r.SendText(ctx, genericFailure); err != nil {
				logger.Error("send reply failed", zap.Error(err))
			}
		}
	}()

	out := d.handler.Handle(ctx, cmd, r)
	if out.State == Ignored {
		return
	}
	logger.Debug("command finished",
		zap.String("command", out.Command),
		zap.Stringer("state", out.State),
		zap.String("reason", string(out.Reason)),
	)
}

// Wait blocks until every dispatched command has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
