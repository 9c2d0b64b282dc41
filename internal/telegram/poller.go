package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller long-polls getUpdates and feeds every update to handle.
type Poller struct {
	source  UpdateSource
	handle  func(ctx context.Context, u Update) bool
	timeout time.Duration
	logger  *zap.Logger

	maxBackoff time.Duration
}

func NewPoller(src UpdateSource, handle func(ctx context.Context, u Update) bool, timeout time.Duration, logger *zap.Logger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{source: src, handle: handle, timeout: timeout, logger: logger, maxBackoff: 30 * time.Second}
}

// Run polls until ctx is cancelled. Failed polls are retried with backoff.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	backoff := min(time.Second, p.maxBackoff)

	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, p.maxBackoff)
			continue
		}
		backoff = min(time.Second, p.maxBackoff)

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.handle(ctx, u)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
