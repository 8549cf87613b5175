package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// DefaultInterval is the friend status polling period.
const DefaultInterval = 5 * time.Second

// StatusSource fetches friend statuses.
type StatusSource interface {
	FriendStatuses(ctx context.Context) (map[int64]model.Presence, error)
}

// Sink receives successful poll results.
type Sink interface {
	ApplyPresence(statuses map[int64]model.Presence)
}

// Poller polls friend presence on a fixed interval, independent of the push
// channel. A failed tick leaves statuses as they were.
type Poller struct {
	source   StatusSource
	sink     Sink
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller. A non-positive interval uses DefaultInterval.
func New(source StatusSource, sink Sink, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{source: source, sink: sink, interval: interval, logger: logger}
}

// Start runs one tick immediately, then one per interval until Stop or ctx
// is done. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.Tick(ctx)
		for {
			select {
			case <-ticker.C:
				p.Tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(p.done)
}

// Stop cancels the schedule and any in-flight request.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Tick performs one poll. It reports whether statuses were applied.
func (p *Poller) Tick(ctx context.Context) bool {
	statuses, err := p.source.FriendStatuses(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("friend status poll failed", zap.Error(err))
		}
		return false
	}
	p.sink.ApplyPresence(statuses)
	return true
}
