package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// ErrStale is returned when a newer load superseded this one.
var ErrStale = errors.New("history load superseded")

// Fetcher loads the history of one chat.
type Fetcher interface {
	ChatMessages(ctx context.Context, chatID string) ([]model.Message, error)
}

// Sink receives a chat's loaded history.
type Sink interface {
	ReplaceMessages(chatID string, msgs []model.Message)
}

// ReadReporter reports the last seen message once history is shown.
type ReadReporter interface {
	IsConnected() bool
	MarkRead(ctx context.Context, chatID string, messageID int64) error
}

// Loader fetches history for the selected chat. Each Load supersedes the
// previous one, so only the latest selection's response is applied.
type Loader struct {
	fetcher  Fetcher
	sink     Sink
	reporter ReadReporter
	logger   *zap.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// New creates a loader. reporter may be nil.
func New(fetcher Fetcher, sink Sink, reporter ReadReporter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{fetcher: fetcher, sink: sink, reporter: reporter, logger: logger}
}

// Load fetches chatID's history and hands it to the sink, unless another
// Load or Cancel happened meanwhile, in which case it returns ErrStale.
func (l *Loader) Load(ctx context.Context, chatID string) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	msgs, err := l.fetcher.ChatMessages(ctx, chatID)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		l.logger.Debug("discarding stale history", zap.String("chat_id", chatID))
		return ErrStale
	}
	l.cancel = nil
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("load history of %s: %w", chatID, err)
	}
	// Applied under l.mu so a newer Load cannot land first.
	l.sink.ReplaceMessages(chatID, msgs)
	l.mu.Unlock()

	if l.reporter == nil || !l.reporter.IsConnected() {
		return nil
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Confirmed() {
			if err := l.reporter.MarkRead(ctx, chatID, msgs[i].ID); err != nil {
				l.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Error(err))
			}
			break
		}
	}
	return nil
}

// Cancel invalidates any in-flight load.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
}
