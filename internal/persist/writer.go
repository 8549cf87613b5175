package persist

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/reconcile"
	"github.com/matheus3301/msgr/internal/store"
)

// Writer mirrors engine state into the local cache.
// It reads "state." events losslessly and never calls back into the engine.
type Writer struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a cache writer.
func NewWriter(db *store.DB, b *bus.Bus, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{db: db, bus: b, logger: logger}
}

// Start subscribes to state events on the bus.
func (w *Writer) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	ch, unsub := w.bus.SubscribeLossless("state.", 256)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if err := w.handleEvent(evt); err != nil {
					w.logger.Error("cache write failed", zap.String("kind", evt.Kind), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the writer and waits for its goroutine.
func (w *Writer) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Writer) handleEvent(evt bus.Event) error {
	switch evt.Kind {
	case bus.StateChats:
		chats, ok := evt.Payload.([]model.Chat)
		if !ok {
			return nil
		}
		if err := w.db.ReplaceChats(chats); err != nil {
			return fmt.Errorf("replace chats: %w", err)
		}
	case bus.StateMessages:
		mc, ok := evt.Payload.(reconcile.MessagesChanged)
		if !ok {
			return nil
		}
		if err := w.db.ReplaceChatMessages(mc.ChatID, mc.Messages); err != nil {
			return fmt.Errorf("replace messages of %s: %w", mc.ChatID, err)
		}
	case bus.StateFriends:
		friends, ok := evt.Payload.([]model.Friend)
		if !ok {
			return nil
		}
		if err := w.db.ReplaceFriends(friends); err != nil {
			return fmt.Errorf("replace friends: %w", err)
		}
	case bus.StateGroups:
		groups, ok := evt.Payload.([]model.Group)
		if !ok {
			return nil
		}
		if err := w.db.ReplaceGroups(groups); err != nil {
			return fmt.Errorf("replace groups: %w", err)
		}
	case bus.StateSelection:
		sel, ok := evt.Payload.(reconcile.SelectionChanged)
		if !ok {
			return nil
		}
		if err := w.db.SetSyncState(KeySelectedChat, sel.ChatID); err != nil {
			return fmt.Errorf("checkpoint selection: %w", err)
		}
	}
	return nil
}
