package reconcile

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

// Options tunes the engine.
type Options struct {
	// TypingExpiry drops typing indicators not refreshed within this long.
	// Zero keeps them until an explicit typing=false.
	TypingExpiry time.Duration
}

// Engine is the single writer of the client's chat state. Every exported
// operation runs as one critical section and publishes the resulting
// "state." events after the state lock is released, in mutation order.
//
// State subscribers must not call back into the engine from their delivery
// goroutine while holding up a lossless subscription.
type Engine struct {
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	mu       sync.Mutex
	chats    []model.Chat
	messages map[string][]entry
	seq      uint64
	typing   map[string]map[int64]time.Time
	friends  []model.Friend
	groups   []model.Group
	selected string
	conn     status.State
	reads    map[string]int64

	// pubMu is taken before mu is released so publications keep the order
	// of the mutations that produced them.
	pubMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

type entry struct {
	msg model.Message
	seq uint64
}

// New creates an empty engine.
func New(b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		bus:      b,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		messages: make(map[string][]entry),
		typing:   make(map[string]map[int64]time.Time),
		reads:    make(map[string]int64),
		conn:     status.Disabled,
	}
}

// Start consumes push events and transport status changes from the bus, one
// at a time in arrival order.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	pushCh, unsubPush := e.bus.SubscribeLossless("push.", 256)
	statusCh, unsubStatus := e.bus.SubscribeLossless("transport.", 16)

	go func() {
		defer close(e.done)
		defer unsubStatus()
		defer unsubPush()

		var tick <-chan time.Time
		if e.opts.TypingExpiry > 0 {
			ticker := time.NewTicker(e.opts.TypingExpiry / 2)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case evt := <-pushCh:
				e.handleEvent(evt)
			case evt := <-statusCh:
				e.handleEvent(evt)
			case now := <-tick:
				e.ExpireTyping(now)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops consuming events and waits for the consumer to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.PushNewMessage:
		if msg, ok := evt.Payload.(model.Message); ok {
			e.ApplyInbound(msg)
		}
	case bus.PushTyping:
		if u, ok := evt.Payload.(model.TypingUpdate); ok {
			e.ApplyTyping(u)
		}
	case bus.PushMessageRead:
		if r, ok := evt.Payload.(model.ReadReceipt); ok {
			e.ApplyRead(r)
		}
	case bus.PushConnected:
		e.logger.Debug("push channel handshake received")
	case bus.TransportStatusChanged:
		if ch, ok := evt.Payload.(status.StatusChange); ok {
			e.SetConnection(ch.To)
		}
	}
}

// changes collects what a mutation touched.
type changes struct {
	chats      bool
	friends    bool
	groups     bool
	selection  bool
	connection bool
	messages   []string
	typing     []string
	read       *model.ReadReceipt
}

func (c *changes) touchMessages(chatID string) {
	if !slices.Contains(c.messages, chatID) {
		c.messages = append(c.messages, chatID)
	}
}

func (c *changes) touchTyping(chatID string) {
	if !slices.Contains(c.typing, chatID) {
		c.typing = append(c.typing, chatID)
	}
}

// commit must be called with e.mu held; it releases it.
func (e *Engine) commit(c *changes) {
	var events []bus.Event
	if c.chats {
		events = append(events, bus.NewEvent(bus.StateChats, e.chatsLocked()))
	}
	for _, id := range c.messages {
		events = append(events, bus.NewEvent(bus.StateMessages, MessagesChanged{ChatID: id, Messages: e.messagesLocked(id)}))
	}
	for _, id := range c.typing {
		events = append(events, bus.NewEvent(bus.StateTyping, TypingChanged{ChatID: id, UserIDs: e.typingLocked(id)}))
	}
	if c.friends {
		events = append(events, bus.NewEvent(bus.StateFriends, slices.Clone(e.friends)))
	}
	if c.groups {
		events = append(events, bus.NewEvent(bus.StateGroups, cloneGroups(e.groups)))
	}
	if c.selection {
		events = append(events, bus.NewEvent(bus.StateSelection, SelectionChanged{ChatID: e.selected}))
	}
	if c.connection {
		events = append(events, bus.NewEvent(bus.StateConnection, e.conn))
	}
	if c.read != nil {
		events = append(events, bus.NewEvent(bus.StateRead, *c.read))
	}

	if len(events) == 0 || e.bus == nil {
		e.mu.Unlock()
		return
	}
	e.pubMu.Lock()
	e.mu.Unlock()
	for _, evt := range events {
		e.bus.Publish(evt)
	}
	e.pubMu.Unlock()
}

// MessagesChanged is the payload of state.messages.
type MessagesChanged struct {
	ChatID   string          `json:"chatId"`
	Messages []model.Message `json:"messages"`
}

// TypingChanged is the payload of state.typing.
type TypingChanged struct {
	ChatID  string  `json:"chatId"`
	UserIDs []int64 `json:"userIds"`
}

// SelectionChanged is the payload of state.selection. An empty ChatID means
// nothing is selected.
type SelectionChanged struct {
	ChatID string `json:"chatId"`
}
