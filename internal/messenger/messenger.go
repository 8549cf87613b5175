// Package messenger owns one chat session: it connects chat selection to
// history loading and push subscriptions, and exposes the real-time toggle.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/dispatch"
	"github.com/matheus3301/msgr/internal/history"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/reconcile"
	"github.com/matheus3301/msgr/internal/status"
	"github.com/matheus3301/msgr/internal/store"
)

// ErrUnknownChat is returned when opening a chat that is not loaded.
var ErrUnknownChat = errors.New("unknown chat")

// Transport is the push channel.
type Transport interface {
	Connect(enabled bool)
	Disconnect()
	IsConnected() bool
	SetUserID(id int64)
	SubscribeToChat(chatID string)
	UnsubscribeFromChat(chatID string)
	SendTyping(ctx context.Context, chatID string, isTyping bool) error
}

// HistoryLoader loads a chat's messages.
type HistoryLoader interface {
	Load(ctx context.Context, chatID string) error
	Cancel()
}

// Poller is a background presence poller.
type Poller interface {
	Start(ctx context.Context)
	Stop()
}

// Searcher searches cached messages.
type Searcher interface {
	SearchMessages(query, chatID string, limit int) ([]store.SearchResult, error)
}

// Checkpointer records the real-time setting across restarts.
type Checkpointer interface {
	SetRealtime(enabled bool) error
}

// Deps are the components a Messenger drives. Search and Checkpoints may be nil.
type Deps struct {
	Engine      *reconcile.Engine
	Transport   Transport
	History     HistoryLoader
	Poller      Poller
	Dispatcher  *dispatch.Dispatcher
	Search      Searcher
	Checkpoints Checkpointer
	Bus         *bus.Bus
	Logger      *zap.Logger
}

// Messenger is the session facade. Outbound operations are promoted from
// the embedded dispatcher.
type Messenger struct {
	*dispatch.Dispatcher

	engine      *reconcile.Engine
	transport   Transport
	history     HistoryLoader
	poller      Poller
	search      Searcher
	checkpoints Checkpointer
	bus         *bus.Bus
	logger      *zap.Logger

	mu       sync.Mutex
	realtime bool
	user     model.User
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a messenger.
func New(d Deps) *Messenger {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messenger{
		Dispatcher:  d.Dispatcher,
		engine:      d.Engine,
		transport:   d.Transport,
		history:     d.History,
		poller:      d.Poller,
		search:      d.Search,
		checkpoints: d.Checkpoints,
		bus:         d.Bus,
		logger:      logger,
	}
}

// Engine returns the state engine for read access.
func (m *Messenger) Engine() *reconcile.Engine {
	return m.engine
}

// SetUser sets the local identity used for placeholders and echo suppression.
func (m *Messenger) SetUser(u model.User) {
	m.mu.Lock()
	m.user = u
	m.mu.Unlock()
	m.Dispatcher.SetUser(u)
	m.transport.SetUserID(u.ID)
}

// User returns the local identity.
func (m *Messenger) User() model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Start starts the engine and the presence poller, and connects the push
// channel if realtime is set.
func (m *Messenger) Start(ctx context.Context, realtime bool) {
	m.engine.Start(ctx)
	m.poller.Start(ctx)

	wctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.realtime = realtime
	done := m.done
	m.mu.Unlock()

	ch, unsub := m.bus.Subscribe("transport.", 16)
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if sc, ok := evt.Payload.(status.StatusChange); ok && sc.To == status.Connected {
					m.subscribeAll()
				}
			case <-wctx.Done():
				return
			}
		}
	}()

	m.transport.Connect(realtime)
}

// Stop tears the session down. The transport goes first so its final status
// change still reaches the engine.
func (m *Messenger) Stop() {
	m.history.Cancel()
	m.transport.Disconnect()
	m.poller.Stop()

	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	m.engine.Stop()
}

func (m *Messenger) subscribeAll() {
	chats := m.engine.Chats()
	for _, c := range chats {
		m.transport.SubscribeToChat(c.ID)
	}
	m.logger.Debug("subscribed to all chats", zap.Int("count", len(chats)))
}

// Bootstrap loads friends, groups and chats, then reopens selected if it is
// still present.
func (m *Messenger) Bootstrap(ctx context.Context, selected string) error {
	err := m.Reload(ctx, true)
	if err != nil {
		m.logger.Warn("initial load incomplete", zap.Error(err))
	}
	if selected == "" {
		return err
	}
	if _, ok := m.engine.Chat(selected); !ok {
		return err
	}
	return errors.Join(err, m.Open(ctx, selected))
}

// Open selects a chat and loads its history. A load superseded by a later
// Open is not an error.
func (m *Messenger) Open(ctx context.Context, chatID string) error {
	prev := m.engine.Selected()
	if !m.engine.SelectChat(chatID) {
		return fmt.Errorf("open %s: %w", chatID, ErrUnknownChat)
	}
	if m.transport.IsConnected() {
		if prev != "" && prev != chatID {
			m.transport.UnsubscribeFromChat(prev)
		}
		m.transport.SubscribeToChat(chatID)
	}

	err := m.history.Load(ctx, chatID)
	if errors.Is(err, history.ErrStale) {
		m.logger.Debug("history load superseded", zap.String("chat_id", chatID))
		return nil
	}
	return err
}

// Close clears the selection and abandons any pending history load.
func (m *Messenger) Close() {
	m.history.Cancel()
	m.engine.ClearSelection()
}

// SetRealtime turns the push channel on or off and records the choice.
func (m *Messenger) SetRealtime(enabled bool) error {
	m.mu.Lock()
	m.realtime = enabled
	m.mu.Unlock()

	m.transport.Connect(enabled)
	if m.checkpoints == nil {
		return nil
	}
	if err := m.checkpoints.SetRealtime(enabled); err != nil {
		return fmt.Errorf("checkpoint realtime: %w", err)
	}
	return nil
}

// Realtime reports whether real-time is enabled.
func (m *Messenger) Realtime() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realtime
}

// Refresh reloads friends, groups and chats, and the open chat's history.
func (m *Messenger) Refresh(ctx context.Context) error {
	err := m.Reload(ctx, true)
	if sel := m.engine.Selected(); sel != "" {
		if herr := m.history.Load(ctx, sel); herr != nil && !errors.Is(herr, history.ErrStale) {
			err = errors.Join(err, herr)
		}
	}
	return err
}

// Typing signals whether the local user is typing in chatID.
func (m *Messenger) Typing(ctx context.Context, chatID string, isTyping bool) error {
	if _, ok := m.engine.Chat(chatID); !ok {
		return fmt.Errorf("typing in %s: %w", chatID, ErrUnknownChat)
	}
	return m.transport.SendTyping(ctx, chatID, isTyping)
}

// Search looks up cached messages. chatID limits the search to one chat.
func (m *Messenger) Search(query, chatID string, limit int) ([]store.SearchResult, error) {
	if m.search == nil {
		return nil, errors.New("search: no local cache")
	}
	return m.search.SearchMessages(query, chatID, limit)
}
