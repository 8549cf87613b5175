package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/model"
)

// ErrNotFound is returned when a retry or discard names no pending message.
var ErrNotFound = errors.New("pending message not found")

// Backend is the write side of the backend API.
type Backend interface {
	SendMessage(ctx context.Context, chatID, content string) (model.Message, error)
	CreateDirectChat(ctx context.Context, participantID int64) (model.Chat, error)
	CreateGroup(ctx context.Context, name string, members []int64) (model.Group, error)
	ListChats(ctx context.Context) ([]model.Chat, error)
	ListFriends(ctx context.Context) ([]model.Friend, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	SendFriendRequest(ctx context.Context, userID int64) error
	ListFriendRequests(ctx context.Context) ([]model.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, requestID int64) error
	RejectFriendRequest(ctx context.Context, requestID int64) error
	Unfriend(ctx context.Context, friendID int64) error
}

// State is the engine surface the dispatcher feeds.
type State interface {
	ApplyOptimisticSend(placeholder model.Message, insert bool)
	ConfirmSend(clientID string, confirmed model.Message)
	FailSend(placeholder model.Message)
	RetryPending(clientID string) (model.Message, bool)
	DiscardPending(clientID string) bool
	FindDirectChat(friendID int64) (model.Chat, bool)
	AddChat(chat model.Chat) bool
	AddGroup(g model.Group)
	ReplaceChats(chats []model.Chat)
	ReplaceFriends(friends []model.Friend)
	ReplaceGroups(groups []model.Group)
	RemoveFriend(friendID int64)
}

// Connectivity tells whether the push channel will deliver our own sends.
type Connectivity interface {
	IsConnected() bool
}

// Journal records sends so they survive a restart. Optional.
type Journal interface {
	QueueOutbox(clientID, chatID, content string) error
	MarkOutboxSent(clientID string, serverMsgID int64) error
	MarkOutboxFailed(clientID, errMsg string) error
	DeleteOutbox(clientID string) error
}

// SendFailed is the payload of outbound.send_failed.
type SendFailed struct {
	ClientID string `json:"clientId"`
	ChatID   string `json:"chatId"`
	Err      string `json:"error"`
}

// SendAck is the payload of outbound.send_ack.
type SendAck struct {
	ClientID string        `json:"clientId"`
	Message  model.Message `json:"message"`
}

// Dispatcher performs user-initiated writes and feeds results to the engine.
// Nothing is retried automatically and optimistic previews are not rolled
// back on failure.
type Dispatcher struct {
	backend Backend
	state   State
	conn    Connectivity
	journal Journal
	bus     *bus.Bus
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.RWMutex
	user model.User
}

// New creates a dispatcher. journal may be nil.
func New(be Backend, state State, conn Connectivity, journal Journal, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		backend: be,
		state:   state,
		conn:    conn,
		journal: journal,
		bus:     b,
		logger:  logger,
		now:     time.Now,
	}
}

// SetUser sets the local identity stamped on placeholders.
func (d *Dispatcher) SetUser(u model.User) {
	d.mu.Lock()
	d.user = u
	d.mu.Unlock()
}

func (d *Dispatcher) self() model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.user
}

// SendMessage sends content to chatID. While the push channel is down the
// placeholder is shown at once; otherwise only the preview moves until the
// backend confirms. On failure the placeholder is kept as failed and the
// returned message carries its client id for RetryMessage.
func (d *Dispatcher) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	if chatID == "" || strings.TrimSpace(content) == "" {
		return model.Message{}, fmt.Errorf("send message: %w: missing chatId or content", backend.ErrValidation)
	}
	u := d.self()
	ph := model.Message{
		ClientID:   uuid.NewString(),
		ChatID:     chatID,
		SenderID:   u.ID,
		SenderName: u.FullName,
		Content:    content,
		Timestamp:  d.now().UTC(),
		Status:     model.StatusSending,
	}
	d.state.ApplyOptimisticSend(ph, !d.conn.IsConnected())
	d.journalQueue(ph)
	return d.deliver(ctx, ph)
}

// RetryMessage resends a failed message.
func (d *Dispatcher) RetryMessage(ctx context.Context, clientID string) (model.Message, error) {
	ph, ok := d.state.RetryPending(clientID)
	if !ok {
		return model.Message{}, fmt.Errorf("retry %s: %w", clientID, ErrNotFound)
	}
	d.journalQueue(ph)
	return d.deliver(ctx, ph)
}

// DiscardMessage drops a failed or pending message.
func (d *Dispatcher) DiscardMessage(clientID string) error {
	if !d.state.DiscardPending(clientID) {
		return fmt.Errorf("discard %s: %w", clientID, ErrNotFound)
	}
	if d.journal != nil {
		if err := d.journal.DeleteOutbox(clientID); err != nil {
			d.logger.Warn("outbox delete failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, ph model.Message) (model.Message, error) {
	confirmed, err := d.backend.SendMessage(ctx, ph.ChatID, ph.Content)
	if err != nil {
		d.logger.Warn("send failed",
			zap.String("client_id", ph.ClientID),
			zap.String("chat_id", ph.ChatID),
			zap.Error(err),
		)
		d.state.FailSend(ph)
		if d.journal != nil {
			if jerr := d.journal.MarkOutboxFailed(ph.ClientID, err.Error()); jerr != nil {
				d.logger.Warn("outbox update failed", zap.String("client_id", ph.ClientID), zap.Error(jerr))
			}
		}
		d.publish(bus.OutboundSendFailed, SendFailed{ClientID: ph.ClientID, ChatID: ph.ChatID, Err: err.Error()})
		ph.Status = model.StatusFailed
		return ph, err
	}

	if confirmed.ChatID == "" {
		confirmed.ChatID = ph.ChatID
	}
	d.state.ConfirmSend(ph.ClientID, confirmed)
	if d.journal != nil {
		if err := d.journal.MarkOutboxSent(ph.ClientID, confirmed.ID); err != nil {
			d.logger.Warn("outbox update failed", zap.String("client_id", ph.ClientID), zap.Error(err))
		}
	}
	confirmed.ClientID = ph.ClientID
	confirmed.Status = model.StatusSent
	d.publish(bus.OutboundSendAck, SendAck{ClientID: ph.ClientID, Message: confirmed})
	d.logger.Debug("message sent", zap.String("client_id", ph.ClientID), zap.Int64("message_id", confirmed.ID))
	return confirmed, nil
}

func (d *Dispatcher) journalQueue(ph model.Message) {
	if d.journal == nil {
		return
	}
	if err := d.journal.QueueOutbox(ph.ClientID, ph.ChatID, ph.Content); err != nil {
		d.logger.Warn("outbox queue failed", zap.String("client_id", ph.ClientID), zap.Error(err))
	}
}

func (d *Dispatcher) publish(kind string, payload any) {
	if d.bus != nil {
		d.bus.Publish(bus.NewEvent(kind, payload))
	}
}
