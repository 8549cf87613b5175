package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

// DefaultRetryDelay is the fixed wait between reconnect attempts.
const DefaultRetryDelay = 3 * time.Second

// TokenSource supplies the current bearer token.
type TokenSource interface {
	Token() string
}

// Signaler posts typing and read signals to the backend.
type Signaler interface {
	SendTyping(ctx context.Context, chatID string, isTyping bool) error
	MarkRead(ctx context.Context, chatID string, messageID int64) error
}

// Config holds the push channel settings.
type Config struct {
	StreamURL  string
	RetryDelay time.Duration
	// UserID is the local user; new messages from it are not published.
	UserID int64
}

// Client owns the single push connection of a session. It drives the status
// machine and publishes decoded events on the bus under "push.".
type Client struct {
	cfg      Config
	tokens   TokenSource
	signaler Signaler
	http     *http.Client
	bus      *bus.Bus
	machine  *status.Machine
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	subs   map[string]struct{}
}

// New creates a transport client. signaler may be nil, in which case typing
// and read signals are only looped back locally.
func New(cfg Config, tokens TokenSource, signaler Signaler, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:      cfg,
		tokens:   tokens,
		signaler: signaler,
		http:     &http.Client{},
		bus:      b,
		machine:  machine,
		logger:   logger,
		subs:     make(map[string]struct{}),
	}
}

// SetUserID updates the local user used for echo suppression.
func (c *Client) SetUserID(id int64) {
	c.mu.Lock()
	c.cfg.UserID = id
	c.mu.Unlock()
}

// Connect opens the push channel when enabled is true; false is Disconnect.
// Calling it while a connection loop is already running is a no-op.
func (c *Client) Connect(enabled bool) {
	if !enabled {
		c.Disconnect()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Disconnect stops the connection loop, cancelling any in-flight stream and
// pending retry, and moves the status to disabled.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.transition(status.Disabled)
}

// IsConnected reports whether the push stream is open.
func (c *Client) IsConnected() bool {
	return c.machine.IsConnected()
}

// SubscribeToChat records interest in a chat. The stream already carries
// every chat of the user, so this is local bookkeeping only.
func (c *Client) SubscribeToChat(chatID string) {
	c.mu.Lock()
	c.subs[chatID] = struct{}{}
	c.mu.Unlock()
}

// UnsubscribeFromChat drops interest in a chat.
func (c *Client) UnsubscribeFromChat(chatID string) {
	c.mu.Lock()
	delete(c.subs, chatID)
	c.mu.Unlock()
}

// Subscriptions returns the subscribed chat ids, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	c.mu.Unlock()
	slices.Sort(out)
	return out
}

// SendTyping reports the local typing state and loops it back as a
// typing_update from the local user.
func (c *Client) SendTyping(ctx context.Context, chatID string, isTyping bool) error {
	var err error
	if c.signaler != nil {
		err = c.signaler.SendTyping(ctx, chatID, isTyping)
		if err != nil {
			c.logger.Warn("send typing failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	c.mu.Lock()
	uid := c.cfg.UserID
	c.mu.Unlock()
	c.bus.Publish(bus.NewEvent(bus.PushTyping, model.TypingUpdate{ChatID: chatID, UserID: uid, IsTyping: isTyping}))
	return err
}

// MarkRead reports a read receipt and loops it back as message_read.
func (c *Client) MarkRead(ctx context.Context, chatID string, messageID int64) error {
	var err error
	if c.signaler != nil {
		err = c.signaler.MarkRead(ctx, chatID, messageID)
		if err != nil {
			c.logger.Warn("mark read failed", zap.String("chat_id", chatID), zap.Int64("message_id", messageID), zap.Error(err))
		}
	}
	c.bus.Publish(bus.NewEvent(bus.PushMessageRead, model.ReadReceipt{ChatID: chatID, MessageID: messageID}))
	return err
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		c.transition(status.Connecting)
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push stream lost", zap.Error(err), zap.Duration("retry_in", c.cfg.RetryDelay))
		c.transition(status.Disconnected)

		timer := time.NewTimer(c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// errUnauthorized marks a 401/403 on the stream; it is retried like any
// other failure.
var errUnauthorized = errors.New("push stream unauthorized")

func (c *Client) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			req.AddCookie(&http.Cookie{Name: "auth_token", Value: tok})
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Error("push stream rejected credentials", zap.Int("status", resp.StatusCode))
		return errUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	c.transition(status.Connected)
	c.logger.Info("push stream connected", zap.String("url", c.cfg.StreamURL))

	frames := newFrameReader(resp.Body)
	for {
		data, err := frames.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("stream closed by server")
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := c.dispatch(data); err != nil {
			c.logger.Warn("dropping push frame", zap.Error(err), zap.ByteString("data", data))
		}
	}
}

// dispatch publishes one frame. Unknown types are ignored.
func (c *Client) dispatch(data []byte) error {
	p, err := ParseFrame(data)
	if err != nil {
		return err
	}
	switch p.Type {
	case TypeConnected:
		c.bus.Publish(bus.NewEvent(bus.PushConnected, nil))
	case TypeNewMessage:
		c.mu.Lock()
		uid := c.cfg.UserID
		c.mu.Unlock()
		if uid != 0 && p.Message.SenderID == uid {
			c.logger.Debug("suppressing own message echo", zap.Int64("message_id", p.Message.ID))
			return nil
		}
		c.bus.Publish(bus.NewEvent(bus.PushNewMessage, *p.Message))
	case TypeTyping:
		c.bus.Publish(bus.NewEvent(bus.PushTyping, *p.Typing))
	case TypeMessageRead:
		c.bus.Publish(bus.NewEvent(bus.PushMessageRead, *p.Read))
	default:
		c.logger.Debug("ignoring unknown push event", zap.String("type", p.Type))
	}
	return nil
}

func (c *Client) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}
