package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// friendStatusAttempts bounds GET /friends/status, first try included.
const friendStatusAttempts = 3

// RegisterRequest is the registration form.
type RegisterRequest struct {
	Username             string `json:"username"`
	Email                string `json:"email"`
	FullName             string `json:"full_name"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation,omitempty"`
}

// RegisterResponse carries the issued token and the new account.
type RegisterResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Register creates an account. Failures come back as *StatusError with the
// backend's status and body untouched.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(ctx, "POST", "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("register: %w: response has no token", ErrValidation)
	}
	return &resp, nil
}

// BroadcastAuth forwards a push-channel handshake form and returns the
// backend's opaque JSON answer.
func (c *Client) BroadcastAuth(ctx context.Context, form url.Values) (json.RawMessage, error) {
	if c.Token() == "" {
		return nil, fmt.Errorf("broadcast auth: %w", ErrUnauthorized)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "POST", "/broadcasting/auth", form, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListMessages returns GET /messages.
func (c *Client) ListMessages(ctx context.Context) ([]model.Message, error) {
	var ws []wireMessage
	if err := c.do(ctx, "GET", "/messages", nil, &ws); err != nil {
		return nil, err
	}
	return messagesToModel(ws), nil
}

// SendMessage posts a message and returns the confirmed record.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (model.Message, error) {
	if chatID == "" || strings.TrimSpace(content) == "" {
		return model.Message{}, fmt.Errorf("send message: %w: missing chatId or content", ErrValidation)
	}
	var w wireMessage
	body := map[string]string{"chatId": chatID, "content": content}
	if err := c.do(ctx, "POST", "/messages", body, &w); err != nil {
		return model.Message{}, err
	}
	m := w.toModel()
	if m.ChatID == "" {
		m.ChatID = chatID
	}
	if m.Content == "" {
		m.Content = content
	}
	return m, nil
}

// RecentMessages returns GET /messages/recent translated to canonical form.
func (c *Client) RecentMessages(ctx context.Context) ([]model.Message, error) {
	var ws []wireMessage
	if err := c.do(ctx, "GET", "/messages/recent", nil, &ws); err != nil {
		return nil, err
	}
	return messagesToModel(ws), nil
}

// FriendStatuses returns friend id to presence. Network failures and 5xx
// are retried with exponential backoff; 4xx is returned at once.
func (c *Client) FriendStatuses(ctx context.Context) (map[int64]model.Presence, error) {
	var raw map[string]string

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(b, friendStatusAttempts-1), ctx)

	attempt := 0
	op := func() error {
		attempt++
		raw = nil
		err := c.do(ctx, "GET", "/friends/status", nil, &raw)
		if err == nil || Retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("friend status request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}

	out := make(map[int64]model.Presence, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		if model.Presence(v) == model.Online {
			out[id] = model.Online
		} else {
			out[id] = model.Offline
		}
	}
	return out, nil
}

// Unfriend removes a friend relationship.
func (c *Client) Unfriend(ctx context.Context, friendID int64) error {
	return c.do(ctx, "DELETE", fmt.Sprintf("/friends/%d/unfriend", friendID), nil, nil)
}

// ListChats returns GET /chats. Chats whose kind does not match their
// participant/group reference are dropped.
func (c *Client) ListChats(ctx context.Context) ([]model.Chat, error) {
	var ws []wireChat
	if err := c.do(ctx, "GET", "/chats", nil, &ws); err != nil {
		return nil, err
	}
	out := make([]model.Chat, 0, len(ws))
	for i := range ws {
		chat := ws[i].toModel()
		if !chat.Valid() {
			c.logger.Warn("dropping invalid chat", zap.String("chat_id", chat.ID), zap.String("kind", string(chat.Kind)))
			continue
		}
		out = append(out, chat)
	}
	return out, nil
}

// CreateDirectChat opens (or returns) the direct chat with a friend.
func (c *Client) CreateDirectChat(ctx context.Context, participantID int64) (model.Chat, error) {
	var w wireChat
	body := map[string]int64{"participantId": participantID}
	if err := c.do(ctx, "POST", "/chats/direct", body, &w); err != nil {
		return model.Chat{}, err
	}
	chat := w.toModel()
	if !chat.Valid() {
		return model.Chat{}, fmt.Errorf("create direct chat: %w: invalid chat %q", ErrValidation, chat.ID)
	}
	return chat, nil
}

// ChatMessages returns the history of one chat.
func (c *Client) ChatMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var ws []wireMessage
	if err := c.do(ctx, "GET", "/chats/"+url.PathEscape(chatID)+"/messages", nil, &ws); err != nil {
		return nil, err
	}
	msgs := messagesToModel(ws)
	for i := range msgs {
		if msgs[i].ChatID == "" {
			msgs[i].ChatID = chatID
		}
	}
	return msgs, nil
}

// MarkRead reports the last read message of a chat.
func (c *Client) MarkRead(ctx context.Context, chatID string, messageID int64) error {
	body := map[string]int64{"messageId": messageID}
	return c.do(ctx, "POST", "/chats/"+url.PathEscape(chatID)+"/read", body, nil)
}

// SendTyping reports the local user's typing state in a chat.
func (c *Client) SendTyping(ctx context.Context, chatID string, isTyping bool) error {
	body := map[string]bool{"isTyping": isTyping}
	return c.do(ctx, "POST", "/chats/"+url.PathEscape(chatID)+"/typing", body, nil)
}

// ListFriends returns GET /friends.
func (c *Client) ListFriends(ctx context.Context) ([]model.Friend, error) {
	var friends []model.Friend
	if err := c.do(ctx, "GET", "/friends", nil, &friends); err != nil {
		return nil, err
	}
	for i := range friends {
		if friends[i].Status != model.Online {
			friends[i].Status = model.Offline
		}
	}
	return friends, nil
}

// ListGroups returns GET /groups.
func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	var groups []model.Group
	if err := c.do(ctx, "GET", "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, members []int64) (model.Group, error) {
	if strings.TrimSpace(name) == "" || len(members) == 0 {
		return model.Group{}, fmt.Errorf("create group: %w: missing name or members", ErrValidation)
	}
	var g model.Group
	body := map[string]any{"name": name, "members": members}
	if err := c.do(ctx, "POST", "/groups", body, &g); err != nil {
		return model.Group{}, err
	}
	return g, nil
}

// SendFriendRequest asks userID to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, userID int64) error {
	return c.do(ctx, "POST", "/friends/request", map[string]int64{"userId": userID}, nil)
}

// ListFriendRequests returns pending incoming requests.
func (c *Client) ListFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var ws []wireFriendRequest
	if err := c.do(ctx, "GET", "/friends/requests", nil, &ws); err != nil {
		return nil, err
	}
	reqs := make([]model.FriendRequest, 0, len(ws))
	for _, w := range ws {
		reqs = append(reqs, model.FriendRequest{ID: int64(w.ID), From: w.Sender, CreatedAt: parseTime(w.CreatedAt)})
	}
	return reqs, nil
}

// AcceptFriendRequest accepts a pending request.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	return c.do(ctx, "POST", fmt.Sprintf("/friends/requests/%d/accept", requestID), nil, nil)
}

// RejectFriendRequest rejects a pending request.
func (c *Client) RejectFriendRequest(ctx context.Context, requestID int64) error {
	return c.do(ctx, "POST", fmt.Sprintf("/friends/requests/%d/reject", requestID), nil, nil)
}

// IsStatus reports whether err is a *StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
