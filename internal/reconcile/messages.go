package reconcile

import (
	"cmp"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// ApplyInbound adds a pushed message. Messages already present by id are
// ignored. Returns whether the message was inserted.
func (e *Engine) ApplyInbound(msg model.Message) bool {
	if !msg.Confirmed() || msg.ChatID == "" {
		e.logger.Warn("ignoring inbound message without id or chat", zap.String("chat_id", msg.ChatID))
		return false
	}

	e.mu.Lock()
	var c changes
	if e.indexByIDLocked(msg.ChatID, msg.ID) >= 0 {
		e.mu.Unlock()
		e.logger.Debug("duplicate inbound message", zap.Int64("message_id", msg.ID))
		return false
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = e.now().UTC()
	}
	msg.Status = model.StatusSent
	e.insertLocked(msg)
	c.touchMessages(msg.ChatID)

	if i := e.chatIndexLocked(msg.ChatID); i >= 0 {
		chat := &e.chats[i]
		chat.LastMessage = msg.Content
		chat.Timestamp = msg.Timestamp
		if msg.ChatID == e.selected {
			chat.UnreadCount = 0
		} else {
			chat.UnreadCount++
		}
		e.sortChatsLocked()
		c.chats = true
	} else {
		e.logger.Debug("inbound message for unknown chat", zap.String("chat_id", msg.ChatID))
	}
	e.commit(&c)
	return true
}

// ApplyOptimisticSend updates the chat preview for a message the user just
// sent. The placeholder itself is shown only when insert is true.
func (e *Engine) ApplyOptimisticSend(placeholder model.Message, insert bool) {
	if placeholder.Timestamp.IsZero() {
		placeholder.Timestamp = e.now().UTC()
	}
	placeholder.ID = 0
	placeholder.Status = model.StatusSending

	e.mu.Lock()
	var c changes
	if insert && e.indexByClientIDLocked(placeholder.ChatID, placeholder.ClientID) < 0 {
		e.insertLocked(placeholder)
		c.touchMessages(placeholder.ChatID)
	}
	if e.touchChatLocked(placeholder.ChatID, placeholder.Content, placeholder.Timestamp) {
		c.chats = true
	}
	e.commit(&c)
}

// ConfirmSend reconciles the placeholder clientID with the backend's record.
// The placeholder is replaced in place; if the confirmed id is already shown
// the placeholder is dropped; with no placeholder the message is inserted.
func (e *Engine) ConfirmSend(clientID string, confirmed model.Message) {
	if confirmed.Timestamp.IsZero() {
		confirmed.Timestamp = e.now().UTC()
	}
	confirmed.ClientID = clientID
	confirmed.Status = model.StatusSent

	e.mu.Lock()
	var c changes
	chatID := confirmed.ChatID
	pi := e.indexByClientIDLocked(chatID, clientID)
	switch {
	case e.indexByIDLocked(chatID, confirmed.ID) >= 0:
		if pi >= 0 {
			e.removeAtLocked(chatID, pi)
		}
	case pi >= 0:
		list := e.messages[chatID]
		list[pi].msg = confirmed
		sortEntries(list)
	default:
		e.insertLocked(confirmed)
	}
	c.touchMessages(chatID)
	if e.touchChatLocked(chatID, confirmed.Content, confirmed.Timestamp) {
		c.chats = true
	}
	e.commit(&c)
}

// FailSend marks the placeholder failed, inserting it if it was not shown.
func (e *Engine) FailSend(placeholder model.Message) {
	placeholder.ID = 0
	placeholder.Status = model.StatusFailed
	if placeholder.Timestamp.IsZero() {
		placeholder.Timestamp = e.now().UTC()
	}

	e.mu.Lock()
	var c changes
	if i := e.indexByClientIDLocked(placeholder.ChatID, placeholder.ClientID); i >= 0 {
		e.messages[placeholder.ChatID][i].msg.Status = model.StatusFailed
	} else {
		e.insertLocked(placeholder)
	}
	c.touchMessages(placeholder.ChatID)
	e.commit(&c)
}

// RetryPending moves a failed placeholder back to sending and returns it.
func (e *Engine) RetryPending(clientID string) (model.Message, bool) {
	e.mu.Lock()
	chatID, i := e.findClientIDLocked(clientID)
	if i < 0 || e.messages[chatID][i].msg.Status != model.StatusFailed {
		e.mu.Unlock()
		return model.Message{}, false
	}
	e.messages[chatID][i].msg.Status = model.StatusSending
	msg := e.messages[chatID][i].msg
	var c changes
	c.touchMessages(chatID)
	e.commit(&c)
	return msg, true
}

// DiscardPending removes an unconfirmed placeholder.
func (e *Engine) DiscardPending(clientID string) bool {
	e.mu.Lock()
	chatID, i := e.findClientIDLocked(clientID)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	e.removeAtLocked(chatID, i)
	var c changes
	c.touchMessages(chatID)
	e.commit(&c)
	return true
}

// Pending returns the unconfirmed placeholder with clientID.
func (e *Engine) Pending(clientID string) (model.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	chatID, i := e.findClientIDLocked(clientID)
	if i < 0 {
		return model.Message{}, false
	}
	return e.messages[chatID][i].msg, true
}

// ReplaceMessages installs a freshly loaded history for chatID. Local
// placeholders still sending or failed are kept.
func (e *Engine) ReplaceMessages(chatID string, msgs []model.Message) {
	e.mu.Lock()
	old := e.messages[chatID]
	list := make([]entry, 0, len(msgs))
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if !m.Confirmed() || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		m.ChatID = chatID
		m.Status = model.StatusSent
		e.seq++
		list = append(list, entry{msg: m, seq: e.seq})
	}
	for _, en := range old {
		if !en.msg.Confirmed() {
			list = append(list, en)
		}
	}
	sortEntries(list)
	e.messages[chatID] = list

	var c changes
	c.touchMessages(chatID)
	e.commit(&c)
}

// Messages returns a copy of a chat's messages in display order.
func (e *Engine) Messages(chatID string) []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messagesLocked(chatID)
}

// ApplyTyping records a typing indicator.
func (e *Engine) ApplyTyping(u model.TypingUpdate) {
	e.mu.Lock()
	var c changes
	users := e.typing[u.ChatID]
	if u.IsTyping {
		if users == nil {
			users = make(map[int64]time.Time)
			e.typing[u.ChatID] = users
		}
		users[u.UserID] = e.now()
		c.touchTyping(u.ChatID)
	} else if _, ok := users[u.UserID]; ok {
		delete(users, u.UserID)
		if len(users) == 0 {
			delete(e.typing, u.ChatID)
		}
		c.touchTyping(u.ChatID)
	}
	e.commit(&c)
}

// ExpireTyping drops indicators older than the configured expiry. It does
// nothing when expiry is disabled.
func (e *Engine) ExpireTyping(now time.Time) {
	if e.opts.TypingExpiry <= 0 {
		return
	}
	e.mu.Lock()
	var c changes
	for chatID, users := range e.typing {
		for uid, at := range users {
			if now.Sub(at) >= e.opts.TypingExpiry {
				delete(users, uid)
				c.touchTyping(chatID)
			}
		}
		if len(users) == 0 {
			delete(e.typing, chatID)
		}
	}
	e.commit(&c)
}

// ApplyRead records the latest read receipt of a chat.
func (e *Engine) ApplyRead(r model.ReadReceipt) {
	e.mu.Lock()
	var c changes
	if r.MessageID > e.reads[r.ChatID] {
		e.reads[r.ChatID] = r.MessageID
		c.read = &r
	}
	e.commit(&c)
}

func (e *Engine) insertLocked(m model.Message) {
	e.seq++
	list := e.messages[m.ChatID]
	// After every entry not later than m, so equal timestamps keep arrival order.
	i := len(list)
	for i > 0 && list[i-1].msg.Timestamp.After(m.Timestamp) {
		i--
	}
	list = append(list, entry{})
	copy(list[i+1:], list[i:])
	list[i] = entry{msg: m, seq: e.seq}
	e.messages[m.ChatID] = list
}

func (e *Engine) removeAtLocked(chatID string, i int) {
	list := e.messages[chatID]
	e.messages[chatID] = append(list[:i], list[i+1:]...)
}

func (e *Engine) indexByIDLocked(chatID string, id int64) int {
	for i, en := range e.messages[chatID] {
		if en.msg.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) indexByClientIDLocked(chatID, clientID string) int {
	if clientID == "" {
		return -1
	}
	for i, en := range e.messages[chatID] {
		if !en.msg.Confirmed() && en.msg.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (e *Engine) findClientIDLocked(clientID string) (string, int) {
	for chatID := range e.messages {
		if i := e.indexByClientIDLocked(chatID, clientID); i >= 0 {
			return chatID, i
		}
	}
	return "", -1
}

func (e *Engine) messagesLocked(chatID string) []model.Message {
	list := e.messages[chatID]
	out := make([]model.Message, len(list))
	for i, en := range list {
		out[i] = en.msg
	}
	return out
}

// sortEntries orders by timestamp, then arrival.
func sortEntries(list []entry) {
	slices.SortFunc(list, func(a, b entry) int {
		if c := a.msg.Timestamp.Compare(b.msg.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
