package reconcile

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

// SelectChat makes chatID the open chat and clears its unread count.
// Returns false if the chat is unknown.
func (e *Engine) SelectChat(chatID string) bool {
	e.mu.Lock()
	i := e.chatIndexLocked(chatID)
	if i < 0 {
		e.mu.Unlock()
		return false
	}
	var c changes
	if e.selected != chatID {
		e.selected = chatID
		c.selection = true
	}
	if e.chats[i].UnreadCount != 0 {
		e.chats[i].UnreadCount = 0
		c.chats = true
	}
	e.commit(&c)
	return true
}

// ClearSelection closes the open chat.
func (e *Engine) ClearSelection() {
	e.mu.Lock()
	var c changes
	if e.selected != "" {
		e.selected = ""
		c.selection = true
	}
	e.commit(&c)
}

// Selected returns the open chat id, or "".
func (e *Engine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// ReplaceChats installs a freshly loaded chat list. Invalid chats are
// dropped, the open chat keeps zero unread, and state of chats that are gone
// is discarded.
func (e *Engine) ReplaceChats(chats []model.Chat) {
	e.mu.Lock()
	var c changes
	e.chats = e.validChats(chats)
	e.sortChatsLocked()
	c.chats = true

	present := make(map[string]bool, len(e.chats))
	for _, ch := range e.chats {
		present[ch.ID] = true
	}
	e.pruneLocked(present, &c)
	if i := e.chatIndexLocked(e.selected); i >= 0 {
		e.chats[i].UnreadCount = 0
	}
	e.commit(&c)
}

// AddChat inserts or replaces one chat.
func (e *Engine) AddChat(chat model.Chat) bool {
	if !chat.Valid() {
		e.logger.Warn("dropping invalid chat", zap.String("chat_id", chat.ID))
		return false
	}
	chat = chat.Clone()
	if chat.UnreadCount < 0 {
		chat.UnreadCount = 0
	}

	e.mu.Lock()
	if chat.ID == e.selected {
		chat.UnreadCount = 0
	}
	if i := e.chatIndexLocked(chat.ID); i >= 0 {
		e.chats[i] = chat
	} else {
		e.chats = append(e.chats, chat)
	}
	e.sortChatsLocked()
	e.commit(&changes{chats: true})
	return true
}

// Chat returns a copy of one chat.
func (e *Engine) Chat(chatID string) (model.Chat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.chatIndexLocked(chatID); i >= 0 {
		return e.chats[i].Clone(), true
	}
	return model.Chat{}, false
}

// Chats returns a copy of the chat list in display order.
func (e *Engine) Chats() []model.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatsLocked()
}

// FindDirectChat returns the direct chat with a friend, if one is loaded.
func (e *Engine) FindDirectChat(friendID int64) (model.Chat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.chats {
		ch := &e.chats[i]
		if ch.Kind == model.ChatDirect && ch.Participant != nil && ch.Participant.ID == friendID {
			return ch.Clone(), true
		}
	}
	return model.Chat{}, false
}

// ReplaceFriends installs a freshly loaded friend list.
func (e *Engine) ReplaceFriends(friends []model.Friend) {
	out := slices.Clone(friends)
	for i := range out {
		if out[i].Status != model.Online {
			out[i].Status = model.Offline
		}
	}
	e.mu.Lock()
	e.friends = out
	e.commit(&changes{friends: true})
}

// RemoveFriend drops a friend together with their direct chats. The
// selection is cleared if it pointed at one of those chats.
func (e *Engine) RemoveFriend(friendID int64) {
	e.mu.Lock()
	var c changes
	before := len(e.friends)
	e.friends = slices.DeleteFunc(e.friends, func(f model.Friend) bool { return f.ID == friendID })
	c.friends = len(e.friends) != before

	present := make(map[string]bool, len(e.chats))
	kept := e.chats[:0]
	for _, ch := range e.chats {
		if ch.Kind == model.ChatDirect && ch.Participant != nil && ch.Participant.ID == friendID {
			c.chats = true
			continue
		}
		present[ch.ID] = true
		kept = append(kept, ch)
	}
	e.chats = kept
	e.pruneLocked(present, &c)
	e.commit(&c)
}

// ReplaceGroups installs a freshly loaded group list.
func (e *Engine) ReplaceGroups(groups []model.Group) {
	e.mu.Lock()
	e.groups = cloneGroups(groups)
	e.commit(&changes{groups: true})
}

// AddGroup inserts or replaces one group.
func (e *Engine) AddGroup(g model.Group) {
	g.Members = slices.Clone(g.Members)
	e.mu.Lock()
	i := slices.IndexFunc(e.groups, func(x model.Group) bool { return x.ID == g.ID })
	if i >= 0 {
		e.groups[i] = g
	} else {
		e.groups = append(e.groups, g)
	}
	e.commit(&changes{groups: true})
}

// ApplyPresence overwrites every known friend's status from a poll result.
// Friends missing from statuses are offline.
func (e *Engine) ApplyPresence(statuses map[int64]model.Presence) {
	presenceOf := func(id int64) model.Presence {
		if statuses[id] == model.Online {
			return model.Online
		}
		return model.Offline
	}

	e.mu.Lock()
	var c changes
	for i := range e.friends {
		if s := presenceOf(e.friends[i].ID); e.friends[i].Status != s {
			e.friends[i].Status = s
			c.friends = true
		}
	}
	for i := range e.chats {
		p := e.chats[i].Participant
		if p == nil {
			continue
		}
		if s := presenceOf(p.ID); p.Status != s {
			p.Status = s
			c.chats = true
		}
	}
	e.commit(&c)
}

// SetConnection records the transport state for observers.
func (e *Engine) SetConnection(s status.State) {
	e.mu.Lock()
	var c changes
	if e.conn != s {
		e.conn = s
		c.connection = true
	}
	e.commit(&c)
}

// Connection returns the last recorded transport state.
func (e *Engine) Connection() status.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// Seed installs cached state on warm start, before any live data arrives.
func (e *Engine) Seed(chats []model.Chat, friends []model.Friend, groups []model.Group, messages map[string][]model.Message) {
	e.ReplaceFriends(friends)
	e.ReplaceGroups(groups)
	e.ReplaceChats(chats)
	for chatID, msgs := range messages {
		if _, ok := e.Chat(chatID); ok {
			e.ReplaceMessages(chatID, msgs)
		}
	}
}

// touchChatLocked moves a chat to the top for a local send.
func (e *Engine) touchChatLocked(chatID, preview string, ts time.Time) bool {
	i := e.chatIndexLocked(chatID)
	if i < 0 {
		return false
	}
	e.chats[i].LastMessage = preview
	e.chats[i].Timestamp = ts
	e.chats[i].UnreadCount = 0
	e.sortChatsLocked()
	return true
}

// pruneLocked drops messages, typing and selection of chats not in present.
func (e *Engine) pruneLocked(present map[string]bool, c *changes) {
	for id := range e.messages {
		if !present[id] {
			delete(e.messages, id)
			c.touchMessages(id)
		}
	}
	for id := range e.typing {
		if !present[id] {
			delete(e.typing, id)
			c.touchTyping(id)
		}
	}
	for id := range e.reads {
		if !present[id] {
			delete(e.reads, id)
		}
	}
	if e.selected != "" && !present[e.selected] {
		e.selected = ""
		c.selection = true
	}
}

func (e *Engine) validChats(chats []model.Chat) []model.Chat {
	out := make([]model.Chat, 0, len(chats))
	for i := range chats {
		if !chats[i].Valid() {
			e.logger.Warn("dropping invalid chat", zap.String("chat_id", chats[i].ID))
			continue
		}
		ch := chats[i].Clone()
		if ch.UnreadCount < 0 {
			ch.UnreadCount = 0
		}
		out = append(out, ch)
	}
	return out
}

func (e *Engine) chatIndexLocked(chatID string) int {
	if chatID == "" {
		return -1
	}
	for i := range e.chats {
		if e.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

// sortChatsLocked orders chats by last activity, newest first. Ties keep
// their current relative order.
func (e *Engine) sortChatsLocked() {
	slices.SortStableFunc(e.chats, func(a, b model.Chat) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}

func (e *Engine) chatsLocked() []model.Chat {
	out := make([]model.Chat, len(e.chats))
	for i := range e.chats {
		out[i] = e.chats[i].Clone()
	}
	return out
}

func cloneGroups(groups []model.Group) []model.Group {
	out := make([]model.Group, len(groups))
	for i, g := range groups {
		g.Members = slices.Clone(g.Members)
		out[i] = g
	}
	return out
}
