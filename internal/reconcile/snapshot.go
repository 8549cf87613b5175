package reconcile

import (
	"slices"
	"time"

	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

// Snapshot is a deep copy of the engine state.
type Snapshot struct {
	Chats         []model.Chat       `json:"chats"`
	SelectedChat  string             `json:"selectedChat,omitempty"`
	Messages      []model.Message    `json:"messages"`
	Typing        map[string][]int64 `json:"typing"`
	Friends       []model.Friend     `json:"friends"`
	Groups        []model.Group      `json:"groups"`
	Connection    status.State       `json:"connection"`
	TotalUnread   int                `json:"totalUnread"`
	OnlineFriends int                `json:"onlineFriends"`
	LastRead      map[string]int64   `json:"lastRead"`
	TakenAt       time.Time          `json:"takenAt"`
}

// Snapshot returns a consistent copy of the whole state. Messages holds the
// selected chat's list.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Chats:        e.chatsLocked(),
		SelectedChat: e.selected,
		Messages:     e.messagesLocked(e.selected),
		Typing:       make(map[string][]int64, len(e.typing)),
		Friends:      slices.Clone(e.friends),
		Groups:       cloneGroups(e.groups),
		Connection:   e.conn,
		LastRead:     make(map[string]int64, len(e.reads)),
		TakenAt:      e.now(),
	}
	for chatID := range e.typing {
		s.Typing[chatID] = e.typingLocked(chatID)
	}
	for chatID, id := range e.reads {
		s.LastRead[chatID] = id
	}
	for _, ch := range e.chats {
		s.TotalUnread += ch.UnreadCount
	}
	for _, f := range e.friends {
		if f.Status == model.Online {
			s.OnlineFriends++
		}
	}
	return s
}

// Typing returns the sorted ids of users typing in a chat.
func (e *Engine) Typing(chatID string) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.typingLocked(chatID)
}

func (e *Engine) typingLocked(chatID string) []int64 {
	users := e.typing[chatID]
	out := make([]int64, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
