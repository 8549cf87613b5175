package model

import "time"

// ChatKind distinguishes one-to-one chats from group chats.
type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// Presence is a friend's online status as last reported by polling.
type Presence string

const (
	Online  Presence = "online"
	Offline Presence = "offline"
)

// DeliveryStatus tracks an outbound message through confirmation.
type DeliveryStatus string

const (
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// User is the locally authenticated account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name"`
}

// Friend is a user in the local friend list.
type Friend struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Status   Presence `json:"status"`
}

// Group is a named set of members backing a group chat.
type Group struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Members   []int64 `json:"members"`
	CreatedBy int64   `json:"createdBy"`
}

// Chat is one conversation in the chat list.
// Exactly one of Participant and Group is set, matching Kind.
type Chat struct {
	ID          string    `json:"id"`
	Kind        ChatKind  `json:"type"`
	Name        string    `json:"name"`
	Participant *Friend   `json:"participant,omitempty"`
	Group       *Group    `json:"group,omitempty"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   time.Time `json:"timestamp"`
	UnreadCount int       `json:"unreadCount"`
}

// Valid reports whether the participant/group reference matches Kind.
func (c *Chat) Valid() bool {
	switch c.Kind {
	case ChatDirect:
		return c.Participant != nil && c.Group == nil
	case ChatGroup:
		return c.Group != nil && c.Participant == nil
	default:
		return false
	}
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() Chat {
	out := *c
	if c.Participant != nil {
		p := *c.Participant
		out.Participant = &p
	}
	if c.Group != nil {
		g := *c.Group
		g.Members = append([]int64(nil), c.Group.Members...)
		out.Group = &g
	}
	return out
}

// Message is a chat message. ID is zero until the backend confirms it;
// ClientID identifies a local placeholder before that.
type Message struct {
	ID         int64          `json:"id"`
	ClientID   string         `json:"clientId,omitempty"`
	ChatID     string         `json:"chatId"`
	SenderID   int64          `json:"senderId"`
	SenderName string         `json:"senderName"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     DeliveryStatus `json:"status,omitempty"`
}

// Confirmed reports whether the message carries a backend id.
func (m *Message) Confirmed() bool {
	return m.ID != 0
}

// TypingUpdate is a typing indicator signal for one user in one chat.
type TypingUpdate struct {
	ChatID   string `json:"chatId"`
	UserID   int64  `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadReceipt reports that a message was read in a chat.
type ReadReceipt struct {
	ChatID    string `json:"chatId"`
	MessageID int64  `json:"messageId"`
}

// FriendRequest is a pending incoming friend request.
type FriendRequest struct {
	ID        int64     `json:"id"`
	From      User      `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}
