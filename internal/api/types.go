package api

import (
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

// StatusResponse is the Status result.
type StatusResponse struct {
	Session       string       `json:"session"`
	Connection    status.State `json:"connection"`
	Realtime      bool         `json:"realtime"`
	User          model.User   `json:"user"`
	UptimeMs      int64        `json:"uptimeMs"`
	Chats         int          `json:"chats"`
	TotalUnread   int          `json:"totalUnread"`
	OnlineFriends int          `json:"onlineFriends"`
	DroppedEvents uint64       `json:"droppedEvents"`
}

// ChatMessages is the Messages and OpenChat result.
type ChatMessages struct {
	Chat     model.Chat      `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// SearchHit is one Search result.
type SearchHit struct {
	Message model.Message `json:"message"`
	Snippet string        `json:"snippet"`
}

// Envelope is one Watch stream item.
type Envelope struct {
	EventID          string `json:"eventId"`
	Session          string `json:"session"`
	Kind             string `json:"kind"`
	OccurredAtUnixMs int64  `json:"occurredAtUnixMs"`
	Payload          any    `json:"payload"`
}
