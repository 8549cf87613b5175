package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/model"
)

// ErrMalformedEvent is returned for frames that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed push event")

// Push event types on the wire.
const (
	TypeConnected   = "connected"
	TypeNewMessage  = "new_message"
	TypeTyping      = "typing_update"
	TypeMessageRead = "message_read"
)

type frame struct {
	Type      string             `json:"type"`
	Message   json.RawMessage    `json:"message"`
	ChatID    backend.FlexString `json:"chatId"`
	UserID    backend.FlexID     `json:"userId"`
	IsTyping  bool               `json:"isTyping"`
	MessageID backend.FlexID     `json:"messageId"`
}

// Parsed is one decoded frame. Exactly one payload field is set for the
// known types; unknown types leave all of them nil.
type Parsed struct {
	Type    string
	Message *model.Message
	Typing  *model.TypingUpdate
	Read    *model.ReadReceipt
}

// ParseFrame decodes one SSE data payload.
func ParseFrame(data []byte) (Parsed, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	p := Parsed{Type: f.Type}
	switch f.Type {
	case "":
		return Parsed{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	case TypeNewMessage:
		if len(f.Message) == 0 || string(f.Message) == "null" {
			return Parsed{}, fmt.Errorf("%w: new_message without message", ErrMalformedEvent)
		}
		m, err := backend.DecodeMessage(f.Message)
		if err != nil {
			return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if m.ID == 0 || m.ChatID == "" {
			return Parsed{}, fmt.Errorf("%w: message without id or chat", ErrMalformedEvent)
		}
		p.Message = &m
	case TypeTyping:
		if f.ChatID == "" {
			return Parsed{}, fmt.Errorf("%w: typing_update without chatId", ErrMalformedEvent)
		}
		p.Typing = &model.TypingUpdate{ChatID: string(f.ChatID), UserID: int64(f.UserID), IsTyping: f.IsTyping}
	case TypeMessageRead:
		if f.ChatID == "" {
			return Parsed{}, fmt.Errorf("%w: message_read without chatId", ErrMalformedEvent)
		}
		p.Read = &model.ReadReceipt{ChatID: string(f.ChatID), MessageID: int64(f.MessageID)}
	}
	return p, nil
}
