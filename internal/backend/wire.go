package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/msgr/internal/model"
)

// wireMessage accepts both the canonical camelCase message and the raw
// snake_case record returned by /messages/recent.
type wireMessage struct {
	ID         FlexID      `json:"id"`
	ChatID     FlexString  `json:"chatId"`
	SenderID   FlexID      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Content    string      `json:"content"`
	Timestamp  string      `json:"timestamp"`
	ChatIDRaw  FlexString  `json:"chat_id"`
	SenderRaw  FlexID      `json:"sender_id"`
	Sender     *wireSender `json:"sender"`
	CreatedAt  string      `json:"created_at"`
}

type wireSender struct {
	FullName string `json:"full_name"`
}

func (w *wireMessage) toModel() model.Message {
	m := model.Message{
		ID:         int64(w.ID),
		ChatID:     string(w.ChatID),
		SenderID:   int64(w.SenderID),
		SenderName: w.SenderName,
		Content:    w.Content,
		Timestamp:  parseTime(w.Timestamp),
		Status:     model.StatusSent,
	}
	if m.ChatID == "" {
		m.ChatID = string(w.ChatIDRaw)
	}
	if m.SenderID == 0 {
		m.SenderID = int64(w.SenderRaw)
	}
	if m.SenderName == "" && w.Sender != nil {
		m.SenderName = w.Sender.FullName
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = parseTime(w.CreatedAt)
	}
	return m
}

// DecodeMessage converts one message in either wire shape to the model.
func DecodeMessage(data []byte) (model.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return model.Message{}, err
	}
	return w.toModel(), nil
}

func messagesToModel(ws []wireMessage) []model.Message {
	out := make([]model.Message, 0, len(ws))
	for i := range ws {
		out = append(out, ws[i].toModel())
	}
	return out
}

type wireChat struct {
	ID          FlexString     `json:"id"`
	Type        model.ChatKind `json:"type"`
	Name        string         `json:"name"`
	Participant *model.Friend  `json:"participant"`
	Group       *model.Group   `json:"group"`
	LastMessage string         `json:"lastMessage"`
	Timestamp   string         `json:"timestamp"`
	UnreadCount int            `json:"unreadCount"`
}

func (w *wireChat) toModel() model.Chat {
	c := model.Chat{
		ID:          string(w.ID),
		Kind:        w.Type,
		Name:        w.Name,
		Participant: w.Participant,
		Group:       w.Group,
		LastMessage: w.LastMessage,
		Timestamp:   parseTime(w.Timestamp),
		UnreadCount: w.UnreadCount,
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	if c.Participant != nil && c.Participant.Status == "" {
		c.Participant.Status = model.Offline
	}
	return c
}

type wireFriendRequest struct {
	ID        FlexID     `json:"id"`
	Sender    model.User `json:"sender"`
	CreatedAt string     `json:"created_at"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTime is lenient: unknown or empty timestamps become the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// FlexID decodes a numeric id sent either as a JSON number or a string.
type FlexID int64

func (f *FlexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*f = FlexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n)
	return nil
}

// FlexString decodes an id sent either as a JSON string or a number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
