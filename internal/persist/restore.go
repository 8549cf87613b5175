package persist

import (
	"fmt"

	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/store"
)

// Seeder receives cached state on warm start.
type Seeder interface {
	Seed(chats []model.Chat, friends []model.Friend, groups []model.Group, messages map[string][]model.Message)
	FailSend(placeholder model.Message)
}

// RestoreResult summarizes a warm start.
type RestoreResult struct {
	Chats       int
	Messages    int
	Undelivered int
}

// Restore loads the cache into s. Sends that never got a confirmation come
// back as failed placeholders authored by self so they can be retried.
func Restore(db *store.DB, s Seeder, self model.User, perChat int) (*RestoreResult, error) {
	chats, err := db.ListChats()
	if err != nil {
		return nil, fmt.Errorf("list cached chats: %w", err)
	}
	friends, err := db.ListFriends()
	if err != nil {
		return nil, fmt.Errorf("list cached friends: %w", err)
	}
	groups, err := db.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("list cached groups: %w", err)
	}

	res := &RestoreResult{Chats: len(chats)}
	messages := make(map[string][]model.Message, len(chats))
	for _, c := range chats {
		msgs, err := db.ListMessages(c.ID, perChat)
		if err != nil {
			return nil, fmt.Errorf("list cached messages of %s: %w", c.ID, err)
		}
		if len(msgs) > 0 {
			messages[c.ID] = msgs
			res.Messages += len(msgs)
		}
	}
	s.Seed(chats, friends, groups, messages)

	pending, err := db.UndeliveredOutbox()
	if err != nil {
		return res, fmt.Errorf("list undelivered sends: %w", err)
	}
	for _, p := range pending {
		s.FailSend(model.Message{
			ClientID:   p.ClientID,
			ChatID:     p.ChatID,
			SenderID:   self.ID,
			SenderName: self.FullName,
			Content:    p.Content,
			Timestamp:  p.CreatedAt,
		})
		res.Undelivered++
	}
	return res, nil
}
