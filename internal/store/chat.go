package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/msgr/internal/model"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *model.Chat) error {
	participant, group, err := encodeChatRefs(c)
	if err != nil {
		return err
	}
	_, err = db.Exec(upsertChatSQL,
		c.ID, string(c.Kind), c.Name, participant, group, c.LastMessage,
		toMillis(c.Timestamp), c.UnreadCount, time.Now().UnixMilli())
	return err
}

// ReplaceChats swaps the cached chat list for chats in one transaction.
func (db *DB) ReplaceChats(chats []model.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	now := time.Now().UnixMilli()
	for i := range chats {
		c := &chats[i]
		participant, group, err := encodeChatRefs(c)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(upsertChatSQL,
			c.ID, string(c.Kind), c.Name, participant, group, c.LastMessage,
			toMillis(c.Timestamp), c.UnreadCount, now); err != nil {
			return fmt.Errorf("insert chat %q: %w", c.ID, err)
		}
	}
	// Messages of chats that are gone would never be shown again.
	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id NOT IN (SELECT id FROM chats)`); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return tx.Commit()
}

// DeleteChat removes a chat and its cached messages.
func (db *DB) DeleteChat(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListChats returns cached chats sorted by last activity descending.
func (db *DB) ListChats() ([]model.Chat, error) {
	rows, err := db.Query(`
		SELECT id, kind, name, participant, group_info, last_message, timestamp, unread_count
		FROM chats
		ORDER BY timestamp DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		var (
			c                  model.Chat
			kind               string
			participant, group string
			ts                 int64
		)
		if err := rows.Scan(&c.ID, &kind, &c.Name, &participant, &group, &c.LastMessage, &ts, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.Kind = model.ChatKind(kind)
		c.Timestamp = fromMillis(ts)
		if participant != "" {
			c.Participant = new(model.Friend)
			if err := json.Unmarshal([]byte(participant), c.Participant); err != nil {
				return nil, fmt.Errorf("decode participant of %q: %w", c.ID, err)
			}
		}
		if group != "" {
			c.Group = new(model.Group)
			if err := json.Unmarshal([]byte(group), c.Group); err != nil {
				return nil, fmt.Errorf("decode group of %q: %w", c.ID, err)
			}
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

const upsertChatSQL = `
	INSERT INTO chats (id, kind, name, participant, group_info, last_message, timestamp, unread_count, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		name = excluded.name,
		participant = excluded.participant,
		group_info = excluded.group_info,
		last_message = excluded.last_message,
		timestamp = excluded.timestamp,
		unread_count = excluded.unread_count,
		updated_at = excluded.updated_at`

func encodeChatRefs(c *model.Chat) (participant, group string, err error) {
	if c.Participant != nil {
		b, err := json.Marshal(c.Participant)
		if err != nil {
			return "", "", err
		}
		participant = string(b)
	}
	if c.Group != nil {
		b, err := json.Marshal(c.Group)
		if err != nil {
			return "", "", err
		}
		group = string(b)
	}
	return participant, group, nil
}
