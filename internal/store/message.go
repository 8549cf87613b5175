package store

import (
	"fmt"
	"time"

	"github.com/matheus3301/msgr/internal/model"
)

// UpsertMessage inserts or updates a confirmed message (idempotent on id).
// Unconfirmed placeholders live in the outbox, not here.
func (db *DB) UpsertMessage(m *model.Message) error {
	if !m.Confirmed() {
		return fmt.Errorf("upsert message: unconfirmed message %q", m.ClientID)
	}
	_, err := db.Exec(upsertMessageSQL,
		m.ID, m.ChatID, m.SenderID, m.SenderName, m.Content, toMillis(m.Timestamp), time.Now().UnixMilli())
	return err
}

// ReplaceChatMessages swaps the cached history of chatID for msgs.
// Unconfirmed entries in msgs are skipped.
func (db *DB) ReplaceChatMessages(chatID string, msgs []model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	now := time.Now().UnixMilli()
	for i := range msgs {
		m := &msgs[i]
		if !m.Confirmed() {
			continue
		}
		if _, err := tx.Exec(upsertMessageSQL,
			m.ID, chatID, m.SenderID, m.SenderName, m.Content, toMillis(m.Timestamp), now); err != nil {
			return fmt.Errorf("insert message %d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the newest limit messages of a chat in ascending
// timestamp order.
func (db *DB) ListMessages(chatID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, chat_id, sender_id, sender_name, content, timestamp FROM (
			SELECT * FROM messages
			WHERE chat_id = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

const upsertMessageSQL = `
	INSERT INTO messages (id, chat_id, sender_id, sender_name, content, timestamp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		chat_id = excluded.chat_id,
		sender_name = excluded.sender_name,
		content = excluded.content,
		timestamp = excluded.timestamp`

type scanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows scanner) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		var (
			m  model.Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = fromMillis(ts)
		m.Status = model.StatusSent
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
