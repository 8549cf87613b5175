package store

import (
	"database/sql"
	"errors"
	"time"
)

// Outbox statuses.
const (
	OutboxQueued = "queued"
	OutboxSent   = "sent"
	OutboxFailed = "failed"
)

// OutboxEntry is one journalled outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientID     string
	ChatID       string
	Content      string
	Status       string
	ErrorMessage string
	ServerMsgID  int64
	CreatedAt    time.Time
}

// QueueOutbox journals a send before it reaches the backend. Re-queueing an
// existing client id (a retry) resets it to queued.
func (db *DB) QueueOutbox(clientID, chatID, content string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_id, chat_id, content, status, created_at, updated_at)
		VALUES (?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			status = 'queued',
			error_message = '',
			updated_at = excluded.updated_at`,
		clientID, chatID, content, now, now)
	return err
}

// MarkOutboxSent records the backend id for a delivered send.
func (db *DB) MarkOutboxSent(clientID string, serverMsgID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_msg_id = ?, updated_at = ? WHERE client_id = ?`, serverMsgID, now, clientID)
	return err
}

// MarkOutboxFailed records the error of a failed send.
func (db *DB) MarkOutboxFailed(clientID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_id = ?`, errMsg, now, clientID)
	return err
}

// DeleteOutbox drops a journal entry, used when a failed send is discarded.
func (db *DB) DeleteOutbox(clientID string) error {
	_, err := db.Exec(`DELETE FROM outbox WHERE client_id = ?`, clientID)
	return err
}

// GetOutbox returns one entry, or nil if none exists.
func (db *DB) GetOutbox(clientID string) (*OutboxEntry, error) {
	row := db.QueryRow(`
		SELECT id, client_id, chat_id, content, status, error_message, server_msg_id, created_at
		FROM outbox WHERE client_id = ?`, clientID)
	e, err := scanOutbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// UndeliveredOutbox returns queued and failed entries, oldest first.
func (db *DB) UndeliveredOutbox() ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT id, client_id, chat_id, content, status, error_message, server_msg_id, created_at
		FROM outbox WHERE status IN ('queued', 'failed') ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutbox(row rowScanner) (*OutboxEntry, error) {
	var (
		e       OutboxEntry
		created int64
	)
	if err := row.Scan(&e.ID, &e.ClientID, &e.ChatID, &e.Content, &e.Status, &e.ErrorMessage, &e.ServerMsgID, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = fromMillis(created)
	return &e, nil
}
