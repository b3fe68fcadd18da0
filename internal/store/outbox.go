package store

import (
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/model"
)

// OutboxStatus tracks one outgoing message. Failed rows stay failed; the
// client does not resend them.
type OutboxStatus string

const (
	OutboxCreated OutboxStatus = "created"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEntry is a message that was encrypted for sending.
type OutboxEntry struct {
	EventID        event.ID
	ConversationID model.ConversationID
	Content        string
	Status         OutboxStatus
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecordOutbox adds an encrypted message in the created state.
func (db *DB) RecordOutbox(id event.ID, conversationID model.ConversationID, content string) error {
	now := db.now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (event_id, conversation_id, content, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(id), string(conversationID), content, string(OutboxCreated), now, now)
	return err
}

// MarkOutboxSent records that the relay accepted the event.
func (db *DB) MarkOutboxSent(id event.ID) error {
	_, err := db.Exec(`UPDATE outbox SET status = ?, error_message = '', updated_at = ? WHERE event_id = ?`,
		string(OutboxSent), db.now().UnixMilli(), string(id))
	return err
}

// MarkOutboxFailed records a send failure.
func (db *DB) MarkOutboxFailed(id event.ID, errMsg string) error {
	_, err := db.Exec(`UPDATE outbox SET status = ?, error_message = ?, updated_at = ? WHERE event_id = ?`,
		string(OutboxFailed), errMsg, db.now().UnixMilli(), string(id))
	return err
}

// ListOutbox returns entries with the given status, oldest first. An empty
// status lists everything.
func (db *DB) ListOutbox(status OutboxStatus) ([]OutboxEntry, error) {
	rows, err := db.Query(`
		SELECT event_id, conversation_id, content, status, error_message, created_at, updated_at
		FROM outbox WHERE ? = '' OR status = ?
		ORDER BY created_at ASC, event_id ASC`, string(status), string(status))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e                OutboxEntry
			id, conv, st     string
			created, updated int64
		)
		if err := rows.Scan(&id, &conv, &e.Content, &st, &e.ErrorMessage, &created, &updated); err != nil {
			return nil, err
		}
		e.EventID = event.ID(id)
		e.ConversationID = model.ConversationID(conv)
		e.Status = OutboxStatus(st)
		e.CreatedAt = time.UnixMilli(created)
		e.UpdatedAt = time.UnixMilli(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
