package store

import (
	"fmt"
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// SaveMessage stores a message once. Saving the same event id again for
// the same conversation is a no-op and reports inserted=false.
func (db *DB) SaveMessage(m model.ChatMessage) (inserted bool, err error) {
	res, err := db.Exec(`
		INSERT INTO messages (conversation_id, id, sender, content, timestamp, is_own)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, id) DO NOTHING`,
		string(m.ConversationID), string(m.ID), m.Sender.String(), m.Content, m.Timestamp.UnixMilli(), m.IsOwn)
	if err != nil {
		return false, fmt.Errorf("save message %s: %w", m.ID.Short(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LoadMessages returns a conversation's messages ordered by timestamp.
func (db *DB) LoadMessages(conversationID model.ConversationID) ([]model.ChatMessage, error) {
	rows, err := db.Query(`
		SELECT conversation_id, id, sender, content, timestamp, is_own
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC`, string(conversationID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.ChatMessage
	for rows.Next() {
		var (
			m              model.ChatMessage
			convID, id, pk string
			ts             int64
		)
		if err := rows.Scan(&convID, &id, &pk, &m.Content, &ts, &m.IsOwn); err != nil {
			return nil, err
		}
		sender, err := identity.ParsePublicKey(pk)
		if err != nil {
			return nil, fmt.Errorf("message %s sender: %w", id, err)
		}
		m.ConversationID = model.ConversationID(convID)
		m.ID = event.ID(id)
		m.Sender = sender
		m.Timestamp = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearMessages deletes every message.
func (db *DB) ClearMessages() error {
	_, err := db.Exec(`DELETE FROM messages`)
	return err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
