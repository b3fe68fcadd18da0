package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// SaveConversation inserts or replaces a conversation row.
func (db *DB) SaveConversation(c model.Conversation) error {
	participants := c.Participants
	if participants == nil {
		participants = []identity.PublicKey{}
	}
	encoded, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	var handle any
	if c.CanReceive() {
		handle = []byte(c.GroupHandle)
	}
	_, err = db.Exec(`
		INSERT INTO conversations (id, group_handle, name, participants, last_message_time, unread_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_handle = excluded.group_handle,
			name = excluded.name,
			participants = excluded.participants,
			last_message_time = excluded.last_message_time,
			unread_count = excluded.unread_count`,
		string(c.ID), handle, c.Name, string(encoded), nullableMillis(c.LastMessageTime), c.UnreadCount)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", c.ID, err)
	}
	return nil
}

// LoadConversations returns every conversation, most recently active first.
func (db *DB) LoadConversations() ([]model.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, group_handle, name, participants, last_message_time, unread_count
		FROM conversations
		ORDER BY last_message_time IS NULL, last_message_time DESC, name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// LoadConversation returns a conversation by id, or nil if it does not exist.
func (db *DB) LoadConversation(id model.ConversationID) (*model.Conversation, error) {
	row := db.QueryRow(`
		SELECT id, group_handle, name, participants, last_message_time, unread_count
		FROM conversations WHERE id = ?`, string(id))
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClearConversations deletes every conversation together with its messages
// and outbox entries.
func (db *DB) ClearConversations() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "outbox", "conversations"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func scanConversation(s scanner) (model.Conversation, error) {
	var (
		c            model.Conversation
		id           string
		handle       []byte
		participants string
		lastMessage  sql.NullInt64
	)
	if err := s.Scan(&id, &handle, &c.Name, &participants, &lastMessage, &c.UnreadCount); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return c, fmt.Errorf("conversation %s participants: %w", id, err)
	}
	c.ID = model.ConversationID(id)
	if len(handle) > 0 {
		c.GroupHandle = model.GroupHandle(handle)
	}
	c.LastMessageTime = fromNullableMillis(lastMessage)
	return c, nil
}
