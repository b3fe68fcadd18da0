package model

import (
	"encoding/hex"
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
)

// ContactID is a locally generated handle used for UI selection.
type ContactID string

// ConversationID is the hex encoding of the group handle for group-backed
// conversations.
type ConversationID string

// GroupHandle identifies a cryptographic group inside the group channel.
type GroupHandle []byte

func (h GroupHandle) String() string { return hex.EncodeToString(h) }

// ConversationID derives the conversation id for a group.
func (h GroupHandle) ConversationID() ConversationID {
	return ConversationID(hex.EncodeToString(h))
}

// ParseGroupHandle decodes a hex group handle.
func ParseGroupHandle(s string) (GroupHandle, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return GroupHandle(b), nil
}

// Contact is someone the user may start a conversation with. Only
// DisplayName changes after creation.
type Contact struct {
	ID          ContactID
	PublicKey   identity.PublicKey
	DisplayName string
	CreatedAt   time.Time
}

// Conversation is a local view of a group. A zero LastMessageTime means no
// message has been seen yet.
type Conversation struct {
	ID              ConversationID
	GroupHandle     GroupHandle
	Name            string
	Participants    []identity.PublicKey
	LastMessageTime time.Time
	UnreadCount     int
}

// CanReceive reports whether the conversation is backed by a group.
func (c Conversation) CanReceive() bool { return len(c.GroupHandle) > 0 }

// ChatMessage is a decrypted application message. ID is the relay event
// that carried it.
type ChatMessage struct {
	ID             event.ID
	ConversationID ConversationID
	Sender         identity.PublicKey
	Content        string
	Timestamp      time.Time
	IsOwn          bool
}

// PendingInvite is a group welcome waiting for the user to accept or
// dismiss it.
type PendingInvite struct {
	ID            string
	From          identity.PublicKey
	GroupName     string
	SourceEventID event.ID
	Timestamp     time.Time
}
