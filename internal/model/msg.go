package model

import (
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/status"
)

// Msg is an input to Update. The set is closed.
type Msg interface{ isMsg() }

// KeyPressed is a decoded key press.
type KeyPressed struct{ Key Key }

// Tick carries the current time. It is the only clock the reducer sees.
type Tick struct{ Now time.Time }

// PollRelay asks for a message fetch, and an invite fetch when
// IncludeInvites is set.
type PollRelay struct{ IncludeInvites bool }

// SubmitMessage sends the input buffer to the selected conversation.
type SubmitMessage struct{}

// SelectConversation makes a conversation active and loads its history
// on first open.
type SelectConversation struct{ ID ConversationID }

// SelectInvite moves the conversations pane cursor to an invite.
type SelectInvite struct{ Index int }

// SelectContact highlights a contact.
type SelectContact struct{ ID ContactID }

// AcceptInvite asks the executor to join the invite's group. The invite
// stays listed until InviteAccepted arrives.
type AcceptInvite struct{ Index int }

// DismissInvite drops an invite locally.
type DismissInvite struct{ Index int }

// Rehydrated carries everything loaded from the database at startup.
type Rehydrated struct {
	Contacts      []Contact
	Conversations []Conversation
	Invites       []PendingInvite
	ProcessedIDs  []event.ID
}

// ContactsLoaded replaces the contact list with the stored one.
type ContactsLoaded struct{ Contacts []Contact }

// ContactSaved is the stored form of a contact, including its id.
type ContactSaved struct{ Contact Contact }

// ConversationsLoaded replaces the conversation list with the stored one.
type ConversationsLoaded struct{ Conversations []Conversation }

// ConversationCreated adds a conversation whose group was just created.
type ConversationCreated struct{ Conversation Conversation }

// HistoryLoaded carries a conversation's persisted messages.
type HistoryLoaded struct {
	ConversationID ConversationID
	Messages       []ChatMessage
}

// MessageReceived is a decrypted message whose event id was already
// recorded as processed.
type MessageReceived struct{ Message ChatMessage }

// InvitesFetched carries invites found on the relay. They are merged
// into the pending list by source event id.
type InvitesFetched struct{ Invites []PendingInvite }

// InviteAccepted reports a joined group that passed the usability probe.
type InviteAccepted struct {
	SourceEventID event.ID
	Conversation  Conversation
}

// EventsProcessed mirrors ids the synchronizer marked as processed.
type EventsProcessed struct{ IDs []event.ID }

type RelayStatusChanged struct{ Status status.State }

type StateReset struct{}

type ContactsCleared struct{}

type ConversationsCleared struct{}

// Notify shows a toast.
type Notify struct {
	Level Level
	Text  string
	At    time.Time
}

// CommandFailed reports a failed command. Err is usually an *errs.Error.
type CommandFailed struct {
	Op  string
	Err error
	At  time.Time
}

// LogMessage appends to the debug log.
type LogMessage struct{ Entry LogEntry }

type Quit struct{}

func (KeyPressed) isMsg()           {}
func (Tick) isMsg()                 {}
func (PollRelay) isMsg()            {}
func (SubmitMessage) isMsg()        {}
func (SelectConversation) isMsg()   {}
func (SelectInvite) isMsg()         {}
func (SelectContact) isMsg()        {}
func (AcceptInvite) isMsg()         {}
func (DismissInvite) isMsg()        {}
func (Rehydrated) isMsg()           {}
func (ContactsLoaded) isMsg()       {}
func (ContactSaved) isMsg()         {}
func (ConversationsLoaded) isMsg()  {}
func (ConversationCreated) isMsg()  {}
func (HistoryLoaded) isMsg()        {}
func (MessageReceived) isMsg()      {}
func (InvitesFetched) isMsg()       {}
func (InviteAccepted) isMsg()       {}
func (EventsProcessed) isMsg()      {}
func (RelayStatusChanged) isMsg()   {}
func (StateReset) isMsg()           {}
func (ContactsCleared) isMsg()      {}
func (ConversationsCleared) isMsg() {}
func (Notify) isMsg()               {}
func (CommandFailed) isMsg()        {}
func (LogMessage) isMsg()           {}
func (Quit) isMsg()                 {}
