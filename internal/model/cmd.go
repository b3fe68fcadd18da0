package model

import (
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
)

// Cmd is a side effect requested by Update. A nil Cmd does nothing.
type Cmd interface{ isCmd() }

// Batch runs its commands in order.
type Batch []Cmd

// Rehydrate loads persisted state at startup.
type Rehydrate struct{}

type ConnectRelay struct{}

// SendMessage encrypts Text for the conversation's group and publishes it.
type SendMessage struct {
	Text           string
	ConversationID ConversationID
}

// CreateMlsGroup starts a group with a contact and sends them a welcome.
type CreateMlsGroup struct{ ContactID ContactID }

type FetchPendingInvites struct{}

type FetchNewMessages struct{}

// AcceptPendingInvite joins the group behind Invite. Index is the list
// position at the time of the request.
type AcceptPendingInvite struct {
	Index  int
	Invite PendingInvite
}

type DismissPendingInvite struct{ SourceEventID event.ID }

// SaveContact stores a contact. The executor assigns id and creation time.
type SaveContact struct {
	PublicKey   identity.PublicKey
	DisplayName string
}

type SaveMessage struct{ Message ChatMessage }

type SaveConversation struct{ Conversation Conversation }

type LoadConversationHistory struct{ ID ConversationID }

type LoadContacts struct{}

type LoadConversations struct{}

type PublishKeyPackage struct{}

// ResetAllState wipes contacts, conversations, messages and invites and
// resets the group channel.
type ResetAllState struct{}

type DeleteAllContacts struct{}

type DeleteAllConversations struct{}

type RescanRelays struct{}

type Exit struct{}

func (Batch) isCmd()                   {}
func (Rehydrate) isCmd()               {}
func (ConnectRelay) isCmd()            {}
func (SendMessage) isCmd()             {}
func (CreateMlsGroup) isCmd()          {}
func (FetchPendingInvites) isCmd()     {}
func (FetchNewMessages) isCmd()        {}
func (AcceptPendingInvite) isCmd()     {}
func (DismissPendingInvite) isCmd()    {}
func (SaveContact) isCmd()             {}
func (SaveMessage) isCmd()             {}
func (SaveConversation) isCmd()        {}
func (LoadConversationHistory) isCmd() {}
func (LoadContacts) isCmd()            {}
func (LoadConversations) isCmd()       {}
func (PublishKeyPackage) isCmd()       {}
func (ResetAllState) isCmd()           {}
func (DeleteAllContacts) isCmd()       {}
func (DeleteAllConversations) isCmd()  {}
func (RescanRelays) isCmd()            {}
func (Exit) isCmd()                    {}

// Flatten expands nested batches into a flat list without nils.
func Flatten(c Cmd) []Cmd {
	switch c := c.(type) {
	case nil:
		return nil
	case Batch:
		var out []Cmd
		for _, inner := range c {
			out = append(out, Flatten(inner)...)
		}
		return out
	default:
		return []Cmd{c}
	}
}

// batch drops nils and collapses single-element batches.
func batch(cmds ...Cmd) Cmd {
	var out Batch
	for _, c := range cmds {
		if c != nil {
			out = append(out, c)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
