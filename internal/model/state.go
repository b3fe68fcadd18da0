package model

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/status"
)

// Pane is the focused area of the screen.
type Pane int

const (
	PaneContacts Pane = iota
	PaneConversations
	PaneChat
	PaneInput
	PanePowerTools
)

func (p Pane) String() string {
	switch p {
	case PaneContacts:
		return "contacts"
	case PaneConversations:
		return "conversations"
	case PaneChat:
		return "chat"
	case PaneInput:
		return "input"
	case PanePowerTools:
		return "power tools"
	}
	return "unknown"
}

// DialogMode is the modal dialog currently open, if any.
type DialogMode int

const (
	DialogNone DialogMode = iota
	DialogAddContact
	DialogCreateConversation
	DialogPublishKeyPackage
	DialogAcceptInvite
	DialogConfirmReset
	DialogShowIdentity
)

// Dialog holds the modal dialog and what has been typed into it. Field is
// the field index for AddContact and the list index for the picker dialogs.
type Dialog struct {
	Mode   DialogMode
	Input  string
	Field  int
	Stored []string
}

// Open reports whether a dialog is showing.
func (d Dialog) Open() bool { return d.Mode != DialogNone }

// PowerToolsMode switches the power tools pane between its menu and the
// debug log.
type PowerToolsMode int

const (
	PowerMenu PowerToolsMode = iota
	PowerDebugLog
)

// PowerTools lists the power tools menu entries in index order.
var PowerTools = []string{
	"Reset all state",
	"Delete all contacts",
	"Delete all conversations",
	"Rescan relays",
	"Republish key package",
	"Debug log",
	"Fetch new messages",
	"Fetch pending invites",
}

// Level is a toast or log severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "INFO"
}

// Lifetime is how long a toast of this level stays on screen.
func (l Level) Lifetime() time.Duration {
	switch l {
	case LevelWarn:
		return 8 * time.Second
	case LevelError:
		return 10 * time.Second
	}
	return 5 * time.Second
}

// MaxToasts caps the toast stack; older toasts are dropped first.
const MaxToasts = 5

// MaxLogEntries caps the debug log.
const MaxLogEntries = 1000

// Toast is a transient notification.
type Toast struct {
	Level Level
	Text  string
	At    time.Time
}

// Expired reports whether the toast has outlived its level's lifetime.
func (t Toast) Expired(now time.Time) bool {
	return !now.Before(t.At.Add(t.Level.Lifetime()))
}

// LogEntry is one line of the power tools debug log.
type LogEntry struct {
	At    time.Time
	Level Level
	Text  string
}

// SelectionKind tells what the conversations pane cursor points at.
type SelectionKind int

const (
	SelectionNone SelectionKind = iota
	SelectionInvite
	SelectionConversation
)

// Selection is the conversations pane cursor. It always resolves to
// nothing, a valid invite index or a known conversation id.
type Selection struct {
	Kind         SelectionKind
	Invite       int
	Conversation ConversationID
}

// InviteAt selects the invite at index i.
func InviteAt(i int) Selection { return Selection{Kind: SelectionInvite, Invite: i} }

// ConversationWith selects a conversation.
func ConversationWith(id ConversationID) Selection {
	return Selection{Kind: SelectionConversation, Conversation: id}
}

// State is the whole client state. It is a value: Update returns a new
// State and never writes through the old one's maps or slices.
type State struct {
	Self identity.PublicKey

	Contacts      []Contact
	Conversations []Conversation
	Messages      map[ConversationID][]ChatMessage
	HistoryLoaded map[ConversationID]bool
	Invites       []PendingInvite
	Processed     map[event.ID]struct{}

	Pane            Pane
	SelectedContact ContactID
	Selection       Selection
	Input           string
	Scroll          int
	Dialog          Dialog
	ShowHelp        bool

	PowerMode      PowerToolsMode
	PowerSelection int
	DebugLog       []LogEntry
	DebugScroll    int

	Toasts []Toast
	Relay  status.State
	Now    time.Time
}

// New returns the empty state for the given identity.
func New(self identity.PublicKey) State {
	return State{
		Self:          self,
		Messages:      map[ConversationID][]ChatMessage{},
		HistoryLoaded: map[ConversationID]bool{},
		Processed:     map[event.ID]struct{}{},
		Relay:         status.Disconnected,
	}
}

// Contact returns the contact with the given id.
func (s State) Contact(id ContactID) (Contact, bool) {
	i := slices.IndexFunc(s.Contacts, func(c Contact) bool { return c.ID == id })
	if i < 0 {
		return Contact{}, false
	}
	return s.Contacts[i], true
}

// ContactName returns the display name for a public key, or its short hex.
func (s State) ContactName(pk identity.PublicKey) string {
	if pk == s.Self {
		return "you"
	}
	for _, c := range s.Contacts {
		if c.PublicKey == pk {
			return c.DisplayName
		}
	}
	return pk.Short()
}

// Conversation returns the conversation with the given id.
func (s State) Conversation(id ConversationID) (Conversation, bool) {
	i := s.conversationIndex(id)
	if i < 0 {
		return Conversation{}, false
	}
	return s.Conversations[i], true
}

func (s State) conversationIndex(id ConversationID) int {
	return slices.IndexFunc(s.Conversations, func(c Conversation) bool { return c.ID == id })
}

// ActiveConversation returns the selected conversation, if any.
func (s State) ActiveConversation() (Conversation, bool) {
	if s.Selection.Kind != SelectionConversation {
		return Conversation{}, false
	}
	return s.Conversation(s.Selection.Conversation)
}

// IsProcessed reports whether an event id has been handed to the group
// channel.
func (s State) IsProcessed(id event.ID) bool {
	_, ok := s.Processed[id]
	return ok
}

// UnreadTotal sums unread counts across conversations.
func (s State) UnreadTotal() int {
	total := 0
	for _, c := range s.Conversations {
		total += c.UnreadCount
	}
	return total
}

// ItemKind is a row type in the combined invites and conversations list.
type ItemKind int

const (
	ItemInvite ItemKind = iota
	ItemSeparator
	ItemConversation
)

// ListItem is one row of the conversations pane.
type ListItem struct {
	Kind         ItemKind
	Invite       int
	Conversation ConversationID
}

// Selectable reports whether the cursor may rest on the row.
func (i ListItem) Selectable() bool { return i.Kind != ItemSeparator }

func (i ListItem) selection() Selection {
	switch i.Kind {
	case ItemInvite:
		return InviteAt(i.Invite)
	case ItemConversation:
		return ConversationWith(i.Conversation)
	}
	return Selection{}
}

// Items lists the conversations pane rows: invites, a separator when
// there are invites, then conversations.
func (s State) Items() []ListItem {
	items := make([]ListItem, 0, len(s.Invites)+1+len(s.Conversations))
	for i := range s.Invites {
		items = append(items, ListItem{Kind: ItemInvite, Invite: i})
	}
	if len(s.Invites) > 0 {
		items = append(items, ListItem{Kind: ItemSeparator})
	}
	for _, c := range s.Conversations {
		items = append(items, ListItem{Kind: ItemConversation, Conversation: c.ID})
	}
	return items
}

// ValidSelection reports whether sel points at an existing row.
func (s State) ValidSelection(sel Selection) bool {
	switch sel.Kind {
	case SelectionNone:
		return true
	case SelectionInvite:
		return sel.Invite >= 0 && sel.Invite < len(s.Invites)
	case SelectionConversation:
		return s.conversationIndex(sel.Conversation) >= 0
	}
	return false
}

// sortConversations orders by last message time descending with quiet
// conversations last, then name, then id.
func sortConversations(convs []Conversation) {
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		switch {
		case a.LastMessageTime.IsZero() && !b.LastMessageTime.IsZero():
			return 1
		case !a.LastMessageTime.IsZero() && b.LastMessageTime.IsZero():
			return -1
		}
		if c := b.LastMessageTime.Compare(a.LastMessageTime); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}

// insertMessage places m in timestamp order after any message with an
// equal timestamp. It returns the list unchanged if m.ID is present.
func insertMessage(msgs []ChatMessage, m ChatMessage) ([]ChatMessage, bool) {
	if slices.ContainsFunc(msgs, func(x ChatMessage) bool { return x.ID == m.ID }) {
		return msgs, false
	}
	i := len(msgs)
	for i > 0 && msgs[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	out := make([]ChatMessage, 0, len(msgs)+1)
	out = append(out, msgs[:i]...)
	out = append(out, m)
	out = append(out, msgs[i:]...)
	return out, true
}

func (s *State) cloneMessages() {
	s.Messages = maps.Clone(s.Messages)
	if s.Messages == nil {
		s.Messages = map[ConversationID][]ChatMessage{}
	}
}

func (s *State) cloneHistoryLoaded() {
	s.HistoryLoaded = maps.Clone(s.HistoryLoaded)
	if s.HistoryLoaded == nil {
		s.HistoryLoaded = map[ConversationID]bool{}
	}
}
