package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matheus3301/dialog/internal/errs"
	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
)

// Update applies msg to s. It performs no I/O and reads no clock; the
// returned State shares no mutable memory that Update wrote to with s.
func Update(s State, msg Msg) (State, Cmd) {
	switch m := msg.(type) {
	case KeyPressed:
		return handleKey(s, m.Key)
	case Tick:
		return handleTick(s, m)
	case PollRelay:
		if m.IncludeInvites {
			return s, Batch{FetchPendingInvites{}, FetchNewMessages{}}
		}
		return s, FetchNewMessages{}
	case SubmitMessage:
		return submitMessage(s)
	case SelectConversation:
		return selectConversation(s, m.ID)
	case SelectInvite:
		if m.Index < 0 || m.Index >= len(s.Invites) {
			return s, nil
		}
		s.Selection = InviteAt(m.Index)
		return s, nil
	case SelectContact:
		if _, ok := s.Contact(m.ID); ok {
			s.SelectedContact = m.ID
		}
		return s, nil
	case AcceptInvite:
		if m.Index < 0 || m.Index >= len(s.Invites) {
			return s, nil
		}
		return s, AcceptPendingInvite{Index: m.Index, Invite: s.Invites[m.Index]}
	case DismissInvite:
		return dismissInvite(s, m.Index)
	case Rehydrated:
		return rehydrated(s, m)
	case ContactsLoaded:
		s.Contacts = slices.Clone(m.Contacts)
		return normalize(s), nil
	case ContactSaved:
		return contactSaved(s, m.Contact)
	case ConversationsLoaded:
		s.Conversations = slices.Clone(m.Conversations)
		sortConversations(s.Conversations)
		return normalize(s), nil
	case ConversationCreated:
		s = upsertConversation(s, m.Conversation)
		return toast(s, LevelInfo, fmt.Sprintf("Created conversation %s", m.Conversation.Name)), nil
	case HistoryLoaded:
		return historyLoaded(s, m)
	case MessageReceived:
		return messageReceived(s, m.Message)
	case InvitesFetched:
		return invitesFetched(s, m.Invites)
	case InviteAccepted:
		return inviteAccepted(s, m)
	case EventsProcessed:
		if len(m.IDs) == 0 {
			return s, nil
		}
		s.Processed = maps.Clone(s.Processed)
		if s.Processed == nil {
			s.Processed = make(map[event.ID]struct{}, len(m.IDs))
		}
		for _, id := range m.IDs {
			s.Processed[id] = struct{}{}
		}
		return s, nil
	case RelayStatusChanged:
		s.Relay = m.Status
		return s, nil
	case StateReset:
		return stateReset(s), nil
	case ContactsCleared:
		s.Contacts = nil
		s.SelectedContact = ""
		return toast(s, LevelWarn, "All contacts deleted"), nil
	case ConversationsCleared:
		s.Conversations = nil
		s.Messages = map[ConversationID][]ChatMessage{}
		s.HistoryLoaded = map[ConversationID]bool{}
		return toast(normalize(s), LevelWarn, "All conversations deleted"), nil
	case Notify:
		return pushToast(s, Toast{Level: m.Level, Text: m.Text, At: m.At}), nil
	case CommandFailed:
		return commandFailed(s, m), nil
	case LogMessage:
		return appendLog(s, m.Entry), nil
	case Quit:
		return s, Exit{}
	}
	return s, nil
}

func handleTick(s State, m Tick) (State, Cmd) {
	s.Now = m.Now
	if slices.ContainsFunc(s.Toasts, func(t Toast) bool { return t.Expired(m.Now) }) {
		s.Toasts = slices.DeleteFunc(slices.Clone(s.Toasts), func(t Toast) bool { return t.Expired(m.Now) })
	}
	return s, nil
}

func submitMessage(s State) (State, Cmd) {
	if strings.TrimSpace(s.Input) == "" || s.Selection.Kind != SelectionConversation {
		return s, nil
	}
	text := s.Input
	s.Input = ""
	return s, SendMessage{Text: text, ConversationID: s.Selection.Conversation}
}

func selectConversation(s State, id ConversationID) (State, Cmd) {
	i := s.conversationIndex(id)
	if i < 0 {
		return s, nil
	}
	s.Selection = ConversationWith(id)
	s.Scroll = 0
	s.Pane = PaneChat
	if s.Conversations[i].UnreadCount != 0 {
		s.Conversations = slices.Clone(s.Conversations)
		s.Conversations[i].UnreadCount = 0
	}
	if s.HistoryLoaded[id] {
		return s, nil
	}
	return s, LoadConversationHistory{ID: id}
}

func messageReceived(s State, m ChatMessage) (State, Cmd) {
	msgs, inserted := insertMessage(s.Messages[m.ConversationID], m)
	if !inserted {
		return s, nil
	}
	s.cloneMessages()
	s.Messages[m.ConversationID] = msgs

	i := s.conversationIndex(m.ConversationID)
	if i < 0 {
		return s, SaveMessage{Message: m}
	}
	s.Conversations = slices.Clone(s.Conversations)
	conv := &s.Conversations[i]
	if m.Timestamp.After(conv.LastMessageTime) {
		conv.LastMessageTime = m.Timestamp
	}
	active := s.Selection.Kind == SelectionConversation && s.Selection.Conversation == m.ConversationID
	if !m.IsOwn && !active {
		conv.UnreadCount++
	}
	updated := *conv
	sortConversations(s.Conversations)
	return s, Batch{SaveMessage{Message: m}, SaveConversation{Conversation: updated}}
}

func historyLoaded(s State, m HistoryLoaded) (State, Cmd) {
	merged := s.Messages[m.ConversationID]
	for _, msg := range m.Messages {
		merged, _ = insertMessage(merged, msg)
	}
	s.cloneMessages()
	s.Messages[m.ConversationID] = merged
	s.cloneHistoryLoaded()
	s.HistoryLoaded[m.ConversationID] = true
	return s, nil
}

func rehydrated(s State, m Rehydrated) (State, Cmd) {
	s.Contacts = slices.Clone(m.Contacts)
	s.Conversations = slices.Clone(m.Conversations)
	sortConversations(s.Conversations)
	s.Invites = nil
	s, _ = mergeInvites(s, m.Invites)
	s.Messages = map[ConversationID][]ChatMessage{}
	s.HistoryLoaded = map[ConversationID]bool{}
	s.Processed = make(map[event.ID]struct{}, len(m.ProcessedIDs))
	for _, id := range m.ProcessedIDs {
		s.Processed[id] = struct{}{}
	}
	return normalize(s), nil
}

func contactSaved(s State, c Contact) (State, Cmd) {
	i := slices.IndexFunc(s.Contacts, func(x Contact) bool { return x.PublicKey == c.PublicKey || x.ID == c.ID })
	s.Contacts = slices.Clone(s.Contacts)
	if i >= 0 {
		s.Contacts[i] = c
	} else {
		s.Contacts = append(s.Contacts, c)
	}
	if s.SelectedContact == "" {
		s.SelectedContact = c.ID
	}
	return toast(s, LevelInfo, fmt.Sprintf("Saved contact %s", c.DisplayName)), nil
}

func upsertConversation(s State, c Conversation) State {
	s.Conversations = slices.Clone(s.Conversations)
	if i := s.conversationIndex(c.ID); i >= 0 {
		s.Conversations[i] = c
	} else {
		s.Conversations = append(s.Conversations, c)
	}
	sortConversations(s.Conversations)
	return s
}

// mergeInvites appends invites whose source event is not listed yet and
// reports how many were new.
func mergeInvites(s State, invites []PendingInvite) (State, int) {
	added := 0
	for _, inv := range invites {
		if slices.ContainsFunc(s.Invites, func(x PendingInvite) bool { return x.SourceEventID == inv.SourceEventID }) {
			continue
		}
		if added == 0 {
			s.Invites = slices.Clone(s.Invites)
		}
		s.Invites = append(s.Invites, inv)
		added++
	}
	return s, added
}

func invitesFetched(s State, invites []PendingInvite) (State, Cmd) {
	s, added := mergeInvites(s, invites)
	if added == 0 {
		return s, nil
	}
	s = normalize(s)
	return toast(s, LevelInfo, fmt.Sprintf("%d new invite(s)", added)), nil
}

func removeInvite(s State, i int) State {
	invites := make([]PendingInvite, 0, len(s.Invites)-1)
	invites = append(invites, s.Invites[:i]...)
	s.Invites = append(invites, s.Invites[i+1:]...)
	if s.Selection.Kind == SelectionInvite && s.Selection.Invite > i {
		s.Selection.Invite--
	}
	return normalize(s)
}

func dismissInvite(s State, index int) (State, Cmd) {
	if index < 0 || index >= len(s.Invites) {
		return s, nil
	}
	source := s.Invites[index].SourceEventID
	s = removeInvite(s, index)
	return s, DismissPendingInvite{SourceEventID: source}
}

func inviteAccepted(s State, m InviteAccepted) (State, Cmd) {
	if i := slices.IndexFunc(s.Invites, func(x PendingInvite) bool { return x.SourceEventID == m.SourceEventID }); i >= 0 {
		s = removeInvite(s, i)
	}
	s = upsertConversation(s, m.Conversation)
	s = normalize(s)
	return toast(s, LevelInfo, fmt.Sprintf("Joined %s", m.Conversation.Name)), nil
}

// stateReset keeps the processed set; those events already moved the
// group channel and must not be fed to it again.
func stateReset(s State) State {
	s.Contacts = nil
	s.Conversations = nil
	s.Messages = map[ConversationID][]ChatMessage{}
	s.HistoryLoaded = map[ConversationID]bool{}
	s.Invites = nil
	s.SelectedContact = ""
	s.Selection = Selection{}
	s.Input = ""
	s.Scroll = 0
	return toast(s, LevelWarn, "All state reset")
}

func commandFailed(s State, m CommandFailed) State {
	text := m.Op + " failed"
	if m.Err != nil {
		text = m.Err.Error()
	}
	s = appendLog(s, LogEntry{At: m.At, Level: LevelError, Text: text})
	return pushToast(s, Toast{Level: LevelError, Text: text, At: m.At})
}

func toast(s State, level Level, text string) State {
	return pushToast(s, Toast{Level: level, Text: text, At: s.Now})
}

func pushToast(s State, t Toast) State {
	toasts := append(slices.Clone(s.Toasts), t)
	if len(toasts) > MaxToasts {
		toasts = toasts[len(toasts)-MaxToasts:]
	}
	s.Toasts = toasts
	return s
}

func appendLog(s State, e LogEntry) State {
	entries := append(slices.Clone(s.DebugLog), e)
	if len(entries) > MaxLogEntries {
		entries = entries[len(entries)-MaxLogEntries:]
	}
	s.DebugLog = entries
	return s
}

// normalize repairs selections after a list changed underneath them.
func normalize(s State) State {
	if s.SelectedContact != "" {
		if _, ok := s.Contact(s.SelectedContact); !ok {
			s.SelectedContact = ""
		}
	}
	switch s.Selection.Kind {
	case SelectionInvite:
		switch {
		case len(s.Invites) == 0:
			s.Selection = Selection{}
		case s.Selection.Invite >= len(s.Invites):
			s.Selection = InviteAt(len(s.Invites) - 1)
		case s.Selection.Invite < 0:
			s.Selection = InviteAt(0)
		}
	case SelectionConversation:
		if s.conversationIndex(s.Selection.Conversation) < 0 {
			s.Selection = Selection{}
		}
	}
	return s
}

// Keys.

func handleKey(s State, k Key) (State, Cmd) {
	if s.Dialog.Open() {
		return handleDialogKey(s, k)
	}
	switch k.Code {
	case KeyCtrlQ:
		return s, Exit{}
	case KeyCtrlP:
		return openDialog(s, DialogPublishKeyPackage, 0), nil
	case KeyCtrlO:
		return openDialog(s, DialogShowIdentity, 0), nil
	case KeyF1:
		s.ShowHelp = !s.ShowHelp
		return s, nil
	case KeyF2:
		return togglePowerTools(s), nil
	case KeyTab:
		s.Pane = nextPane(s.Pane)
		return s, nil
	}
	switch s.Pane {
	case PanePowerTools:
		return handlePowerToolsKey(s, k)
	case PaneContacts:
		return handleContactsKey(s, k)
	case PaneConversations:
		return handleConversationsKey(s, k)
	case PaneChat:
		switch {
		case k.down():
			s.Scroll = max(s.Scroll-1, 0)
		case k.up():
			s.Scroll++
		}
		return s, nil
	case PaneInput:
		switch k.Code {
		case KeyEnter:
			return submitMessage(s)
		case KeyBackspace:
			s.Input = dropLastRune(s.Input)
		case KeyRune:
			s.Input += string(k.Rune)
		}
		return s, nil
	}
	return s, nil
}

func nextPane(p Pane) Pane {
	switch p {
	case PaneContacts:
		return PaneConversations
	case PaneConversations:
		return PaneChat
	case PaneChat:
		return PaneInput
	}
	return PaneContacts
}

func togglePowerTools(s State) State {
	if s.Pane == PanePowerTools {
		s.Pane = PaneContacts
		return s
	}
	s.Pane = PanePowerTools
	s.PowerMode = PowerMenu
	s.PowerSelection = 0
	return s
}

func handleContactsKey(s State, k Key) (State, Cmd) {
	switch {
	case k.down():
		s.SelectedContact = stepContact(s, 1)
	case k.up():
		s.SelectedContact = stepContact(s, -1)
	case k.Code == KeyEnter:
		return openDialog(s, DialogAddContact, 0), nil
	case k.is('c'):
		return openCreateConversation(s), nil
	}
	return s, nil
}

func stepContact(s State, delta int) ContactID {
	n := len(s.Contacts)
	if n == 0 {
		return ""
	}
	i := slices.IndexFunc(s.Contacts, func(c Contact) bool { return c.ID == s.SelectedContact })
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = n - 1
	default:
		i = (i + delta + n) % n
	}
	return s.Contacts[i].ID
}

func handleConversationsKey(s State, k Key) (State, Cmd) {
	switch {
	case k.down():
		s.Selection = stepSelection(s, 1)
		return s, nil
	case k.up():
		s.Selection = stepSelection(s, -1)
		return s, nil
	case k.is('x'):
		if s.Selection.Kind == SelectionInvite {
			return dismissInvite(s, s.Selection.Invite)
		}
		return s, nil
	case k.Code == KeyEnter:
		switch s.Selection.Kind {
		case SelectionInvite:
			return openDialog(s, DialogAcceptInvite, s.Selection.Invite), nil
		case SelectionConversation:
			return selectConversation(s, s.Selection.Conversation)
		}
		return openCreateConversation(s), nil
	}
	return s, nil
}

// stepSelection moves the cursor over selectable rows, wrapping around.
func stepSelection(s State, delta int) Selection {
	var rows []Selection
	for _, item := range s.Items() {
		if item.Selectable() {
			rows = append(rows, item.selection())
		}
	}
	n := len(rows)
	if n == 0 {
		return Selection{}
	}
	i := slices.Index(rows, s.Selection)
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = n - 1
	default:
		i = (i + delta + n) % n
	}
	return rows[i]
}

func handlePowerToolsKey(s State, k Key) (State, Cmd) {
	if s.PowerMode == PowerDebugLog {
		switch {
		case k.Code == KeyEsc:
			s.PowerMode = PowerMenu
		case k.Code == KeyCtrlC:
			s.DebugLog = nil
			s.DebugScroll = 0
		case k.down():
			s.DebugScroll = min(s.DebugScroll+1, max(len(s.DebugLog)-1, 0))
		case k.up():
			s.DebugScroll = max(s.DebugScroll-1, 0)
		}
		return s, nil
	}
	n := len(PowerTools)
	switch {
	case k.Code == KeyEsc:
		s.Pane = PaneContacts
	case k.down():
		s.PowerSelection = (s.PowerSelection + 1) % n
	case k.up():
		s.PowerSelection = (s.PowerSelection - 1 + n) % n
	case k.is('l'):
		s.PowerMode = PowerDebugLog
	case k.Code == KeyEnter:
		return powerToolsAction(s)
	}
	return s, nil
}

func powerToolsAction(s State) (State, Cmd) {
	switch s.PowerSelection {
	case 0:
		return openDialog(s, DialogConfirmReset, 0), nil
	case 1:
		return s, DeleteAllContacts{}
	case 2:
		return s, DeleteAllConversations{}
	case 3:
		return s, RescanRelays{}
	case 4:
		return s, PublishKeyPackage{}
	case 5:
		s.PowerMode = PowerDebugLog
		return s, nil
	case 6:
		return s, FetchNewMessages{}
	case 7:
		return s, FetchPendingInvites{}
	}
	return s, nil
}

// Dialogs.

func openDialog(s State, mode DialogMode, field int) State {
	s.Dialog = Dialog{Mode: mode, Field: field}
	return s
}

func closeDialog(s State) State {
	s.Dialog = Dialog{}
	return s
}

func openCreateConversation(s State) State {
	if len(s.Contacts) == 0 {
		return toast(s, LevelWarn, "Add a contact before starting a conversation")
	}
	field := slices.IndexFunc(s.Contacts, func(c Contact) bool { return c.ID == s.SelectedContact })
	return openDialog(s, DialogCreateConversation, max(field, 0))
}

func handleDialogKey(s State, k Key) (State, Cmd) {
	switch k.Code {
	case KeyEsc:
		return closeDialog(s), nil
	case KeyEnter:
		return submitDialog(s)
	case KeyTab:
		return dialogNextField(s), nil
	case KeyBackspace:
		s.Dialog.Input = dropLastRune(s.Dialog.Input)
		return s, nil
	}
	switch s.Dialog.Mode {
	case DialogCreateConversation:
		return dialogStep(s, k, len(s.Contacts)), nil
	case DialogAcceptInvite:
		return dialogStep(s, k, len(s.Invites)), nil
	case DialogAddContact, DialogConfirmReset:
		if k.Code == KeyRune {
			s.Dialog.Input += string(k.Rune)
		}
	}
	return s, nil
}

func dialogStep(s State, k Key, n int) State {
	if n == 0 {
		return s
	}
	switch {
	case k.down():
		s.Dialog.Field = (s.Dialog.Field + 1) % n
	case k.up():
		s.Dialog.Field = (s.Dialog.Field - 1 + n) % n
	}
	return s
}

func dialogNextField(s State) State {
	switch s.Dialog.Mode {
	case DialogAddContact:
		s.Dialog.Stored = append(slices.Clone(s.Dialog.Stored), s.Dialog.Input)
		s.Dialog.Field = (s.Dialog.Field + 1) % 2
		s.Dialog.Input = ""
	case DialogCreateConversation:
		if n := len(s.Contacts); n > 0 {
			s.Dialog.Field = (s.Dialog.Field + 1) % n
		}
	}
	return s
}

func submitDialog(s State) (State, Cmd) {
	d := s.Dialog
	switch d.Mode {
	case DialogAddContact:
		if d.Field == 0 {
			return dialogNextField(s), nil
		}
		return submitAddContact(s)
	case DialogCreateConversation:
		if d.Field < 0 || d.Field >= len(s.Contacts) {
			return closeDialog(s), nil
		}
		return closeDialog(s), CreateMlsGroup{ContactID: s.Contacts[d.Field].ID}
	case DialogPublishKeyPackage:
		return closeDialog(s), PublishKeyPackage{}
	case DialogAcceptInvite:
		s = closeDialog(s)
		if d.Field < 0 || d.Field >= len(s.Invites) {
			return s, nil
		}
		return s, AcceptPendingInvite{Index: d.Field, Invite: s.Invites[d.Field]}
	case DialogConfirmReset:
		s = closeDialog(s)
		if !strings.EqualFold(strings.TrimSpace(d.Input), "y") {
			return s, nil
		}
		return s, ResetAllState{}
	}
	return closeDialog(s), nil
}

func submitAddContact(s State) (State, Cmd) {
	d := s.Dialog
	s = closeDialog(s)
	if len(d.Stored) == 0 {
		return s, nil
	}
	rawKey := strings.TrimSpace(d.Stored[len(d.Stored)-1])
	name := strings.TrimSpace(d.Input)
	if rawKey == "" || name == "" {
		return s, nil
	}
	pk, err := identity.ParsePublicKey(rawKey)
	if err != nil {
		e := errs.InvalidInputErr("add contact", fmt.Sprintf("invalid public key %q", rawKey))
		return pushToast(s, Toast{Level: LevelError, Text: e.Error(), At: s.Now}), nil
	}
	return s, SaveContact{PublicKey: pk, DisplayName: name}
}

func dropLastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return string(r[:len(r)-1])
}
