package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

var (
	self  = identity.MustParsePublicKey(strings.Repeat("a1", 32))
	alice = identity.MustParsePublicKey(strings.Repeat("b2", 32))
)

func state() model.State {
	s := model.New(self)
	s.Now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	s.Contacts = []model.Contact{{ID: "c-alice", PublicKey: alice, DisplayName: "alice"}}
	s.Invites = []model.PendingInvite{{ID: "i1", From: alice, GroupName: "book club", SourceEventID: "w1"}}
	s.Conversations = []model.Conversation{
		{ID: "conv1", GroupHandle: model.GroupHandle{1}, Name: "alice", UnreadCount: 2, LastMessageTime: s.Now.Add(-time.Hour)},
	}
	s.Messages["conv1"] = []model.ChatMessage{
		{ID: "e1", ConversationID: "conv1", Sender: alice, Content: "hello [red]", Timestamp: s.Now.Add(-time.Hour)},
		{ID: "e2", ConversationID: "conv1", Sender: self, Content: "hi", Timestamp: s.Now, IsOwn: true},
	}
	s.Selection = model.ConversationWith("conv1")
	return s
}

func TestConversationListRows(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update(state())

	if got := cl.GetRowCount(); got != 3 {
		t.Fatalf("rows = %d, want invite, separator, conversation", got)
	}
	if got := cl.GetCell(0, 0).Text; !strings.Contains(got, "book club") {
		t.Errorf("invite row = %q", got)
	}
	if !cl.GetCell(1, 0).NotSelectable {
		t.Error("separator is selectable")
	}
	if got := cl.GetCell(2, 0).Text; !strings.Contains(got, "(2)") {
		t.Errorf("conversation row = %q, want unread badge", got)
	}
	if row, _ := cl.GetSelection(); row != 2 {
		t.Errorf("cursor row = %d", row)
	}
}

func TestChatViewEscapesContent(t *testing.T) {
	cv := NewChatView(ui.DefaultTheme())
	cv.Update(state())
	text := cv.GetText(true)
	if !strings.Contains(text, "hello [red") {
		t.Errorf("content lost or interpreted as a color tag: %q", text)
	}
	if !strings.Contains(text, "you") || !strings.Contains(text, "alice") {
		t.Errorf("senders missing: %q", text)
	}
}

func TestDialogViewAddContactFields(t *testing.T) {
	dv := NewDialogView(ui.DefaultTheme(), "ws://relay")
	s := state()
	s.Dialog = model.Dialog{Mode: model.DialogAddContact, Field: 1, Input: "bob", Stored: []string{alice.String()}}
	dv.Update(s)
	text := dv.GetText(true)
	if !strings.Contains(text, "Display name") || !strings.Contains(text, "bob") {
		t.Errorf("dialog = %q", text)
	}
}

func TestRenderQR(t *testing.T) {
	qr := RenderQR(alice.String())
	lines := strings.Split(strings.TrimRight(qr, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("QR has %d lines", len(lines))
	}
	if !strings.ContainsAny(qr, "█▀▄") {
		t.Error("QR has no blocks")
	}
}

func TestClean(t *testing.T) {
	if got := clean("\U0001F44D\U0001F3FB ok\u200d"); got != "\U0001F44D ok" {
		t.Errorf("clean = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
}
