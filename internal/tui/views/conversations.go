package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// ConversationList is the conversations pane: pending invites, a
// separator, then conversations by recent activity.
type ConversationList struct {
	*tview.Table
	theme *ui.Theme
}

// NewConversationList creates the conversations table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	return &ConversationList{Table: table, theme: theme}
}

// Update renders the rows of s.Items and places the cursor on s.Selection.
func (cl *ConversationList) Update(s model.State) {
	cl.Clear()
	title := fmt.Sprintf("Conversations (%d)", len(s.Conversations))
	if len(s.Invites) > 0 {
		title += fmt.Sprintf(" +%d invites", len(s.Invites))
	}
	cl.theme.Frame(cl.Box, title, s.Pane == model.PaneConversations)

	items := s.Items()
	if len(items) == 0 {
		cl.SetCell(0, 0, tview.NewTableCell(" Enter to start a conversation").
			SetSelectable(false).
			SetTextColor(cl.theme.DimColor))
		return
	}

	cursor := -1
	for row, item := range items {
		switch item.Kind {
		case model.ItemInvite:
			inv := s.Invites[item.Invite]
			name := inv.GroupName
			if name == "" {
				name = "group"
			}
			cl.SetCell(row, 0, tview.NewTableCell(" ✉ "+safe(name)).
				SetExpansion(1).
				SetTextColor(cl.theme.InviteColor))
			cl.SetCell(row, 1, tview.NewTableCell("from "+safe(s.ContactName(inv.From))+" ").
				SetTextColor(cl.theme.DimColor).
				SetAlign(tview.AlignRight))
			if s.Selection.Kind == model.SelectionInvite && s.Selection.Invite == item.Invite {
				cursor = row
			}
		case model.ItemSeparator:
			cl.SetCell(row, 0, tview.NewTableCell(" "+strings.Repeat("─", 12)).
				SetSelectable(false).
				SetTextColor(cl.theme.DimColor))
			cl.SetCell(row, 1, tview.NewTableCell("").SetSelectable(false))
		case model.ItemConversation:
			conv, _ := s.Conversation(item.Conversation)
			name := " " + safe(conv.Name)
			color := cl.theme.FgColor
			if conv.UnreadCount > 0 {
				name = fmt.Sprintf(" (%d)%s", conv.UnreadCount, name)
				color = cl.theme.UnreadColor
			}
			cl.SetCell(row, 0, tview.NewTableCell(name).
				SetExpansion(1).
				SetTextColor(color))
			cl.SetCell(row, 1, tview.NewTableCell(stamp(conv.LastMessageTime, s.Now)+" ").
				SetTextColor(cl.theme.DimColor).
				SetAlign(tview.AlignRight))
			if s.Selection.Kind == model.SelectionConversation && s.Selection.Conversation == conv.ID {
				cursor = row
			}
		}
	}
	if cursor >= 0 {
		cl.SetSelectable(true, false)
		cl.Select(cursor, 0)
	} else {
		// nothing selected: hide the cursor instead of parking it on row 0
		cl.SetSelectable(false, false)
	}
}
