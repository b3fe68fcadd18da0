package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// ContactList is the contacts pane.
type ContactList struct {
	*tview.Table
	theme *ui.Theme
}

// NewContactList creates the contacts table.
func NewContactList(theme *ui.Theme) *ContactList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.CursorFg).
		Background(theme.CursorBg))
	return &ContactList{Table: table, theme: theme}
}

// Update renders the contacts and moves the cursor to the selected one.
func (cl *ContactList) Update(s model.State) {
	cl.Clear()
	cl.theme.Frame(cl.Box, fmt.Sprintf("Contacts (%d)", len(s.Contacts)), s.Pane == model.PaneContacts)

	if len(s.Contacts) == 0 {
		cl.SetCell(0, 0, tview.NewTableCell(" Enter to add a contact").
			SetSelectable(false).
			SetTextColor(cl.theme.DimColor))
		return
	}
	selected := 0
	for row, c := range s.Contacts {
		if c.ID == s.SelectedContact {
			selected = row
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+safe(c.DisplayName)).
			SetExpansion(1).
			SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(c.PublicKey.Short()+" ").
			SetTextColor(cl.theme.DimColor).
			SetAlign(tview.AlignRight))
	}
	cl.Select(selected, 0)
}
