package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// DialogView renders every modal dialog except the identity one.
type DialogView struct {
	*tview.TextView
	theme *ui.Theme
	relay string
}

// NewDialogView creates the dialog body. relay is named in the key
// package confirmation.
func NewDialogView(theme *ui.Theme, relay string) *DialogView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetTextColor(theme.FgColor)
	return &DialogView{TextView: tv, theme: theme, relay: relay}
}

// Update renders s.Dialog.
func (dv *DialogView) Update(s model.State) {
	dv.Clear()
	d := s.Dialog
	key := ui.ColorName(dv.theme.KeyColor)
	dim := ui.ColorName(dv.theme.DimColor)
	var b strings.Builder

	switch d.Mode {
	case model.DialogAddContact:
		dv.theme.Frame(dv.Box, "Add contact", true)
		if d.Field == 0 {
			fmt.Fprintf(&b, "\n Public key (hex)\n [%s]>[-] %s[::r] [::-]\n", key, safe(d.Input))
			fmt.Fprintf(&b, "\n [%s]Tab or Enter for the name field[-]", dim)
			break
		}
		stored := ""
		if len(d.Stored) > 0 {
			stored = d.Stored[len(d.Stored)-1]
		}
		fmt.Fprintf(&b, "\n Public key\n   [%s]%s[-]\n", dim, safe(truncate(stored, 40)))
		fmt.Fprintf(&b, "\n Display name\n [%s]>[-] %s[::r] [::-]\n", key, safe(d.Input))
	case model.DialogCreateConversation:
		dv.theme.Frame(dv.Box, "New conversation", true)
		b.WriteString("\n Start a group with:\n\n")
		for i, c := range s.Contacts {
			dv.choice(&b, i == d.Field, fmt.Sprintf("%s (%s)", c.DisplayName, c.PublicKey.Short()))
		}
	case model.DialogPublishKeyPackage:
		dv.theme.Frame(dv.Box, "Publish key package", true)
		fmt.Fprintf(&b, "\n Publish a fresh key package to\n   [%s]%s[-]\n\n so contacts can add you to groups.\n\n [%s]Enter[-] publish   [%s]Esc[-] cancel",
			key, safe(dv.relay), key, key)
	case model.DialogAcceptInvite:
		dv.theme.Frame(dv.Box, "Accept invite", true)
		b.WriteString("\n Join group:\n\n")
		for i, inv := range s.Invites {
			name := inv.GroupName
			if name == "" {
				name = "unnamed group"
			}
			dv.choice(&b, i == d.Field, fmt.Sprintf("%s from %s", name, s.ContactName(inv.From)))
		}
	case model.DialogConfirmReset:
		dv.theme.Frame(dv.Box, "Reset all state", true)
		fmt.Fprintf(&b, "\n [%s]This deletes every contact, conversation, message and group.[-]\n\n Type y and press Enter to confirm.\n\n [%s]>[-] %s[::r] [::-]",
			ui.ColorName(dv.theme.ErrColor), key, safe(d.Input))
	}
	_, _ = fmt.Fprint(dv, b.String())
}

func (dv *DialogView) choice(b *strings.Builder, selected bool, text string) {
	if selected {
		fmt.Fprintf(b, " [%s:%s] %s [-:-]\n", ui.ColorName(dv.theme.CursorFg), ui.ColorName(dv.theme.CursorBg), safe(truncate(text, 44)))
		return
	}
	fmt.Fprintf(b, "  %s\n", safe(truncate(text, 44)))
}
