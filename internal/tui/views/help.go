package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/tui/ui"
)

var helpSections = []struct {
	title string
	keys  [][2]string
}{
	{"Global", [][2]string{
		{"Tab", "Next pane"},
		{"F1", "Toggle this help"},
		{"F2", "Power tools"},
		{"Ctrl-P", "Publish key package"},
		{"Ctrl-O", "Show identity"},
		{"Ctrl-Q", "Quit"},
	}},
	{"Contacts", [][2]string{
		{"j/k", "Move"},
		{"Enter", "Add contact"},
		{"c", "New conversation with contact"},
	}},
	{"Conversations", [][2]string{
		{"j/k", "Move through invites and conversations"},
		{"Enter", "Open conversation / accept invite"},
		{"x", "Dismiss invite"},
	}},
	{"Chat and input", [][2]string{
		{"j/k", "Scroll history"},
		{"Enter", "Send message"},
		{"Backspace", "Delete last character"},
	}},
	{"Power tools", [][2]string{
		{"Enter", "Run selected tool"},
		{"l", "Debug log"},
		{"Ctrl-C", "Clear debug log"},
		{"Esc", "Back"},
	}},
}

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetTextColor(theme.FgColor)
	theme.Frame(tv.Box, "Help (F1 to close)", true)

	hv := &HelpView{TextView: tv, theme: theme}
	hv.render()
	return hv
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.KeyColor)
	var b strings.Builder
	for _, sec := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n", sec.title)
		for _, k := range sec.keys {
			fmt.Fprintf(&b, "  [%s]%-10s[-] %s\n", kc, k[0], k[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
