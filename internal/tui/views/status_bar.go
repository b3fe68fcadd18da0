package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/keys"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// StatusBar displays session, identity, relay state and key hints.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, session string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, session: session}
}

// Update renders the bar for s.
func (sb *StatusBar) Update(s model.State) {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] %s | [%s]%s[-]",
		sb.session, s.Self.Short(),
		ui.ColorName(sb.theme.Relay(s.Relay)), s.Relay)
	if n := s.UnreadTotal(); n > 0 {
		line += fmt.Sprintf(" | [%s]%d unread[-]", ui.ColorName(sb.theme.UnreadColor), n)
	}
	if n := len(s.Invites); n > 0 {
		line += fmt.Sprintf(" | [%s]%d invites[-]", ui.ColorName(sb.theme.InviteColor), n)
	}

	key := ui.ColorName(sb.theme.KeyColor)
	var hints []string
	for _, h := range keys.Hints(s) {
		hints = append(hints, fmt.Sprintf("[%s]%s[-] %s", key, tview.Escape(h.Key), h.Description))
	}
	line += " | " + strings.Join(hints, "  ")

	_, _ = fmt.Fprint(sb, line)
}
