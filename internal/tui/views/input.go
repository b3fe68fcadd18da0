package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// Input shows the message being typed. Keys never reach it directly; the
// buffer lives in the state.
type Input struct {
	*tview.TextView
	theme *ui.Theme
}

// NewInput creates the input pane.
func NewInput(theme *ui.Theme) *Input {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetTextColor(theme.FgColor)
	return &Input{TextView: tv, theme: theme}
}

// Update renders the input buffer with a cursor when focused.
func (in *Input) Update(s model.State) {
	in.Clear()
	focused := s.Pane == model.PaneInput
	in.theme.Frame(in.Box, "Message", focused)

	key := ui.ColorName(in.theme.KeyColor)
	if _, ok := s.ActiveConversation(); !ok {
		_, _ = fmt.Fprintf(in, "[%s]>[-] [%s]no conversation selected[-]", key, ui.ColorName(in.theme.DimColor))
		return
	}
	cursor := ""
	if focused {
		cursor = "[::r] [::-]"
	}
	_, _ = fmt.Fprintf(in, "[%s]>[-] %s%s", key, safe(s.Input), cursor)
}
