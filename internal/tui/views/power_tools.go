package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// PowerTools is the maintenance menu and the debug log. It takes the
// chat area's place while the power tools pane is focused.
type PowerTools struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPowerTools creates the power tools pane.
func NewPowerTools(theme *ui.Theme) *PowerTools {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetTextColor(theme.FgColor)
	return &PowerTools{TextView: tv, theme: theme}
}

// Update renders the menu or the log, per s.PowerMode.
func (pt *PowerTools) Update(s model.State) {
	pt.Clear()
	if s.PowerMode == model.PowerDebugLog {
		pt.renderLog(s)
		return
	}
	pt.theme.Frame(pt.Box, "Power tools", true)
	for i, name := range model.PowerTools {
		if i == s.PowerSelection {
			_, _ = fmt.Fprintf(pt, " [%s:%s] %d. %s [-:-]\n",
				ui.ColorName(pt.theme.CursorFg), ui.ColorName(pt.theme.CursorBg), i, name)
			continue
		}
		_, _ = fmt.Fprintf(pt, "  %d. %s\n", i, name)
	}
	pt.ScrollToBeginning()
}

func (pt *PowerTools) renderLog(s model.State) {
	pt.theme.Frame(pt.Box, fmt.Sprintf("Debug log (%d)", len(s.DebugLog)), true)
	if len(s.DebugLog) == 0 {
		_, _ = fmt.Fprintf(pt, " [%s]empty[-]", ui.ColorName(pt.theme.DimColor))
		return
	}
	dim := ui.ColorName(pt.theme.DimColor)
	for i, e := range s.DebugLog {
		if i > 0 {
			_, _ = fmt.Fprint(pt, "\n")
		}
		_, _ = fmt.Fprintf(pt, "[%s]%s[-] [%s]%-5s[-] %s",
			dim, e.At.Local().Format("15:04:05"),
			ui.ColorName(pt.theme.Level(e.Level)), e.Level,
			safe(e.Text))
	}
	pt.ScrollTo(s.DebugScroll, 0)
}
