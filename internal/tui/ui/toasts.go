package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
)

// ToastBar shows the live toasts, newest last, one per line.
type ToastBar struct {
	*tview.TextView
	theme *Theme
}

// NewToastBar creates an empty toast bar.
func NewToastBar(theme *Theme) *ToastBar {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)

	return &ToastBar{TextView: tv, theme: theme}
}

// Update renders toasts and returns how many lines they need. Expired
// toasts are skipped even if the next Tick has not removed them yet.
func (tb *ToastBar) Update(toasts []model.Toast, now time.Time) int {
	tb.Clear()
	lines := 0
	for _, t := range toasts {
		if !now.IsZero() && t.Expired(now) {
			continue
		}
		if lines > 0 {
			_, _ = fmt.Fprint(tb, "\n")
		}
		_, _ = fmt.Fprintf(tb, "[%s]%s[-] %s ", ColorName(tb.theme.Level(t.Level)), t.Level, tview.Escape(t.Text))
		lines++
	}
	return lines
}
