package views

import (
	"strings"
	"time"

	"github.com/rivo/tview"
)

// clean drops codepoints that tcell renders with the wrong width: skin
// tone modifiers, zero width joiners and variation selectors. A thumbs-up
// with a skin tone then renders as a plain thumbs-up.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F3FB && r <= 0x1F3FF,
			r == 0x200D,
			r >= 0xFE00 && r <= 0xFE0F,
			r >= 0xE0100 && r <= 0xE01EF:
			return -1
		}
		return r
	}, s)
}

// safe prepares user text for a dynamic-color view.
func safe(s string) string {
	return tview.Escape(clean(s))
}

// stamp formats t as a clock time today and a date otherwise.
func stamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if now.IsZero() {
		now = time.Now()
	}
	t, now = t.Local(), now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
