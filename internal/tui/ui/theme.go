package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/status"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	DimColor         tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	CursorFg         tcell.Color
	CursorBg         tcell.Color
	KeyColor         tcell.Color
	OwnColor         tcell.Color
	PeerColor        tcell.Color
	InviteColor      tcell.Color
	UnreadColor      tcell.Color
	InfoColor        tcell.Color
	WarnColor        tcell.Color
	ErrColor         tcell.Color
	ConnectedColor   tcell.Color
	PendingColor     tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		DimColor:         tcell.ColorGray,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorOrange,
		TitleColor:       tcell.ColorFuchsia,
		CursorFg:         tcell.ColorBlack,
		CursorBg:         tcell.ColorAqua,
		KeyColor:         tcell.ColorDodgerBlue,
		OwnColor:         tcell.ColorLightSkyBlue,
		PeerColor:        tcell.ColorPapayaWhip,
		InviteColor:      tcell.ColorGold,
		UnreadColor:      tcell.ColorFuchsia,
		InfoColor:        tcell.ColorNavajoWhite,
		WarnColor:        tcell.ColorOrange,
		ErrColor:         tcell.ColorOrangeRed,
		ConnectedColor:   tcell.ColorGreen,
		PendingColor:     tcell.ColorYellow,
	}
}

// Level returns the color for a toast or log level.
func (t *Theme) Level(l model.Level) tcell.Color {
	switch l {
	case model.LevelWarn:
		return t.WarnColor
	case model.LevelError:
		return t.ErrColor
	}
	return t.InfoColor
}

// Relay returns the color for a relay connection state.
func (t *Theme) Relay(s status.State) tcell.Color {
	switch s {
	case status.Connected:
		return t.ConnectedColor
	case status.Connecting:
		return t.PendingColor
	case status.Error:
		return t.ErrColor
	}
	return t.DimColor
}

// Frame styles a bordered box, highlighting it when it has focus.
func (t *Theme) Frame(box *tview.Box, title string, focused bool) {
	box.SetBorder(true)
	box.SetBackgroundColor(t.BgColor)
	box.SetTitle(" " + title + " ")
	box.SetTitleColor(t.TitleColor)
	if focused {
		box.SetBorderColor(t.BorderFocusColor)
	} else {
		box.SetBorderColor(t.BorderColor)
	}
}

// ColorName returns a tview-compatible color tag for c.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
