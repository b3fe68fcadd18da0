// Package keys translates terminal key events into the client's key
// vocabulary and describes the keys each pane accepts.
package keys

import (
	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/dialog/internal/model"
)

var named = map[tcell.Key]model.KeyCode{
	tcell.KeyEnter:      model.KeyEnter,
	tcell.KeyTab:        model.KeyTab,
	tcell.KeyBackspace:  model.KeyBackspace,
	tcell.KeyBackspace2: model.KeyBackspace,
	tcell.KeyEscape:     model.KeyEsc,
	tcell.KeyUp:         model.KeyUp,
	tcell.KeyDown:       model.KeyDown,
	tcell.KeyF1:         model.KeyF1,
	tcell.KeyF2:         model.KeyF2,
	tcell.KeyCtrlC:      model.KeyCtrlC,
	tcell.KeyCtrlO:      model.KeyCtrlO,
	tcell.KeyCtrlP:      model.KeyCtrlP,
	tcell.KeyCtrlQ:      model.KeyCtrlQ,
}

// Decode maps ev to a model key. Keys the client has no use for report
// false and should be left to the terminal library.
func Decode(ev *tcell.EventKey) (model.Key, bool) {
	if ev.Key() == tcell.KeyRune {
		r := ev.Rune()
		if r == 0 || ev.Modifiers()&(tcell.ModCtrl|tcell.ModAlt) != 0 {
			return model.Key{}, false
		}
		return model.RuneKey(r), true
	}
	code, ok := named[ev.Key()]
	if !ok {
		return model.Key{}, false
	}
	return model.Key{Code: code}, true
}

// Hint is a key and what it does, shown in the status bar.
type Hint struct {
	Key         string
	Description string
}

var global = []Hint{
	{"Tab", "next pane"},
	{"F1", "help"},
	{"F2", "power tools"},
	{"^P", "publish key"},
	{"^O", "identity"},
	{"^Q", "quit"},
}

// Hints returns the keys that do something in the current state, most
// specific first.
func Hints(s model.State) []Hint {
	if s.Dialog.Open() {
		return dialogHints(s.Dialog.Mode)
	}
	var local []Hint
	switch s.Pane {
	case model.PaneContacts:
		local = []Hint{{"j/k", "move"}, {"Enter", "add contact"}, {"c", "new conversation"}}
	case model.PaneConversations:
		local = []Hint{{"j/k", "move"}, {"Enter", "open"}}
		if s.Selection.Kind == model.SelectionInvite {
			local = []Hint{{"j/k", "move"}, {"Enter", "accept"}, {"x", "dismiss"}}
		}
	case model.PaneChat:
		local = []Hint{{"j/k", "scroll"}}
	case model.PaneInput:
		local = []Hint{{"Enter", "send"}}
	case model.PanePowerTools:
		if s.PowerMode == model.PowerDebugLog {
			local = []Hint{{"j/k", "scroll"}, {"^C", "clear"}, {"Esc", "menu"}}
		} else {
			local = []Hint{{"j/k", "move"}, {"Enter", "run"}, {"l", "log"}, {"Esc", "leave"}}
		}
	}
	return append(local, global...)
}

func dialogHints(mode model.DialogMode) []Hint {
	switch mode {
	case model.DialogAddContact:
		return []Hint{{"Tab", "next field"}, {"Enter", "save"}, {"Esc", "cancel"}}
	case model.DialogCreateConversation, model.DialogAcceptInvite:
		return []Hint{{"j/k", "choose"}, {"Enter", "confirm"}, {"Esc", "cancel"}}
	case model.DialogConfirmReset:
		return []Hint{{"y", "confirm"}, {"Enter", "submit"}, {"Esc", "cancel"}}
	}
	return []Hint{{"Enter", "ok"}, {"Esc", "close"}}
}
