package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/matheus3301/dialog/internal/model"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		ev   *tcell.EventKey
		want model.Key
		ok   bool
	}{
		{"rune", tcell.NewEventKey(tcell.KeyRune, 'j', tcell.ModNone), model.RuneKey('j'), true},
		{"shifted rune", tcell.NewEventKey(tcell.KeyRune, 'J', tcell.ModShift), model.RuneKey('J'), true},
		{"alt rune", tcell.NewEventKey(tcell.KeyRune, 'j', tcell.ModAlt), model.Key{}, false},
		{"enter", tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), model.Key{Code: model.KeyEnter}, true},
		{"tab", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone), model.Key{Code: model.KeyTab}, true},
		{"backspace", tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone), model.Key{Code: model.KeyBackspace}, true},
		{"escape", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), model.Key{Code: model.KeyEsc}, true},
		{"f2", tcell.NewEventKey(tcell.KeyF2, 0, tcell.ModNone), model.Key{Code: model.KeyF2}, true},
		{"ctrl-o", tcell.NewEventKey(tcell.KeyCtrlO, 0, tcell.ModCtrl), model.Key{Code: model.KeyCtrlO}, true},
		{"ctrl-q", tcell.NewEventKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl), model.Key{Code: model.KeyCtrlQ}, true},
		{"unmapped", tcell.NewEventKey(tcell.KeyF12, 0, tcell.ModNone), model.Key{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decode(tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Decode = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHintsFollowState(t *testing.T) {
	s := model.New([32]byte{1})
	s.Pane = model.PaneConversations
	s.Invites = []model.PendingInvite{{ID: "i1"}}
	s.Selection = model.InviteAt(0)
	if !hasKey(Hints(s), "x") {
		t.Error("invite selection should offer dismiss")
	}

	s.Dialog = model.Dialog{Mode: model.DialogConfirmReset}
	h := Hints(s)
	if !hasKey(h, "y") || hasKey(h, "^Q") {
		t.Errorf("dialog hints = %v", h)
	}
}

func hasKey(hints []Hint, key string) bool {
	for _, h := range hints {
		if h.Key == key {
			return true
		}
	}
	return false
}
