// Package tui draws the client state with tview and turns key presses
// into Msgs. It holds no state of its own beyond the last snapshot.
package tui

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/keys"
	"github.com/matheus3301/dialog/internal/tui/ui"
	"github.com/matheus3301/dialog/internal/tui/views"
)

// Loop is the part of the event loop the UI talks to.
type Loop interface {
	Post(msg model.Msg)
	Observe(fn func(model.State))
	Snapshot() model.State
}

const (
	layerDialog   = "dialog"
	layerIdentity = "identity"
	layerHelp     = "help"
)

// App is the main TUI application shell.
type App struct {
	app   *tview.Application
	loop  Loop
	theme *ui.Theme

	overlay   *ui.Overlay
	right     *tview.Flex
	body      *tview.Flex
	contacts  *views.ContactList
	convs     *views.ConversationList
	chat      *views.ChatView
	input     *views.Input
	power     *views.PowerTools
	toasts    *ui.ToastBar
	statusBar *views.StatusBar
	dialog    *views.DialogView
	identity  *views.IdentityView
	help      *views.HelpView

	powerShown bool

	mu      sync.Mutex
	pending *model.State
	wake    chan struct{}
	done    chan struct{}
}

// NewApp builds the screen for loop. session and relayURL are shown in
// the status bar and the key package dialog.
func NewApp(loop Loop, session, relayURL string) *App {
	theme := ui.DefaultTheme()
	a := &App{
		app:       tview.NewApplication(),
		loop:      loop,
		theme:     theme,
		contacts:  views.NewContactList(theme),
		convs:     views.NewConversationList(theme),
		chat:      views.NewChatView(theme),
		input:     views.NewInput(theme),
		power:     views.NewPowerTools(theme),
		toasts:    ui.NewToastBar(theme),
		statusBar: views.NewStatusBar(theme, session),
		dialog:    views.NewDialogView(theme, relayURL),
		identity:  views.NewIdentityView(theme),
		help:      views.NewHelpView(theme),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	a.setupLayout()
	loop.Observe(a.enqueue)
	return a
}

func (a *App) setupLayout() {
	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.contacts, 0, 1, false).
		AddItem(a.convs, 0, 2, false)

	a.right = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.chat, 0, 1, false).
		AddItem(a.input, 3, 0, false)

	main := tview.NewFlex().
		AddItem(left, 36, 0, false).
		AddItem(a.right, 0, 1, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, false).
		AddItem(a.toasts, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.overlay = ui.NewOverlay("main", a.body)
	a.overlay.AddLayer(layerDialog, a.dialog, 56, 16)
	a.overlay.AddLayer(layerIdentity, a.identity, 72, 30)
	a.overlay.AddLayer(layerHelp, a.help, 64, 34)

	a.app.SetRoot(a.overlay, true)
	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if key, ok := keys.Decode(ev); ok {
			a.loop.Post(model.KeyPressed{Key: key})
		}
		// every key goes through the reducer; widgets never edit state
		return nil
	})
}

// enqueue keeps only the newest snapshot. It runs on the loop goroutine
// and never blocks it.
func (a *App) enqueue(s model.State) {
	a.mu.Lock()
	a.pending = &s
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *App) pump() {
	for {
		select {
		case <-a.wake:
		case <-a.done:
			return
		}
		a.mu.Lock()
		s := a.pending
		a.pending = nil
		a.mu.Unlock()
		if s != nil {
			a.app.QueueUpdateDraw(func() { a.render(*s) })
		}
	}
}

func (a *App) render(s model.State) {
	a.contacts.Update(s)
	a.convs.Update(s)

	showPower := s.Pane == model.PanePowerTools
	if showPower != a.powerShown {
		a.right.Clear()
		if showPower {
			a.right.AddItem(a.power, 0, 1, false)
		} else {
			a.right.AddItem(a.chat, 0, 1, false).AddItem(a.input, 3, 0, false)
		}
		a.powerShown = showPower
	}
	if showPower {
		a.power.Update(s)
	} else {
		a.chat.Update(s)
		a.input.Update(s)
	}

	a.body.ResizeItem(a.toasts, a.toasts.Update(s.Toasts, s.Now), 0)
	a.statusBar.Update(s)

	if s.Dialog.Mode == model.DialogShowIdentity {
		a.identity.Update(s.Self)
	} else if s.Dialog.Open() {
		a.dialog.Update(s)
	}
	a.overlay.Sync(func(name string) bool {
		switch name {
		case layerDialog:
			return s.Dialog.Open() && s.Dialog.Mode != model.DialogShowIdentity
		case layerIdentity:
			return s.Dialog.Mode == model.DialogShowIdentity
		case layerHelp:
			return s.ShowHelp
		}
		return false
	})
}

// Run draws until Stop is called. It blocks.
func (a *App) Run() error {
	a.render(a.loop.Snapshot())
	go a.pump()
	defer close(a.done)
	return a.app.Run()
}

// Stop restores the terminal and makes Run return.
func (a *App) Stop() {
	a.app.Stop()
}
