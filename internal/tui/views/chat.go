package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/dialog/internal/model"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// ChatView shows the messages of the active conversation, oldest first.
type ChatView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewChatView creates the chat pane.
func NewChatView(theme *ui.Theme) *ChatView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetTextColor(theme.FgColor)
	return &ChatView{TextView: tv, theme: theme}
}

// Update renders the active conversation. Scroll counts lines up from the
// newest message.
func (cv *ChatView) Update(s model.State) {
	cv.Clear()
	conv, ok := s.ActiveConversation()
	if !ok {
		cv.theme.Frame(cv.Box, "Chat", s.Pane == model.PaneChat)
		_, _ = fmt.Fprintf(cv, "\n  [%s]Select a conversation, or accept an invite.[-]", ui.ColorName(cv.theme.DimColor))
		return
	}

	title := safe(conv.Name)
	if n := len(conv.Participants); n > 0 {
		title = fmt.Sprintf("%s · %d members", title, n)
	}
	cv.theme.Frame(cv.Box, title, s.Pane == model.PaneChat)

	msgs := s.Messages[conv.ID]
	if len(msgs) == 0 {
		_, _ = fmt.Fprintf(cv, "\n  [%s]No messages yet.[-]", ui.ColorName(cv.theme.DimColor))
		return
	}
	own := ui.ColorName(cv.theme.OwnColor)
	peer := ui.ColorName(cv.theme.PeerColor)
	dim := ui.ColorName(cv.theme.DimColor)
	for i, m := range msgs {
		color := peer
		if m.IsOwn {
			color = own
		}
		if i > 0 {
			_, _ = fmt.Fprint(cv, "\n")
		}
		_, _ = fmt.Fprintf(cv, "[%s]%s[-] [%s::b]%s[-:-:-] %s",
			dim, stamp(m.Timestamp, s.Now),
			color, safe(s.ContactName(m.Sender)),
			safe(m.Content))
	}

	if s.Scroll == 0 {
		cv.ScrollToEnd()
		return
	}
	_, _, _, height := cv.GetInnerRect()
	cv.ScrollTo(max(len(msgs)-height-s.Scroll, 0), 0)
}
