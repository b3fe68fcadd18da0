package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/tui/ui"
)

// IdentityView shows the own public key as text and as a QR code so a
// contact can scan it.
type IdentityView struct {
	*tview.TextView
	theme *ui.Theme
	shown identity.PublicKey
}

// NewIdentityView creates the identity dialog body.
func NewIdentityView(theme *ui.Theme) *IdentityView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetTextColor(theme.FgColor)
	theme.Frame(tv.Box, "Your identity (Esc to close)", true)
	return &IdentityView{TextView: tv, theme: theme}
}

// Update renders pk, skipping the QR encoding when it has not changed.
func (iv *IdentityView) Update(pk identity.PublicKey) {
	if pk == iv.shown && iv.GetText(false) != "" {
		return
	}
	iv.shown = pk
	iv.Clear()
	hex := pk.String()
	_, _ = fmt.Fprintf(iv, "\n%s\n[%s::b]%s[-:-:-]\n%s\n\n[%s]Share this key so others can add you.[-]",
		RenderQR(hex),
		ui.ColorName(iv.theme.KeyColor), hex[:32], hex[32:],
		ui.ColorName(iv.theme.DimColor))
}

// RenderQR converts content to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
