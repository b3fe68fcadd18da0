package ui

import "github.com/rivo/tview"

// Overlay stacks modal layers over a base page. Layers are shown in the
// order they were added, so later ones cover earlier ones.
type Overlay struct {
	*tview.Pages
	base   string
	layers []string
}

// NewOverlay creates an overlay whose base page is always visible.
func NewOverlay(base string, p tview.Primitive) *Overlay {
	o := &Overlay{Pages: tview.NewPages(), base: base}
	o.AddPage(base, p, true, true)
	return o
}

// AddLayer registers a modal centered on the base page.
func (o *Overlay) AddLayer(name string, p tview.Primitive, width, height int) {
	o.layers = append(o.layers, name)
	o.AddPage(name, Center(p, width, height), true, false)
}

// Sync shows exactly the layers for which visible returns true.
func (o *Overlay) Sync(visible func(name string) bool) {
	for _, name := range o.layers {
		if visible(name) {
			o.ShowPage(name)
			o.SendToFront(name)
		} else {
			o.HidePage(name)
		}
	}
}

// Center places p in the middle of the screen at the given size.
func Center(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)
}
