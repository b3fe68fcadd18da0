package model

// KeyCode identifies a key independent of the terminal library.
type KeyCode int

const (
	KeyRune KeyCode = iota
	KeyEnter
	KeyTab
	KeyBackspace
	KeyEsc
	KeyUp
	KeyDown
	KeyF1
	KeyF2
	KeyCtrlC
	KeyCtrlO
	KeyCtrlP
	KeyCtrlQ
)

// Key is a key press. Rune is set only for KeyRune.
type Key struct {
	Code KeyCode
	Rune rune
}

// RuneKey is a printable key.
func RuneKey(r rune) Key { return Key{Code: KeyRune, Rune: r} }

// Press builds a KeyPressed for a non-rune key.
func Press(code KeyCode) KeyPressed { return KeyPressed{Key: Key{Code: code}} }

// Type builds a KeyPressed for a rune.
func Type(r rune) KeyPressed { return KeyPressed{Key: RuneKey(r)} }

func (k Key) is(r rune) bool { return k.Code == KeyRune && k.Rune == r }

// down and up treat arrows the same as j and k.
func (k Key) down() bool { return k.is('j') || k.Code == KeyDown }
func (k Key) up() bool   { return k.is('k') || k.Code == KeyUp }
