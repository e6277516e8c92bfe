package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the sync view
type KeyMap struct {
	Cancel key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "stop and export"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}
