// Package ui provides the Bubble Tea dashboard for the arbitrage engine.
package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings. It satisfies help.KeyMap.
type KeyMap struct {
	Quit, Pause, Clear    key.Binding
	Up, Down, ClearErrors key.Binding
	Help                  key.Binding
}

func bind(label, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(label, desc))
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:        bind("q", "quit", "q", "ctrl+c"),
		Pause:       bind("p", "pause feed", "p"),
		Clear:       bind("c", "clear tables", "c"),
		Up:          bind("↑/k", "newer", "up", "k"),
		Down:        bind("↓/j", "older", "down", "j"),
		ClearErrors: bind("e", "clear errors", "e"),
		Help:        bind("?", "help", "?"),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Clear, k.Help}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Pause, k.Clear},
		{k.Up, k.Down, k.ClearErrors, k.Help},
	}
}
