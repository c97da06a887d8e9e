package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Up   key.Binding
	Down key.Binding

	Label  key.Binding
	Skip   key.Binding
	Ignore key.Binding

	Open key.Binding
	Back key.Binding

	ScrollUp   key.Binding
	ScrollDown key.Binding

	Quit key.Binding
}

func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Label: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4"),
			key.WithHelp("0-4", "label"),
		),
		Skip: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "skip"),
		),
		Ignore: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "ignore sender"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "full view"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup", "K"),
			key.WithHelp("pgup/K", "scroll preview"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown", "J"),
			key.WithHelp("pgdn/J", "scroll preview"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func hint(b key.Binding) string {
	h := b.Help()
	return "[" + h.Key + "]:" + h.Desc
}
