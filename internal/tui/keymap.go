package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the panel UI.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Tab       key.Binding
	Enter     key.Binding
	Claim     key.Binding
	Release   key.Binding
	ClearVRAM key.Binding
	Interrupt key.Binding
	Refresh   key.Binding
	CopyAddr  key.Binding
	ToggleLog key.Binding
	Quit      key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next panel"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "toggle"),
		),
		Claim: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "claim workers"),
		),
		Release: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "release all"),
		),
		ClearVRAM: key.NewBinding(
			key.WithKeys("v"),
			key.WithHelp("v", "clear VRAM"),
		),
		Interrupt: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "interrupt all"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		CopyAddr: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy master address"),
		),
		ToggleLog: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle log"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
