// Package keys defines the keybindings of the interactive views.
package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings shared by the picker and progress views.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Toggle    key.Binding
	ToggleAll key.Binding
	Confirm   key.Binding

	// Cancel stops a running operation; Quit leaves a view without acting.
	Cancel key.Binding
	Quit   key.Binding

	Help key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "x"),
			key.WithHelp("space", "toggle"),
		),
		ToggleAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle all"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("ctrl+c", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Confirm, k.Quit, k.Help}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Toggle, k.ToggleAll, k.Confirm},
		{k.Quit, k.Help},
	}
}

// ProgressHelp lists the bindings active while an operation runs.
type ProgressHelp struct{ *KeyMap }

// ShortHelp implements help.KeyMap.
func (p ProgressHelp) ShortHelp() []key.Binding { return []key.Binding{p.Cancel} }

// FullHelp implements help.KeyMap.
func (p ProgressHelp) FullHelp() [][]key.Binding { return [][]key.Binding{{p.Cancel}} }
