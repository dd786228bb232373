package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SelectPrevMessage key.Binding
	SelectNextMessage key.Binding
	PrevSibling       key.Binding
	NextSibling       key.Binding
	Branch            key.Binding
	UnfocusMessage    key.Binding
	FocusMessage      key.Binding
	SubmitMessage     key.Binding
	ToggleTree        key.Binding
	DismissError      key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	SelectPrevMessage: key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous message")),
	SelectNextMessage: key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next message")),
	PrevSibling:       key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "previous branch")),
	NextSibling:       key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "next branch")),
	Branch:            key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "branch here")),
	UnfocusMessage:    key.NewBinding(key.WithKeys("esc", "ctrl+g"), key.WithHelp("esc", "browse")),
	FocusMessage:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "write")),
	SubmitMessage:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "send")),
	ToggleTree:        key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tree")),
	DismissError:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
	Help:              key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:              key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.SubmitMessage, k.UnfocusMessage, k.FocusMessage,
		k.PrevSibling, k.NextSibling, k.Branch, k.ToggleTree,
		k.DismissError, k.Help, k.Quit,
	}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SelectPrevMessage, k.SelectNextMessage, k.PrevSibling, k.NextSibling},
		{k.Branch, k.ToggleTree, k.FocusMessage, k.UnfocusMessage},
		{k.SubmitMessage, k.DismissError, k.Help, k.Quit},
	}
}
