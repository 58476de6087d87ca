package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit          key.Binding
	NextFocus     key.Binding
	PrevFocus     key.Binding
	Send          key.Binding
	ToggleSidebar key.Binding
	TogglePanel   key.Binding
	NewChat       key.Binding
	ToggleTheme   key.Binding
	LoadMore      key.Binding
	ToggleContext key.Binding
	SubmitContext key.Binding
	Up            key.Binding
	Down          key.Binding
	Open          key.Binding
	Rename        key.Binding
	Archive       key.Binding
	Cancel        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:          key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NextFocus:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
		PrevFocus:     key.NewBinding(key.WithKeys("shift+tab")),
		Send:          key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		ToggleSidebar: key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "threads")),
		TogglePanel:   key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "context")),
		NewChat:       key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		ToggleTheme:   key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "theme")),
		LoadMore:      key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "load more")),
		ToggleContext: key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "sources")),
		SubmitContext: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "add context")),
		Up:            key.NewBinding(key.WithKeys("up", "k")),
		Down:          key.NewBinding(key.WithKeys("down", "j")),
		Open:          key.NewBinding(key.WithKeys("enter")),
		Rename:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Archive:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "archive")),
		Cancel:        key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

// ShortHelp lists the bindings shown in the footer for the focused panel.
func (k keyMap) ShortHelp(f focus) []key.Binding {
	common := []key.Binding{k.NextFocus, k.NewChat, k.ToggleSidebar, k.TogglePanel, k.ToggleTheme, k.Quit}
	switch f {
	case focusSidebar:
		return append([]key.Binding{k.Rename, k.Archive, k.LoadMore}, common...)
	case focusContextKey, focusContextText:
		return append([]key.Binding{k.SubmitContext}, common...)
	case focusEntries:
		return append([]key.Binding{k.Cancel, k.LoadMore}, common...)
	default:
		return append([]key.Binding{k.Send, k.ToggleContext, k.LoadMore}, common...)
	}
}
