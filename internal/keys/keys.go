package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Search
	Search key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Screens
	ViewFiles         key.Binding
	ViewAdvances      key.Binding
	ViewCosts         key.Binding
	ViewReports       key.Binding
	ViewNotifications key.Binding
	ViewSettings      key.Binding

	// Record actions
	New    key.Binding
	Edit   key.Binding
	Delete key.Binding

	// File actions
	Upload key.Binding
	Open   key.Binding
	Copy   key.Binding

	// Costs and reports
	Filter     key.Binding
	Export     key.Binding
	Categories key.Binding

	// Notifications
	MarkRead      key.Binding
	MarkAllRead   key.Binding
	DismissToasts key.Binding

	// Sort
	CycleSort   key.Binding
	ReverseSort key.Binding

	// Session
	Logout key.Binding
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
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		ViewFiles: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "files"),
		),
		ViewAdvances: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "advances"),
		),
		ViewCosts: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "costs"),
		),
		ViewReports: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "reports"),
		),
		ViewNotifications: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "notifications"),
		),
		ViewSettings: key.NewBinding(
			key.WithKeys("6"),
			key.WithHelp("6", "settings"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Upload: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "upload"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy link"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filter"),
		),
		Export: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "export csv"),
		),
		Categories: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "categories"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mark read"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "mark all read"),
		),
		DismissToasts: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "dismiss toasts"),
		),
		CycleSort: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cycle sort"),
		),
		ReverseSort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "reverse sort"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "log out"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.Back,
		k.Quit, k.Help, k.Search,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.ViewFiles, k.ViewAdvances, k.ViewCosts, k.ViewReports, k.ViewNotifications, k.ViewSettings},
		{k.Search, k.Command, k.Help, k.Refresh, k.CycleSort, k.ReverseSort},
		{k.New, k.Edit, k.Delete, k.Upload, k.Open, k.Copy},
		{k.Filter, k.Export, k.Categories, k.MarkRead, k.MarkAllRead, k.DismissToasts, k.Logout},
	}
}
