package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	nav      key.Binding
	prev     key.Binding
	next     key.Binding
	genre    key.Binding
	borrow   key.Binding
	giveBack key.Binding
	pay      key.Binding
	add      key.Binding
	edit     key.Binding
	copies   key.Binding
	remove   key.Binding
	refresh  key.Binding
	signup   key.Binding
	yes      key.Binding
	no       key.Binding
	quit     key.Binding
	kill     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		nav:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "menu")),
		prev:     key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev page")),
		next:     key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next page")),
		genre:    key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "genre")),
		borrow:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "borrow")),
		giveBack: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "return")),
		pay:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pay fine")),
		add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		copies:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copies")),
		remove:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		refresh:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		signup:   key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "sign up")),
		yes:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		quit:     key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		kill:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.nav, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.prev, k.next, k.genre, k.refresh},
		{k.borrow, k.giveBack, k.pay},
		{k.add, k.edit, k.copies, k.remove},
		{k.nav, k.quit},
	}
}

// screenKeys lists the bindings shown under screen.
func (k keyMap) screenKeys(screen Screen, subscriber bool) []key.Binding {
	switch screen {
	case LoginScreen:
		return []key.Binding{k.enter, k.signup, k.kill}
	case SignupScreen:
		return []key.Binding{k.enter, k.back, k.kill}
	case CatalogScreen:
		if subscriber {
			return []key.Binding{k.prev, k.next, k.genre, k.borrow, k.giveBack, k.nav, k.quit}
		}
		return []key.Binding{k.prev, k.next, k.genre, k.nav, k.quit}
	case AdminBooksScreen:
		return []key.Binding{k.prev, k.next, k.add, k.edit, k.copies, k.remove, k.nav, k.quit}
	case SubscribersScreen, WalletScreen:
		return []key.Binding{k.add, k.refresh, k.nav, k.quit}
	case RemoveSubscribersScreen:
		return []key.Binding{k.remove, k.refresh, k.nav, k.quit}
	case HistoryScreen:
		return []key.Binding{k.pay, k.refresh, k.nav, k.quit}
	default:
		return []key.Binding{k.refresh, k.nav, k.quit}
	}
}
