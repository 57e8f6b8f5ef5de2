package tui

import (
	"fmt"

	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/adsightlabs/adconnect/internal/tui/models"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// pickerKeyMap holds key bindings for the picker actions.
type pickerKeyMap struct {
	finish key.Binding
	quit   key.Binding
}

// DoneMsg is sent when the user finishes picking accounts.
type DoneMsg struct {
	Accounts []accounts.Account
}

func newPickerKeyMap() *pickerKeyMap {
	return &pickerKeyMap{
		finish: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Finish"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "Quit"),
		),
	}
}

// PickerModel lets the user choose which connected accounts to link.
type PickerModel struct {
	list list.Model
	keys *pickerKeyMap
}

// NewPickerModel creates a picker over the enumerated accounts.
func NewPickerModel(name provider.Name, accts []accounts.Account) PickerModel {
	pickerKeys := newPickerKeyMap()

	items := make([]list.Item, len(accts))
	for i, acct := range accts {
		items[i] = models.AccountItem{
			Account: acct,
			// Active accounts are the common case; preselect them.
			Selected: acct.Status == accounts.StatusActive,
		}
	}
	delegate := newItemDelegate(newDelegateKeyMap())

	l := list.New(items, delegate, 0, 0)
	l.Title = titleStyle.Render(fmt.Sprintf("Link %s accounts", name))
	l.SetShowFilter(true)

	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{
			pickerKeys.finish,
			pickerKeys.quit,
		}
	}
	return PickerModel{list: l, keys: pickerKeys}
}

// Init returns the initial command for the picker model.
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update handles messages for the picker.
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.finish):
			return m, func() tea.Msg {
				return DoneMsg{Accounts: m.SelectedAccounts()}
			}
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the picker list.
func (m PickerModel) View() string {
	return docStyle.Render(m.list.View())
}

// SelectedAccounts returns the accounts the user left selected.
func (m PickerModel) SelectedAccounts() []accounts.Account {
	var out []accounts.Account
	for _, item := range m.list.Items() {
		acct, ok := item.(models.AccountItem)
		if ok && acct.Selected {
			out = append(out, acct.Account)
		}
	}
	return out
}
