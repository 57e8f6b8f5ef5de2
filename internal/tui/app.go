package tui

import (
	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/provider"
	tea "github.com/charmbracelet/bubbletea"
)

// AppModel is the main application model that manages page switching
type AppModel struct {
	providerName provider.Name
	picker       PickerModel
	summary      SummaryView
	page         string // "picker" or "summary"
}

// NewAppModel creates a new AppModel over the enumerated accounts
func NewAppModel(name provider.Name, accts []accounts.Account) AppModel {
	return AppModel{
		providerName: name,
		picker:       NewPickerModel(name, accts),
		summary:      SummaryView{}, // set properly in DoneMsg
		page:         "picker",
	}
}

// Init initializes the AppModel
func (m AppModel) Init() tea.Cmd {
	return m.picker.Init()
}

// Update handles app-level messages and delegates to the appropriate page model
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case DoneMsg:
		m.page = "summary"
		m.summary = NewSummaryView(m.providerName, msg.Accounts)
		cmd := m.summary.Init()
		return m, cmd

	case BackToPickerMsg:
		m.page = "picker"
		return m, nil

	case tea.WindowSizeMsg:
		var cmd tea.Cmd
		var tempModel tea.Model

		// Update all models with the window size
		tempModel, cmd = m.picker.Update(msg)
		m.picker = tempModel.(PickerModel)
		cmds = append(cmds, cmd)

		tempModel, cmd = m.summary.Update(msg)
		m.summary = tempModel.(SummaryView)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	// Delegate message to the active page
	var cmd tea.Cmd
	var tempModel tea.Model
	switch m.page {
	case "summary":
		tempModel, cmd = m.summary.Update(msg)
		m.summary = tempModel.(SummaryView)
		cmds = append(cmds, cmd)
	default: // picker
		tempModel, cmd = m.picker.Update(msg)
		m.picker = tempModel.(PickerModel)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the active page
func (m AppModel) View() string {
	switch m.page {
	case "summary":
		return m.summary.View()
	default: // picker
		return m.picker.View()
	}
}

// SelectedAccounts delegates to the picker
func (m AppModel) SelectedAccounts() []accounts.Account {
	return m.picker.SelectedAccounts()
}

// IsFinished checks if the user completed the TUI flow by saving the
// link file from the summary page
func (m AppModel) IsFinished() bool {
	return m.summary.Success
}
