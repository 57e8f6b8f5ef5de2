package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"
)

// SummaryView shows the picked accounts and offers to write a link file
// that downstream tooling can consume.
type SummaryView struct {
	providerName provider.Name
	accounts     []accounts.Account
	textInput    textinput.Model
	err          error
	width        int
	height       int
	saveStatus   string
	Success      bool
}

// NewSummaryView creates a summary view over the selected accounts.
func NewSummaryView(name provider.Name, accts []accounts.Account) SummaryView {
	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("%s-accounts.yaml", name)
	ti.Focus()
	ti.Width = 40

	return SummaryView{
		providerName: name,
		accounts:     accts,
		textInput:    ti,
	}
}

// Init initializes the summary view
func (m SummaryView) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the summary view
func (m SummaryView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			return m, func() tea.Msg { return BackToPickerMsg{} }
		case "enter":
			if m.textInput.Value() == "" {
				m.saveStatus = "Please enter a filename"
				return m, nil
			}

			filename := m.textInput.Value()
			if !strings.HasSuffix(filename, ".yaml") && !strings.HasSuffix(filename, ".yml") {
				filename += ".yaml"
			}

			if err := WriteLinkFile(m.providerName, m.accounts, filename); err != nil {
				m.err = err
				m.saveStatus = fmt.Sprintf("Error saving: %v", err)
				return m, nil
			}

			m.Success = true
			m.saveStatus = completeMessageStyle(fmt.Sprintf("Saved %d accounts to %s", len(m.accounts), filename))
			// Wait for 1 second, then exit the application
			return m, tea.Sequence(
				tea.Tick(time.Second*1, func(time.Time) tea.Msg {
					return tea.Quit()
				}),
			)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the summary view
func (m SummaryView) View() string {
	var sb strings.Builder

	verticalPadding := (m.height - 8) / 2
	for i := 0; i < verticalPadding; i++ {
		sb.WriteString("\n")
	}

	title := titleStyle.Render(fmt.Sprintf("Link %d %s accounts", len(m.accounts), m.providerName))
	sb.WriteString(centerText(title, m.width))
	sb.WriteString("\n\n")

	prompt := "Enter filename to save the linked accounts:"
	sb.WriteString(centerText(prompt, m.width))
	sb.WriteString("\n")

	input := m.textInput.View()
	sb.WriteString(centerText(input, m.width))
	sb.WriteString("\n\n")

	if m.saveStatus != "" {
		sb.WriteString(centerText(m.saveStatus, m.width))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(centerText(inactiveStyle("(esc) Back to picker | (enter) Save"), m.width))

	return sb.String()
}

// BackToPickerMsg signals to go back to the picker page
type BackToPickerMsg struct{}

// linkFile is the on-disk shape of a saved account selection.
type linkFile struct {
	Provider string             `yaml:"provider"`
	SavedAt  time.Time          `yaml:"saved_at"`
	Accounts []accounts.Account `yaml:"accounts"`
}

// WriteLinkFile saves the selected accounts as YAML.
func WriteLinkFile(name provider.Name, accts []accounts.Account, filename string) error {
	data := linkFile{
		Provider: string(name),
		SavedAt:  time.Now().UTC(),
		Accounts: accts,
	}

	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return err
	}

	return os.WriteFile(filename, yamlData, 0o644)
}

// Helper function to center text horizontally
func centerText(text string, width int) string {
	if width <= len(text) {
		return text
	}

	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
