package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type pickItem struct {
	index int
	label string
}

func (i pickItem) FilterValue() string { return i.label }
func (i pickItem) Title() string       { return i.label }
func (i pickItem) Description() string { return "" }

// picker is the fallback list used when fzf is not installed.
type picker struct {
	list   list.Model
	chosen int
}

func newPicker(prompt string, items []string) picker {
	entries := make([]list.Item, len(items))
	for i, it := range items {
		entries[i] = pickItem{index: i, label: it}
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(entries, delegate, 80, 20)
	l.Title = prompt
	l.SetShowStatusBar(false)
	l.Styles.Title = titleStyle
	return picker{list: l, chosen: -1}
}

func (m picker) Init() tea.Cmd { return nil }

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if it, ok := m.list.SelectedItem().(pickItem); ok {
				m.chosen = it.index
			}
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			if m.list.FilterState() == list.FilterApplied && msg.String() == "esc" {
				break
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m picker) View() string { return m.list.View() }

func pick(prompt string, items []string) (int, error) {
	out, err := tea.NewProgram(newPicker(prompt, items), tea.WithOutput(os.Stderr), tea.WithAltScreen()).Run()
	if err != nil {
		return -1, fmt.Errorf("picker failed: %w", err)
	}
	if m, ok := out.(picker); ok && m.chosen >= 0 {
		return m.chosen, nil
	}
	return -1, ErrCancelled
}

// lineInput reads one line of text.
type lineInput struct {
	input     textinput.Model
	done      bool
	cancelled bool
}

func newLineInput(prompt string, masked bool) lineInput {
	ti := textinput.New()
	ti.Prompt = prompt + " > "
	ti.CharLimit = 2048
	ti.Width = 60
	if masked {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '*'
	}
	ti.Focus()
	return lineInput{input: ti}
}

func (m lineInput) Init() tea.Cmd { return textinput.Blink }

func (m lineInput) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m lineInput) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.input.View() + "\n"
}

func readLine(prompt string, masked bool) (string, error) {
	out, err := tea.NewProgram(newLineInput(prompt, masked), tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	m, ok := out.(lineInput)
	if !ok || m.cancelled {
		return "", ErrCancelled
	}
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return "", fmt.Errorf("no input provided")
	}
	return value, nil
}
