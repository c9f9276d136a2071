package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// ErrCancelled is returned when the user backs out of a prompt.
var ErrCancelled = errors.New("prompt cancelled")

var stdinReader = bufio.NewReader(os.Stdin)

// IsInteractive reports whether stdin and stderr are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// readLine reads one answer, tolerating a final line without a newline.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// =============================================================================
// Bubbletea-based interactive prompts
// =============================================================================

// confirmModel is a bubbletea model for y/n confirmation.
type confirmModel struct {
	prompt   string
	cursor   int // 0 = yes, 1 = no
	decided  bool
	accepted bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			m.accepted = true
			m.decided = true
			return m, tea.Quit
		case "n", "N":
			m.accepted = false
			m.decided = true
			return m, tea.Quit
		case "left", "h":
			m.cursor = 0
		case "right", "l":
			m.cursor = 1
		case "enter", " ":
			m.accepted = m.cursor == 0
			m.decided = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.accepted = false
			m.decided = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m confirmModel) View() string {
	var yes, no string
	if m.cursor == 0 {
		yes = successStyle.Render("▸ Yes ")
		no = dimStyle.Render("  No  ")
	} else {
		yes = dimStyle.Render("  Yes ")
		no = errorStyle.Render("▸ No  ")
	}

	return fmt.Sprintf("%s\n\n  %s  %s\n\n%s",
		promptStyle.Render(m.prompt),
		yes, no,
		dimStyle.Render("  ←/→ to select • enter to confirm • y/n for quick select"))
}

// Confirm prompts the user with a yes/no question and returns the response.
// Without a terminal it reads a y/n line from stdin.
func Confirm(prompt string) (bool, error) {
	if !IsInteractive() {
		fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
		line, err := readLine(stdinReader)
		if err != nil {
			return false, err
		}
		a := strings.ToLower(strings.TrimSpace(line))
		return a == "y" || a == "yes", nil
	}

	m := confirmModel{prompt: prompt, cursor: 0}
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	fmt.Fprintln(os.Stderr)
	return result.(confirmModel).accepted, nil
}

// inputModel collects one free-text answer.
type inputModel struct {
	prompt    string
	input     textinput.Model
	done      bool
	cancelled bool
}

func newInputModel(prompt string) inputModel {
	ti := textinput.New()
	ti.Placeholder = "type your answer"
	ti.CharLimit = 1000
	ti.Width = 80
	ti.Prompt = "› "
	ti.Focus()
	return inputModel{prompt: prompt, input: ti}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s",
		promptStyle.Render(m.prompt),
		m.input.View(),
		dimStyle.Render("  enter to answer • esc to stop here (the session stays resumable)"))
}

// Prompt asks a free-text question. Without a terminal it prints the
// question and reads one line from stdin.
func Prompt(question string) (string, error) {
	if !IsInteractive() {
		Question(question)
		return readLine(stdinReader)
	}

	p := tea.NewProgram(newInputModel(question), tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return "", err
	}
	m := result.(inputModel)
	if m.cancelled {
		return "", ErrCancelled
	}
	answer := m.input.Value()
	fmt.Fprintf(os.Stderr, "%s %s\n", promptStyle.Render(question), answer)
	return answer, nil
}

type menuItem struct {
	label string
	index int
}

func (i menuItem) Title() string       { return i.label }
func (i menuItem) Description() string { return "" }
func (i menuItem) FilterValue() string { return i.label }

// selectModel picks one entry of a numbered menu.
type selectModel struct {
	list      list.Model
	chosen    int
	cancelled bool
}

func newSelectModel(title string, options []string) selectModel {
	items := make([]list.Item, len(options))
	for i, o := range options {
		items[i] = menuItem{label: fmt.Sprintf("%d. %s", i+1, o), index: i + 1}
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	height := len(options) + 6
	if height > 20 {
		height = 20
	}
	l := list.New(items, delegate, 80, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	return selectModel{list: l}
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(menuItem); ok {
				m.chosen = item.index
				return m, tea.Quit
			}
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectModel) View() string {
	if m.chosen > 0 || m.cancelled {
		return ""
	}
	return m.list.View()
}

// Select shows options as a navigable list and returns the 1-based number of
// the one picked. Without a terminal the caller should fall back to Prompt.
func Select(title string, options []string) (int, error) {
	p := tea.NewProgram(newSelectModel(title, options), tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return 0, err
	}
	m := result.(selectModel)
	if m.cancelled {
		return 0, ErrCancelled
	}
	return m.chosen, nil
}
