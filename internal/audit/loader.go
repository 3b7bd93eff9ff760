package audit

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type scanDoneMsg struct {
	entries []Entry
	err     error
}

type spinnerTickMsg struct{}

type loaderModel struct {
	label   string
	timeout time.Duration
	scanFn  func(ctx context.Context) ([]Entry, error)
	frame   int
	result  []Entry
	err     error
	done    bool
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doScan(), m.tick())
}

func (m loaderModel) doScan() tea.Cmd {
	scanFn, timeout := m.scanFn, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		entries, err := scanFn(ctx)
		return scanDoneMsg{entries: entries, err: err}
	}
}

func (m loaderModel) tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case scanDoneMsg:
		m.result = msg.entries
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinnerTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, m.tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = fmt.Errorf("cancelled")
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	spinner := lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Render(spinnerFrames[m.frame])
	return fmt.Sprintf("%s Scanning %s...\n", spinner, m.label)
}

// RunLoader shows a spinner while scanFn runs under timeout. It renders inline.
func RunLoader(label string, timeout time.Duration, scanFn func(ctx context.Context) ([]Entry, error)) ([]Entry, error) {
	m := loaderModel{
		label:   label,
		timeout: timeout,
		scanFn:  scanFn,
	}
	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.result, final.err
}
