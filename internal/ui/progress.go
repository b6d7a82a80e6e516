package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// Progress wraps a bubbletea progress bar, used while a batch executes.
type Progress struct {
	total   int64
	current int64
	message string
	program *tea.Program
	done    chan struct{}
}

type progressModel struct {
	progress progress.Model
	message  string
	percent  float64
}

type progressUpdateMsg struct {
	percent float64
	message string
}

type progressDoneMsg struct{}

func initialProgressModel(message string) progressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
	)
	return progressModel{
		progress: p,
		message:  message,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	case progressUpdateMsg:
		m.percent = msg.percent
		if msg.message != "" {
			m.message = msg.message
		}
		return m, nil
	case progressDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *progressModel) View() string {
	return fmt.Sprintf(
		"%s\n%s",
		m.message,
		m.progress.ViewAs(m.percent),
	)
}

// NewProgress creates a new progress bar
func NewProgress(total int64, message string) *Progress {
	return &Progress{
		total:   total,
		message: message,
		done:    make(chan struct{}),
	}
}

// Start starts the progress display
func (p *Progress) Start() {
	model := initialProgressModel(p.message)
	p.program = tea.NewProgram(&model)

	go func() {
		_, _ = p.program.Run()
		close(p.done)
	}()
}

// Update updates the progress
func (p *Progress) Update(current int64, message string) {
	p.current = current
	percent := float64(current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}
	if p.program != nil {
		p.program.Send(progressUpdateMsg{percent: percent, message: message})
	}
}

// Increment increments progress by delta
func (p *Progress) Increment(delta int64) {
	p.Update(p.current+delta, "")
}

// Done completes the progress
func (p *Progress) Done() {
	if p.program != nil {
		p.program.Send(progressDoneMsg{})
		<-p.done
	}
}
