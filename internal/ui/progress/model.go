// Package progress renders a running background operation as a progress
// bar and lets the user cancel it.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notafiscal/internal/jobs"
	"github.com/nhle/notafiscal/internal/keys"
	"github.com/nhle/notafiscal/internal/theme"
)

const maxBarWidth = 60

// Model is the progress view of one job. It quits when the job delivers
// its ResultMsg.
type Model struct {
	job     *jobs.Job
	title   string
	keys    *keys.KeyMap
	bar     progress.Model
	spinner spinner.Model
	help    help.Model

	done  int
	total int
	label string

	cancelling bool
	result     *jobs.ResultMsg
}

// New creates the progress view of job.
func New(job *jobs.Job, title string, k *keys.KeyMap) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		job:     job,
		title:   title,
		keys:    k,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: sp,
		help:    help.New(),
	}
}

// Init starts the spinner and listens for the first job event.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.job.WaitForEvent())
}

// Update handles messages for the progress view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case jobs.ProgressMsg:
		m.done, m.total, m.label = msg.Done, msg.Total, msg.Label
		return m, tea.Batch(m.bar.SetPercent(m.percent()), m.job.WaitForEvent())

	case jobs.ResultMsg:
		m.result = &msg
		return m, tea.Quit

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) && !m.cancelling {
			m.cancelling = true
			m.job.Cancel()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-8, maxBarWidth)
		m.help.Width = msg.Width
		return m, nil

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if b, ok := bar.(progress.Model); ok {
			m.bar = b
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) percent() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// View renders the progress view.
func (m Model) View() string {
	if m.result != nil {
		return ""
	}

	status := m.label
	if m.cancelling {
		status = theme.WarningStyle.Render("cancelling, waiting for the current step...")
	}

	counter := ""
	if m.total > 0 {
		counter = theme.DimmedStyle.Render(fmt.Sprintf(" %d/%d", m.done, m.total))
	}

	lines := []string{
		theme.HeaderStyle.Render(m.title),
		m.spinner.View() + " " + status,
		m.bar.View() + counter,
		m.help.View(keys.ProgressHelp{KeyMap: m.keys}),
	}
	return theme.PanelStyle.Render(strings.Join(lines, "\n")) + "\n"
}

// Result returns the job result once the view has quit.
func (m Model) Result() *jobs.ResultMsg { return m.result }

// Run shows the progress of job on out until it finishes and returns its
// result. If the view ends without a result, Run cancels the job and waits
// for it.
func Run(job *jobs.Job, title string, out io.Writer) (jobs.ResultMsg, error) {
	p := tea.NewProgram(New(job, title, keys.DefaultKeyMap()), tea.WithOutput(out))
	final, err := p.Run()
	if m, ok := final.(Model); ok && m.result != nil {
		return *m.result, err
	}

	job.Cancel()
	return Drain(job, nil), err
}

// Drain consumes the events of job without a view and returns its result.
// onProgress, when non-nil, receives every progress message.
func Drain(job *jobs.Job, onProgress func(jobs.ProgressMsg)) jobs.ResultMsg {
	var res jobs.ResultMsg
	for msg := range job.Events() {
		switch msg := msg.(type) {
		case jobs.ProgressMsg:
			if onProgress != nil {
				onProgress(msg)
			}
		case jobs.ResultMsg:
			res = msg
		}
	}
	return res
}

// Elapsed formats the duration of a finished job for summaries.
func Elapsed(res jobs.ResultMsg) string {
	return res.Elapsed.Round(100 * time.Millisecond).String()
}
