// Package monitor is a terminal view of a pipeline pass, fed by driver
// events.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BastianD2000/Automated-Workflow-for-Digital-Editions/pkg/core"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
)

// Row is the view state of one document run.
type Row struct {
	RunID    string
	Document string
	Title    string
	Stage    core.JobKind
	JobID    string
	Polls    int
	Pending  int
	Status   core.RunStatus
	Reason   string
	Resumed  bool
	Finished []core.JobKind
}

type eventMsg struct{ event core.Event }

type closedMsg struct{}

// Model is the bubbletea model of the monitor.
type Model struct {
	events   <-chan core.Event
	cancel   context.CancelFunc
	spinner  spinner.Model
	rows     []*Row
	byRun    map[string]*Row
	upload   string
	summary  string
	finished bool
	quitting bool
}

// New creates a monitor reading from events. cancel is called when the
// user quits so the pass stops too.
func New(events <-chan core.Event, cancel context.CancelFunc) Model {
	s := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(pendingStyle))
	return Model{events: events, cancel: cancel, spinner: s, byRun: map[string]*Row{}}
}

// Run shows the monitor until the pass finishes or the user quits.
func Run(events <-chan core.Event, cancel context.CancelFunc, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(New(events, cancel), opts...).Run()
	return err
}

func waitForEvent(ch <-chan core.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.apply(msg.event)
		if m.finished {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case closedMsg:
		return m, tea.Quit
	}
	return m, nil
}

// Rows returns the document rows in arrival order.
func (m Model) Rows() []Row {
	out := make([]Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, *r)
	}
	return out
}

// Finished reports whether the whole pass ended.
func (m Model) Finished() bool {
	return m.finished
}

func (m *Model) row(runID string) *Row {
	r, ok := m.byRun[runID]
	if !ok {
		r = &Row{RunID: runID, Status: core.RunRunning}
		m.byRun[runID] = r
		m.rows = append(m.rows, r)
	}
	return r
}

func (m *Model) apply(ev core.Event) {
	switch e := ev.(type) {
	case *core.RunStarted:
		r := m.row(e.Run.ID)
		r.Document = e.Run.DocumentID
		r.Title = e.Run.Title
		r.Resumed = e.Resumed
		r.Finished = e.Run.Completed()
	case *core.StageSubmitted:
		r := m.row(e.RunID)
		r.Stage = e.Handle.Kind
		r.JobID = e.Handle.ID
		r.Polls = 0
	case *core.StagePolled:
		r := m.row(e.RunID)
		r.Stage = e.Kind
		r.Polls = e.Poll
		r.Pending = e.Pending
	case *core.StageFinished:
		r := m.row(e.RunID)
		if e.Outcome.Succeeded() {
			r.Finished = append(r.Finished, e.Outcome.Kind)
		} else {
			r.Reason = e.Outcome.Reason()
		}
	case *core.RunFinished:
		r := m.row(e.Run.ID)
		r.Status = e.Run.Status
		r.Reason = e.Run.Reason
		r.Stage = ""
	case *core.UploadFinished:
		m.upload = fmt.Sprintf("upload to collection %s: %d submitted, %d failed", e.CollectionID, len(e.Titles), len(e.Failed))
		if e.Err != nil {
			m.upload += ": " + e.Err.Error()
		}
	case *core.PlanFinished:
		m.finished = true
		m.summary = fmt.Sprintf("%d succeeded, %d failed", e.Succeeded, e.Failed)
		if e.Err != nil {
			m.summary += ": " + e.Err.Error()
		}
	}
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Digital edition pipeline"))
	b.WriteString("\n\n")
	if m.upload != "" {
		b.WriteString(mutedStyle.Render(m.upload))
		b.WriteString("\n\n")
	}
	if len(m.rows) == 0 && !m.finished {
		b.WriteString(m.spinner.View() + " waiting for documents...\n")
	}
	for _, r := range m.rows {
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}
	if m.finished {
		b.WriteString("\n" + titleStyle.Render("Done: ") + m.summary + "\n")
	} else if !m.quitting {
		b.WriteString("\n" + mutedStyle.Render("q: stop the run and quit") + "\n")
	}
	return b.String()
}

func (m Model) renderRow(r *Row) string {
	name := r.Title
	if name == "" {
		name = "document " + r.Document
	}
	progress := fmt.Sprintf("%d/%d", len(r.Finished), len(core.Stages()))
	switch r.Status {
	case core.RunSuccess:
		return fmt.Sprintf("%s %-32s %s", successStyle.Render("✓"), name, progress)
	case core.RunRunning:
		stage := "starting"
		if r.Stage != "" {
			stage = fmt.Sprintf("%s (poll %d, %d pending)", r.Stage, r.Polls, r.Pending)
		}
		line := fmt.Sprintf("%s %-32s %s %s", m.spinner.View(), name, progress, pendingStyle.Render(stage))
		if r.Resumed {
			line += mutedStyle.Render(" resumed")
		}
		return line
	default:
		return fmt.Sprintf("%s %-32s %s %s", failedStyle.Render("✗"), name, progress, failedStyle.Render(string(r.Status)+": "+r.Reason))
	}
}
