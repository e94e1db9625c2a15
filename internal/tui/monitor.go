// Package tui renders a live terminal monitor: task statistics, role
// workload, and a rolling event feed from the bus.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/crewlab/conductor/internal/events"
	"github.com/crewlab/conductor/internal/scheduler"
	"github.com/crewlab/conductor/internal/task"
)

const maxFeedLines = 12

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type tickMsg time.Time

type eventMsg struct{ event events.Event }

type feedLine struct {
	at   time.Time
	text string
	bad  bool
}

// Model is the bubbletea model of the monitor.
type Model struct {
	manager   *task.Manager
	scheduler *scheduler.Scheduler
	eventCh   <-chan events.Event

	stats    task.Statistics
	workload map[string]int
	feed     []feedLine
	width    int
	quitting bool
}

// NewModel creates the monitor over the manager, scheduler, and a bus
// subscription channel.
func NewModel(manager *task.Manager, sched *scheduler.Scheduler, eventCh <-chan events.Event) Model {
	return Model{
		manager:   manager,
		scheduler: sched,
		eventCh:   eventCh,
		workload:  map[string]int{},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitForEvent())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.eventCh
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.stats = m.manager.GetStatistics()
		m.workload = m.scheduler.RoleWorkload()
		return m, tick()
	case eventMsg:
		m.feed = append(m.feed, renderEvent(msg.event))
		if len(m.feed) > maxFeedLines {
			m.feed = m.feed[len(m.feed)-maxFeedLines:]
		}
		return m, m.waitForEvent()
	}
	return m, nil
}

func renderEvent(ev events.Event) feedLine {
	line := feedLine{at: time.Now()}
	switch e := ev.(type) {
	case events.TaskEvent:
		line.text = fmt.Sprintf("%s %s (%s)", e.Type, shortID(e.ID), e.TaskType)
		if e.Error != "" {
			line.text += ": " + e.Error
		}
		line.bad = e.Type == events.EventTaskFailed
	case events.WorkflowEvent:
		line.text = fmt.Sprintf("%s %s %q", e.Type, shortID(e.ID), e.Name)
		if e.StepID != "" {
			line.text += " " + e.StepID
		}
	default:
		line.text = fmt.Sprintf("%s %s", ev.EventType(), shortID(ev.SubjectID()))
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("conductor monitor"))
	b.WriteString(dimStyle.Render("  (q to quit)"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString(fmt.Sprintf("  total %d  queued %d  retried %d\n", m.stats.Total, m.stats.QueueDepth, m.stats.Retried))
	for _, status := range []task.Status{
		task.StatusPending, task.StatusAssigned, task.StatusInProgress,
		task.StatusCompleted, task.StatusFailed, task.StatusCancelled,
	} {
		n := m.stats.ByStatus[status]
		if n == 0 {
			continue
		}
		style := dimStyle
		switch status {
		case task.StatusCompleted:
			style = okStyle
		case task.StatusFailed:
			style = errStyle
		}
		b.WriteString("  " + style.Render(fmt.Sprintf("%-12s %d", status, n)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Workload"))
	b.WriteString("\n")
	roles := make([]string, 0, len(m.workload))
	for role := range m.workload {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		b.WriteString(fmt.Sprintf("  %-20s %d in progress\n", role, m.workload[role]))
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Events"))
	b.WriteString("\n")
	if len(m.feed) == 0 {
		b.WriteString(dimStyle.Render("  waiting for activity...") + "\n")
	}
	for _, line := range m.feed {
		style := dimStyle
		if line.bad {
			style = errStyle
		}
		b.WriteString(fmt.Sprintf("  %s %s\n",
			dimStyle.Render(line.at.Format("15:04:05")), style.Render(line.text)))
	}
	return b.String()
}

// Run starts the monitor and blocks until the user quits.
func Run(manager *task.Manager, sched *scheduler.Scheduler, eventCh <-chan events.Event) error {
	_, err := tea.NewProgram(NewModel(manager, sched, eventCh)).Run()
	return err
}
