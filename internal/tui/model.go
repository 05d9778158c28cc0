package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/report"
	"github.com/cgast/examiner/pkg/sshpool"
	"github.com/cgast/examiner/pkg/verify"
)

const sidebarWidth = 34

// Deps wires the model to the grading engine.
type Deps struct {
	Runner    *verify.Runner
	Prober    verify.Prober
	Exporter  *report.Exporter
	Scheduler *verify.Scheduler
	Bus       events.EventBus
	Log       *zap.Logger
}

type tickMsg time.Time

type eventMsg events.Event

// jobDoneMsg reports a finished scheduler job back to the update loop.
type jobDoneMsg struct {
	group  string
	taskID string
	err    error
	probes []sshpool.ProbeResult
	path   string
}

// Model is the bubbletea model of the exam screen.
type Model struct {
	deps   Deps
	exam   *exam.Exam
	styles Styles
	timer  Timer
	events <-chan events.Event
	detail viewport.Model

	cursor    int
	showConn  bool
	connLog   []string
	notice    string
	noticeBad bool
	width     int
	height    int
}

// New builds the model and subscribes to the bus.
func New(deps Deps) Model {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Bus == nil {
		deps.Bus = events.Nop{}
	}
	e := deps.Runner.Exam()
	m := Model{
		deps:   deps,
		exam:   e,
		styles: DefaultStyles(),
		timer:  NewTimer(e.Duration),
		events: deps.Bus.Subscribe(events.EventCheckResult, events.EventTaskEnd, events.EventResultsReset),
		detail: viewport.New(80, 20),
	}
	m.refreshDetail()
	return m
}

// Init starts the clock and the event listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), waitEvent(m.events))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detail.Width = max(msg.Width-sidebarWidth-2, 20)
		m.detail.Height = max(msg.Height-5, 5)
		m.refreshDetail()
		return m, nil

	case tickMsg:
		m.timer.Tick(time.Second)
		return m, tick()

	case eventMsg:
		m.refreshDetail()
		return m, waitEvent(m.events)

	case jobDoneMsg:
		m.finish(msg)
		m.refreshDetail()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.deps.Bus.Unsubscribe(m.events)
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.showConn = false
		m.refreshDetail()
		m.detail.GotoTop()
	case "down", "j":
		if m.cursor < len(m.exam.Tasks)-1 {
			m.cursor++
		}
		m.showConn = false
		m.refreshDetail()
		m.detail.GotoTop()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	case "v":
		return m, m.verifyCurrent()
	case "V":
		return m, m.verifyAll()
	case "r":
		if t := m.currentTask(); t != nil {
			m.deps.Runner.ResetTask(t)
			m.setNotice(fmt.Sprintf("Task %s reset", t.ID), false)
		}
		m.refreshDetail()
	case "R":
		m.deps.Runner.ResetAll()
		m.setNotice("All results reset", false)
		m.refreshDetail()
	case "t":
		m.timer.Toggle()
	case "c":
		return m, m.checkConnectivity()
	case "e":
		return m, m.export()
	}
	return m, nil
}

func (m *Model) currentTask() *exam.Task {
	if m.cursor < 0 || m.cursor >= len(m.exam.Tasks) {
		return nil
	}
	return m.exam.Tasks[m.cursor]
}

func (m *Model) setNotice(s string, bad bool) {
	m.notice, m.noticeBad = s, bad
}

// await turns a scheduler result channel into a command.
func await(done <-chan error, build func(err error) jobDoneMsg) tea.Cmd {
	return func() tea.Msg {
		return build(<-done)
	}
}

func (m *Model) verifyCurrent() tea.Cmd {
	t := m.currentTask()
	if t == nil {
		return nil
	}
	m.setNotice(fmt.Sprintf("Verifying: %s...", t.Title), false)
	done := m.deps.Scheduler.Submit(verify.GroupVerify, func(ctx context.Context) error {
		return m.deps.Runner.VerifyTask(ctx, t)
	})
	return await(done, func(err error) jobDoneMsg {
		return jobDoneMsg{group: verify.GroupVerify, taskID: t.ID, err: err}
	})
}

func (m *Model) verifyAll() tea.Cmd {
	m.setNotice("Verifying all tasks...", false)
	done := m.deps.Scheduler.Submit(verify.GroupVerify, m.deps.Runner.VerifyAll)
	return await(done, func(err error) jobDoneMsg {
		return jobDoneMsg{group: verify.GroupVerify, err: err}
	})
}

func (m *Model) checkConnectivity() tea.Cmd {
	targets, err := verify.Targets(m.exam)
	if err != nil {
		m.setNotice(err.Error(), true)
		return nil
	}
	m.showConn = true
	m.connLog = []string{m.styles.Dim.Render("Testing VM connectivity...")}
	m.refreshDetail()
	m.setNotice("Testing VM connectivity...", false)

	var results []sshpool.ProbeResult
	done := m.deps.Scheduler.Submit(verify.GroupProbe, func(ctx context.Context) error {
		results = m.deps.Runner.ProbeHosts(ctx, m.deps.Prober, targets)
		return ctx.Err()
	})
	return await(done, func(err error) jobDoneMsg {
		return jobDoneMsg{group: verify.GroupProbe, err: err, probes: results}
	})
}

func (m *Model) export() tea.Cmd {
	m.setNotice("Exporting grade report...", false)
	var path string
	done := m.deps.Scheduler.Submit(verify.GroupExport, func(ctx context.Context) error {
		var err error
		path, err = m.deps.Exporter.Export(ctx, m.exam)
		return err
	})
	return await(done, func(err error) jobDoneMsg {
		return jobDoneMsg{group: verify.GroupExport, err: err, path: path}
	})
}

// finish updates the notice line once a job has completed.
func (m *Model) finish(msg jobDoneMsg) {
	if errors.Is(msg.err, context.Canceled) || errors.Is(msg.err, verify.ErrSchedulerClosed) {
		return
	}
	switch msg.group {
	case verify.GroupVerify:
		switch {
		case msg.err != nil:
			m.setNotice("Verification stopped: "+msg.err.Error(), true)
		case msg.taskID != "":
			status := exam.TaskNotStarted
			m.exam.View(func() {
				if t := m.exam.Task(msg.taskID); t != nil {
					status = t.Status()
				}
			})
			m.setNotice(fmt.Sprintf("Task %s: %s", msg.taskID, status), status != exam.TaskPassed)
		default:
			m.setNotice(fmt.Sprintf("Verification complete - Score: %.0f%%", exam.Summarize(m.exam).Score), false)
		}
	case verify.GroupProbe:
		lines := make([]string, 0, len(msg.probes))
		for _, r := range msg.probes {
			label := m.styles.Good.Render("OK  ")
			if !r.OK {
				label = m.styles.Bad.Render("FAIL")
			}
			lines = append(lines, fmt.Sprintf("%s %s (%s): %s", label, r.Host, m.exam.Hosts[r.Host].IP, r.Message))
		}
		m.connLog = lines
		m.setNotice("Connectivity check complete", false)
	case verify.GroupExport:
		if msg.err != nil {
			m.setNotice("Export failed: "+msg.err.Error(), true)
			return
		}
		m.setNotice("Report saved: "+msg.path, false)
	}
}

var taskGlyphs = map[exam.TaskStatus]string{
	exam.TaskNotStarted: "   ",
	exam.TaskPartial:    " ~ ",
	exam.TaskPassed:     " OK",
	exam.TaskFailed:     " X ",
}

var checkGlyphs = map[exam.CheckStatus]string{
	exam.CheckPending: "    ",
	exam.CheckRunning: " .. ",
	exam.CheckPassed:  " OK ",
	exam.CheckFailed:  " X  ",
	exam.CheckError:   " !! ",
}

func (m Model) taskStyle(s exam.TaskStatus) lipgloss.Style {
	switch s {
	case exam.TaskPassed:
		return m.styles.Good
	case exam.TaskPartial:
		return m.styles.Warn
	case exam.TaskFailed:
		return m.styles.Bad
	default:
		return m.styles.Dim
	}
}

func (m Model) checkStyle(s exam.CheckStatus) lipgloss.Style {
	switch s {
	case exam.CheckPassed:
		return m.styles.Good
	case exam.CheckRunning:
		return m.styles.Info
	case exam.CheckFailed, exam.CheckError:
		return m.styles.Bad
	default:
		return m.styles.Dim
	}
}

// scoreStyle is green at or above the passing score, red below it once any
// points are earned, dim otherwise.
func (m Model) scoreStyle(s exam.Summary) lipgloss.Style {
	switch {
	case s.Score >= s.PassingScore:
		return m.styles.Good
	case s.Score > 0:
		return m.styles.Bad
	default:
		return m.styles.Dim
	}
}

// refreshDetail re-renders the right-hand pane into the viewport.
func (m *Model) refreshDetail() {
	var b strings.Builder
	if m.showConn {
		b.WriteString(m.styles.Header.Render("VM Connectivity Check"))
		b.WriteString("\n\n")
		for _, line := range m.connLog {
			b.WriteString(line + "\n")
		}
		m.detail.SetContent(b.String())
		return
	}

	t := m.currentTask()
	if t == nil {
		m.detail.SetContent(m.styles.Dim.Render("This exam has no tasks."))
		return
	}

	m.exam.View(func() {
		fmt.Fprintf(&b, "%s  %s\n\n", m.styles.Title.Render(fmt.Sprintf("Task %s: %s", t.ID, t.Title)),
			m.styles.Dim.Render(fmt.Sprintf("(%g pts)", t.Points)))
		if t.Description != "" {
			b.WriteString(lipgloss.NewStyle().Width(max(m.detail.Width-2, 20)).Render(strings.TrimSpace(t.Description)))
			b.WriteString("\n\n")
		}
		b.WriteString(m.styles.Header.Render("Verification Results"))
		b.WriteString("\n\n")
		for i, c := range t.Checks {
			status := exam.CheckPending
			var message string
			if i < len(t.Results) {
				status = t.Results[i].Status
				message = t.Results[i].Message
			}
			desc := c.Description
			if desc == "" {
				desc = c.ID
			}
			fmt.Fprintf(&b, "%s %s\n", m.checkStyle(status).Render(checkGlyphs[status]), desc)
			if message != "" && (status == exam.CheckFailed || status == exam.CheckError) {
				fmt.Fprintf(&b, "       %s\n", m.styles.Dim.Render(message))
			}
		}
	})
	m.detail.SetContent(b.String())
}

// View renders the screen.
func (m Model) View() string {
	s := exam.Summarize(m.exam)

	score := m.scoreStyle(s).Render(fmt.Sprintf("%.1f/%.1f (%.0f%%)", s.Earned, s.Total, s.Score))
	bar := []string{m.styles.Title.Render(s.Title), m.timer.Render(m.styles), score}
	if m.deps.Scheduler.Busy(verify.GroupVerify) {
		bar = append(bar, m.styles.Info.Render("verifying..."))
	}
	status := m.styles.StatusBar.Render(strings.Join(bar, "   "))

	var list strings.Builder
	for i, t := range s.Tasks {
		label := fmt.Sprintf("%d. %s", i+1, t.Title)
		if w := sidebarWidth - 8; len(label) > w {
			label = label[:w-3] + "..."
		}
		line := m.taskStyle(t.Status).Render(taskGlyphs[t.Status]) + " " + label
		if i == m.cursor && !m.showConn {
			line = m.styles.Selected.Render(line)
		}
		list.WriteString(line + "\n")
	}
	sidebar := m.styles.Sidebar.Width(sidebarWidth).Render(strings.TrimRight(list.String(), "\n"))
	panes := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, m.styles.Detail.Render(m.detail.View()))

	notice := m.notice
	if m.noticeBad {
		notice = m.styles.Bad.Render(notice)
	}
	help := "v verify  V verify all  r reset  R reset all  t timer  c connectivity  e export  q quit"
	footer := m.styles.Footer.Render(help) + "\n " + notice

	return lipgloss.JoinVertical(lipgloss.Left, status, panes, footer)
}

// Run starts the full-screen program and blocks until the user quits.
func Run(deps Deps) error {
	_, err := tea.NewProgram(New(deps), tea.WithAltScreen()).Run()
	return err
}
