// Package report renders finished exam results as a markdown grade report,
// including the learner's files from the control node.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
)

// DefaultDir is where Export writes reports unless configured otherwise.
const DefaultDir = "results"

// ControlHost is the host whose working directory holds the learner's files.
const ControlHost = "control"

// CommandRunner executes a command on a named host.
type CommandRunner interface {
	Run(ctx context.Context, host, addr, command, user string) (int, string, error)
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithDir sets the output directory.
func WithDir(dir string) Option {
	return func(e *Exporter) {
		e.dir = dir
	}
}

// WithClock replaces the time source used for the report date and filename.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) {
		e.log = l
	}
}

// WithBus publishes report.exported after every export.
func WithBus(bus events.EventBus) Option {
	return func(e *Exporter) {
		e.bus = bus
	}
}

// Exporter writes grade reports.
type Exporter struct {
	pool CommandRunner
	dir  string
	now  func() time.Time
	log  *zap.Logger
	bus  events.EventBus
}

// NewExporter creates an exporter that fetches remote files through pool.
func NewExporter(pool CommandRunner, opts ...Option) *Exporter {
	e := &Exporter{
		pool: pool,
		dir:  DefaultDir,
		now:  time.Now,
		log:  zap.NewNop(),
		bus:  events.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var taskLabels = map[exam.TaskStatus]string{
	exam.TaskPassed:     "PASS",
	exam.TaskPartial:    "PARTIAL",
	exam.TaskFailed:     "FAIL",
	exam.TaskNotStarted: "NOT GRADED",
}

var checkLabels = map[exam.CheckStatus]string{
	exam.CheckPassed:  "OK",
	exam.CheckFailed:  "FAIL",
	exam.CheckError:   "ERROR",
	exam.CheckPending: "-",
	exam.CheckRunning: "...",
}

// Title is the heading used for a report on s.
func Title(s exam.Summary) string {
	return fmt.Sprintf("Grade Report: %s", s.Title)
}

// Render builds the markdown report for the exam's current results.
func (x *Exporter) Render(ctx context.Context, e *exam.Exam) (string, error) {
	s := exam.Summarize(e)
	var b strings.Builder

	result := "FAIL"
	if s.Passed {
		result = "PASS"
	}
	fmt.Fprintf(&b, "# %s\n\n", Title(s))
	fmt.Fprintf(&b, "- **Date:** %s\n", x.now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Score:** %.1f / %.1f (%.0f%%)\n", s.Earned, s.Total, s.Score)
	fmt.Fprintf(&b, "- **Result:** %s (need %g%%)\n\n", result, s.PassingScore)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Task | Title | Points | Status |\n")
	b.WriteString("|------|-------|--------|--------|\n")
	for _, t := range s.Tasks {
		label := taskLabels[t.Status]
		if t.Status == exam.TaskNotStarted {
			label = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %.1f/%.1f | %s |\n", t.ID, escape(t.Title), t.Earned, t.Points, label)
	}
	b.WriteString("\n")

	b.WriteString("## Detailed Results\n\n")
	for i, t := range s.Tasks {
		fmt.Fprintf(&b, "### Task %s: %s (%.1f/%.1f pts) - %s\n\n", t.ID, t.Title, t.Earned, t.Points, taskLabels[t.Status])
		b.WriteString("| Check | Description | Result | Details |\n")
		b.WriteString("|-------|-------------|--------|---------|\n")
		checks := e.Tasks[i].Checks
		for j, r := range t.Results {
			var desc string
			if j < len(checks) {
				desc = checks[j].Description
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", r.CheckID, escape(desc), checkLabels[r.Status], escape(r.Message))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n## Student Playbooks\n\n")
	if host, ok := e.Hosts[ControlHost]; ok {
		x.writeStudentFiles(ctx, &b, e, host)
	}

	if e.SolutionsFile != "" {
		data, err := os.ReadFile(e.SolutionsFile)
		switch {
		case err == nil:
			b.WriteString("---\n\n## Reference Solutions\n\n")
			b.Write(data)
		case os.IsNotExist(err):
			x.log.Debug("solutions file not found", zap.String("path", e.SolutionsFile))
		default:
			return "", fmt.Errorf("read solutions: %w", err)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// Export renders the report and writes it to <dir>/<examID>_<timestamp>.md.
func (x *Exporter) Export(ctx context.Context, e *exam.Exam) (string, error) {
	path, _, err := x.write(ctx, e)
	if err != nil {
		return "", err
	}
	x.announce(e.ID, path, "")
	return path, nil
}

// Issuer opens an issue and returns its URL. *Publisher implements it.
type Issuer interface {
	Publish(ctx context.Context, title, body string) (string, error)
}

// ExportAndPublish writes the report like Export and then files it through
// iss. The local path is returned even when publishing fails.
func (x *Exporter) ExportAndPublish(ctx context.Context, e *exam.Exam, iss Issuer) (string, string, error) {
	path, body, err := x.write(ctx, e)
	if err != nil {
		return "", "", err
	}
	url, err := iss.Publish(ctx, Title(exam.Summarize(e)), body)
	if err != nil {
		x.announce(e.ID, path, "")
		return path, "", err
	}
	x.announce(e.ID, path, url)
	return path, url, nil
}

func (x *Exporter) write(ctx context.Context, e *exam.Exam) (string, string, error) {
	body, err := x.Render(ctx, e)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create results dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.md", e.ID, x.now().Format("2006-01-02_150405"))
	path := filepath.Join(x.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	return path, body, nil
}

func (x *Exporter) announce(examID, path, url string) {
	x.log.Info("report exported",
		zap.String("exam", examID),
		zap.String("path", path),
		zap.String("url", url))
	x.bus.Publish(events.NewEvent(events.EventReportExported, events.ExportData{Path: path, URL: url}))
}

// escape keeps cell text from breaking a markdown table row.
func escape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
