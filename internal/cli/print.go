package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/sshpool"
)

var (
	passColor = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
	bold      = color.New(color.Bold)
)

var taskLabels = map[exam.TaskStatus]string{
	exam.TaskPassed:     "PASS",
	exam.TaskPartial:    "PART",
	exam.TaskFailed:     "FAIL",
	exam.TaskNotStarted: "----",
}

var checkLabels = map[exam.CheckStatus]string{
	exam.CheckPassed:  "OK",
	exam.CheckFailed:  "X ",
	exam.CheckError:   "!!",
	exam.CheckPending: "  ",
	exam.CheckRunning: "..",
}

func taskColor(s exam.TaskStatus) *color.Color {
	switch s {
	case exam.TaskPassed:
		return passColor
	case exam.TaskPartial:
		return warnColor
	case exam.TaskFailed:
		return failColor
	default:
		return dimColor
	}
}

func checkColor(s exam.CheckStatus) *color.Color {
	switch s {
	case exam.CheckPassed:
		return passColor
	case exam.CheckFailed, exam.CheckError:
		return failColor
	default:
		return dimColor
	}
}

// printSummary writes the per-task results and the final score. e supplies
// the check descriptions; s the results.
func printSummary(w io.Writer, e *exam.Exam, s exam.Summary) {
	bold.Fprintf(w, "%s\n\n", s.Title)
	for i, t := range s.Tasks {
		taskColor(t.Status).Fprintf(w, "[%s]", taskLabels[t.Status])
		fmt.Fprintf(w, " %s. %s  %.1f/%.1f\n", t.ID, t.Title, t.Earned, t.Points)
		checks := e.Tasks[i].Checks
		for j, r := range t.Results {
			desc := r.CheckID
			if j < len(checks) && checks[j].Description != "" {
				desc = checks[j].Description
			}
			fmt.Fprint(w, "    ")
			checkColor(r.Status).Fprint(w, checkLabels[r.Status])
			fmt.Fprintf(w, " %s\n", desc)
			if r.Message != "" && (r.Status == exam.CheckFailed || r.Status == exam.CheckError) {
				dimColor.Fprintf(w, "       %s\n", r.Message)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Score: %.1f/%.1f (%.0f%%) ", s.Earned, s.Total, s.Score)
	if s.Passed {
		passColor.Fprintf(w, "PASS")
	} else {
		failColor.Fprintf(w, "FAIL")
	}
	fmt.Fprintf(w, " (need %g%%)\n", s.PassingScore)
}

// printProbes writes one line per probed host.
func printProbes(w io.Writer, e *exam.Exam, results []sshpool.ProbeResult) {
	for _, r := range results {
		if r.OK {
			passColor.Fprint(w, "OK  ")
		} else {
			failColor.Fprint(w, "FAIL")
		}
		fmt.Fprintf(w, " %s (%s): %s\n", r.Host, e.Hosts[r.Host].IP, r.Message)
	}
}
