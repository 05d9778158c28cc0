package cli

import (
	"fmt"

	"github.com/cgast/examiner/pkg/exam"
)

// Process exit codes.
const (
	ExitPassed  = 0
	ExitBelow   = 1
	ExitErrored = 2
	ExitFatal   = 3
)

// exitError carries a specific exit code out of a command. err may be nil
// when the command already reported the outcome.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func fatal(err error) error {
	return &exitError{code: ExitFatal, err: err}
}

// gradeExit maps a graded exam to its exit code. Errored checks win over a
// low score because the score is then incomplete.
func gradeExit(s exam.Summary) error {
	switch {
	case s.HasErrors():
		return &exitError{code: ExitErrored}
	case !s.Passed:
		return &exitError{code: ExitBelow}
	default:
		return nil
	}
}
