package verify

import (
	"fmt"
	"strings"

	"github.com/cgast/examiner/pkg/exam"
)

// Outcome is the verdict for one check given its observed exit code and
// trimmed output.
type Outcome struct {
	Passed  bool
	Message string
}

// expectation checks one declared expectation. Undeclared expectations pass.
type expectation func(check exam.Check, rc int, stdout string) (bool, string)

// expectations run in this order and stop at the first failure.
var expectations = []expectation{
	expectExitCode,
	expectStdout,
	expectStdoutContains,
}

// Evaluate applies the check's expectations to an observed result. stdout is
// expected to be trimmed already.
func Evaluate(check exam.Check, rc int, stdout string) Outcome {
	for _, expect := range expectations {
		if ok, msg := expect(check, rc, stdout); !ok {
			return Outcome{Passed: false, Message: msg}
		}
	}
	return Outcome{Passed: true}
}

func expectExitCode(check exam.Check, rc int, _ string) (bool, string) {
	if check.ExpectRC == nil || *check.ExpectRC == rc {
		return true, ""
	}
	return false, fmt.Sprintf("Expected rc=%d, got %d", *check.ExpectRC, rc)
}

func expectStdout(check exam.Check, _ int, stdout string) (bool, string) {
	if check.ExpectStdout == nil {
		return true, ""
	}
	want := strings.TrimSpace(*check.ExpectStdout)
	if stdout == want {
		return true, ""
	}
	return false, fmt.Sprintf("Expected stdout '%s', got '%s'", want, stdout)
}

func expectStdoutContains(check exam.Check, _ int, stdout string) (bool, string) {
	if check.ExpectStdoutContains == nil || strings.Contains(stdout, *check.ExpectStdoutContains) {
		return true, ""
	}
	return false, fmt.Sprintf("stdout missing '%s'", *check.ExpectStdoutContains)
}
