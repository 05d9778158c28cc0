package exam

// CheckStatus is the state of a single check result.
type CheckStatus string

const (
	CheckPending CheckStatus = "pending"
	CheckRunning CheckStatus = "running"
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckError   CheckStatus = "error"
)

// TaskStatus is derived from a task's check results; it is never stored.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskPartial    TaskStatus = "partial"
	TaskPassed     TaskStatus = "passed"
	TaskFailed     TaskStatus = "failed"
)

// CheckResult is the mutable outcome of running one check. Results are held by
// pointer and mutated in place so references stay valid across re-runs.
type CheckResult struct {
	CheckID      string      `json:"check_id"`
	Status       CheckStatus `json:"status"`
	ActualRC     *int        `json:"actual_rc,omitempty"`
	ActualStdout *string     `json:"actual_stdout,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// NewCheckResult returns a pending result for the given check.
func NewCheckResult(checkID string) *CheckResult {
	return &CheckResult{CheckID: checkID, Status: CheckPending}
}

// Reset rolls the result back to pending and clears observed fields.
func (r *CheckResult) Reset() {
	r.Status = CheckPending
	r.ActualRC = nil
	r.ActualStdout = nil
	r.Message = ""
}

// Task is a gradable unit of work. Results is index-aligned with Checks once
// InitResults has run.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Points      float64        `json:"points"`
	Description string         `json:"description"`
	Checks      []Check        `json:"checks"`
	Results     []*CheckResult `json:"results"`
}

// InitResults creates one result per check unless the counts already match.
func (t *Task) InitResults() {
	if len(t.Results) == len(t.Checks) {
		return
	}
	t.Results = make([]*CheckResult, len(t.Checks))
	for i, c := range t.Checks {
		t.Results[i] = NewCheckResult(c.ID)
	}
}

// Reset rolls every result back to pending. Checks and result identities are
// left untouched.
func (t *Task) Reset() {
	for _, r := range t.Results {
		r.Reset()
	}
}

// PassedCount is the number of results with status passed.
func (t *Task) PassedCount() int {
	n := 0
	for _, r := range t.Results {
		if r.Status == CheckPassed {
			n++
		}
	}
	return n
}

// Status derives the task status from its results.
func (t *Task) Status() TaskStatus {
	allPending := true
	for _, r := range t.Results {
		if r.Status != CheckPending {
			allPending = false
			break
		}
	}
	if allPending {
		return TaskNotStarted
	}

	passed := t.PassedCount()
	switch {
	case len(t.Checks) > 0 && passed == len(t.Checks):
		return TaskPassed
	case passed > 0:
		return TaskPartial
	default:
		return TaskFailed
	}
}

// EarnedPoints awards partial credit: points * passed/len(checks).
func (t *Task) EarnedPoints() float64 {
	if len(t.Checks) == 0 {
		return 0
	}
	return t.Points * float64(t.PassedCount()) / float64(len(t.Checks))
}
