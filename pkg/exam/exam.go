// Package exam holds the grading model: hosts, tasks, checks, results and the
// scoring functions derived from them.
package exam

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultUser is the login used for hosts that do not declare ssh_user.
const DefaultUser = "vagrant"

// Host is a lab machine declared by the exam. Immutable once loaded.
type Host struct {
	Name     string   `yaml:"-" json:"name"`
	Hostname string   `yaml:"hostname" json:"hostname"`
	IP       string   `yaml:"ip" json:"ip"`
	User     string   `yaml:"ssh_user" json:"ssh_user"`
	Groups   []string `yaml:"groups" json:"groups,omitempty"`
}

// Check is one remote command plus its pass/fail expectations.
// A nil expectation is not evaluated.
type Check struct {
	ID                   string  `json:"id"`
	Description          string  `json:"description"`
	Node                 string  `json:"node"`
	Command              string  `json:"command"`
	ExpectRC             *int    `json:"expect_rc,omitempty"`
	ExpectStdout         *string `json:"expect_stdout,omitempty"`
	ExpectStdoutContains *string `json:"expect_stdout_contains,omitempty"`
}

// Exam is a complete practice exam.
type Exam struct {
	ID            string
	Title         string
	Duration      time.Duration
	PassingScore  float64 // percent, 0-100
	Hosts         map[string]Host
	Tasks         []*Task
	WorkingDir    string
	SolutionsFile string

	mu sync.RWMutex
}

// UnknownHostError reports a check that targets a host the exam does not define.
type UnknownHostError struct {
	Name string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("Unknown host: %s", e.Name)
}

// InitResults pairs every task's checks with results.
func (e *Exam) InitResults() {
	for _, t := range e.Tasks {
		t.InitResults()
	}
}

// Update runs fn while holding the exam's write lock. Every mutation of a
// CheckResult belonging to this exam goes through Update.
func (e *Exam) Update(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// View runs fn while holding the exam's read lock.
func (e *Exam) View(fn func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn()
}

// ResolveHost looks up a host by name.
func (e *Exam) ResolveHost(name string) (Host, error) {
	h, ok := e.Hosts[name]
	if !ok {
		return Host{}, &UnknownHostError{Name: name}
	}
	return h, nil
}

// HostNames returns the declared host names in sorted order.
func (e *Exam) HostNames() []string {
	names := make([]string, 0, len(e.Hosts))
	for name := range e.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task returns the task with the given id, or nil.
func (e *Exam) Task(id string) *Task {
	for _, t := range e.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TotalPoints is the sum of all task points.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for _, t := range e.Tasks {
		total += t.Points
	}
	return total
}

// EarnedPoints is the sum of all task earned points.
func (e *Exam) EarnedPoints() float64 {
	var earned float64
	for _, t := range e.Tasks {
		earned += t.EarnedPoints()
	}
	return earned
}

// ScorePercent is earned/total*100, or 0 when the exam is worth nothing.
func (e *Exam) ScorePercent() float64 {
	total := e.TotalPoints()
	if total == 0 {
		return 0
	}
	return e.EarnedPoints() / total * 100
}

// Passed reports whether the current score meets the passing threshold.
func (e *Exam) Passed() bool {
	return e.ScorePercent() >= e.PassingScore
}
