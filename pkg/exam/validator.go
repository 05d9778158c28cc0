package exam

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult holds all validation errors for an exam.
type ValidationResult struct {
	Errors []ValidationError
}

// Valid returns true if no validation errors were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a combined error message from all validation errors.
func (r ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (r *ValidationResult) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateExam checks an exam for the structural problems that would make
// grading meaningless, most importantly checks aimed at undefined hosts.
func ValidateExam(e *Exam) ValidationResult {
	var result ValidationResult

	if e.ID == "" {
		result.add("id", "required")
	}
	if e.PassingScore < 0 || e.PassingScore > 100 {
		result.add("passing_score", "must be between 0 and 100, got %g", e.PassingScore)
	}
	if e.Duration <= 0 {
		result.add("duration", "must be positive")
	}

	for _, name := range e.HostNames() {
		if strings.TrimSpace(e.Hosts[name].IP) == "" {
			result.add(fmt.Sprintf("hosts.%s.ip", name), "required")
		}
	}

	if len(e.Tasks) == 0 {
		result.add("tasks", "at least one task is required")
	}

	taskIDs := make(map[string]bool, len(e.Tasks))
	for i, t := range e.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		switch {
		case t.ID == "":
			result.add(field+".id", "required")
		case taskIDs[t.ID]:
			result.add(field+".id", "duplicate task id %q", t.ID)
		default:
			taskIDs[t.ID] = true
		}
		if strings.TrimSpace(t.Title) == "" {
			result.add(field+".title", "required")
		}
		if t.Points < 0 {
			result.add(field+".points", "must not be negative")
		}

		checkIDs := make(map[string]bool, len(t.Checks))
		for j, c := range t.Checks {
			cf := fmt.Sprintf("%s.checks[%d]", field, j)
			switch {
			case c.ID == "":
				result.add(cf+".id", "required")
			case checkIDs[c.ID]:
				result.add(cf+".id", "duplicate check id %q", c.ID)
			default:
				checkIDs[c.ID] = true
			}
			if strings.TrimSpace(c.Command) == "" {
				result.add(cf+".command", "required")
			}
			if c.Node == "" {
				result.add(cf+".node", "required")
			} else if _, err := e.ResolveHost(c.Node); err != nil {
				result.add(cf+".node", "unknown host %q", c.Node)
			}
		}
	}

	return result
}
