package events

import "time"

// EventType identifies the kind of event emitted during an exam session.
type EventType string

const (
	EventTaskStart      EventType = "verify.task.start"
	EventTaskEnd        EventType = "verify.task.end"
	EventCheckStart     EventType = "verify.check.start"
	EventCheckResult    EventType = "verify.check.result"
	EventVerifyAllStart EventType = "verify.all.start"
	EventVerifyAllEnd   EventType = "verify.all.end"
	EventProbeResult    EventType = "probe.result"
	EventResultsReset   EventType = "results.reset"
	EventReportExported EventType = "report.exported"
)

// Event represents a single session event.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      any           `json:"data"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// NewEvent creates a new Event with the current timestamp.
func NewEvent(typ EventType, data any) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// CheckData is the payload of check events.
type CheckData struct {
	TaskID   string `json:"task_id"`
	CheckID  string `json:"check_id"`
	Node     string `json:"node"`
	Status   string `json:"status"`
	ActualRC *int   `json:"actual_rc,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TaskData is the payload of task events.
type TaskData struct {
	TaskID string  `json:"task_id"`
	Status string  `json:"status,omitempty"`
	Earned float64 `json:"earned"`
	Points float64 `json:"points"`
}

// ExamData is the payload of exam-wide events.
type ExamData struct {
	ExamID string  `json:"exam_id"`
	Earned float64 `json:"earned"`
	Total  float64 `json:"total"`
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

// ProbeData is the payload of probe.result.
type ProbeData struct {
	Host    string `json:"host"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// ResetData is the payload of results.reset. An empty TaskID means every task.
type ResetData struct {
	TaskID string `json:"task_id,omitempty"`
}

// ExportData is the payload of report.exported.
type ExportData struct {
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
}
