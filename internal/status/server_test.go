package status

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
)

type fakeHistory struct {
	runs []history.Run
	err  error
}

func (f fakeHistory) List(string) ([]history.Run, error) {
	return f.runs, f.err
}

func testExam() *exam.Exam {
	e := &exam.Exam{
		ID:           "rhce-1",
		Title:        "RHCE Practice",
		PassingScore: 70,
		Hosts:        map[string]exam.Host{"node1": {Name: "node1", IP: "10.0.0.11", User: "vagrant"}},
		Tasks: []*exam.Task{
			{ID: "1", Title: "Install", Points: 10, Checks: []exam.Check{
				{ID: "a", Node: "node1", Command: "rpm -q httpd"},
				{ID: "b", Node: "node1", Command: "systemctl is-active httpd"},
			}},
		},
	}
	e.InitResults()
	e.Tasks[0].Results[0].Status = exam.CheckPassed
	e.Tasks[0].Results[1].Status = exam.CheckPassed
	return e
}

func get(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	return rec.Code
}

func TestStatus(t *testing.T) {
	bus := events.NewMemoryBus()
	bus.Publish(events.NewEvent(events.EventResultsReset, events.ResetData{}))
	s := New(testExam(), bus, nil, nil)

	var body map[string]any
	code := get(t, s.Handler(), "/api/status", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "rhce-1", body["exam_id"])
	assert.Equal(t, 100.0, body["score"])
	assert.Equal(t, true, body["passed"])
	assert.Equal(t, 1.0, body["events"])
	assert.Equal(t, map[string]any{"passed": 2.0}, body["checks"])
}

func TestTasks(t *testing.T) {
	s := New(testExam(), events.NewMemoryBus(), nil, nil)

	var tasks []exam.TaskSummary
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/tasks", &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, exam.TaskPassed, tasks[0].Status)
	assert.Equal(t, 10.0, tasks[0].Earned)

	var task exam.TaskSummary
	require.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/tasks/1", &task))
	assert.Len(t, task.Results, 2)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/tasks/9", &missing))
	assert.Equal(t, "unknown task 9", missing["error"])
}

func TestHistory(t *testing.T) {
	tests := []struct {
		name string
		hist HistoryLister
		code int
		want int
	}{
		{"disabled", nil, http.StatusOK, 0},
		{"empty", fakeHistory{}, http.StatusOK, 0},
		{"runs", fakeHistory{runs: []history.Run{{ID: "r1"}, {ID: "r2"}}}, http.StatusOK, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testExam(), events.NewMemoryBus(), tt.hist, nil)
			var runs []history.Run
			assert.Equal(t, tt.code, get(t, s.Handler(), "/api/history", &runs))
			assert.NotNil(t, runs)
			assert.Len(t, runs, tt.want)
		})
	}

	s := New(testExam(), events.NewMemoryBus(), fakeHistory{err: errors.New("disk gone")}, nil)
	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, get(t, s.Handler(), "/api/history", &body))
	assert.Equal(t, "disk gone", body["error"])
}

func TestEventsReplayHistory(t *testing.T) {
	bus := events.NewMemoryBus()
	bus.Publish(events.NewEvent(events.EventProbeResult, events.ProbeData{Host: "node1", OK: true}))
	srv := httptest.NewServer(New(testExam(), bus, nil, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var ev struct {
		Type string `json:"type"`
		Data struct {
			Host string `json:"host"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
	assert.Equal(t, string(events.EventProbeResult), ev.Type)
	assert.Equal(t, "node1", ev.Data.Host)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(testExam(), events.NewMemoryBus(), nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, 0) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
