package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/ssh"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
	"github.com/cgast/examiner/pkg/sshpool"
)

type reply struct {
	rc     int
	stdout string
	err    error
}

type call struct {
	host, addr, command, user string
}

type fakePool struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []call
	hook    func(command string)
}

func (f *fakePool) Run(_ context.Context, host, addr, command, user string) (int, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{host, addr, command, user})
	r, ok := f.replies[command]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(command)
	}
	if !ok {
		return 127, "", nil
	}
	return r.rc, r.stdout, r.err
}

func (f *fakePool) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cmds []string
	for _, c := range f.calls {
		cmds = append(cmds, c.command)
	}
	return cmds
}

type fakeRecorder struct {
	runs []history.Run
}

func (f *fakeRecorder) Record(run history.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func labExam() *exam.Exam {
	e := &exam.Exam{
		ID:           "lab",
		Title:        "Lab",
		PassingScore: 70,
		Hosts: map[string]exam.Host{
			"control": {Name: "control", IP: "10.0.0.10", User: "vagrant"},
			"node1":   {Name: "node1", IP: "10.0.0.11", User: "admin"},
		},
		Tasks: []*exam.Task{
			{ID: "1", Title: "Packages", Points: 5, Checks: []exam.Check{
				{ID: "httpd", Node: "node1", Command: "rpm -q httpd", ExpectRC: intPtr(0)},
				{ID: "active", Node: "node1", Command: "systemctl is-active httpd", ExpectRC: intPtr(0), ExpectStdout: strPtr("active")},
			}},
			{ID: "2", Title: "Inventory", Points: 10, Checks: []exam.Check{
				{ID: "inv", Node: "control", Command: "cat inventory", ExpectRC: intPtr(0), ExpectStdoutContains: strPtr("node1")},
				{ID: "cfg", Node: "control", Command: "test -f ansible.cfg", ExpectRC: intPtr(0)},
			}},
		},
	}
	e.InitResults()
	return e
}

func goodLab() *fakePool {
	return &fakePool{replies: map[string]reply{
		"rpm -q httpd":              {0, "httpd-2.4\n", nil},
		"systemctl is-active httpd": {0, "active\n", nil},
		"cat inventory":             {0, "[web]\nnode1\n", nil},
		"test -f ansible.cfg":       {1, "", nil},
	}}
}

func TestVerifyExitCodeMismatch(t *testing.T) {
	e := labExam()
	pool := &fakePool{replies: map[string]reply{"rpm -q httpd": {1, "package httpd is not installed\n", nil}}}
	r := NewRunner(e, pool)

	result := e.Tasks[0].Results[0]
	require.NoError(t, r.Verify(context.Background(), e.Tasks[0].Checks[0], result))

	assert.Equal(t, exam.CheckFailed, result.Status)
	assert.Equal(t, "Expected rc=0, got 1", result.Message)
	require.NotNil(t, result.ActualRC)
	assert.Equal(t, 1, *result.ActualRC)
	require.NotNil(t, result.ActualStdout)
	assert.Equal(t, "package httpd is not installed", *result.ActualStdout)
	assert.Equal(t, []call{{"node1", "10.0.0.11", "rpm -q httpd", "admin"}}, pool.calls)
}

func TestVerifySubstringPasses(t *testing.T) {
	e := labExam()
	check := exam.Check{ID: "ok", Node: "node1", Command: "status", ExpectStdoutContains: strPtr("ok")}
	result := exam.NewCheckResult("ok")
	result.Message = "stale message"
	r := NewRunner(e, &fakePool{replies: map[string]reply{"status": {0, "system ok\n", nil}}})

	require.NoError(t, r.Verify(context.Background(), check, result))
	assert.Equal(t, exam.CheckPassed, result.Status)
	assert.Empty(t, result.Message)
}

func TestVerifyShortCircuitReportsExitCodeOnly(t *testing.T) {
	e := labExam()
	check := exam.Check{ID: "c", Node: "node1", Command: "x", ExpectRC: intPtr(0), ExpectStdoutContains: strPtr("ok")}
	result := exam.NewCheckResult("c")
	r := NewRunner(e, &fakePool{replies: map[string]reply{"x": {2, "broken", nil}}})

	require.NoError(t, r.Verify(context.Background(), check, result))
	assert.Equal(t, exam.CheckFailed, result.Status)
	assert.Equal(t, "Expected rc=0, got 2", result.Message)
}

func TestVerifyConnectionErrorBecomesCheckError(t *testing.T) {
	authErr := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")
	pool := sshpool.New(sshpool.Config{KeyDir: t.TempDir()},
		sshpool.WithDialer(func(context.Context, string, *ssh.ClientConfig) (sshpool.Session, error) {
			return nil, authErr
		}))
	e := labExam()
	r := NewRunner(e, pool)

	result := e.Tasks[0].Results[0]
	require.NoError(t, r.Verify(context.Background(), e.Tasks[0].Checks[0], result))

	assert.Equal(t, exam.CheckError, result.Status)
	assert.Contains(t, result.Message, "unable to authenticate")
	assert.Contains(t, result.Message, "node1")
	assert.Nil(t, result.ActualRC)
}

func TestVerifyPoolFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		reply    reply
		status   exam.CheckStatus
		logLevel zapcore.Level
		logMsg   string
	}{
		{
			name:     "none",
			reply:    reply{0, "httpd-2.4\n", nil},
			status:   exam.CheckPassed,
			logLevel: zapcore.DebugLevel,
			logMsg:   "check finished",
		},
		{
			name:     "connection",
			reply:    reply{-1, "", &sshpool.Error{Kind: sshpool.KindConnection, Host: "node1", Op: "connect", Err: errors.New("refused")}},
			status:   exam.CheckError,
			logLevel: zapcore.WarnLevel,
			logMsg:   "check errored",
		},
		{
			name:     "timeout",
			reply:    reply{-1, "", &sshpool.Error{Kind: sshpool.KindTimeout, Host: "node1", Op: "run", Err: context.DeadlineExceeded}},
			status:   exam.CheckError,
			logLevel: zapcore.WarnLevel,
			logMsg:   "check errored",
		},
		{
			name:     "session",
			reply:    reply{-1, "", &sshpool.Error{Kind: sshpool.KindSession, Host: "node1", Op: "run", Err: errors.New("channel refused")}},
			status:   exam.CheckError,
			logLevel: zapcore.WarnLevel,
			logMsg:   "check errored",
		},
		{
			name:     "canceled",
			reply:    reply{-1, "", &sshpool.Error{Kind: sshpool.KindCanceled, Host: "node1", Op: "connect", Err: context.Canceled}},
			status:   exam.CheckError,
			logLevel: zapcore.InfoLevel,
			logMsg:   "check canceled",
		},
		{
			name:     "foreign error counts as session",
			reply:    reply{-1, "", errors.New("boom")},
			status:   exam.CheckError,
			logLevel: zapcore.WarnLevel,
			logMsg:   "check errored",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			e := labExam()
			r := NewRunner(e, &fakePool{replies: map[string]reply{"rpm -q httpd": tt.reply}}, WithLogger(zap.New(core)))
			result := e.Tasks[0].Results[0]

			require.NoError(t, r.Verify(context.Background(), e.Tasks[0].Checks[0], result))
			assert.Equal(t, tt.status, result.Status)

			if tt.reply.err == nil {
				assert.Empty(t, result.Message)
				require.NotNil(t, result.ActualRC)
				assert.Equal(t, 0, *result.ActualRC)
			} else {
				assert.Equal(t, tt.reply.err.Error(), result.Message)
				assert.Nil(t, result.ActualRC)
				assert.Nil(t, result.ActualStdout)
			}

			entries := logs.FilterMessage(tt.logMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.logLevel, entries[0].Level)
		})
	}
}

func TestVerifyUnknownHost(t *testing.T) {
	e := labExam()
	e.Tasks[0].Checks[0].Node = "ghost"
	pool := goodLab()
	r := NewRunner(e, pool)

	err := r.VerifyTask(context.Background(), e.Tasks[0])
	require.Error(t, err)

	var uh *exam.UnknownHostError
	require.ErrorAs(t, err, &uh)
	assert.Equal(t, "ghost", uh.Name)
	assert.True(t, IsDefinitional(err))

	first := e.Tasks[0].Results[0]
	assert.Equal(t, exam.CheckError, first.Status)
	assert.Equal(t, "Unknown host: ghost", first.Message)
	assert.Equal(t, exam.CheckPending, e.Tasks[0].Results[1].Status, "later checks are not run")
	assert.Empty(t, pool.commands())

	assert.False(t, IsDefinitional(context.Canceled))
}

func TestVerifyTaskSequentialAndIdempotent(t *testing.T) {
	e := labExam()
	pool := goodLab()
	r := NewRunner(e, pool)
	ctx := context.Background()

	require.NoError(t, r.VerifyTask(ctx, e.Tasks[1]))
	first := exam.Summarize(e)
	results := append([]*exam.CheckResult(nil), e.Tasks[1].Results...)

	require.NoError(t, r.VerifyTask(ctx, e.Tasks[1]))
	second := exam.Summarize(e)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run changed results (-first +second):\n%s", diff)
	}
	for i := range results {
		assert.Same(t, results[i], e.Tasks[1].Results[i], "result identity must survive re-runs")
	}
	assert.Equal(t, []string{
		"cat inventory", "test -f ansible.cfg",
		"cat inventory", "test -f ansible.cfg",
	}, pool.commands())
	assert.Equal(t, exam.TaskPartial, e.Tasks[1].Status())
}

func TestVerifyTaskInitialisesResults(t *testing.T) {
	e := labExam()
	task := e.Tasks[0]
	task.Results = nil
	r := NewRunner(e, goodLab())

	require.NoError(t, r.VerifyTask(context.Background(), task))
	require.Len(t, task.Results, len(task.Checks))
	assert.Equal(t, exam.TaskPassed, task.Status())
}

func TestVerifyTaskCancelledBetweenChecks(t *testing.T) {
	e := labExam()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := goodLab()
	pool.hook = func(command string) {
		if command == "rpm -q httpd" {
			cancel()
		}
	}
	r := NewRunner(e, pool)

	err := r.VerifyTask(ctx, e.Tasks[0])
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, exam.CheckPassed, e.Tasks[0].Results[0].Status, "a started check runs to completion")
	assert.Equal(t, exam.CheckPending, e.Tasks[0].Results[1].Status)
	assert.Equal(t, []string{"rpm -q httpd"}, pool.commands())
}

func TestVerifyAllScoring(t *testing.T) {
	e := labExam()
	pool := goodLab()
	rec := &fakeRecorder{}
	r := NewRunner(e, pool, WithRecorder(rec))

	require.NoError(t, r.VerifyAll(context.Background()))

	assert.Equal(t, exam.TaskPassed, e.Tasks[0].Status())
	assert.Equal(t, exam.TaskPartial, e.Tasks[1].Status())
	assert.Equal(t, 15.0, e.TotalPoints())
	assert.Equal(t, 10.0, e.EarnedPoints())
	assert.Equal(t, 66.7, math.Round(e.ScorePercent()*10)/10)
	assert.False(t, e.Passed())
	assert.Equal(t, []string{
		"rpm -q httpd", "systemctl is-active httpd",
		"cat inventory", "test -f ansible.cfg",
	}, pool.commands())

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, history.ScopeAll, run.Scope)
	assert.Equal(t, "lab", run.ExamID)
	assert.Equal(t, 10.0, run.Earned)
	assert.Len(t, run.Checks, 4)
	assert.Equal(t, "Expected rc=0, got 1", run.Checks[3].Message)
}

func TestVerifyTaskRecordsTaskScope(t *testing.T) {
	e := labExam()
	rec := &fakeRecorder{}
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	r := NewRunner(e, goodLab(), WithRecorder(rec), WithClock(clock))

	require.NoError(t, r.VerifyTask(context.Background(), e.Tasks[0]))
	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, history.ScopeTask, run.Scope)
	assert.Equal(t, "1", run.TaskID)
	assert.Len(t, run.Checks, 2)
	assert.True(t, run.FinishedAt.After(run.StartedAt))
}

func TestResetIsRollback(t *testing.T) {
	e := labExam()
	r := NewRunner(e, goodLab())
	require.NoError(t, r.VerifyAll(context.Background()))

	checks := append([]exam.Check(nil), e.Tasks[1].Checks...)
	results := append([]*exam.CheckResult(nil), e.Tasks[1].Results...)

	r.ResetTask(e.Tasks[1])
	for i, res := range e.Tasks[1].Results {
		assert.Same(t, results[i], res)
		assert.Equal(t, exam.CheckPending, res.Status)
		assert.Nil(t, res.ActualRC)
		assert.Nil(t, res.ActualStdout)
		assert.Empty(t, res.Message)
	}
	assert.Equal(t, checks, e.Tasks[1].Checks)
	assert.Equal(t, exam.TaskNotStarted, e.Tasks[1].Status())
	assert.Equal(t, exam.TaskPassed, e.Tasks[0].Status())

	r.ResetAll()
	for _, task := range e.Tasks {
		assert.Equal(t, exam.TaskNotStarted, task.Status())
	}
	assert.Equal(t, 0.0, e.EarnedPoints())
}

func TestRunnerPublishesEvents(t *testing.T) {
	e := labExam()
	bus := events.NewMemoryBus()
	r := NewRunner(e, goodLab(), WithBus(bus))

	require.NoError(t, r.VerifyTask(context.Background(), e.Tasks[0]))
	r.ResetTask(e.Tasks[0])

	var types []events.EventType
	for _, ev := range bus.History(time.Time{}) {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTaskStart,
		events.EventCheckStart, events.EventCheckResult,
		events.EventCheckStart, events.EventCheckResult,
		events.EventTaskEnd,
		events.EventResultsReset,
	}, types)

	end := bus.History(time.Time{})[5].Data.(events.TaskData)
	assert.Equal(t, events.TaskData{TaskID: "1", Status: "passed", Earned: 5, Points: 5}, end)
}

func TestRunnerConcurrentReaders(t *testing.T) {
	e := labExam()
	r := NewRunner(e, goodLab())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			s := exam.Summarize(e)
			_ = fmt.Sprint(s.Score)
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, r.VerifyAll(context.Background()))
		r.ResetAll()
	}
	cancel()
	wg.Wait()
}
