// Package verify runs exam checks against the lab hosts and grades them.
package verify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cgast/examiner/pkg/events"
	"github.com/cgast/examiner/pkg/exam"
	"github.com/cgast/examiner/pkg/history"
	"github.com/cgast/examiner/pkg/sshpool"
)

// CommandRunner executes a command on a named host. *sshpool.Pool is the
// production implementation.
type CommandRunner interface {
	Run(ctx context.Context, host, addr, command, user string) (int, string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithBus publishes progress events to bus.
func WithBus(bus events.EventBus) Option {
	return func(r *Runner) {
		r.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithRecorder records a history entry after every task or exam run.
func WithRecorder(rec history.Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithClock replaces the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes checks and writes their outcomes into the exam's results.
type Runner struct {
	exam     *exam.Exam
	pool     CommandRunner
	bus      events.EventBus
	log      *zap.Logger
	recorder history.Recorder
	now      func() time.Time
}

// NewRunner creates a runner for e that executes commands through pool.
func NewRunner(e *exam.Exam, pool CommandRunner, opts ...Option) *Runner {
	r := &Runner{
		exam: e,
		pool: pool,
		bus:  events.Nop{},
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exam returns the exam being graded.
func (r *Runner) Exam() *exam.Exam {
	return r.exam
}

// Verify runs one check and records the outcome in result. Host, network and
// assertion failures are absorbed into result. A check naming a host the exam
// does not define is a broken exam: result is marked as errored and the
// *exam.UnknownHostError is returned.
func (r *Runner) Verify(ctx context.Context, check exam.Check, result *exam.CheckResult) error {
	return r.verify(ctx, "", check, result)
}

func (r *Runner) verify(ctx context.Context, taskID string, check exam.Check, result *exam.CheckResult) error {
	r.exam.Update(func() {
		result.Status = exam.CheckRunning
		result.Message = ""
	})
	r.bus.Publish(events.NewEvent(events.EventCheckStart, events.CheckData{
		TaskID:  taskID,
		CheckID: check.ID,
		Node:    check.Node,
		Status:  string(exam.CheckRunning),
	}))

	host, err := r.exam.ResolveHost(check.Node)
	if err != nil {
		r.exam.Update(func() {
			result.Status = exam.CheckError
			result.ActualRC = nil
			result.ActualStdout = nil
			result.Message = err.Error()
		})
		r.publishResult(taskID, check, result)
		r.log.Error("check targets unknown host",
			zap.String("task", taskID),
			zap.String("check", check.ID),
			zap.String("node", check.Node))
		return err
	}

	// A started check runs to completion under the pool's own timeouts.
	start := r.now()
	rc, stdout, err := r.pool.Run(context.WithoutCancel(ctx), check.Node, host.IP, check.Command, host.User)

	kind := sshpool.KindOf(err)
	r.exam.Update(func() {
		switch kind {
		case sshpool.KindNone:
			trimmed := strings.TrimSpace(stdout)
			result.ActualRC = &rc
			result.ActualStdout = &trimmed

			outcome := Evaluate(check, rc, trimmed)
			if outcome.Passed {
				result.Status = exam.CheckPassed
				result.Message = ""
			} else {
				result.Status = exam.CheckFailed
				result.Message = outcome.Message
			}
		case sshpool.KindConnection, sshpool.KindTimeout, sshpool.KindSession, sshpool.KindCanceled:
			result.Status = exam.CheckError
			result.ActualRC = nil
			result.ActualStdout = nil
			result.Message = err.Error()
		}
	})

	fields := []zap.Field{
		zap.String("task", taskID),
		zap.String("check", check.ID),
		zap.String("node", check.Node),
		zap.Duration("elapsed", r.now().Sub(start)),
	}
	switch kind {
	case sshpool.KindNone:
		r.log.Debug("check finished", append(fields, zap.Int("rc", rc))...)
	case sshpool.KindCanceled:
		r.log.Info("check canceled", append(fields, zap.Error(err))...)
	default:
		r.log.Warn("check errored", append(fields, zap.Stringer("kind", kind), zap.Error(err))...)
	}
	r.publishResult(taskID, check, result)
	return nil
}

func (r *Runner) publishResult(taskID string, check exam.Check, result *exam.CheckResult) {
	var data events.CheckData
	r.exam.View(func() {
		data = events.CheckData{
			TaskID:   taskID,
			CheckID:  check.ID,
			Node:     check.Node,
			Status:   string(result.Status),
			ActualRC: result.ActualRC,
			Message:  result.Message,
		}
	})
	r.bus.Publish(events.NewEvent(events.EventCheckResult, data))
}

// VerifyTask runs the task's checks in declaration order. Cancellation of ctx
// is honoured between checks.
func (r *Runner) VerifyTask(ctx context.Context, task *exam.Task) error {
	started := r.now()
	err := r.verifyTask(ctx, task)
	r.record(history.ScopeTask, task.ID, started)
	return err
}

func (r *Runner) verifyTask(ctx context.Context, task *exam.Task) error {
	var checks []exam.Check
	var results []*exam.CheckResult
	r.exam.Update(func() {
		task.InitResults()
		checks = task.Checks
		results = task.Results
	})

	r.bus.Publish(events.NewEvent(events.EventTaskStart, events.TaskData{TaskID: task.ID, Points: task.Points}))
	r.log.Info("verifying task", zap.String("task", task.ID), zap.Int("checks", len(checks)))

	var err error
	for i, check := range checks {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = r.verify(ctx, task.ID, check, results[i]); err != nil {
			break
		}
	}

	var data events.TaskData
	r.exam.View(func() {
		data = events.TaskData{
			TaskID: task.ID,
			Status: string(task.Status()),
			Earned: task.EarnedPoints(),
			Points: task.Points,
		}
	})
	r.bus.Publish(events.NewEvent(events.EventTaskEnd, data))
	return err
}

// VerifyAll runs every task in declaration order.
func (r *Runner) VerifyAll(ctx context.Context) error {
	started := r.now()
	r.bus.Publish(events.NewEvent(events.EventVerifyAllStart, events.ExamData{ExamID: r.exam.ID}))

	var err error
	for _, task := range r.exam.Tasks {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = r.verifyTask(ctx, task); err != nil {
			break
		}
	}

	s := exam.Summarize(r.exam)
	r.bus.Publish(events.NewEvent(events.EventVerifyAllEnd, events.ExamData{
		ExamID: s.ExamID,
		Earned: s.Earned,
		Total:  s.Total,
		Score:  s.Score,
		Passed: s.Passed,
	}))
	r.log.Info("exam verified",
		zap.String("exam", s.ExamID),
		zap.Float64("score", s.Score),
		zap.Bool("passed", s.Passed),
		zap.Error(err))
	r.record(history.ScopeAll, "", started)
	return err
}

// ResetTask rolls every result of task back to pending.
func (r *Runner) ResetTask(task *exam.Task) {
	r.exam.Update(task.Reset)
	r.bus.Publish(events.NewEvent(events.EventResultsReset, events.ResetData{TaskID: task.ID}))
}

// ResetAll rolls every result of the exam back to pending.
func (r *Runner) ResetAll() {
	r.exam.Update(func() {
		for _, t := range r.exam.Tasks {
			t.Reset()
		}
	})
	r.bus.Publish(events.NewEvent(events.EventResultsReset, events.ResetData{}))
}

func (r *Runner) record(scope, taskID string, started time.Time) {
	if r.recorder == nil {
		return
	}
	s := exam.Summarize(r.exam)
	run := history.Run{
		ExamID:     s.ExamID,
		Scope:      scope,
		TaskID:     taskID,
		StartedAt:  started,
		FinishedAt: r.now(),
		Earned:     s.Earned,
		Total:      s.Total,
		Score:      s.Score,
	}
	for _, ts := range s.Tasks {
		if taskID != "" && ts.ID != taskID {
			continue
		}
		for _, cr := range ts.Results {
			run.Checks = append(run.Checks, history.CheckRecord{
				TaskID:   ts.ID,
				CheckID:  cr.CheckID,
				Status:   string(cr.Status),
				ActualRC: cr.ActualRC,
				Message:  cr.Message,
			})
		}
	}
	if err := r.recorder.Record(run); err != nil {
		r.log.Warn("record history", zap.String("exam", s.ExamID), zap.Error(err))
	}
}

// IsDefinitional reports whether err means the exam definition is broken
// rather than a check having failed.
func IsDefinitional(err error) bool {
	var uh *exam.UnknownHostError
	return errors.As(err, &uh)
}
