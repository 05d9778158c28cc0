package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
		return nil
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil)
	defer s.Close()

	boom := errors.New("boom")
	assert.NoError(t, waitResult(t, s.Submit(GroupVerify, func(context.Context) error { return nil })))
	assert.ErrorIs(t, waitResult(t, s.Submit(GroupVerify, func(context.Context) error { return boom })), boom)
}

func TestSchedulerSupersedesInFlightJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil)
	defer s.Close()

	started := make(chan struct{})
	first := s.Submit(GroupVerify, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	require.True(t, s.Busy(GroupVerify))

	second := s.Submit(GroupVerify, func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, waitResult(t, first), context.Canceled)
	assert.NoError(t, waitResult(t, second))
}

func TestSchedulerSkipsSupersededQueuedJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil)
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := s.Submit(GroupExport, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ran bool
	queued := s.Submit(GroupExport, func(context.Context) error {
		ran = true
		return nil
	})
	latest := s.Submit(GroupExport, func(context.Context) error { return nil })
	close(release)

	assert.NoError(t, waitResult(t, blocker), "job ignoring cancellation still reports its own result")
	assert.ErrorIs(t, waitResult(t, queued), context.Canceled)
	assert.NoError(t, waitResult(t, latest))
	assert.False(t, ran)
}

func TestSchedulerSerialisesGroupAndIsolatesGroups(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil)
	defer s.Close()

	var mu sync.Mutex
	var order []string
	record := func(name string) Job {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// A blocked probe job must not hold up the verify group.
	release := make(chan struct{})
	probe := s.Submit(GroupProbe, func(ctx context.Context) error {
		<-release
		return nil
	})
	verify := s.Submit(GroupVerify, record("verify"))
	assert.NoError(t, waitResult(t, verify))
	close(release)
	assert.NoError(t, waitResult(t, probe))

	assert.Equal(t, []string{"verify"}, order)
	assert.False(t, s.Busy(GroupVerify))
	assert.False(t, s.Busy("unknown"))
}

func TestSchedulerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil)
	started := make(chan struct{})
	running := s.Submit(GroupVerify, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started
	s.Close()

	assert.ErrorIs(t, waitResult(t, running), context.Canceled)
	assert.ErrorIs(t, waitResult(t, s.Submit(GroupVerify, func(context.Context) error { return nil })), ErrSchedulerClosed)
	s.Close()
}
