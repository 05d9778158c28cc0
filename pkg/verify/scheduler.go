package verify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Exclusive groups used by the interfaces.
const (
	GroupVerify = "verify"
	GroupProbe  = "probe"
	GroupExport = "export"
)

// ErrSchedulerClosed is delivered for jobs submitted after Close.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Job is a unit of work run by a Scheduler.
type Job func(ctx context.Context) error

type pending struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

type group struct {
	queue []*pending
	live  []*pending // queued or running
	busy  bool
	wake  chan struct{}
}

// Scheduler runs jobs in named exclusive groups. Each group has one worker,
// so jobs in a group run one at a time in submission order. Submitting a job
// cancels every earlier job of the same group that has not finished.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	mu     sync.Mutex
	groups map[string]*group
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A nil logger discards output.
func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		groups: make(map[string]*group),
	}
}

// Submit queues job in the named group and returns a channel that receives
// its result exactly once.
func (s *Scheduler) Submit(name string, job Job) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		done <- ErrSchedulerClosed
		return done
	}

	g, ok := s.groups[name]
	if !ok {
		g = &group{wake: make(chan struct{}, 1)}
		s.groups[name] = g
		s.wg.Add(1)
		go s.work(name, g)
	}

	for _, p := range g.live {
		p.cancel()
	}
	if len(g.live) > 0 {
		s.log.Debug("superseding jobs", zap.String("group", name), zap.Int("count", len(g.live)))
	}

	ctx, cancel := context.WithCancel(s.ctx)
	p := &pending{job: job, ctx: ctx, cancel: cancel, done: done}
	g.queue = append(g.queue, p)
	g.live = append(g.live, p)

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return done
}

// Busy reports whether the group has a queued or running job.
func (s *Scheduler) Busy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[name]
	return ok && (g.busy || len(g.queue) > 0)
}

// Close cancels every job and waits for the workers to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) work(name string, g *group) {
	defer s.wg.Done()
	for {
		p := s.next(g)
		if p == nil {
			select {
			case <-g.wake:
				continue
			case <-s.ctx.Done():
				s.drain(g)
				return
			}
		}
		s.execute(name, g, p)
	}
}

func (s *Scheduler) next(g *group) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	p := g.queue[0]
	g.queue = g.queue[1:]
	g.busy = true
	return p
}

func (s *Scheduler) execute(name string, g *group, p *pending) {
	var err error
	if err = p.ctx.Err(); err == nil {
		err = p.job(p.ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("job failed", zap.String("group", name), zap.Error(err))
	}
	p.cancel()
	p.done <- err

	s.mu.Lock()
	g.busy = false
	for i, lp := range g.live {
		if lp == p {
			g.live = append(g.live[:i], g.live[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

func (s *Scheduler) drain(g *group) {
	s.mu.Lock()
	queue := g.queue
	g.queue = nil
	g.live = nil
	s.mu.Unlock()

	for _, p := range queue {
		p.cancel()
		p.done <- ErrSchedulerClosed
	}
}
