package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Runner on a cron schedule. A tick that fires while
// a run is still going is skipped rather than queued.
type Scheduler struct {
	runner   *Runner
	timeout  time.Duration
	interval time.Duration

	cron    *cron.Cron
	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec (standard five-field cron or descriptors such
// as "@every 15m"). timeout bounds each run; zero means 5 minutes. The
// runner's Status, when it has no Interval yet, takes the schedule's.
func NewScheduler(runner *Runner, spec string, timeout time.Duration) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s := &Scheduler{
		runner:   runner,
		timeout:  timeout,
		interval: scheduleInterval(schedule, time.Now()),
		cron:     cron.New(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.Trigger() }))
	if runner.Status != nil && runner.Status.Interval == 0 {
		runner.Status.Interval = s.interval
	}
	return s, nil
}

// scheduleInterval is the gap between the next two activations after now.
func scheduleInterval(schedule cron.Schedule, now time.Time) time.Duration {
	first := schedule.Next(now)
	if first.IsZero() {
		return 0
	}
	second := schedule.Next(first)
	if second.IsZero() {
		return 0
	}
	return second.Sub(first)
}

// Interval is the expected time between scheduled runs.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
}

// Stop halts the schedule, cancels a run in progress and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	<-s.cron.Stop().Done()
	cancel()
	s.wg.Wait()
}

// Trigger starts a run now in the background. It returns false when a
// run is already in flight or the scheduler is not started.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.runner.logger().Printf("agent: previous run still in flight, skipping")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_, _ = s.runner.Run(runCtx)
	}()
	return true
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}
