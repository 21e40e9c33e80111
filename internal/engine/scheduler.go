package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/types"
)

// State represents the scheduler's lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
	StateStopped  State = 3
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Job is a daily run of one source.
type Job struct {
	Source types.Source
	At     config.Clock
}

// RunFunc executes one pass over a source.
type RunFunc func(ctx context.Context, source types.Source) error

// JobsFromConfig returns a job for every enabled source in only, or for
// every enabled source when only is empty.
func JobsFromConfig(cfg *config.Config, only []types.Source) ([]Job, error) {
	sources := only
	if len(sources) == 0 {
		sources = types.AllSources
	}

	var jobs []Job
	for _, source := range sources {
		src, ok := cfg.Source(string(source))
		if !ok {
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, source)
		}
		if !src.Enabled {
			continue
		}
		at, err := config.ParseClock(src.Time)
		if err != nil {
			return nil, fmt.Errorf("sources.%s.time: %w", source, err)
		}
		jobs = append(jobs, Job{Source: source, At: at})
	}
	return jobs, nil
}

// nextSlot returns the first time of day at strictly after t.
func nextSlot(at config.Clock, t time.Time) time.Time {
	n := time.Date(t.Year(), t.Month(), t.Day(), at.Hour, at.Minute, 0, 0, t.Location())
	if !n.After(t) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}

// Scheduler fires each job once a day at its time of day. A job still
// running when its next slot comes is skipped for that slot.
type Scheduler struct {
	jobs       []Job
	run        RunFunc
	tick       time.Duration
	now        func() time.Time
	checkpoint *CheckpointManager
	logger     *slog.Logger

	state   atomic.Int32
	mu      sync.Mutex
	next    map[types.Source]time.Time
	lastRun map[types.Source]time.Time
	running map[types.Source]bool
	wg      sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTick sets how often due jobs are checked.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tick = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithCheckpoint persists last runs. When a saved run predates the most
// recent slot of its source, that slot is run as soon as the scheduler
// starts.
func WithCheckpoint(cm *CheckpointManager) SchedulerOption {
	return func(s *Scheduler) { s.checkpoint = cm }
}

// NewScheduler creates a Scheduler checking once a minute.
func NewScheduler(jobs []Job, run RunFunc, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jobs:    jobs,
		run:     run,
		tick:    time.Minute,
		now:     time.Now,
		logger:  logger.With("component", "scheduler"),
		next:    make(map[types.Source]time.Time),
		lastRun: make(map[types.Source]time.Time),
		running: make(map[types.Source]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tick <= 0 {
		s.tick = time.Minute
	}
	return s
}

// GetState returns the current scheduler state.
func (s *Scheduler) GetState() State {
	return State(s.state.Load())
}

// NextRun returns when source fires next.
func (s *Scheduler) NextRun(source types.Source) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.next[source]
	return t, ok
}

// Run blocks until ctx is cancelled, then waits for runs in flight, which
// see the same cancelled context.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("no sources to schedule")
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("scheduler is in state %s, cannot start", s.GetState())
	}

	s.prime(s.now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.poll(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateStopping))
			s.logger.Info("scheduler stopping, waiting for runs in flight")
			s.wg.Wait()
			s.state.Store(int32(StateStopped))
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.poll(ctx, s.now())
		}
	}
}

// prime computes the first slot of every job.
func (s *Scheduler) prime(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkpoint != nil {
		saved, err := s.checkpoint.Load()
		if err != nil {
			s.logger.Warn("ignoring unreadable schedule checkpoint", "path", s.checkpoint.Path(), "error", err)
		} else {
			s.lastRun = saved
		}
	}

	for _, j := range s.jobs {
		next := nextSlot(j.At, now)
		if last, ok := s.lastRun[j.Source]; ok && last.Before(next.AddDate(0, 0, -1)) {
			s.logger.Info("missed slot, running now", "source", j.Source, "last_run", last)
			next = now
		}
		s.next[j.Source] = next
		s.logger.Info("job scheduled", "source", j.Source, "at", j.At.String(), "next_run", next)
	}
}

// poll starts every job whose slot has come.
func (s *Scheduler) poll(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if now.Before(s.next[j.Source]) {
			continue
		}
		s.next[j.Source] = nextSlot(j.At, now)

		if s.running[j.Source] {
			s.logger.Warn("previous run still in progress, skipping slot", "source", j.Source)
			continue
		}
		s.running[j.Source] = true
		s.lastRun[j.Source] = now
		s.saveLocked()

		s.wg.Add(1)
		go s.execute(ctx, j.Source)
	}
}

func (s *Scheduler) execute(ctx context.Context, source types.Source) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "source", source, "panic", r)
		}
		s.mu.Lock()
		s.running[source] = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduled run starting", "source", source)
	if err := s.run(ctx, source); err != nil {
		s.logger.Error("scheduled run failed", "source", source, "error", err)
		return
	}
	s.logger.Info("scheduled run finished", "source", source)
}

func (s *Scheduler) saveLocked() {
	if s.checkpoint == nil {
		return
	}
	if err := s.checkpoint.Save(s.lastRun); err != nil {
		s.logger.Warn("schedule checkpoint save failed", "error", err)
	}
}
