// Package scheduler drives the periodic jobs of the orchestrator process —
// one LifecycleEngine tick per action (4.9), the ChainMonitor reconciliation
// pass (4.8), and the wallet-lease reaper (4.4) — each on its own cadence,
// with per-job singleflight so a slow tick never overlaps its own next one.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// State represents the current state of the scheduler.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// JobFunc is one scheduled unit of work. now is passed in rather than taken
// from time.Now() inside the job so tests can drive deterministic ticks
// through Scheduler.RunNow.
type JobFunc func(ctx context.Context, now time.Time) error

// job pairs a JobFunc with the singleflight mutex that keeps two ticks of
// the same job from running concurrently when one overruns its interval.
type job struct {
	name string
	fn   JobFunc
	mu   sync.Mutex
}

func (j *job) run(ctx context.Context, logger *log.Logger, paused *atomic.Bool) {
	if paused.Load() {
		return
	}
	if !j.mu.TryLock() {
		logger.Printf("job %s: previous tick still running, skipping", j.name)
		return
	}
	defer j.mu.Unlock()

	if err := j.fn(ctx, time.Now()); err != nil {
		logger.Printf("job %s: %v", j.name, err)
	}
}

// Scheduler registers jobs on `@every <duration>` cadences and runs them
// through robfig/cron, guarding each against overlapping execution.
type Scheduler struct {
	mu     sync.Mutex
	state  State
	cron   *cron.Cron
	jobs   []*job
	paused atomic.Bool
	logger *log.Logger
}

// New builds an empty, stopped Scheduler.
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler.Scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		state:  StateStopped,
		cron:   cron.New(),
		logger: logger,
	}
}

// AddJob registers fn to run every interval once the scheduler starts.
// Must be called before Start.
func (s *Scheduler) AddJob(name string, interval time.Duration, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return fmt.Errorf("scheduler: cannot add job %s after start", name)
	}

	j := &job{name: name, fn: fn}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		j.run(context.Background(), s.logger, &s.paused)
	})
	if err != nil {
		return fmt.Errorf("scheduler: schedule job %s: %w", name, err)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins running every registered job on its cadence.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return
	}
	s.paused.Store(false)
	s.state = StateRunning
	s.cron.Start()
	s.logger.Printf("scheduler started with %d job(s)", len(s.jobs))
}

// Stop halts the cron driver and waits for any in-flight job tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	stopCtx := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-stopCtx.Done():
		s.logger.Println("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends job execution without tearing down the cron driver; ticks
// that land while paused are silently skipped (not queued).
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
		s.paused.Store(true)
		s.logger.Println("scheduler paused")
	}
}

// Resume lets a paused scheduler's jobs run again.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
		s.paused.Store(false)
		s.logger.Println("scheduler resumed")
	}
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunNow executes the named job immediately and synchronously, bypassing
// cron — used by tests and by the startup wallet-lease sweep that must run
// once before the first scheduled tick.
func (s *Scheduler) RunNow(ctx context.Context, name string, now time.Time) error {
	for _, j := range s.jobs {
		if j.name == name {
			return j.fn(ctx, now)
		}
	}
	return fmt.Errorf("scheduler: no job named %s", name)
}
