package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/models"
)

// CycleRunner runs one sync cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) ([]models.SyncResult, error)
}

// ErrSchedulerRunning is returned by Start on a scheduler that is already running.
var ErrSchedulerRunning = stderrors.New("scheduler already running")

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler triggers cycles on a fixed interval from a single goroutine.
// The interval is measured from the end of one cycle to the start of the next.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	logger     *logging.Logger

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner CycleRunner, cfg SchedulerConfig, logger *logging.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
	}
}

// Start launches the background loop. Cancelling ctx or calling Stop ends
// it and abandons any in-flight cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)

	return nil
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	return nil
}

// IsRunning returns true if the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Interval returns the delay between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.runOnStart {
		s.runOnce(ctx)
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled cycle panicked", "panic", fmt.Sprint(r))
		}
	}()

	results, err := s.runner.RunCycle(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("scheduled cycle abandoned on shutdown")
			return
		}
		s.logger.Error("scheduled cycle failed", "error", err.Error())
		return
	}
	s.logger.Debug("scheduled cycle finished", "results", len(results))
}
