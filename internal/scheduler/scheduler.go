// Package scheduler runs one-shot tasks after a delay, outside the lifetime of
// the request that scheduled them.
//
// Time comes from a clockwork.Clock so tests can drive tasks with a fake clock:
//
//	clock := clockwork.NewFakeClock()
//	s := scheduler.New(clock, logger)
//	s.After("confirm", 5*time.Second, task)
//	clock.Advance(5 * time.Second) // task fires
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Task is the unit of deferred work. The context is not tied to any request.
type Task func(ctx context.Context) error

// Scheduler manages pending one-shot tasks.
type Scheduler struct {
	clock  clockwork.Clock
	logger *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*entry
	stopped bool
	wg      sync.WaitGroup
}

type entry struct {
	name  string
	timer clockwork.Timer // nil until AfterFunc returns
}

// New creates a scheduler driven by clock.
func New(clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		pending: make(map[uint64]*entry),
	}
}

// After schedules task to run once after delay. It returns an error only when
// the scheduler has been stopped.
func (s *Scheduler) After(name string, delay time.Duration, task Task) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler stopped, task %s rejected", name)
	}
	s.nextID++
	id := s.nextID
	e := &entry{name: name}
	s.pending[id] = e
	s.wg.Add(1)
	s.mu.Unlock()

	// The lock is not held here: a fake clock may fire a zero delay immediately.
	timer := s.clock.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		_, ok := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if !ok {
			return
		}

		s.run(name, task)
	})

	s.mu.Lock()
	if _, ok := s.pending[id]; ok {
		e.timer = timer
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		// Either fired already or cancelled by Stop before the timer existed.
		if timer.Stop() {
			s.wg.Done()
		}
	}

	s.logger.Debug("task scheduled", zap.String("task", name), zap.Duration("delay", delay))
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()

	if err := task(context.Background()); err != nil {
		s.logger.Error("scheduled task failed", zap.String("task", name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled task completed", zap.String("task", name))
}

// Pending returns the number of tasks that have not fired yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending task and rejects new ones. Tasks already running
// are waited for. A cancelled task never runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancelled := 0
	for id, e := range s.pending {
		if e.timer != nil && e.timer.Stop() {
			s.wg.Done()
		}
		delete(s.pending, id)
		cancelled++
	}
	s.mu.Unlock()

	s.wg.Wait()
	if cancelled > 0 {
		s.logger.Warn("scheduler stopped with pending tasks", zap.Int("cancelled", cancelled))
	}
}
