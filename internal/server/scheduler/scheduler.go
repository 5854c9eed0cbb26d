// Package scheduler wraps a cron runner behind the small interface the
// services consume: schedule a callback by cron expression, optionally
// firing once.
package scheduler

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

var ErrSchedulerInitialized = errors.New("scheduler already initialized")

var schedulerUp atomic.Bool

// JobHandle identifies a scheduled job and can cancel it.
type JobHandle struct {
	id     cron.EntryID
	cancel func()
}

// Cancel removes the job from the runner. Safe to call more than once.
func (h JobHandle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

type Scheduler struct {
	log  *slog.Logger
	cron *cron.Cron

	mu      sync.Mutex
	started bool
}

// New builds a scheduler accepting expressions with a leading seconds
// field, e.g. "0 0 3 * * *" for 3am daily. Production code goes through
// Init.
func New(log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:  log,
		cron: cron.New(cron.WithSeconds()),
	}
}

// Init constructs the singleton scheduler. A second call fails rather
// than silently replacing the first instance.
func Init(log *slog.Logger) (*Scheduler, error) {
	if !schedulerUp.CompareAndSwap(false, true) {
		return nil, ErrSchedulerInitialized
	}
	return New(log), nil
}

// Schedule registers task under the given cron expression. When
// runOnce is set the job removes itself after its first firing.
// A panicking task is contained and logged, never fatal.
func (s *Scheduler) Schedule(expression string, runOnce bool, task func()) (JobHandle, error) {
	var (
		id   cron.EntryID
		once sync.Once
		err  error
	)

	run := func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("scheduled job panicked", "expression", expression, "panic", r)
			}
		}()
		if runOnce {
			once.Do(func() { s.cron.Remove(id) })
		}
		task()
	}

	id, err = s.cron.AddFunc(expression, run)
	if err != nil {
		return JobHandle{}, err
	}

	return JobHandle{
		id:     id,
		cancel: func() { s.cron.Remove(id) },
	}, nil
}

// Start begins dispatching jobs. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts dispatch and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
}
