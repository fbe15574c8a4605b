// Package schedule coalesces bursts of edit events into a single accounting
// pass per file.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/reflens/internal/debug"
	"github.com/standardbeagle/reflens/internal/types"
)

// Scheduler debounces accounting work per file. Scheduling a file cancels
// any pending timer for that file and starts a new one; there are never two
// pending tasks for the same file. ScheduleImmediate is cancel-then-run-now,
// not run-in-addition-to.
type Scheduler struct {
	run   func(ctx context.Context, file types.FileID)
	delay time.Duration

	mu     sync.Mutex
	timers map[types.FileID]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Optional callback for test synchronization
	onRunComplete func(types.FileID)
}

// NewScheduler creates a scheduler that invokes run after delayMs of quiet
// time per file.
func NewScheduler(delayMs int, run func(ctx context.Context, file types.FileID)) *Scheduler {
	if delayMs <= 0 {
		delayMs = types.DefaultDebounceMs
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		run:    run,
		delay:  time.Duration(delayMs) * time.Millisecond,
		timers: make(map[types.FileID]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule queues an accounting pass for the file after the debounce delay,
// superseding any pass already pending for it.
func (s *Scheduler) Schedule(file types.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	if timer, ok := s.timers[file]; ok && timer.Stop() {
		s.wg.Done() // superseded before firing
	}

	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		s.fire(file, timer)
	})
	s.timers[file] = timer

	debug.LogWatch("scheduled accounting pass for %s (debounce %v)\n", file, s.delay)
}

// ScheduleImmediate cancels any pending pass for the file and runs one now.
// Used when a setting that changes counting semantics is toggled.
func (s *Scheduler) ScheduleImmediate(file types.FileID) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if timer, ok := s.timers[file]; ok {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, file)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.fire(file, nil)
}

// Cancel drops any pending pass for the file without running it.
func (s *Scheduler) Cancel(file types.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[file]; ok {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, file)
	}
}

// PendingCount returns the number of files with a pass pending.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown stops all pending timers and waits for in-flight passes.
func (s *Scheduler) Shutdown() {
	s.cancel()

	s.mu.Lock()
	for file, timer := range s.timers {
		if timer.Stop() {
			s.wg.Done()
		}
		delete(s.timers, file)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// SetOnRunComplete sets a callback invoked after each pass (for testing).
func (s *Scheduler) SetOnRunComplete(callback func(types.FileID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRunComplete = callback
}

func (s *Scheduler) fire(file types.FileID, timer *time.Timer) {
	defer s.wg.Done()

	s.mu.Lock()
	// Only clear the map entry this timer owns; a newer Schedule may have
	// replaced it already.
	if timer != nil && s.timers[file] == timer {
		delete(s.timers, file)
	}
	callback := s.onRunComplete
	cancelled := s.ctx.Err() != nil
	s.mu.Unlock()

	if cancelled {
		return
	}

	start := time.Now()
	s.run(s.ctx, file)
	debug.LogWatch("accounting pass for %s completed in %v\n", file, time.Since(start))

	if callback != nil {
		callback(file)
	}
}
