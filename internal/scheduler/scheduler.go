// Package scheduler advances a set of named periodic tasks by elapsed time.
// Time is supplied by the caller, so the same scheduler serves the real-time
// host loop and deterministic tests.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxRuns bounds how many times one task runs in a single Advance.
const DefaultMaxRuns = 120

// Task is a periodic handler. Run receives the task's due time, not the
// wall-clock time of the Advance call.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(due time.Time)

	next time.Time
	runs uint64
}

// Scheduler runs due tasks to completion one at a time.
type Scheduler struct {
	tasks   []*Task
	maxRuns int
}

// New creates a scheduler. maxRuns <= 0 selects DefaultMaxRuns.
func New(maxRuns int) *Scheduler {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &Scheduler{maxRuns: maxRuns}
}

// Every registers a task. Tasks with a non-positive interval are ignored.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(due time.Time)) {
	if interval <= 0 || fn == nil {
		return
	}
	s.tasks = append(s.tasks, &Task{Name: name, Interval: interval, Run: fn})
}

// Start schedules every task one interval after now.
func (s *Scheduler) Start(now time.Time) {
	for _, t := range s.tasks {
		t.next = now.Add(t.Interval)
	}
}

// Advance runs every task that is due at or before now, earliest due time
// first and registration order on ties. A task that falls more than maxRuns
// behind skips the remainder and is rescheduled from now. Returns the number
// of handler invocations.
func (s *Scheduler) Advance(now time.Time) int {
	budget := make(map[*Task]int, len(s.tasks))
	total := 0
	for {
		t := s.nextDue(now)
		if t == nil {
			return total
		}
		if budget[t] >= s.maxRuns {
			skipped := int(now.Sub(t.next)/t.Interval) + 1
			slog.Warn("scheduler task fell behind", "task", t.Name, "skipped", skipped)
			t.next = now.Add(t.Interval)
			continue
		}
		due := t.next
		t.next = t.next.Add(t.Interval)
		budget[t]++
		t.runs++
		total++
		t.Run(due)
	}
}

// Next returns when the named task is next due.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	for _, t := range s.tasks {
		if t.Name == name {
			return t.next, true
		}
	}
	return time.Time{}, false
}

// Runs returns how many times the named task has run.
func (s *Scheduler) Runs(name string) uint64 {
	for _, t := range s.tasks {
		if t.Name == name {
			return t.runs
		}
	}
	return 0
}

func (s *Scheduler) nextDue(now time.Time) *Task {
	var best *Task
	for _, t := range s.tasks {
		if t.next.After(now) {
			continue
		}
		if best == nil || t.next.Before(best.next) {
			best = t
		}
	}
	return best
}

// Run calls advance with now() every step until ctx is cancelled.
func Run(ctx context.Context, step time.Duration, now func() time.Time, advance func(time.Time)) {
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	slog.Info("scheduler loop started", "step", step)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler loop stopped")
			return
		case <-ticker.C:
			advance(now())
		}
	}
}
