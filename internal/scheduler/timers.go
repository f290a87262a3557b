package scheduler

import (
	"sync"
	"time"
)

// Handle identifies one arming of a keyed timer.
type Handle struct {
	Key        string
	Generation uint64
}

type entry struct {
	timer      *time.Timer
	generation uint64
}

// Timers is a set of cancellable deferred tasks keyed by string.
// ARCHITECTURAL DISCOVERY: each Arm gets a fresh generation; a firing timer
// acts only while its generation is still the registered one, so a timer
// that lost a race with Cancel or a re-Arm is a no-op
type Timers struct {
	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64
	stopped    bool
}

// NewTimers creates an empty timer set
func NewTimers() *Timers {
	return &Timers{
		entries: make(map[string]*entry),
	}
}

// Arm schedules fn after delay, replacing any pending task for key.
// After Stop, Arm does nothing and returns a zero Handle.
func (t *Timers) Arm(key string, delay time.Duration, fn func()) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return Handle{}
	}

	if existing, ok := t.entries[key]; ok {
		existing.timer.Stop()
	}

	t.generation++
	e := &entry{generation: t.generation}
	e.timer = time.AfterFunc(delay, func() {
		t.fire(key, e, fn)
	})
	t.entries[key] = e

	return Handle{Key: key, Generation: e.generation}
}

func (t *Timers) fire(key string, e *entry, fn func()) {
	t.mu.Lock()
	current, ok := t.entries[key]
	if !ok || current != e {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	fn()
}

// Cancel stops the pending task for key. Idempotent.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, key)
	return true
}

// Pending reports whether a task is armed for key
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Len returns the number of armed tasks
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop cancels every pending task and refuses further arming
func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
	t.stopped = true
}
