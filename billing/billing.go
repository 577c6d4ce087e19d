// Package billing runs the rental clock.
//
// Elapsed time is wall clock time since the original start instant, pausing
// only stops the recomputation. A Snapshot carries everything needed to resume
// the clock in a new owner.
package billing

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// Rate is charged per elapsed second
	Rate = 0.5
	// BaseFare is charged once per rental
	BaseFare = 10

	// TickInterval is the granularity Run recomputes elapsed time with
	TickInterval = time.Second
)

type (
	Snapshot struct {
		StartInstant time.Time `json:"startInstant"`
		Running      bool      `json:"running"`
		WasRunning   bool      `json:"wasRunning"`
	}

	Timer struct {
		now func() time.Time

		mu         sync.Mutex
		start      time.Time
		running    bool
		wasRunning bool
		elapsed    time.Duration
	}
)

// Price returns floor(seconds * Rate) + BaseFare for whole elapsed seconds
func Price(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := math.Floor(elapsed.Seconds())
	return int(math.Floor(seconds*Rate)) + BaseFare
}

// NewTimer returns a stopped timer. A nil clock means time.Now.
func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start records the start instant and starts the clock from zero
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = t.now()
	t.running = true
	t.wasRunning = false
	t.elapsed = 0
}

// Stop freezes elapsed time and price at their current values
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.recompute()
	}
	t.running = false
	t.wasRunning = false
}

// Tick recomputes elapsed time if the timer is running
func (t *Timer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.recompute()
	}
}

// Run ticks every second until ctx is done
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Pause stops recomputing but keeps the start instant, e.g. while the owner is torn down
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.recompute()
		t.wasRunning = true
	}
	t.running = false
}

// Resume restarts recomputation if the timer was running before Pause.
// Elapsed time is measured from the original start instant.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.wasRunning {
		return
	}
	t.running = true
	t.wasRunning = false
	t.recompute()
}

func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		StartInstant: t.start,
		Running:      t.running,
		WasRunning:   t.wasRunning,
	}
}

// Restore replaces the timer state with s and recomputes elapsed time
func (t *Timer) Restore(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = s.StartInstant
	t.running = s.Running
	t.wasRunning = s.WasRunning
	t.elapsed = 0

	if !t.start.IsZero() {
		t.recompute()
	}
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) StartInstant() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.start
}

// Elapsed returns the last computed elapsed time
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Price returns the price for the last computed elapsed time
func (t *Timer) Price() int {
	return Price(t.Elapsed())
}

// recompute never lets elapsed decrease, a clock step backwards keeps the old value.
// Callers hold t.mu.
func (t *Timer) recompute() {
	d := t.now().Sub(t.start)
	if d > t.elapsed {
		t.elapsed = d
	}
}
