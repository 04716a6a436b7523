package app

import (
	"sync"
	"time"
)

// questionTimer is the timing authority for the open question: a single
// cancellable deadline. Arming a new question replaces any previous
// deadline, so timers never leak across transitions or reconnects. The fire
// callback is delivered on a timer goroutine; the session serializes its
// effect through the command queue, which makes a close racing a host action
// resolve to whichever is processed first.
type questionTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	armed    bool
}

func newQuestionTimer() *questionTimer {
	return &questionTimer{}
}

// Arm schedules fire(index) after d, replacing any prior deadline.
func (t *questionTimer) Arm(index int, d time.Duration, now time.Time, fire func(index int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.deadline = now.Add(d)
	t.armed = true
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		t.armed = false
		t.mu.Unlock()
		fire(index)
	})
}

// Cancel stops the pending deadline, if any. Safe to call repeatedly.
func (t *questionTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}

// Remaining estimates time left until the deadline, zero when disarmed.
// Advisory only; participant clients render it, correctness never depends
// on it.
func (t *questionTimer) Remaining(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	left := t.deadline.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
