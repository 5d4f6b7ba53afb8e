package eventloop

import "time"

// ManualScheduler is a Scheduler for tests. Timers only fire when Tick is
// called, and fire synchronously on the caller's goroutine.
type ManualScheduler struct {
	timers []*manualTimer
	armed  int
}

// NewManualScheduler creates a scheduler with no timers.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Every registers fn; it runs on each Tick until stopped.
func (s *ManualScheduler) Every(period time.Duration, fn func()) Timer {
	t := &manualTimer{period: period, fn: fn}
	s.timers = append(s.timers, t)
	s.armed++
	return t
}

// Tick fires every active timer once, in arming order.
func (s *ManualScheduler) Tick() {
	active := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			active = append(active, t)
		}
	}
	s.timers = active

	for _, t := range append([]*manualTimer(nil), active...) {
		if !t.stopped {
			t.fn()
		}
	}
}

// Active returns the number of timers not yet stopped.
func (s *ManualScheduler) Active() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Armed returns how many timers were ever armed.
func (s *ManualScheduler) Armed() int {
	return s.armed
}

// Period returns the period of the most recently armed active timer.
func (s *ManualScheduler) Period() time.Duration {
	for i := len(s.timers) - 1; i >= 0; i-- {
		if !s.timers[i].stopped {
			return s.timers[i].period
		}
	}
	return 0
}

type manualTimer struct {
	period  time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() { t.stopped = true }
