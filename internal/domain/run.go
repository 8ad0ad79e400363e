package domain

import (
	"sync"
	"time"
)

const (
	MinDelaySeconds = 0.1
	MaxDelaySeconds = 100.0
	MinConcurrency  = 1
	MaxConcurrency  = 10
)

// ClampDelay bounds a per-item delay to [MinDelaySeconds, MaxDelaySeconds].
func ClampDelay(seconds float64) float64 {
	if seconds < MinDelaySeconds {
		return MinDelaySeconds
	}
	if seconds > MaxDelaySeconds {
		return MaxDelaySeconds
	}
	return seconds
}

// ClampConcurrency bounds concurrency to [MinConcurrency, MaxConcurrency].
func ClampConcurrency(n int) int {
	if n < MinConcurrency {
		return MinConcurrency
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// RunConfiguration holds the user-controlled parameters of one run.
type RunConfiguration struct {
	DelaySeconds    float64 `json:"delay_seconds"`
	Concurrency     int     `json:"concurrency"`
	UnfulfilledOnly bool    `json:"unfulfilled_only"`
	CreatedAtRange  string  `json:"created_at,omitempty"`
}

// Normalized returns a copy with delay and concurrency clamped into bounds.
func (c RunConfiguration) Normalized() RunConfiguration {
	c.DelaySeconds = ClampDelay(c.DelaySeconds)
	c.Concurrency = ClampConcurrency(c.Concurrency)
	return c
}

// Delay returns the per-item delay as a duration.
func (c RunConfiguration) Delay() time.Duration {
	return time.Duration(c.DelaySeconds * float64(time.Second))
}

// RunState counts task outcomes for one run. success+error never exceeds
// pending; equality means every task settled.
type RunState struct {
	mu      sync.Mutex
	pending int
	success int
	failed  int
}

func NewRunState(pending int) *RunState {
	return &RunState{pending: pending}
}

// Counts is a consistent view of a RunState.
type Counts struct {
	Pending int `json:"pending"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// Settled is the number of tasks with a final outcome.
func (c Counts) Settled() int {
	return c.Success + c.Error
}

// Done reports whether every pending task has settled.
func (c Counts) Done() bool {
	return c.Settled() >= c.Pending
}

// SuccessPercent and ErrorPercent feed the progress bar.
func (c Counts) SuccessPercent() float64 {
	if c.Pending == 0 {
		return 0
	}
	return float64(c.Success) * 100 / float64(c.Pending)
}

func (c Counts) ErrorPercent() float64 {
	if c.Pending == 0 {
		return 0
	}
	return float64(c.Error) * 100 / float64(c.Pending)
}

// Record settles one task and returns the counts as they are right after the
// increment. Increments past pending are ignored.
func (s *RunState) Record(ok bool) (Counts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.success+s.failed >= s.pending {
		return s.countsLocked(), false
	}
	if ok {
		s.success++
	} else {
		s.failed++
	}
	return s.countsLocked(), true
}

func (s *RunState) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countsLocked()
}

func (s *RunState) countsLocked() Counts {
	return Counts{Pending: s.pending, Success: s.success, Error: s.failed}
}
