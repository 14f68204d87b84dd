package transport

import (
	"sync"
	"time"
)

// RetryPolicy schedules a single reconnection attempt after a fixed delay.
// At most one attempt is pending at a time; scheduling again replaces the
// pending one, and Cancel drops it so a stray timer cannot race a fresh
// Connect after an explicit disconnect.
type RetryPolicy struct {
	Delay time.Duration

	mu    sync.Mutex
	timer *time.Timer

	// afterFunc is swapped in tests for a virtual timer.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewRetryPolicy returns a policy with the given fixed delay.
func NewRetryPolicy(delay time.Duration) *RetryPolicy {
	return &RetryPolicy{Delay: delay, afterFunc: time.AfterFunc}
}

// Schedule arms the policy to run attempt after the delay, replacing any
// pending attempt.
func (p *RetryPolicy) Schedule(attempt func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = p.afterFunc(p.Delay, attempt)
}

// Cancel drops any pending attempt. Safe to call when none is scheduled.
func (p *RetryPolicy) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
