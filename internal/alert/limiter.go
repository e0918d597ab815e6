package alert

import (
	"sync"
	"time"
)

// windowLimiter is an in-process sliding-window rate limiter: at most limit
// events per window, with the window re-derived from retained event times on
// every check. The dispatch worker is its only caller, but it carries its own
// lock so stats readers can probe it safely.
type windowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	times  []time.Time
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &windowLimiter{limit: limit, window: window}
}

// allow reports whether another event fits the window at now, counting it
// when it does.
func (l *windowLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.times = kept

	if len(l.times) >= l.limit {
		return false
	}
	l.times = append(l.times, now)
	return true
}
