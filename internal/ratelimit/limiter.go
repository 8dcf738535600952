// Package ratelimit throttles requests per source address.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a hard cap per source: at most limit admitted requests
// inside any sliding window. Each source keeps the timestamps of its admitted
// requests; a request is rejected while limit of them are still inside the
// window, so spacing attempts out buys nothing until old ones age past the
// window edge.
//
// Idle sources are dropped once their newest timestamp has aged past the
// window; a dropped source and a fresh one are indistinguishable.
type Limiter struct {
	mu      sync.Mutex
	sources map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		sources: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether the source may proceed, recording the request if so.
// Rejected requests are not recorded and do not extend the throttle.
func (l *Limiter) Allow(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.sources[source][:0]
	for _, at := range l.sources[source] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= l.limit {
		l.sources[source] = recent
		return false
	}
	l.sources[source] = append(recent, now)

	if len(l.sources) > 1024 {
		l.evict(cutoff)
	}
	return true
}

func (l *Limiter) evict(cutoff time.Time) {
	for source, stamps := range l.sources {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.sources, source)
		}
	}
}
