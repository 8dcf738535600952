package auth

import (
	"sync"
	"time"
)

const (
	EventLoginSuccess = "login_success"
	EventLoginFailure = "login_failure"
	EventLogout       = "logout"
	EventRateLimited  = "rate_limited"
)

// Event is one security-relevant request, recorded independently of the
// persisted application state.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	UserAgent string    `json:"user_agent"`
}

// EventLog is an append-only, size-bounded in-memory log. Once capacity is
// reached the oldest entries are dropped.
type EventLog struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &EventLog{capacity: capacity}
}

func (l *EventLog) Record(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
}

// Recent returns up to limit events, newest first.
func (l *EventLog) Recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.events) {
		limit = len(l.events)
	}
	out := make([]Event, 0, limit)
	for i := len(l.events) - 1; i >= len(l.events)-limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}
