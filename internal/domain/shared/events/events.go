package events

import (
	"sync"
	"time"
)

type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// Recorder collects events until the owner drains them. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	pending []DomainEvent
}

func (r *Recorder) Record(event DomainEvent) {
	if event == nil {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, event)
	r.mu.Unlock()
}

func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Drain returns the recorded events and forgets them.
func (r *Recorder) Drain() []DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}
