package memory

import (
	"context"
	"sync"
	"time"
)

// Inbox remembers consumed message ids for retention.
type Inbox struct {
	mu        sync.Mutex
	retention time.Duration
	seen      map[string]time.Time
	now       func() time.Time
}

func NewInbox(retention time.Duration) *Inbox {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Inbox{retention: retention, seen: make(map[string]time.Time), now: time.Now}
}

// Seen records eventID and reports whether it had been recorded before.
func (i *Inbox) Seen(_ context.Context, eventID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	now := i.now()
	for id, at := range i.seen {
		if now.Sub(at) > i.retention {
			delete(i.seen, id)
		}
	}
	if _, ok := i.seen[eventID]; ok {
		return true, nil
	}
	i.seen[eventID] = now
	return false, nil
}
