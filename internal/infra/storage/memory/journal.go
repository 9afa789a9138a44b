package memory

import (
	"context"
	"sort"
	"sync"

	"hostboard/internal/app/coordinator"
)

// Journal keeps the most recent commit entries per property.
type Journal struct {
	mu      sync.RWMutex
	limit   int
	entries map[string][]coordinator.Entry
}

func NewJournal(limit int) *Journal {
	if limit <= 0 {
		limit = 500
	}
	return &Journal{limit: limit, entries: make(map[string][]coordinator.Entry)}
}

func (j *Journal) Append(_ context.Context, entry coordinator.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	list := append(j.entries[entry.PropertyID], entry)
	if len(list) > j.limit {
		list = list[len(list)-j.limit:]
	}
	j.entries[entry.PropertyID] = list
	return nil
}

// Recent returns up to limit entries of a property, newest first.
func (j *Journal) Recent(_ context.Context, propertyID string, limit int) ([]coordinator.Entry, error) {
	j.mu.RLock()
	list := append([]coordinator.Entry(nil), j.entries[propertyID]...)
	j.mu.RUnlock()
	sort.SliceStable(list, func(a, b int) bool { return list[a].FinishedAt.After(list[b].FinishedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

var _ coordinator.Journal = (*Journal)(nil)
