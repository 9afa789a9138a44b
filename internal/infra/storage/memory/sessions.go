package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	appcalendar "hostboard/internal/app/calendar"
)

// SessionStore keeps open calendars in process and fans property refreshes out to them.
type SessionStore struct {
	mu    sync.RWMutex
	items map[string]*appcalendar.Calendar
}

func NewSessionStore() *SessionStore {
	return &SessionStore{items: make(map[string]*appcalendar.Calendar)}
}

func (s *SessionStore) Save(cal *appcalendar.Calendar) error {
	if cal == nil {
		return errors.New("memory: nil calendar")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cal.ID()] = cal
	return nil
}

func (s *SessionStore) Find(id string) (*appcalendar.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cal, ok := s.items[id]
	if !ok {
		return nil, appcalendar.ErrSessionNotFound
	}
	return cal, nil
}

func (s *SessionStore) Delete(id string) (*appcalendar.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.items[id]
	if !ok {
		return nil, appcalendar.ErrSessionNotFound
	}
	delete(s.items, id)
	return cal, nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// RefreshProperty reloads every open calendar showing propertyID. All calendars are tried;
// the errors are joined.
func (s *SessionStore) RefreshProperty(ctx context.Context, propertyID string) error {
	var errs []error
	for _, cal := range s.snapshot() {
		if err := cal.RefreshProperty(ctx, propertyID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep closes and forgets calendars idle for longer than idle. It returns how many it removed.
func (s *SessionStore) Sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	var expired []*appcalendar.Calendar
	s.mu.Lock()
	for id, cal := range s.items {
		if cal.Closed() || now.Sub(cal.LastSeen()) > idle {
			expired = append(expired, cal)
			delete(s.items, id)
		}
	}
	s.mu.Unlock()
	for _, cal := range expired {
		cal.Close()
	}
	return len(expired)
}

// CloseAll closes every calendar, used on shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*appcalendar.Calendar)
	s.mu.Unlock()
	for _, cal := range items {
		cal.Close()
	}
}

func (s *SessionStore) snapshot() []*appcalendar.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*appcalendar.Calendar, 0, len(s.items))
	for _, cal := range s.items {
		out = append(out, cal)
	}
	return out
}
