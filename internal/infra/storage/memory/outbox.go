package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "hostboard/internal/app/outbox"
	infraoutbox "hostboard/internal/infra/outbox"
)

// Outbox queues records in process for the outbox worker. Flush drops delivered records.
type Outbox struct {
	mu      sync.Mutex
	records []*infraoutbox.EventDocument
	now     func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{now: time.Now}
}

func (o *Outbox) Add(_ context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now().UTC()
	o.records = append(o.records, &infraoutbox.EventDocument{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     append([]byte(nil), record.Payload...),
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     record.Headers,
		State:       infraoutbox.StateNew,
		NextAttempt: now,
	})
	return nil
}

func (o *Outbox) Flush(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.records[:0]
	for _, r := range o.records {
		if r.State != infraoutbox.StateSent {
			kept = append(kept, r)
		}
	}
	o.records = kept
	return nil
}

func (o *Outbox) Claim(_ context.Context, workerID string) (*infraoutbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now().UTC()
	for _, r := range o.records {
		if (r.State == infraoutbox.StateNew || r.State == infraoutbox.StateFailed) && !r.NextAttempt.After(now) {
			r.State = infraoutbox.StateClaimed
			r.ClaimedBy = workerID
			r.ClaimedAt = now
			doc := *r
			return &doc, nil
		}
	}
	return nil, nil
}

func (o *Outbox) MarkSent(_ context.Context, id string) error {
	o.update(id, func(r *infraoutbox.EventDocument) {
		r.State = infraoutbox.StateSent
		r.SentAt = o.now().UTC()
	})
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id string, next time.Time, errMsg string) error {
	o.update(id, func(r *infraoutbox.EventDocument) {
		r.State = infraoutbox.StateFailed
		r.NextAttempt = next
		r.LastError = errMsg
		r.Attempts++
	})
	return nil
}

// Pending counts records not yet delivered.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.records {
		if r.State != infraoutbox.StateSent {
			n++
		}
	}
	return n
}

func (o *Outbox) update(id string, fn func(*infraoutbox.EventDocument)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.records {
		if r.ID == id {
			fn(r)
			return
		}
	}
}

var (
	_ appoutbox.Outbox  = (*Outbox)(nil)
	_ infraoutbox.Store = (*Outbox)(nil)
)
