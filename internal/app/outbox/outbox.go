package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/events"
)

// EventRecord is an encoded calendar event waiting for publication. Aggregate is the
// property id and doubles as the partition key.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

// MutationEvent is implemented by the events a commit produces.
type MutationEvent interface {
	events.DomainEvent
	MutationKind() availability.MutationKind
	AffectedDates() []daterange.Date
	CommitRef() string
}

const (
	HeaderEventName  = "event-name"
	HeaderPropertyID = "property-id"
	HeaderKind       = "mutation-kind"
	HeaderCommitID   = "commit-id"
	HeaderFirstDate  = "first-date"
	HeaderLastDate   = "last-date"
	HeaderDateCount  = "date-count"
)

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("hostboard/calendar-events"))

// JSONEventEncoder encodes events as JSON. Events of a commit get an id derived from the
// commit and event name, so recording the same commit twice yields the same record id.
type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	if ev.AggregateID() == "" {
		return EventRecord{}, fmt.Errorf("outbox: %s without property id", ev.EventName())
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("outbox: encode %s: %w", ev.EventName(), err)
	}
	rec := EventRecord{
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers: map[string]string{
			HeaderEventName:  ev.EventName(),
			HeaderPropertyID: ev.AggregateID(),
		},
	}
	if m, ok := ev.(MutationEvent); ok {
		describeMutation(rec.Headers, m)
		if ref := m.CommitRef(); ref != "" {
			rec.ID = uuid.NewSHA1(eventNamespace, []byte(ref+"/"+ev.EventName())).String()
		}
	}
	if rec.ID == "" {
		rec.ID = e.newID()
	}
	return rec, nil
}

func (e JSONEventEncoder) newID() string {
	if e.IDGenerator == nil {
		return uuid.NewString()
	}
	return e.IDGenerator()
}

func describeMutation(h map[string]string, m MutationEvent) {
	h[HeaderKind] = string(m.MutationKind())
	if ref := m.CommitRef(); ref != "" {
		h[HeaderCommitID] = ref
	}
	dates := m.AffectedDates()
	h[HeaderDateCount] = strconv.Itoa(len(dates))
	if len(dates) == 0 {
		return
	}
	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	h[HeaderFirstDate] = first.String()
	h[HeaderLastDate] = last.String()
}

// RecordDomainEvents encodes every event before adding any, so an encoding failure leaves
// the outbox untouched.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	records := make([]EventRecord, 0, len(evs))
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	for _, rec := range records {
		if err := box.Add(ctx, rec); err != nil {
			return fmt.Errorf("outbox: add %s: %w", rec.Name, err)
		}
	}
	return nil
}
