package availability

import (
	"time"

	"hostboard/internal/domain/shared/daterange"
)

type MutationKind string

const (
	MutationBlock          MutationKind = "block"
	MutationUnblock        MutationKind = "unblock"
	MutationSetPrice       MutationKind = "set_price"
	MutationSetMinimumStay MutationKind = "set_minimum_stay"
)

func (k MutationKind) Valid() bool {
	switch k {
	case MutationBlock, MutationUnblock, MutationSetPrice, MutationSetMinimumStay:
		return true
	default:
		return false
	}
}

// TouchesAvailability is true for block and unblock.
func (k MutationKind) TouchesAvailability() bool {
	return k == MutationBlock || k == MutationUnblock
}

// CalendarMutated is recorded once per commit for the dates the platform accepted.
type CalendarMutated struct {
	CommitID   string           `json:"commit_id,omitempty"`
	PropertyID string           `json:"property_id"`
	Kind       MutationKind     `json:"kind"`
	Dates      []daterange.Date `json:"dates"`
	Value      string           `json:"value,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	At         time.Time        `json:"at"`
}

func (e CalendarMutated) EventName() string     { return "calendar.mutated" }
func (e CalendarMutated) AggregateID() string   { return e.PropertyID }
func (e CalendarMutated) OccurredAt() time.Time { return e.At }

func (e CalendarMutated) MutationKind() MutationKind      { return e.Kind }
func (e CalendarMutated) AffectedDates() []daterange.Date { return e.Dates }
func (e CalendarMutated) CommitRef() string               { return e.CommitID }

// CalendarMutationFailed is recorded for the dates the platform rejected.
type CalendarMutationFailed struct {
	CommitID   string           `json:"commit_id,omitempty"`
	PropertyID string           `json:"property_id"`
	Kind       MutationKind     `json:"kind"`
	Dates      []daterange.Date `json:"dates"`
	At         time.Time        `json:"at"`
}

func (e CalendarMutationFailed) EventName() string     { return "calendar.mutation_failed" }
func (e CalendarMutationFailed) AggregateID() string   { return e.PropertyID }
func (e CalendarMutationFailed) OccurredAt() time.Time { return e.At }

func (e CalendarMutationFailed) MutationKind() MutationKind      { return e.Kind }
func (e CalendarMutationFailed) AffectedDates() []daterange.Date { return e.Dates }
func (e CalendarMutationFailed) CommitRef() string               { return e.CommitID }
