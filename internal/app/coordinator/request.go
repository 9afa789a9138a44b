package coordinator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

var (
	ErrInvalidRequest = errors.New("coordinator: invalid mutation request")
	ErrConflict       = errors.New("coordinator: a mutation is already in flight for these dates")
	ErrRemote         = errors.New("coordinator: remote calendar rejected the mutation")
)

// Request is one commit. Either Dates (one remote call per date) or Range (a single call)
// must be set.
type Request struct {
	PropertyID  string
	Kind        availability.MutationKind
	Dates       []daterange.Date
	Range       *daterange.Range
	Price       *money.Money
	MinimumStay int
	Actor       string
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.PropertyID) == "" {
		return fmt.Errorf("%w: property id is required", ErrInvalidRequest)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	if r.Range != nil && len(r.Dates) > 0 {
		return fmt.Errorf("%w: dates and range are mutually exclusive", ErrInvalidRequest)
	}
	if r.Range != nil {
		if err := r.Range.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	} else if len(r.Dates) == 0 {
		return fmt.Errorf("%w: no dates", ErrInvalidRequest)
	}
	switch r.Kind {
	case availability.MutationSetPrice:
		if r.Price == nil || r.Price.Minor <= 0 {
			return fmt.Errorf("%w: price must be positive", ErrInvalidRequest)
		}
	case availability.MutationSetMinimumStay:
		if r.MinimumStay <= 0 {
			return fmt.Errorf("%w: minimum stay must be positive", ErrInvalidRequest)
		}
	}
	return nil
}

// Targets lists every date the request touches, sorted and without duplicates.
func (r Request) Targets() []daterange.Date {
	if r.Range != nil {
		return r.Range.Days()
	}
	seen := make(map[daterange.Date]struct{}, len(r.Dates))
	out := make([]daterange.Date, 0, len(r.Dates))
	for _, d := range r.Dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Value renders the request payload for journals and events.
func (r Request) Value() string {
	switch r.Kind {
	case availability.MutationSetPrice:
		if r.Price != nil {
			return r.Price.String()
		}
	case availability.MutationSetMinimumStay:
		return strconv.Itoa(r.MinimumStay)
	}
	return ""
}

// DateFailure is the per-date outcome of a rejected remote call.
type DateFailure struct {
	Date   daterange.Date `json:"date"`
	Reason string         `json:"reason"`
	Err    error          `json:"-"`
}

// Result aggregates per-date outcomes of one commit.
type Result struct {
	Succeeded []daterange.Date `json:"succeeded"`
	Failed    []DateFailure    `json:"failed"`
}

func (r Result) FailedDates() []daterange.Date {
	out := make([]daterange.Date, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Date)
	}
	return out
}

// RemoteError reports a commit in which at least one date failed remotely.
type RemoteError struct {
	Result Result
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %d of %d dates failed", ErrRemote.Error(), len(e.Result.Failed), len(e.Result.Failed)+len(e.Result.Succeeded))
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// Entry is the journal record of one settled commit.
type Entry struct {
	ID         string
	PropertyID string
	Kind       availability.MutationKind
	Value      string
	Actor      string
	Succeeded  []daterange.Date
	Failed     []DateFailure
	StartedAt  time.Time
	FinishedAt time.Time
}
