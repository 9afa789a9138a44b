package calendar

import (
	"errors"
	"fmt"
	"strings"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

var (
	ErrAuthorizationDenied = errors.New("calendar: you do not have permission to edit this calendar")
	ErrNoPropertySelected  = errors.New("calendar: no property selected")
	ErrOutsideWindow       = errors.New("calendar: date is outside the visible window")
	ErrInvalidOperation    = errors.New("calendar: invalid operation")
	ErrSessionClosed       = errors.New("calendar: session closed")
	ErrSessionNotFound     = errors.New("calendar: session not found")
	ErrStaleResponse       = errors.New("calendar: response belongs to a previous view")
)

// IneligibleError names the dates whose status forbids the requested change.
type IneligibleError struct {
	Kind     availability.MutationKind
	Dates    []daterange.Date
	Statuses []availability.DayStatus
}

func (e *IneligibleError) Error() string {
	parts := make([]string, 0, len(e.Dates))
	for i, d := range e.Dates {
		parts = append(parts, fmt.Sprintf("%s (%s)", d, e.Statuses[i]))
	}
	return fmt.Sprintf("%s: cannot %s %s", ErrInvalidOperation.Error(), e.Kind, strings.Join(parts, ", "))
}

func (e *IneligibleError) Unwrap() error { return ErrInvalidOperation }
