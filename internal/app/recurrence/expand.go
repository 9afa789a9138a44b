package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"hostboard/internal/domain/shared/daterange"
)

// MaxOccurrences caps how many dates one rule may contribute to a bulk request.
const MaxOccurrences = 366

var ErrInvalidRule = errors.New("recurrence: invalid rule")

// Expand returns the days of window matched by rule, in calendar order, minus any exclusions.
// The rule is anchored at the window start unless window is empty.
func Expand(rule string, window daterange.Range, exclude ...daterange.Date) ([]daterange.Date, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if rule == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidRule)
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	start := midnight(window.Start)
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, d := range exclude {
		set.ExDate(midnight(d))
	}

	occurrences := set.Between(start, midnight(window.End), true)
	if len(occurrences) > MaxOccurrences {
		occurrences = occurrences[:MaxOccurrences]
	}
	out := make([]daterange.Date, 0, len(occurrences))
	for _, t := range occurrences {
		out = append(out, daterange.FromTime(t))
	}
	return out, nil
}

func midnight(d daterange.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}
