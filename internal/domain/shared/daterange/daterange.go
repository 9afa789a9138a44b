package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDate  = errors.New("daterange: invalid calendar date")
	ErrInvalidRange = errors.New("daterange: end must not be before start")
)

// Layout is the wire format of a calendar date.
const Layout = "2006-01-02"

// Date is a calendar-local day without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes overflowing components the way time.Date does (Jan 32 -> Feb 1).
func NewDate(year int, month time.Month, day int) Date {
	return fromAnchor(time.Date(year, month, day, 12, 0, 0, 0, time.UTC))
}

// FromTime keeps the wall-clock day of t in its own location. It never converts zones.
func FromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func Parse(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(Layout) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	t, err := time.Parse(Layout, raw)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// ParseLoose accepts either a bare date or a timestamp and keeps the date part verbatim.
// "2024-06-10T23:30:00-05:00" is 2024-06-10, not the UTC day.
func ParseLoose(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(Layout) {
		sep := raw[len(Layout)]
		if sep == 'T' || sep == 't' || sep == ' ' {
			raw = raw[:len(Layout)]
		}
	}
	return Parse(raw)
}

func MustParse(raw string) Date {
	d, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return d
}

func FirstOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, 1)
}

func LastOfMonth(year int, month time.Month) Date {
	return NewDate(year, month+1, 0)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) AddDays(n int) Date {
	return fromAnchor(d.anchor().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.anchor().Weekday()
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmp(d.Year, other.Year)
	case d.Month != other.Month:
		return cmp(int(d.Month), int(other.Month))
	default:
		return cmp(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
func (d Date) After(other Date) bool  { return d.Compare(other) > 0 }

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// MarshalText encodes the zero Date as an empty string.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseLoose(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of days from a to b (negative when b is earlier).
func DaysBetween(a, b Date) int {
	return int((b.anchor().Unix() - a.anchor().Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// anchor is noon UTC of the day; used only for arithmetic, never for formatting.
func (d Date) anchor() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

func fromAnchor(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Range is an inclusive interval [Start, End] of calendar dates.
type Range struct {
	Start Date `json:"startDate"`
	End   Date `json:"endDate"`
}

func New(start, end Date) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Span builds a range from two dates given in any order.
func Span(a, b Date) Range {
	if b.Before(a) {
		a, b = b, a
	}
	return Range{Start: a, End: b}
}

func Single(d Date) Range {
	return Range{Start: d, End: d}
}

func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidRange
	}
	if r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

func (r Range) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) Overlaps(other Range) bool {
	return !r.End.Before(other.Start) && !other.End.Before(r.Start)
}

func (r Range) Days() []Date {
	n := r.Len()
	out := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.Start.AddDays(i))
	}
	return out
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
