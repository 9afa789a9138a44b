package availability

import (
	"sort"
	"time"

	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

// DefaultBufferDays pads the visible month so bookings spanning its edges stay visible.
const DefaultBufferDays = 7

// Resolution is the merged view of one date. Spans lists every visible booking touching it,
// so a turnover day (checkout of one stay, check-in of the next) carries both.
type Resolution struct {
	Status DayStatus
	Spans  []BookingSpan
}

// Resolve merges the three sources for d. Bookings win over blocked entries, blocked entries win
// over the pricing snapshot, and snapshot statuses only fill the gaps.
func Resolve(src Sources, d daterange.Date) Resolution {
	spans := coveringSpans(src.Bookings, d)
	if len(spans) > 0 {
		return Resolution{Status: StatusBooked, Spans: spans}
	}
	for _, entry := range src.Blocked {
		if entry.Blocking() && entry.Covers(d) {
			return Resolution{Status: StatusBlocked}
		}
	}
	if pricing, ok := src.Pricing[d]; ok {
		switch pricing.Status {
		case PricingReserved:
			return Resolution{Status: StatusReserved}
		case PricingBlocked:
			return Resolution{Status: StatusBlocked}
		}
	}
	return Resolution{Status: StatusAvailable}
}

func coveringSpans(bookings []BookingSpan, d daterange.Date) []BookingSpan {
	var out []BookingSpan
	for _, b := range bookings {
		if b.Status.Visible() && b.Covers(d) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].CheckIn.Compare(out[j].CheckIn); c != 0 {
			return c < 0
		}
		if c := out[i].CheckOut.Compare(out[j].CheckOut); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cell is what the grid renders for one day.
type Cell struct {
	Date        daterange.Date `json:"date"`
	Status      DayStatus      `json:"status"`
	Price       *money.Money   `json:"price"`
	MinimumStay *int           `json:"minimumStay"`
	Spans       []BookingSpan  `json:"spans,omitempty"`
}

// Window is the visible part of a calendar: one month plus a buffer on both sides.
type Window struct {
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Range daterange.Range `json:"range"`
}

func NewWindow(year int, month time.Month, bufferDays int) Window {
	if bufferDays < 0 {
		bufferDays = 0
	}
	first := daterange.FirstOfMonth(year, month)
	last := daterange.LastOfMonth(year, month)
	return Window{
		Year:  first.Year,
		Month: first.Month,
		Range: daterange.Range{Start: first.AddDays(-bufferDays), End: last.AddDays(bufferDays)},
	}
}

func (w Window) Contains(d daterange.Date) bool {
	return w.Range.Contains(d)
}

// MonthRange is the focused month without buffer days.
func (w Window) MonthRange() daterange.Range {
	return daterange.Range{Start: daterange.FirstOfMonth(w.Year, w.Month), End: daterange.LastOfMonth(w.Year, w.Month)}
}

// BuildCells resolves every day of the window.
func BuildCells(w Window, src Sources) []Cell {
	days := w.Range.Days()
	cells := make([]Cell, 0, len(days))
	for _, d := range days {
		res := Resolve(src, d)
		cell := Cell{Date: d, Status: res.Status, Spans: res.Spans}
		if pricing, ok := src.Pricing[d]; ok {
			cell.Price = pricing.Price
			cell.MinimumStay = pricing.MinimumStay
		}
		cells = append(cells, cell)
	}
	return cells
}
