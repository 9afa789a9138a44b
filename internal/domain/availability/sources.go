package availability

import (
	"strings"
	"time"

	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

// BookingStatus is the platform status of a reservation. Only visible statuses occupy days.
type BookingStatus string

const (
	BookingModified  BookingStatus = "modified"
	BookingConfirmed BookingStatus = "confirmed"
	BookingPaid      BookingStatus = "paid"
)

func (s BookingStatus) Visible() bool {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(string(s)))) {
	case BookingModified, BookingConfirmed, BookingPaid:
		return true
	default:
		return false
	}
}

// BookingSpan is a guest reservation. Both boundary days are occupied.
type BookingSpan struct {
	ID           string         `json:"id,omitempty"`
	CheckIn      daterange.Date `json:"checkIn"`
	CheckOut     daterange.Date `json:"checkOut"`
	GuestName    string         `json:"guestName,omitempty"`
	GuestCount   int            `json:"guestCount,omitempty"`
	Status       BookingStatus  `json:"status"`
	CheckInTime  string         `json:"checkInTime,omitempty"`
	CheckOutTime string         `json:"checkOutTime,omitempty"`
}

func (b BookingSpan) Covers(d daterange.Date) bool {
	return !d.Before(b.CheckIn) && !d.After(b.CheckOut)
}

func (b BookingSpan) Range() daterange.Range {
	return daterange.Span(b.CheckIn, b.CheckOut)
}

// BlockedEntry is host-initiated unavailability, either for one Date or for Start..End.
type BlockedEntry struct {
	Date   daterange.Date `json:"date,omitempty"`
	Start  daterange.Date `json:"startDate,omitempty"`
	End    daterange.Date `json:"endDate,omitempty"`
	Status string         `json:"status"`
}

func (e BlockedEntry) IsRange() bool {
	return !e.Start.IsZero() && !e.End.IsZero()
}

func (e BlockedEntry) Blocking() bool {
	switch strings.ToLower(strings.TrimSpace(e.Status)) {
	case "unavailable", "blocked":
		return true
	default:
		return false
	}
}

func (e BlockedEntry) Covers(d daterange.Date) bool {
	if e.IsRange() {
		return daterange.Span(e.Start, e.End).Contains(d)
	}
	return !e.Date.IsZero() && e.Date == d
}

type PricingStatus string

const (
	PricingAvailable PricingStatus = "available"
	PricingReserved  PricingStatus = "reserved"
	PricingBlocked   PricingStatus = "blocked"
)

// DayPricing is the platform hint for one day. Price and MinimumStay may be unknown.
type DayPricing struct {
	Price       *money.Money  `json:"price"`
	MinimumStay *int          `json:"minimumStay"`
	Status      PricingStatus `json:"status"`
}

// PricingSnapshot holds one month of DayPricing keyed by date.
type PricingSnapshot map[daterange.Date]DayPricing

// DefaultPricing synthesizes an "available, unknown price" entry for every day of the month.
func DefaultPricing(year int, month time.Month) PricingSnapshot {
	first := daterange.FirstOfMonth(year, month)
	last := daterange.LastOfMonth(year, month)
	out := make(PricingSnapshot, last.Day)
	for _, d := range daterange.Span(first, last).Days() {
		out[d] = DayPricing{Status: PricingAvailable}
	}
	return out
}

// RangeFeed is the tolerated shape of the platform range read. BlockedDates and Result
// are both authoritative for blocking.
type RangeFeed struct {
	Bookings       []BookingSpan
	BlockedDates   []BlockedEntry
	AvailableDates []string
	Result         []BlockedEntry
}

// Sources are the three inputs of the resolver for one visible window.
type Sources struct {
	Bookings []BookingSpan
	Blocked  []BlockedEntry
	Pricing  PricingSnapshot
}

// SourcesFromFeed merges both blocked-entry arrays of a feed.
func SourcesFromFeed(feed RangeFeed, pricing PricingSnapshot) Sources {
	blocked := make([]BlockedEntry, 0, len(feed.BlockedDates)+len(feed.Result))
	blocked = append(blocked, feed.BlockedDates...)
	blocked = append(blocked, feed.Result...)
	return Sources{
		Bookings: append([]BookingSpan(nil), feed.Bookings...),
		Blocked:  blocked,
		Pricing:  pricing,
	}
}

// DateDetail is the single-day read used by the detail view.
type DateDetail struct {
	Date              daterange.Date `json:"date"`
	Status            string         `json:"status"`
	Price             *money.Money   `json:"price"`
	MinimumStay       *int           `json:"minimumStay"`
	CheckInAvailable  bool           `json:"checkInAvailable"`
	CheckOutAvailable bool           `json:"checkOutAvailable"`
}

type AvailabilityFlag string

const (
	FlagBlock   AvailabilityFlag = "block"
	FlagUnblock AvailabilityFlag = "unblock"
)

// PriceChange sets the nightly price for Start..End.
type PriceChange struct {
	Range daterange.Range
	Price money.Money
}

// MinimumStayChange sets the minimum number of nights for Start..End.
type MinimumStayChange struct {
	Range       daterange.Range
	MinimumStay int
}
