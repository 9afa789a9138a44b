package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

var ErrPropertyNotFound = errors.New("memory: property not found")

type propertyCalendar struct {
	bookings    []availability.BookingSpan
	blocked     map[daterange.Date]struct{}
	reserved    map[daterange.Date]struct{}
	prices      map[daterange.Date]money.Money
	stays       map[daterange.Date]int
	basePrice   money.Money
	baseMinStay int
}

// Platform is an in-process booking platform used for local runs and tests. It behaves like
// the remote calendar: unknown properties fail and every read returns a fresh copy.
type Platform struct {
	mu         sync.RWMutex
	properties map[string]*propertyCalendar
}

func NewPlatform() *Platform {
	return &Platform{properties: make(map[string]*propertyCalendar)}
}

// AddProperty registers a property with a base nightly price and minimum stay.
func (p *Platform) AddProperty(id string, base money.Money, minimumStay int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.properties[id] = &propertyCalendar{
		blocked:     map[daterange.Date]struct{}{},
		reserved:    map[daterange.Date]struct{}{},
		prices:      map[daterange.Date]money.Money{},
		stays:       map[daterange.Date]int{},
		basePrice:   base,
		baseMinStay: minimumStay,
	}
}

func (p *Platform) AddBooking(propertyID string, span availability.BookingSpan) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	cal.bookings = append(cal.bookings, span)
	return nil
}

// Reserve marks dates as held by the platform (pending requests).
func (p *Platform) Reserve(propertyID string, dates ...daterange.Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	for _, d := range dates {
		cal.reserved[d] = struct{}{}
	}
	return nil
}

func (p *Platform) FetchRange(ctx context.Context, propertyID string, start, end daterange.Date) (availability.RangeFeed, error) {
	if err := ctx.Err(); err != nil {
		return availability.RangeFeed{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return availability.RangeFeed{}, ErrPropertyNotFound
	}
	window := daterange.Range{Start: start, End: end}
	var feed availability.RangeFeed
	for _, b := range cal.bookings {
		if b.Range().Overlaps(window) {
			feed.Bookings = append(feed.Bookings, b)
		}
	}
	for _, run := range runs(cal.blocked, window) {
		entry := availability.BlockedEntry{Status: "unavailable"}
		if run.Len() == 1 {
			entry.Date = run.Start
		} else {
			entry.Start, entry.End = run.Start, run.End
		}
		feed.BlockedDates = append(feed.BlockedDates, entry)
	}
	return feed, nil
}

func (p *Platform) FetchMonthPricing(ctx context.Context, propertyID string, year int, month time.Month) (availability.PricingSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	out := availability.PricingSnapshot{}
	for _, d := range daterange.Span(daterange.FirstOfMonth(year, month), daterange.LastOfMonth(year, month)).Days() {
		out[d] = cal.dayPricing(d)
	}
	return out, nil
}

func (p *Platform) FetchDateDetail(ctx context.Context, propertyID string, d daterange.Date) (availability.DateDetail, error) {
	if err := ctx.Err(); err != nil {
		return availability.DateDetail{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return availability.DateDetail{}, ErrPropertyNotFound
	}
	pricing := cal.dayPricing(d)
	src := availability.Sources{Bookings: cal.bookings, Pricing: availability.PricingSnapshot{d: pricing}}
	if _, blocked := cal.blocked[d]; blocked {
		src.Blocked = []availability.BlockedEntry{{Date: d, Status: "blocked"}}
	}
	status := availability.Resolve(src, d).Status
	free := status == availability.StatusAvailable
	return availability.DateDetail{
		Date:              d,
		Status:            string(status),
		Price:             pricing.Price,
		MinimumStay:       pricing.MinimumStay,
		CheckInAvailable:  free,
		CheckOutAvailable: free,
	}, nil
}

func (p *Platform) SetAvailability(ctx context.Context, propertyID string, start, end daterange.Date, flag availability.AvailabilityFlag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	for _, d := range daterange.Span(start, end).Days() {
		switch flag {
		case availability.FlagBlock:
			cal.blocked[d] = struct{}{}
		case availability.FlagUnblock:
			delete(cal.blocked, d)
		default:
			return errors.New("memory: unknown availability flag")
		}
	}
	return nil
}

func (p *Platform) SetPrice(ctx context.Context, propertyID string, change availability.PriceChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	for _, d := range change.Range.Days() {
		cal.prices[d] = change.Price
	}
	return nil
}

func (p *Platform) SetMinimumStay(ctx context.Context, propertyID string, change availability.MinimumStayChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	for _, d := range change.Range.Days() {
		cal.stays[d] = change.MinimumStay
	}
	return nil
}

func (c *propertyCalendar) dayPricing(d daterange.Date) availability.DayPricing {
	price := c.basePrice
	if custom, ok := c.prices[d]; ok {
		price = custom
	}
	stay := c.baseMinStay
	if custom, ok := c.stays[d]; ok {
		stay = custom
	}
	day := availability.DayPricing{Price: &price, MinimumStay: &stay, Status: availability.PricingAvailable}
	if _, ok := c.reserved[d]; ok {
		day.Status = availability.PricingReserved
	}
	return day
}

// runs groups the dates of set inside window into contiguous ranges.
func runs(set map[daterange.Date]struct{}, window daterange.Range) []daterange.Range {
	dates := make([]daterange.Date, 0, len(set))
	for d := range set {
		if window.Contains(d) {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	var out []daterange.Range
	for _, d := range dates {
		if n := len(out); n > 0 && out[n-1].End.AddDays(1) == d {
			out[n-1].End = d
			continue
		}
		out = append(out, daterange.Single(d))
	}
	return out
}

var _ policies.CalendarGateway = (*Platform)(nil)
