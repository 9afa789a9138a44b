package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

const defaultProductID = "-//hostboard//calendar feed//EN"

// Renderer writes resolved cells as an iCalendar feed that booking platforms can subscribe to.
// Bookings become one event each; runs of blocked or reserved days become "Not available".
type Renderer struct {
	ProductID string
	Domain    string
}

func (r Renderer) Render(propertyID string, cells []availability.Cell, now time.Time) ([]byte, error) {
	if strings.TrimSpace(propertyID) == "" {
		return nil, fmt.Errorf("ics: property id is required")
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(r.productID())
	cal.SetXWRCalName(propertyID)

	stamp := now.UTC()
	for _, ev := range collectEvents(cells) {
		event := cal.AddEvent(r.uid(propertyID, ev))
		event.SetDtStampTime(stamp)
		event.SetAllDayStartAt(ev.start.In(time.UTC))
		event.SetAllDayEndAt(ev.end.AddDays(1).In(time.UTC))
		event.SetSummary(ev.summary)
	}
	return []byte(cal.Serialize()), nil
}

func (r Renderer) productID() string {
	if r.ProductID != "" {
		return r.ProductID
	}
	return defaultProductID
}

func (r Renderer) uid(propertyID string, ev feedEvent) string {
	domain := r.Domain
	if domain == "" {
		domain = "hostboard"
	}
	if ev.bookingID != "" {
		return fmt.Sprintf("%s-booking-%s@%s", propertyID, ev.bookingID, domain)
	}
	return fmt.Sprintf("%s-%s-%s@%s", propertyID, ev.start, ev.end, domain)
}

type feedEvent struct {
	start     daterange.Date
	end       daterange.Date
	summary   string
	bookingID string
}

func collectEvents(cells []availability.Cell) []feedEvent {
	var out []feedEvent
	seen := map[string]bool{}
	var run *feedEvent
	flush := func() {
		if run != nil {
			out = append(out, *run)
			run = nil
		}
	}
	for _, cell := range cells {
		switch cell.Status {
		case availability.StatusBooked:
			flush()
			for _, span := range cell.Spans {
				key := span.ID
				if key == "" {
					key = span.CheckIn.String() + "/" + span.CheckOut.String()
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, feedEvent{start: span.CheckIn, end: span.CheckOut, summary: "Reserved", bookingID: span.ID})
			}
		case availability.StatusBlocked, availability.StatusReserved:
			if run != nil && run.end.AddDays(1) == cell.Date {
				run.end = cell.Date
				continue
			}
			flush()
			run = &feedEvent{start: cell.Date, end: cell.Date, summary: "Not available"}
		default:
			flush()
		}
	}
	flush()
	return out
}
