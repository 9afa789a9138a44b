package httpgw

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

// flexNumber accepts a JSON number, a numeric string or null. Anything else is unknown.
type flexNumber struct {
	value *float64
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	n.value = nil
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	n.value = &f
	return nil
}

func (n flexNumber) money(currency string) *money.Money {
	if n.value == nil {
		return nil
	}
	m, err := money.FromMajor(*n.value, currency)
	if err != nil {
		return nil
	}
	return &m
}

// flexInt is flexNumber truncated to an int.
type flexInt struct {
	value *int
}

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var n flexNumber
	if err := n.UnmarshalJSON(data); err != nil {
		return err
	}
	i.value = nil
	if n.value != nil {
		v := int(*n.value)
		i.value = &v
	}
	return nil
}

// flexString accepts strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(raw) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(raw)
	return nil
}

// flexDate takes the date part of a YYYY-MM-DD or timestamp string verbatim. Unparseable values
// leave the zero date.
type flexDate struct {
	daterange.Date
}

func (d *flexDate) UnmarshalJSON(data []byte) error {
	d.Date = daterange.Date{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if parsed, err := daterange.ParseLoose(s); err == nil {
		d.Date = parsed
	}
	return nil
}

type wireBooking struct {
	ID           flexString `json:"id"`
	CheckIn      flexDate   `json:"checkIn"`
	CheckOut     flexDate   `json:"checkOut"`
	GuestName    string     `json:"guestName"`
	GuestCount   flexInt    `json:"guestCount"`
	Status       string     `json:"status"`
	CheckInTime  string     `json:"checkInTime"`
	CheckOutTime string     `json:"checkOutTime"`
}

type wireBlocked struct {
	Date   flexDate `json:"date"`
	Start  flexDate `json:"startDate"`
	End    flexDate `json:"endDate"`
	Status string   `json:"status"`
}

// rangeResponse keeps the arrays raw so one malformed element does not sink the feed.
type rangeResponse struct {
	Bookings       []json.RawMessage `json:"bookings"`
	BlockedDates   []json.RawMessage `json:"blockedDates"`
	AvailableDates []json.RawMessage `json:"availableDates"`
	Result         []json.RawMessage `json:"result"`
}

func (r rangeResponse) feed() availability.RangeFeed {
	feed := availability.RangeFeed{
		Bookings:       []availability.BookingSpan{},
		BlockedDates:   blockedEntries(r.BlockedDates),
		AvailableDates: []string{},
		Result:         blockedEntries(r.Result),
	}
	for _, raw := range r.Bookings {
		var b wireBooking
		if err := json.Unmarshal(raw, &b); err != nil || b.CheckIn.IsZero() || b.CheckOut.IsZero() {
			continue
		}
		span := availability.BookingSpan{
			ID:           string(b.ID),
			CheckIn:      b.CheckIn.Date,
			CheckOut:     b.CheckOut.Date,
			GuestName:    b.GuestName,
			Status:       availability.BookingStatus(b.Status),
			CheckInTime:  b.CheckInTime,
			CheckOutTime: b.CheckOutTime,
		}
		if b.GuestCount.value != nil {
			span.GuestCount = *b.GuestCount.value
		}
		feed.Bookings = append(feed.Bookings, span)
	}
	for _, raw := range r.AvailableDates {
		var s flexString
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			feed.AvailableDates = append(feed.AvailableDates, string(s))
		}
	}
	return feed
}

func blockedEntries(raws []json.RawMessage) []availability.BlockedEntry {
	out := make([]availability.BlockedEntry, 0, len(raws))
	for _, raw := range raws {
		var w wireBlocked
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		entry := availability.BlockedEntry{Date: w.Date.Date, Start: w.Start.Date, End: w.End.Date, Status: w.Status}
		if entry.Date.IsZero() && !entry.IsRange() {
			continue
		}
		out = append(out, entry)
	}
	return out
}

type wireDayPricing struct {
	Price       flexNumber `json:"price"`
	MinimumStay flexInt    `json:"minimumStay"`
	Status      string     `json:"status"`
}

func (w wireDayPricing) pricing(currency string) availability.DayPricing {
	status := availability.PricingStatus(strings.ToLower(strings.TrimSpace(w.Status)))
	switch status {
	case availability.PricingAvailable, availability.PricingReserved, availability.PricingBlocked:
	case "unavailable":
		status = availability.PricingBlocked
	default:
		status = availability.PricingAvailable
	}
	return availability.DayPricing{
		Price:       w.Price.money(currency),
		MinimumStay: w.MinimumStay.value,
		Status:      status,
	}
}

type wireDateDetail struct {
	Date              flexDate   `json:"date"`
	Status            string     `json:"status"`
	Price             flexNumber `json:"price"`
	MinimumStay       flexInt    `json:"minimumStay"`
	CheckInAvailable  bool       `json:"checkInAvailable"`
	CheckOutAvailable bool       `json:"checkOutAvailable"`
}
