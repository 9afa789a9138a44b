package memory

import (
	"time"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

// SeedDemo fills the platform with two properties around today for local runs.
func SeedDemo(p *Platform, now time.Time) {
	today := daterange.FromTime(now)
	p.AddProperty("seaside-loft", money.Must(14500, "EUR"), 2)
	p.AddProperty("city-studio", money.Must(8900, "EUR"), 1)

	_ = p.AddBooking("seaside-loft", availability.BookingSpan{
		ID: "bk-1001", CheckIn: today.AddDays(2), CheckOut: today.AddDays(5),
		GuestName: "A. Moreau", GuestCount: 2, Status: availability.BookingConfirmed,
		CheckInTime: "15:00", CheckOutTime: "11:00",
	})
	_ = p.AddBooking("seaside-loft", availability.BookingSpan{
		ID: "bk-1002", CheckIn: today.AddDays(5), CheckOut: today.AddDays(9),
		GuestName: "J. Okafor", GuestCount: 3, Status: availability.BookingPaid,
		CheckInTime: "16:00", CheckOutTime: "10:00",
	})
	_ = p.AddBooking("city-studio", availability.BookingSpan{
		ID: "bk-2001", CheckIn: today.AddDays(1), CheckOut: today.AddDays(3),
		GuestName: "L. Novak", GuestCount: 1, Status: availability.BookingModified,
	})
	_ = p.Reserve("seaside-loft", today.AddDays(14), today.AddDays(15))
	_ = p.SetAvailabilityDirect("city-studio", today.AddDays(10), today.AddDays(12))
}

// SetAvailabilityDirect blocks start..end without going through a context.
func (p *Platform) SetAvailabilityDirect(propertyID string, start, end daterange.Date) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cal, ok := p.properties[propertyID]
	if !ok {
		return ErrPropertyNotFound
	}
	for _, d := range daterange.Span(start, end).Days() {
		cal.blocked[d] = struct{}{}
	}
	return nil
}
