package ics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

func day(raw string) daterange.Date { return daterange.MustParse(raw) }

func sampleCells() []availability.Cell {
	booking := availability.BookingSpan{ID: "b1", CheckIn: day("2024-07-03"), CheckOut: day("2024-07-04"), Status: availability.BookingConfirmed}
	return []availability.Cell{
		{Date: day("2024-07-01"), Status: availability.StatusBlocked},
		{Date: day("2024-07-02"), Status: availability.StatusReserved},
		{Date: day("2024-07-03"), Status: availability.StatusBooked, Spans: []availability.BookingSpan{booking}},
		{Date: day("2024-07-04"), Status: availability.StatusBooked, Spans: []availability.BookingSpan{booking}},
		{Date: day("2024-07-05"), Status: availability.StatusAvailable},
		{Date: day("2024-07-06"), Status: availability.StatusBlocked},
	}
}

func TestCollectEventsGroupsRunsAndBookings(t *testing.T) {
	events := collectEvents(sampleCells())
	require.Len(t, events, 3)
	assert.Equal(t, feedEvent{start: day("2024-07-01"), end: day("2024-07-02"), summary: "Not available"}, events[0])
	assert.Equal(t, "b1", events[1].bookingID)
	assert.Equal(t, day("2024-07-04"), events[1].end)
	assert.Equal(t, day("2024-07-06"), events[2].start)
}

func TestRenderProducesParsableCalendar(t *testing.T) {
	body, err := Renderer{}.Render("p1", sampleCells(), time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(strings.NewReader(string(body)))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "Reserved", events[1].GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "p1-booking-b1@hostboard", events[1].Id())
	assert.Contains(t, string(body), "DTEND;VALUE=DATE:20240705")

	_, err = Renderer{}.Render(" ", nil, time.Now())
	assert.Error(t, err)
}

func TestFileSinkReplacesFeed(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink := FileSink{Fs: fs, Dir: "/feeds"}

	_, err := sink.Put(context.Background(), "p1.ics", []byte("old"))
	require.NoError(t, err)
	location, err := sink.Put(context.Background(), "../p1.ics", []byte("new"))
	require.NoError(t, err)

	assert.Equal(t, "/feeds/p1.ics", location)
	got, err := afero.ReadFile(fs, location)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	exists, err := afero.Exists(fs, "/feeds/p1.ics.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPublisherContinuesPastFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := Publisher{
		Properties: []string{"p1", "broken", " ", "p2"},
		Source: func(_ context.Context, propertyID string) ([]byte, error) {
			if propertyID == "broken" {
				return nil, errors.New("platform down")
			}
			return []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), nil
		},
		Sink: FileSink{Fs: fs, Dir: "/out"},
	}

	published, err := p.PublishAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, Published{"p1": "/out/p1.ics", "p2": "/out/p2.ics"}, published)
}
