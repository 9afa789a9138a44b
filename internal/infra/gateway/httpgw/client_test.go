package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/api", Token: "service-token", Retries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, err)
	return c
}

func TestFetchRangeToleratesLooseShapes(t *testing.T) {
	var auth, query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/properties/p%201/calendar", r.URL.EscapedPath())
		auth = r.Header.Get("Authorization")
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{
			"bookings": [
				{"id": 17, "checkIn": "2024-07-20T15:00:00+02:00", "checkOut": "2024-07-23", "guestCount": "2", "status": "Confirmed"},
				{"id": "broken", "checkIn": null},
				"garbage"
			],
			"blockedDates": [{"date": "2024-07-05", "status": "unavailable"}, {"startDate": "2024-07-10", "endDate": "2024-07-12", "status": "blocked"}, 42]
		}`))
	})

	ctx := policies.ContextWithAccessToken(context.Background(), "user-token")
	feed, err := c.FetchRange(ctx, "p 1", daterange.MustParse("2024-07-01"), daterange.MustParse("2024-07-31"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer user-token", auth)
	assert.Equal(t, "endDate=2024-07-31&startDate=2024-07-01", query)
	require.Len(t, feed.Bookings, 1)
	b := feed.Bookings[0]
	assert.Equal(t, "17", b.ID)
	assert.Equal(t, daterange.MustParse("2024-07-20"), b.CheckIn)
	assert.Equal(t, 2, b.GuestCount)
	assert.True(t, b.Status.Visible())
	require.Len(t, feed.BlockedDates, 2)
	assert.True(t, feed.BlockedDates[1].IsRange())
	assert.NotNil(t, feed.Result)
	assert.Empty(t, feed.Result)
}

func TestFetchMonthPricingParsesNumbersStringsAndNulls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		assert.Equal(t, "7", r.URL.Query().Get("month"))
		_, _ = w.Write([]byte(`{
			"2024-07-01": {"price": "120.5", "minimumStay": "3", "status": "available"},
			"2024-07-02": {"price": 99, "minimumStay": 2, "status": "RESERVED"},
			"2024-07-03": {"price": null, "minimumStay": null, "status": "unavailable"},
			"not-a-date": {"price": 1}
		}`))
	})

	snap, err := c.FetchMonthPricing(context.Background(), "p1", 2024, time.July)
	require.NoError(t, err)
	require.Len(t, snap, 3)

	first := snap[daterange.MustParse("2024-07-01")]
	require.NotNil(t, first.Price)
	assert.Equal(t, money.Must(12050, "EUR"), *first.Price)
	assert.Equal(t, 3, *first.MinimumStay)
	assert.Equal(t, availability.PricingReserved, snap[daterange.MustParse("2024-07-02")].Status)
	third := snap[daterange.MustParse("2024-07-03")]
	assert.Nil(t, third.Price)
	assert.Nil(t, third.MinimumStay)
	assert.Equal(t, availability.PricingBlocked, third.Status)
}

func TestReadsRetryTransientFailures(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"date": "2024-07-05", "status": "available", "price": 80, "checkInAvailable": true}`))
	})

	detail, err := c.FetchDateDetail(context.Background(), "p1", daterange.MustParse("2024-07-05"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "available", detail.Status)
	assert.True(t, detail.CheckInAvailable)
	assert.Equal(t, int64(8000), detail.Price.Minor)
}

func TestReadsDoNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such property", http.StatusNotFound)
	})

	_, err := c.FetchRange(context.Background(), "p1", daterange.MustParse("2024-07-01"), daterange.MustParse("2024-07-31"))
	var status *StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusNotFound, status.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWritesAreNeverRetried(t *testing.T) {
	var hits atomic.Int32
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/properties/p1/pricing", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.SetPrice(context.Background(), "p1", availability.PriceChange{
		Range: daterange.Single(daterange.MustParse("2024-07-05")),
		Price: money.Must(15000, "EUR"),
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "2024-07-05", body["startDate"])
	assert.Equal(t, 150.0, body["price"])
}

func TestSetAvailabilitySendsFlag(t *testing.T) {
	var body map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/properties/p1/availability", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	err := c.SetAvailability(context.Background(), "p1", daterange.MustParse("2024-07-05"), daterange.MustParse("2024-07-07"), availability.FlagUnblock)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"startDate": "2024-07-05", "endDate": "2024-07-07", "flag": "unblock"}, body)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
