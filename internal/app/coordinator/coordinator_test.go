package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "hostboard/internal/app/outbox"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

type availabilityCall struct {
	start, end daterange.Date
	flag       availability.AvailabilityFlag
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   []availabilityCall
	prices  []availability.PriceChange
	stays   []availability.MinimumStayChange
	failOn  map[daterange.Date]error
	gate    chan struct{}
	entered chan struct{}
}

func (g *fakeGateway) FetchRange(context.Context, string, daterange.Date, daterange.Date) (availability.RangeFeed, error) {
	return availability.RangeFeed{}, nil
}

func (g *fakeGateway) FetchMonthPricing(context.Context, string, int, time.Month) (availability.PricingSnapshot, error) {
	return availability.PricingSnapshot{}, nil
}

func (g *fakeGateway) FetchDateDetail(_ context.Context, _ string, d daterange.Date) (availability.DateDetail, error) {
	return availability.DateDetail{Date: d}, nil
}

func (g *fakeGateway) SetAvailability(_ context.Context, _ string, start, end daterange.Date, flag availability.AvailabilityFlag) error {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, availabilityCall{start: start, end: end, flag: flag})
	return g.failOn[start]
}

func (g *fakeGateway) SetPrice(_ context.Context, _ string, change availability.PriceChange) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices = append(g.prices, change)
	return g.failOn[change.Range.Start]
}

func (g *fakeGateway) SetMinimumStay(_ context.Context, _ string, change availability.MinimumStayChange) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stays = append(g.stays, change)
	return g.failOn[change.Range.Start]
}

type countingRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingRefresher) RefreshProperty(_ context.Context, propertyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, propertyID)
	return nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingJournal struct{ entries []Entry }

func (j *recordingJournal) Append(_ context.Context, e Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

type recordingOutbox struct{ records []appoutbox.EventRecord }

func (o *recordingOutbox) Add(_ context.Context, rec appoutbox.EventRecord) error {
	o.records = append(o.records, rec)
	return nil
}

func (o *recordingOutbox) Flush(context.Context) error { return nil }

func dates(raw ...string) []daterange.Date {
	out := make([]daterange.Date, 0, len(raw))
	for _, r := range raw {
		out = append(out, daterange.MustParse(r))
	}
	return out
}

func TestCommitDateSetCallsGatewayPerDateInOrder(t *testing.T) {
	gw := &fakeGateway{}
	ref := &countingRefresher{}
	c := New(gw, ref, WithUnblockSettleDelay(0))

	res, err := c.Commit(context.Background(), Request{
		PropertyID: "p1",
		Kind:       availability.MutationBlock,
		Dates:      dates("2024-07-17", "2024-07-15", "2024-07-16", "2024-07-15"),
	})
	require.NoError(t, err)
	assert.Equal(t, dates("2024-07-15", "2024-07-16", "2024-07-17"), res.Succeeded)
	assert.Empty(t, res.Failed)
	require.Len(t, gw.calls, 3)
	for i, d := range dates("2024-07-15", "2024-07-16", "2024-07-17") {
		assert.Equal(t, d, gw.calls[i].start)
		assert.Equal(t, d, gw.calls[i].end)
		assert.Equal(t, availability.FlagBlock, gw.calls[i].flag)
	}
	assert.Equal(t, 1, ref.count())
	assert.False(t, c.Busy("p1", availability.MutationBlock))
}

func TestCommitRangeIsSingleCall(t *testing.T) {
	gw := &fakeGateway{}
	c := New(gw, &countingRefresher{}, WithUnblockSettleDelay(0))
	r := daterange.Span(daterange.MustParse("2024-07-10"), daterange.MustParse("2024-07-14"))

	res, err := c.Commit(context.Background(), Request{PropertyID: "p1", Kind: availability.MutationUnblock, Range: &r})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 5)
	require.Len(t, gw.calls, 1)
	assert.Equal(t, r.Start, gw.calls[0].start)
	assert.Equal(t, r.End, gw.calls[0].end)
	assert.Equal(t, availability.FlagUnblock, gw.calls[0].flag)
}

func TestCommitPartialFailureAggregates(t *testing.T) {
	remoteErr := errors.New("platform said no")
	gw := &fakeGateway{failOn: map[daterange.Date]error{daterange.MustParse("2024-07-16"): remoteErr}}
	ref := &countingRefresher{}
	c := New(gw, ref, WithUnblockSettleDelay(0))

	res, err := c.Commit(context.Background(), Request{
		PropertyID: "p1",
		Kind:       availability.MutationBlock,
		Dates:      dates("2024-07-15", "2024-07-16", "2024-07-17"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemote)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, dates("2024-07-15", "2024-07-17"), remote.Result.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, daterange.MustParse("2024-07-16"), res.Failed[0].Date)
	assert.ErrorIs(t, res.Failed[0].Err, remoteErr)
	assert.Len(t, gw.calls, 3, "no retries")
	assert.Equal(t, 1, ref.count())
}

func TestCommitTotalFailureSkipsRefresh(t *testing.T) {
	d := daterange.MustParse("2024-07-15")
	gw := &fakeGateway{failOn: map[daterange.Date]error{d: errors.New("boom")}}
	ref := &countingRefresher{}
	c := New(gw, ref, WithUnblockSettleDelay(0))

	_, err := c.Commit(context.Background(), Request{PropertyID: "p1", Kind: availability.MutationBlock, Dates: []daterange.Date{d}})
	assert.ErrorIs(t, err, ErrRemote)
	assert.Zero(t, ref.count())
}

func TestCommitConflictIsSynchronous(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := New(gw, &countingRefresher{}, WithUnblockSettleDelay(0))

	done := make(chan error, 1)
	go func() {
		_, err := c.Commit(context.Background(), Request{
			PropertyID: "p1",
			Kind:       availability.MutationBlock,
			Dates:      dates("2024-07-15"),
		})
		done <- err
	}()
	<-gw.entered
	assert.True(t, c.Busy("p1", availability.MutationBlock))
	assert.True(t, c.InFlight("p1", daterange.MustParse("2024-07-15")))

	_, err := c.Commit(context.Background(), Request{
		PropertyID: "p1",
		Kind:       availability.MutationUnblock,
		Dates:      dates("2024-07-14", "2024-07-15"),
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = c.Commit(context.Background(), Request{
		PropertyID: "p1",
		Kind:       availability.MutationSetPrice,
		Dates:      dates("2024-07-20"),
		Price:      ptrMoney(money.Must(12000, "EUR")),
	})
	assert.NoError(t, err, "disjoint dates do not conflict")

	close(gw.gate)
	require.NoError(t, <-done)
	assert.False(t, c.Busy("p1", availability.MutationBlock))
	assert.False(t, c.InFlight("p1", daterange.MustParse("2024-07-15")))
}

func TestCommitOtherPropertyDoesNotConflict(t *testing.T) {
	gw := &fakeGateway{gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	c := New(gw, nil, WithUnblockSettleDelay(0))
	d := dates("2024-07-15")

	errs := make(chan error, 2)
	for _, p := range []string{"p1", "p2"} {
		p := p
		go func() {
			_, err := c.Commit(context.Background(), Request{PropertyID: p, Kind: availability.MutationBlock, Dates: d})
			errs <- err
		}()
	}
	<-gw.entered
	<-gw.entered
	close(gw.gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestCommitUnblockWaitsForSettleDelay(t *testing.T) {
	gw := &fakeGateway{}
	ref := &countingRefresher{}
	c := New(gw, ref, WithUnblockSettleDelay(20*time.Millisecond))

	started := time.Now()
	_, err := c.Commit(context.Background(), Request{PropertyID: "p1", Kind: availability.MutationUnblock, Dates: dates("2024-07-15")})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
	assert.Equal(t, 1, ref.count())
}

func TestCommitPriceAndMinimumStay(t *testing.T) {
	gw := &fakeGateway{}
	c := New(gw, nil, WithUnblockSettleDelay(0))
	price := money.Must(15000, "EUR")

	_, err := c.Commit(context.Background(), Request{PropertyID: "p1", Kind: availability.MutationSetPrice, Dates: dates("2024-07-15"), Price: &price})
	require.NoError(t, err)
	require.Len(t, gw.prices, 1)
	assert.Equal(t, price, gw.prices[0].Price)

	_, err = c.Commit(context.Background(), Request{PropertyID: "p1", Kind: availability.MutationSetMinimumStay, Dates: dates("2024-07-15"), MinimumStay: 3})
	require.NoError(t, err)
	require.Len(t, gw.stays, 1)
	assert.Equal(t, 3, gw.stays[0].MinimumStay)
}

func TestCommitValidation(t *testing.T) {
	c := New(&fakeGateway{}, nil)
	zero := money.Money{Currency: "EUR"}
	cases := map[string]Request{
		"missing property": {Kind: availability.MutationBlock, Dates: dates("2024-07-15")},
		"unknown kind":     {PropertyID: "p1", Kind: "paint", Dates: dates("2024-07-15")},
		"no dates":         {PropertyID: "p1", Kind: availability.MutationBlock},
		"zero price":       {PropertyID: "p1", Kind: availability.MutationSetPrice, Dates: dates("2024-07-15"), Price: &zero},
		"zero stay":        {PropertyID: "p1", Kind: availability.MutationSetMinimumStay, Dates: dates("2024-07-15")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Commit(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestCommitRecordsJournalAndEvents(t *testing.T) {
	gw := &fakeGateway{failOn: map[daterange.Date]error{daterange.MustParse("2024-07-16"): errors.New("nope")}}
	journal := &recordingJournal{}
	box := &recordingOutbox{}
	ids := 0
	c := New(gw, nil,
		WithUnblockSettleDelay(0),
		WithJournal(journal),
		WithOutbox(box, appoutbox.JSONEventEncoder{IDGenerator: func() string { ids++; return "evt" }}),
		WithIDGenerator(func() string { return "entry-1" }),
	)

	_, err := c.Commit(context.Background(), Request{
		PropertyID: "p1",
		Kind:       availability.MutationBlock,
		Dates:      dates("2024-07-15", "2024-07-16"),
		Actor:      "u1",
	})
	require.Error(t, err)

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.Equal(t, "entry-1", entry.ID)
	assert.Equal(t, "u1", entry.Actor)
	assert.Equal(t, dates("2024-07-15"), entry.Succeeded)
	require.Len(t, entry.Failed, 1)

	require.Len(t, box.records, 2)
	assert.Equal(t, "calendar.mutated", box.records[0].Name)
	assert.Equal(t, "calendar.mutation_failed", box.records[1].Name)
	assert.Equal(t, "p1", box.records[0].Aggregate)
	assert.Equal(t, "entry-1", box.records[0].Headers[appoutbox.HeaderCommitID])
	assert.Equal(t, "2024-07-16", box.records[1].Headers[appoutbox.HeaderFirstDate])
	assert.NotEqual(t, box.records[0].ID, box.records[1].ID)
	assert.Zero(t, ids, "commit events derive their ids from the commit")
}

func ptrMoney(m money.Money) *money.Money { return &m }
