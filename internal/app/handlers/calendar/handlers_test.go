package calendar

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/app/bus"
	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/app/coordinator"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/selection"
	"hostboard/internal/domain/shared/daterange"
)

type mapStore struct {
	mu   sync.Mutex
	cals map[string]*appcalendar.Calendar
}

func (s *mapStore) Save(cal *appcalendar.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cals[cal.ID()] = cal
	return nil
}

func (s *mapStore) Find(id string) (*appcalendar.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.cals[id]
	if !ok {
		return nil, appcalendar.ErrSessionNotFound
	}
	return cal, nil
}

func (s *mapStore) Delete(id string) (*appcalendar.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cal, ok := s.cals[id]
	if !ok {
		return nil, appcalendar.ErrSessionNotFound
	}
	delete(s.cals, id)
	return cal, nil
}

func (s *mapStore) RefreshProperty(ctx context.Context, propertyID string) error {
	s.mu.Lock()
	cals := make([]*appcalendar.Calendar, 0, len(s.cals))
	for _, c := range s.cals {
		cals = append(cals, c)
	}
	s.mu.Unlock()
	for _, c := range cals {
		if err := c.RefreshProperty(ctx, propertyID); err != nil {
			return err
		}
	}
	return nil
}

type blockingPlatform struct {
	mu      sync.Mutex
	blocked map[daterange.Date]bool
}

func (p *blockingPlatform) FetchRange(_ context.Context, _ string, _, _ daterange.Date) (availability.RangeFeed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var feed availability.RangeFeed
	for d := range p.blocked {
		feed.Result = append(feed.Result, availability.BlockedEntry{Date: d, Status: "blocked"})
	}
	return feed, nil
}

func (p *blockingPlatform) FetchMonthPricing(context.Context, string, int, time.Month) (availability.PricingSnapshot, error) {
	return availability.PricingSnapshot{}, nil
}

func (p *blockingPlatform) FetchDateDetail(_ context.Context, _ string, d daterange.Date) (availability.DateDetail, error) {
	return availability.DateDetail{Date: d, Status: "available"}, nil
}

func (p *blockingPlatform) SetAvailability(_ context.Context, _ string, start, end daterange.Date, flag availability.AvailabilityFlag) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range daterange.Span(start, end).Days() {
		if flag == availability.FlagBlock {
			p.blocked[d] = true
		} else {
			delete(p.blocked, d)
		}
	}
	return nil
}

func (p *blockingPlatform) SetPrice(context.Context, string, availability.PriceChange) error {
	return nil
}

func (p *blockingPlatform) SetMinimumStay(context.Context, string, availability.MinimumStayChange) error {
	return nil
}

type textRenderer struct{}

func (textRenderer) Render(propertyID string, cells []availability.Cell, _ time.Time) ([]byte, error) {
	var b strings.Builder
	b.WriteString(propertyID)
	for _, c := range cells {
		if c.Status != availability.StatusAvailable {
			b.WriteString(" " + c.Date.String())
		}
	}
	return []byte(b.String()), nil
}

func newBuses(t *testing.T) (bus.Bus, bus.Bus, *blockingPlatform) {
	t.Helper()
	platform := &blockingPlatform{blocked: map[daterange.Date]bool{}}
	store := &mapStore{cals: map[string]*appcalendar.Calendar{}}
	coord := coordinator.New(platform, store, coordinator.WithUnblockSettleDelay(0))
	h := &Handlers{
		Sessions: store,
		Deps:     appcalendar.Deps{Gateway: platform, Committer: coord},
		Feeds:    textRenderer{},
		Now:      func() time.Time { return time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC) },
	}
	commands, queries := bus.NewRegistry(), bus.NewRegistry()
	h.Register(commands, queries)
	return bus.Chain(commands, bus.Validation()), bus.Chain(queries, bus.Validation()), platform
}

func TestSessionLifecycle(t *testing.T) {
	commands, queries, platform := newBuses(t)
	ctx := context.Background()
	viewer := appcalendar.Viewer{UserID: "u1", Role: "manager"}

	view, err := bus.Send[OpenSessionCommand, appcalendar.View](ctx, commands, OpenSessionCommand{Viewer: viewer, PropertyID: "p1", Year: 2024, Month: time.July})
	require.NoError(t, err)
	require.NotEmpty(t, view.ID)
	assert.Equal(t, "p1", view.PropertyID)

	_, err = bus.Send[GestureCommand, appcalendar.GestureResult](ctx, commands,
		NewGestureCommand(viewer, view.ID, selection.Gesture{Kind: selection.GestureDoubleClick, Date: daterange.MustParse("2024-07-04")}))
	require.NoError(t, err)

	out, err := bus.Send[CommitCommand, CommitOutcome](ctx, commands,
		NewCommitCommand(viewer, view.ID, appcalendar.Mutation{Kind: availability.MutationBlock, UseSelection: true}))
	require.NoError(t, err)
	assert.Equal(t, []daterange.Date{daterange.MustParse("2024-07-04")}, out.Result.Succeeded)
	assert.True(t, platform.blocked[daterange.MustParse("2024-07-04")])

	cell, err := bus.Send[GetCellQuery, availability.Cell](ctx, queries, NewGetCellQuery(viewer, view.ID, daterange.MustParse("2024-07-04")))
	require.NoError(t, err)
	assert.Equal(t, availability.StatusBlocked, cell.Status)

	feed, err := bus.Send[PropertyFeedQuery, []byte](ctx, queries, PropertyFeedQuery{PropertyID: "p1", Days: 30})
	require.NoError(t, err)
	assert.Equal(t, "p1 2024-07-04", string(feed))

	_, err = bus.Send[GetSessionQuery, appcalendar.View](ctx, queries, NewGetSessionQuery(appcalendar.Viewer{UserID: "other"}, view.ID))
	assert.ErrorIs(t, err, appcalendar.ErrSessionNotFound)

	closed, err := bus.Send[CloseSessionCommand, bool](ctx, commands, NewCloseSessionCommand(viewer, view.ID))
	require.NoError(t, err)
	assert.True(t, closed)

	_, err = bus.Send[GetSessionQuery, appcalendar.View](ctx, queries, NewGetSessionQuery(viewer, view.ID))
	assert.ErrorIs(t, err, appcalendar.ErrSessionNotFound)
}

func TestNavigateValidation(t *testing.T) {
	commands, _, _ := newBuses(t)
	_, err := bus.Send[NavigateCommand, appcalendar.View](context.Background(), commands,
		NewNavigateCommand(appcalendar.Viewer{UserID: "u1"}, "sid", 2024, 13, nil))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOpenSessionDiscardsSessionWhenLoadFails(t *testing.T) {
	platform := &blockingPlatform{blocked: map[daterange.Date]bool{}}
	store := &mapStore{cals: map[string]*appcalendar.Calendar{}}
	h := &Handlers{Sessions: store, Deps: appcalendar.Deps{Gateway: platform}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.OpenSession(ctx, OpenSessionCommand{Viewer: appcalendar.Viewer{UserID: "u1", Role: "manager"}, PropertyID: "p1", Year: 2024, Month: time.July})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.cals)
}

func TestMissingIdentifiersAreInvalidInput(t *testing.T) {
	commands, queries, _ := newBuses(t)
	ctx := context.Background()

	_, err := bus.Send[OpenSessionCommand, appcalendar.View](ctx, commands, OpenSessionCommand{PropertyID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = bus.Send[GetSessionQuery, appcalendar.View](ctx, queries, NewGetSessionQuery(appcalendar.Viewer{UserID: "u1"}, " "))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = bus.Send[PropertyFeedQuery, []byte](ctx, queries, PropertyFeedQuery{Days: 7})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPropertyFeedWithoutRenderer(t *testing.T) {
	h := &Handlers{Deps: appcalendar.Deps{Gateway: &blockingPlatform{blocked: map[daterange.Date]bool{}}}}
	_, err := h.PropertyFeed(context.Background(), PropertyFeedQuery{PropertyID: "p1", Days: 7})
	assert.ErrorIs(t, err, ErrFeedNotConfigured)
}
