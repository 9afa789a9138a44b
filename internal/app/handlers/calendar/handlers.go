package calendar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hostboard/internal/app/bus"
	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/app/coordinator"
	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/selection"
	"hostboard/internal/domain/shared/daterange"
)

// SessionStore keeps the open calendars.
type SessionStore interface {
	Save(cal *appcalendar.Calendar) error
	Find(id string) (*appcalendar.Calendar, error)
	Delete(id string) (*appcalendar.Calendar, error)
}

// FeedRenderer turns resolved cells into a subscribable calendar document.
type FeedRenderer interface {
	Render(propertyID string, cells []availability.Cell, now time.Time) ([]byte, error)
}

// CommitOutcome is the result of a commit plus the view after the re-fetch.
type CommitOutcome struct {
	Result coordinator.Result `json:"result"`
	View   appcalendar.View   `json:"view"`
}

type Handlers struct {
	Sessions SessionStore
	Deps     appcalendar.Deps
	Feeds    FeedRenderer
	FeedDays int
	Logger   *slog.Logger
	Now      func() time.Time
}

// Register binds every calendar message to commands or queries.
func (h *Handlers) Register(commands, queries *bus.Registry) {
	bus.Register[OpenSessionCommand, appcalendar.View](commands, openSessionKey, bus.HandlerFunc[OpenSessionCommand, appcalendar.View](h.OpenSession))
	bus.Register[NavigateCommand, appcalendar.View](commands, navigateKey, bus.HandlerFunc[NavigateCommand, appcalendar.View](h.Navigate))
	bus.Register[GestureCommand, appcalendar.GestureResult](commands, gestureKey, bus.HandlerFunc[GestureCommand, appcalendar.GestureResult](h.Gesture))
	bus.Register[CancelSelectionCommand, selection.State](commands, cancelSelectionKey, bus.HandlerFunc[CancelSelectionCommand, selection.State](h.CancelSelection))
	bus.Register[CommitCommand, CommitOutcome](commands, commitKey, bus.HandlerFunc[CommitCommand, CommitOutcome](h.Commit))
	bus.Register[CloseSessionCommand, bool](commands, closeSessionKey, bus.HandlerFunc[CloseSessionCommand, bool](h.CloseSession))

	bus.Register[GetSessionQuery, appcalendar.View](queries, getSessionKey, bus.HandlerFunc[GetSessionQuery, appcalendar.View](h.GetSession))
	bus.Register[GetCellQuery, availability.Cell](queries, getCellKey, bus.HandlerFunc[GetCellQuery, availability.Cell](h.GetCell))
	bus.Register[GetDateDetailQuery, availability.DateDetail](queries, getDateDetailKey, bus.HandlerFunc[GetDateDetailQuery, availability.DateDetail](h.GetDateDetail))
	bus.Register[PropertyFeedQuery, []byte](queries, propertyFeedKey, bus.HandlerFunc[PropertyFeedQuery, []byte](h.PropertyFeed))
}

func (h *Handlers) OpenSession(ctx context.Context, cmd OpenSessionCommand) (appcalendar.View, error) {
	deps := h.Deps
	if deps.Logger == nil {
		deps.Logger = h.logger()
	}
	cal := appcalendar.New(deps, cmd.Viewer, cmd.PropertyID, cmd.Year, cmd.Month)
	if err := h.Sessions.Save(cal); err != nil {
		return appcalendar.View{}, err
	}
	view := cal.Snapshot()
	if err := cal.Show(ctx, view.Year, time.Month(view.Month)); err != nil {
		if _, derr := h.Sessions.Delete(cal.ID()); derr != nil {
			h.logger().WarnContext(ctx, "discard calendar session failed", "session_id", cal.ID(), "error", derr)
		}
		cal.Close()
		return appcalendar.View{}, err
	}
	h.logger().InfoContext(ctx, "calendar session opened",
		"session_id", cal.ID(), "user_id", cmd.Viewer.UserID, "property_id", cal.PropertyID())
	return cal.Snapshot(), nil
}

func (h *Handlers) Navigate(ctx context.Context, cmd NavigateCommand) (appcalendar.View, error) {
	cal, err := h.session(cmd.sessionRef)
	if err != nil {
		return appcalendar.View{}, err
	}
	if cmd.PropertyID != nil {
		err = cal.SelectProperty(ctx, *cmd.PropertyID)
	} else {
		err = cal.Show(ctx, cmd.Year, cmd.Month)
	}
	if err != nil {
		return appcalendar.View{}, err
	}
	return cal.Snapshot(), nil
}

func (h *Handlers) Gesture(ctx context.Context, cmd GestureCommand) (appcalendar.GestureResult, error) {
	cal, err := h.session(cmd.sessionRef)
	if err != nil {
		return appcalendar.GestureResult{}, err
	}
	return cal.DispatchGesture(ctx, cmd.Gesture)
}

func (h *Handlers) CancelSelection(_ context.Context, cmd CancelSelectionCommand) (selection.State, error) {
	cal, err := h.session(cmd.sessionRef)
	if err != nil {
		return selection.State{}, err
	}
	cal.CancelSelection()
	return cal.Selection(), nil
}

// Commit returns the outcome even when some dates failed, together with the error.
func (h *Handlers) Commit(ctx context.Context, cmd CommitCommand) (CommitOutcome, error) {
	cal, err := h.session(cmd.sessionRef)
	if err != nil {
		return CommitOutcome{}, err
	}
	res, err := cal.Commit(ctx, cmd.Mutation)
	var remote *coordinator.RemoteError
	if err != nil && !errors.As(err, &remote) {
		return CommitOutcome{}, err
	}
	h.logger().InfoContext(ctx, "calendar commit settled",
		"session_id", cmd.SessionID, "property_id", cal.PropertyID(), "kind", cmd.Mutation.Kind,
		"succeeded", len(res.Succeeded), "failed", len(res.Failed))
	return CommitOutcome{Result: res, View: cal.Snapshot()}, err
}

func (h *Handlers) CloseSession(ctx context.Context, cmd CloseSessionCommand) (bool, error) {
	if _, err := h.session(cmd.sessionRef); err != nil {
		return false, err
	}
	cal, err := h.Sessions.Delete(cmd.SessionID)
	if err != nil {
		return false, err
	}
	cal.Close()
	h.logger().InfoContext(ctx, "calendar session closed", "session_id", cmd.SessionID)
	return true, nil
}

func (h *Handlers) GetSession(_ context.Context, q GetSessionQuery) (appcalendar.View, error) {
	cal, err := h.session(q.sessionRef)
	if err != nil {
		return appcalendar.View{}, err
	}
	return cal.Snapshot(), nil
}

func (h *Handlers) GetCell(_ context.Context, q GetCellQuery) (availability.Cell, error) {
	cal, err := h.session(q.sessionRef)
	if err != nil {
		return availability.Cell{}, err
	}
	return cal.CellFor(q.Date)
}

func (h *Handlers) GetDateDetail(ctx context.Context, q GetDateDetailQuery) (availability.DateDetail, error) {
	cal, err := h.session(q.sessionRef)
	if err != nil {
		return availability.DateDetail{}, err
	}
	return cal.DateDetail(ctx, q.Date)
}

// PropertyFeed resolves the coming days of a property outside of any session and renders them.
func (h *Handlers) PropertyFeed(ctx context.Context, q PropertyFeedQuery) ([]byte, error) {
	if h.Feeds == nil {
		return nil, ErrFeedNotConfigured
	}
	days := q.Days
	if days <= 0 {
		days = h.FeedDays
	}
	if days <= 0 {
		days = 365
	}
	now := h.now()
	today := daterange.FromTime(now)
	window := availability.Window{
		Year:  today.Year,
		Month: today.Month,
		Range: daterange.Range{Start: today, End: today.AddDays(days - 1)},
	}
	loader := appcalendar.Loader{Gateway: h.Deps.Gateway, Logger: h.logger(), MaxConcurrency: h.Deps.Concurrency}
	sources, err := loader.Load(policies.ContextWithAccessToken(ctx, q.Token), q.PropertyID, window)
	if err != nil {
		return nil, err
	}
	return h.Feeds.Render(q.PropertyID, availability.BuildCells(window, sources), now)
}

func (h *Handlers) session(ref sessionRef) (*appcalendar.Calendar, error) {
	cal, err := h.Sessions.Find(ref.SessionID)
	if err != nil {
		return nil, err
	}
	if cal.Viewer().UserID != ref.Viewer.UserID {
		return nil, appcalendar.ErrSessionNotFound
	}
	return cal, nil
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}
