package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hostboard/internal/app/coordinator"
	"hostboard/internal/app/policies"
	"hostboard/internal/app/recurrence"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/selection"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

// Viewer is the principal looking at a calendar.
type Viewer struct {
	UserID string
	Role   string
	Token  string
}

// Committer is the write side used by a Calendar.
type Committer interface {
	Commit(ctx context.Context, req coordinator.Request) (coordinator.Result, error)
	Busy(propertyID string, kind availability.MutationKind) bool
}

type Deps struct {
	Gateway     policies.CalendarGateway
	Committer   Committer
	Authorizer  policies.CalendarAuthorizer
	Logger      *slog.Logger
	BufferDays  int
	Concurrency int
	Now         func() time.Time
}

// Mutation is a commit as issued by the grid. Exactly one of UseSelection, Dates, Range or Rule
// selects the target dates.
type Mutation struct {
	Kind         availability.MutationKind
	UseSelection bool
	Dates        []daterange.Date
	Range        *daterange.Range
	Rule         string
	Price        *money.Money
	MinimumStay  int
}

// GestureResult reports a dispatched gesture. Detail is set when the gesture opened a date.
type GestureResult struct {
	Outcome   selection.Outcome        `json:"outcome"`
	Selection selection.State          `json:"selection"`
	Detail    *availability.DateDetail `json:"detail,omitempty"`
}

// View is a consistent snapshot of the calendar for rendering.
type View struct {
	ID         string                             `json:"id"`
	PropertyID string                             `json:"propertyId"`
	Year       int                                `json:"year"`
	Month      int                                `json:"month"`
	Window     daterange.Range                    `json:"window"`
	Cells      []availability.Cell                `json:"cells"`
	Selection  selection.State                    `json:"selection"`
	Busy       map[availability.MutationKind]bool `json:"busy"`
	CanEdit    bool                               `json:"canEdit"`
	Generation uint64                             `json:"generation"`
	LoadedAt   time.Time                          `json:"loadedAt"`
}

// Calendar is one open calendar view: the loaded sources, the visible window and the selection
// of a single viewer. All state changes happen under mu; remote calls run without it.
type Calendar struct {
	id         string
	viewer     Viewer
	gateway    policies.CalendarGateway
	committer  Committer
	authorizer policies.CalendarAuthorizer
	loader     *Loader
	logger     *slog.Logger
	now        func() time.Time
	bufferDays int

	mu         sync.Mutex
	propertyID string
	window     availability.Window
	sources    availability.Sources
	cells      []availability.Cell
	selection  *selection.Machine
	generation uint64
	viewCtx    context.Context
	viewCancel context.CancelFunc
	closed     bool
	loadedAt   time.Time
	lastSeen   time.Time
}

func New(deps Deps, viewer Viewer, propertyID string, year int, month time.Month) *Calendar {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	authorizer := deps.Authorizer
	if authorizer == nil {
		authorizer = policies.NewRoleAuthorizer(policies.DefaultEditorRoles...)
	}
	buffer := deps.BufferDays
	if buffer <= 0 {
		buffer = availability.DefaultBufferDays
	}
	c := &Calendar{
		id:         uuid.NewString(),
		viewer:     viewer,
		gateway:    deps.Gateway,
		committer:  deps.Committer,
		authorizer: authorizer,
		loader:     &Loader{Gateway: deps.Gateway, Logger: logger, MaxConcurrency: deps.Concurrency},
		logger:     logger,
		now:        now,
		bufferDays: buffer,
		propertyID: strings.TrimSpace(propertyID),
		selection:  selection.New(),
	}
	if year == 0 || month < time.January || month > time.December {
		today := daterange.FromTime(now())
		year, month = today.Year, today.Month
	}
	c.window = availability.NewWindow(year, month, buffer)
	c.viewCtx, c.viewCancel = context.WithCancel(context.Background())
	c.cells = availability.BuildCells(c.window, c.sources)
	c.lastSeen = now()
	return c
}

func (c *Calendar) ID() string         { return c.id }
func (c *Calendar) Viewer() Viewer     { return c.viewer }
func (c *Calendar) PropertyID() string { c.mu.Lock(); defer c.mu.Unlock(); return c.propertyID }

// LastSeen is the last time any operation touched the calendar.
func (c *Calendar) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Show navigates to year/month and loads it. Selection is cleared and in-flight loads of the
// previous view are cancelled.
func (c *Calendar) Show(ctx context.Context, year int, month time.Month) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidOperation, month)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.window = availability.NewWindow(year, month, c.bufferDays)
	c.resetViewLocked()
	gen, propertyID, window, viewCtx := c.generation, c.propertyID, c.window, c.viewCtx
	c.mu.Unlock()
	return c.load(ctx, viewCtx, gen, propertyID, window)
}

// SelectProperty switches the calendar to another property and loads it.
func (c *Calendar) SelectProperty(ctx context.Context, propertyID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.propertyID = strings.TrimSpace(propertyID)
	c.resetViewLocked()
	gen, pid, window, viewCtx := c.generation, c.propertyID, c.window, c.viewCtx
	c.mu.Unlock()
	return c.load(ctx, viewCtx, gen, pid, window)
}

// Refresh reloads the current view without navigating.
func (c *Calendar) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	gen, pid, window, viewCtx := c.generation, c.propertyID, c.window, c.viewCtx
	c.lastSeen = c.now()
	c.mu.Unlock()
	return c.load(ctx, viewCtx, gen, pid, window)
}

// RefreshProperty reloads the view when it shows propertyID.
func (c *Calendar) RefreshProperty(ctx context.Context, propertyID string) error {
	if c.PropertyID() != propertyID {
		return nil
	}
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
		return err
	}
	return nil
}

func (c *Calendar) resetViewLocked() {
	c.generation++
	c.viewCancel()
	c.viewCtx, c.viewCancel = context.WithCancel(context.Background())
	c.selection.Reset()
	c.sources = availability.Sources{}
	c.cells = availability.BuildCells(c.window, c.sources)
	c.lastSeen = c.now()
}

func (c *Calendar) load(ctx, viewCtx context.Context, gen uint64, propertyID string, window availability.Window) error {
	if propertyID == "" || c.gateway == nil {
		return nil
	}
	fetchCtx, cancel := context.WithCancel(policies.ContextWithAccessToken(ctx, c.viewer.Token))
	defer cancel()
	stop := context.AfterFunc(viewCtx, cancel)
	defer stop()

	sources, err := c.loader.Load(fetchCtx, propertyID, window)
	if err != nil {
		if viewCtx.Err() != nil {
			c.logger.Debug("discarding cancelled calendar load", "property_id", propertyID, "generation", gen)
			return nil
		}
		return err
	}
	if err := c.apply(gen, sources); err != nil {
		if errors.Is(err, ErrStaleResponse) {
			c.logger.Debug("discarding stale calendar load", "property_id", propertyID, "generation", gen)
			return nil
		}
		return err
	}
	return nil
}

func (c *Calendar) apply(gen uint64, sources availability.Sources) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.generation {
		return ErrStaleResponse
	}
	c.sources = sources
	c.cells = availability.BuildCells(c.window, sources)
	c.loadedAt = c.now()
	return nil
}

// CellFor returns the resolved cell of d.
func (c *Calendar) CellFor(d daterange.Date) (availability.Cell, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return availability.Cell{}, ErrSessionClosed
	}
	return c.cellLocked(d)
}

func (c *Calendar) cellLocked(d daterange.Date) (availability.Cell, error) {
	if !c.window.Contains(d) {
		return availability.Cell{}, ErrOutsideWindow
	}
	return c.cells[daterange.DaysBetween(c.window.Range.Start, d)], nil
}

func (c *Calendar) Cells() []availability.Cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]availability.Cell(nil), c.cells...)
}

func (c *Calendar) Selection() selection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Snapshot()
}

func (c *Calendar) CanEdit() bool {
	return c.authorizer.CanEditCalendar(c.viewer.Role)
}

// Snapshot returns everything the grid needs to render.
func (c *Calendar) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = c.now()
	busy := make(map[availability.MutationKind]bool, 4)
	for _, kind := range []availability.MutationKind{
		availability.MutationBlock,
		availability.MutationUnblock,
		availability.MutationSetPrice,
		availability.MutationSetMinimumStay,
	} {
		busy[kind] = c.propertyID != "" && c.committer != nil && c.committer.Busy(c.propertyID, kind)
	}
	return View{
		ID:         c.id,
		PropertyID: c.propertyID,
		Year:       c.window.Year,
		Month:      int(c.window.Month),
		Window:     c.window.Range,
		Cells:      append([]availability.Cell(nil), c.cells...),
		Selection:  c.selection.Snapshot(),
		Busy:       busy,
		CanEdit:    c.CanEdit(),
		Generation: c.generation,
		LoadedAt:   c.loadedAt,
	}
}

func (c *Calendar) gateLocked() error {
	if c.closed {
		return ErrSessionClosed
	}
	if c.propertyID == "" {
		return ErrNoPropertySelected
	}
	if !c.CanEdit() {
		return ErrAuthorizationDenied
	}
	return nil
}

// DispatchGesture runs g through the selection machine. A click that opens a date also loads
// its detail.
func (c *Calendar) DispatchGesture(ctx context.Context, g selection.Gesture) (GestureResult, error) {
	c.mu.Lock()
	if err := c.gateLocked(); err != nil {
		c.mu.Unlock()
		return GestureResult{}, err
	}
	c.lastSeen = c.now()
	if g.Kind != selection.GestureBeginRange && !c.window.Contains(g.Date) {
		c.mu.Unlock()
		return GestureResult{}, ErrOutsideWindow
	}
	outcome, err := c.selection.Apply(g)
	state := c.selection.Snapshot()
	c.mu.Unlock()
	if err != nil {
		return GestureResult{}, err
	}
	res := GestureResult{Outcome: outcome, Selection: state}
	if outcome.Effect == selection.EffectOpenDetail {
		detail, err := c.DateDetail(ctx, outcome.Date)
		if err == nil {
			res.Detail = &detail
		}
	}
	return res, nil
}

// CancelSelection clears the selection and reports whether anything was selected.
func (c *Calendar) CancelSelection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = c.now()
	return c.selection.Cancel()
}

// DateDetail reads one date from the platform. Failures fall back to the resolved cell.
func (c *Calendar) DateDetail(ctx context.Context, d daterange.Date) (availability.DateDetail, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return availability.DateDetail{}, ErrSessionClosed
	}
	if c.propertyID == "" {
		c.mu.Unlock()
		return availability.DateDetail{}, ErrNoPropertySelected
	}
	propertyID := c.propertyID
	cell, cellErr := c.cellLocked(d)
	c.mu.Unlock()

	if c.gateway != nil {
		detail, err := c.gateway.FetchDateDetail(policies.ContextWithAccessToken(ctx, c.viewer.Token), propertyID, d)
		if err == nil {
			return detail, nil
		}
		c.logger.WarnContext(ctx, "date detail fetch failed", "property_id", propertyID, "date", d.String(), "error", err)
	}
	if cellErr != nil {
		return availability.DateDetail{}, cellErr
	}
	return availability.DateDetail{
		Date:              d,
		Status:            string(cell.Status),
		Price:             cell.Price,
		MinimumStay:       cell.MinimumStay,
		CheckInAvailable:  cell.Status == availability.StatusAvailable,
		CheckOutAvailable: cell.Status == availability.StatusAvailable,
	}, nil
}

// CommitSelection commits the current selection.
func (c *Calendar) CommitSelection(ctx context.Context, kind availability.MutationKind, price *money.Money, minimumStay int) (coordinator.Result, error) {
	return c.Commit(ctx, Mutation{Kind: kind, UseSelection: true, Price: price, MinimumStay: minimumStay})
}

// Commit validates m against the resolved cells and hands it to the coordinator. A fully
// successful selection commit releases the submitted dates from the selection.
func (c *Calendar) Commit(ctx context.Context, m Mutation) (coordinator.Result, error) {
	c.mu.Lock()
	if err := c.gateLocked(); err != nil {
		c.mu.Unlock()
		return coordinator.Result{}, err
	}
	if c.committer == nil {
		c.mu.Unlock()
		return coordinator.Result{}, fmt.Errorf("%w: calendar is read-only", ErrInvalidOperation)
	}
	c.lastSeen = c.now()
	req, err := c.requestLocked(m)
	gen := c.generation
	c.mu.Unlock()
	if err != nil {
		return coordinator.Result{}, err
	}

	res, err := c.committer.Commit(policies.ContextWithAccessToken(ctx, c.viewer.Token), req)
	if err != nil {
		return res, err
	}
	if m.UseSelection {
		c.mu.Lock()
		if gen == c.generation {
			c.selection.Release(req.Dates)
		}
		c.mu.Unlock()
	}
	return res, nil
}

func (c *Calendar) requestLocked(m Mutation) (coordinator.Request, error) {
	req := coordinator.Request{
		PropertyID:  c.propertyID,
		Kind:        m.Kind,
		Price:       m.Price,
		MinimumStay: m.MinimumStay,
		Actor:       c.viewer.UserID,
	}
	if !m.Kind.Valid() {
		return req, fmt.Errorf("%w: unknown mutation %q", ErrInvalidOperation, m.Kind)
	}
	var targets []daterange.Date
	switch {
	case m.UseSelection:
		targets = c.selection.Committed()
		if len(targets) == 0 {
			return req, fmt.Errorf("%w: nothing selected", ErrInvalidOperation)
		}
		req.Dates = targets
	case m.Range != nil:
		if err := m.Range.Validate(); err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		r := *m.Range
		req.Range = &r
		targets = r.Days()
	case strings.TrimSpace(m.Rule) != "":
		expanded, err := recurrence.Expand(m.Rule, c.window.Range)
		if err != nil {
			return req, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		if len(expanded) == 0 {
			return req, fmt.Errorf("%w: rule matches no visible date", ErrInvalidOperation)
		}
		targets = expanded
		req.Dates = expanded
	case len(m.Dates) > 0:
		targets = m.Dates
		req.Dates = append([]daterange.Date(nil), m.Dates...)
	default:
		return req, fmt.Errorf("%w: no target dates", ErrInvalidOperation)
	}

	for _, d := range targets {
		if !c.window.Contains(d) {
			return req, ErrOutsideWindow
		}
	}
	if m.Kind.TouchesAvailability() {
		var bad IneligibleError
		bad.Kind = m.Kind
		for _, d := range targets {
			cell, _ := c.cellLocked(d)
			if !cell.Status.AvailabilityEditable() {
				bad.Dates = append(bad.Dates, d)
				bad.Statuses = append(bad.Statuses, cell.Status)
			}
		}
		if len(bad.Dates) > 0 {
			return req, &bad
		}
	}
	return req, nil
}

// Close cancels outstanding loads. Every later call fails with ErrSessionClosed.
func (c *Calendar) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.generation++
	c.viewCancel()
	c.selection.Reset()
}

func (c *Calendar) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
