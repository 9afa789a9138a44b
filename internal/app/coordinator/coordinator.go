package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	appoutbox "hostboard/internal/app/outbox"
	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/events"
)

// DefaultUnblockSettleDelay is how long the platform needs before an unblock shows up in reads.
const DefaultUnblockSettleDelay = 1500 * time.Millisecond

// Refresher re-fetches every open view of a property.
type Refresher interface {
	RefreshProperty(ctx context.Context, propertyID string) error
}

type RefresherFunc func(ctx context.Context, propertyID string) error

func (f RefresherFunc) RefreshProperty(ctx context.Context, propertyID string) error {
	return f(ctx, propertyID)
}

type Journal interface {
	Append(ctx context.Context, entry Entry) error
}

type Option func(*Coordinator)

func WithUnblockSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.settleDelay = d
		}
	}
}

func WithJournal(j Journal) Option { return func(c *Coordinator) { c.journal = j } }

func WithOutbox(box appoutbox.Outbox, encoder appoutbox.EventEncoder) Option {
	return func(c *Coordinator) {
		c.outbox = box
		c.encoder = encoder
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

type dateKey struct {
	property string
	date     daterange.Date
}

type kindKey struct {
	property string
	kind     availability.MutationKind
}

// Coordinator submits calendar mutations to the gateway. A date of a property is owned by at
// most one commit at a time.
type Coordinator struct {
	gateway   policies.CalendarGateway
	refresher Refresher
	journal   Journal
	outbox    appoutbox.Outbox
	encoder   appoutbox.EventEncoder
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	settleDelay time.Duration

	mu       sync.Mutex
	inFlight map[dateKey]struct{}
	busy     map[kindKey]int
}

func New(gateway policies.CalendarGateway, refresher Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:     gateway,
		refresher:   refresher,
		logger:      slog.Default(),
		now:         time.Now,
		newID:       uuid.NewString,
		settleDelay: DefaultUnblockSettleDelay,
		inFlight:    make(map[dateKey]struct{}),
		busy:        make(map[kindKey]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether a commit of kind is running for the property.
func (c *Coordinator) Busy(propertyID string, kind availability.MutationKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[kindKey{propertyID, kind}] > 0
}

// InFlight reports whether date is owned by a running commit.
func (c *Coordinator) InFlight(propertyID string, date daterange.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[dateKey{propertyID, date}]
	return ok
}

// Commit submits req and blocks until every remote call has settled and the property was
// re-fetched. Overlap with a running commit fails immediately with ErrConflict. Partial failure
// returns the full Result together with a *RemoteError.
func (c *Coordinator) Commit(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if c.gateway == nil {
		return Result{}, errors.New("coordinator: gateway not configured")
	}
	targets := req.Targets()
	if err := c.acquire(req.PropertyID, req.Kind, targets); err != nil {
		return Result{}, err
	}
	defer c.release(req.PropertyID, req.Kind, targets)

	started := c.now()
	result := c.submit(ctx, req, targets)
	c.record(ctx, req, result, started)

	if len(result.Succeeded) > 0 {
		c.settleAndRefresh(ctx, req)
	}
	if len(result.Failed) > 0 {
		return result, &RemoteError{Result: result}
	}
	return result, nil
}

func (c *Coordinator) acquire(propertyID string, kind availability.MutationKind, dates []daterange.Date) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		if _, taken := c.inFlight[dateKey{propertyID, d}]; taken {
			return ErrConflict
		}
	}
	for _, d := range dates {
		c.inFlight[dateKey{propertyID, d}] = struct{}{}
	}
	c.busy[kindKey{propertyID, kind}]++
	return nil
}

func (c *Coordinator) release(propertyID string, kind availability.MutationKind, dates []daterange.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		delete(c.inFlight, dateKey{propertyID, d})
	}
	key := kindKey{propertyID, kind}
	if c.busy[key] <= 1 {
		delete(c.busy, key)
		return
	}
	c.busy[key]--
}

func (c *Coordinator) submit(ctx context.Context, req Request, targets []daterange.Date) Result {
	var result Result
	if req.Range != nil {
		if err := c.call(ctx, req, *req.Range); err != nil {
			for _, d := range targets {
				result.Failed = append(result.Failed, DateFailure{Date: d, Reason: err.Error(), Err: err})
			}
			return result
		}
		result.Succeeded = append(result.Succeeded, targets...)
		return result
	}
	for _, d := range targets {
		if err := c.call(ctx, req, daterange.Single(d)); err != nil {
			c.logger.Warn("calendar mutation rejected",
				"property_id", req.PropertyID, "kind", req.Kind, "date", d.String(), "error", err)
			result.Failed = append(result.Failed, DateFailure{Date: d, Reason: err.Error(), Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, d)
	}
	return result
}

func (c *Coordinator) call(ctx context.Context, req Request, r daterange.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch req.Kind {
	case availability.MutationBlock:
		return c.gateway.SetAvailability(ctx, req.PropertyID, r.Start, r.End, availability.FlagBlock)
	case availability.MutationUnblock:
		return c.gateway.SetAvailability(ctx, req.PropertyID, r.Start, r.End, availability.FlagUnblock)
	case availability.MutationSetPrice:
		return c.gateway.SetPrice(ctx, req.PropertyID, availability.PriceChange{Range: r, Price: *req.Price})
	case availability.MutationSetMinimumStay:
		return c.gateway.SetMinimumStay(ctx, req.PropertyID, availability.MinimumStayChange{Range: r, MinimumStay: req.MinimumStay})
	default:
		return ErrInvalidRequest
	}
}

func (c *Coordinator) record(ctx context.Context, req Request, result Result, started time.Time) {
	finished := c.now()
	commitID := c.newID()
	if c.journal != nil {
		entry := Entry{
			ID:         commitID,
			PropertyID: req.PropertyID,
			Kind:       req.Kind,
			Value:      req.Value(),
			Actor:      req.Actor,
			Succeeded:  result.Succeeded,
			Failed:     result.Failed,
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err := c.journal.Append(ctx, entry); err != nil {
			c.logger.Error("journal append failed", "property_id", req.PropertyID, "error", err)
		}
	}
	if c.outbox == nil {
		return
	}
	var recorder events.Recorder
	if len(result.Succeeded) > 0 {
		recorder.Record(availability.CalendarMutated{
			CommitID:   commitID,
			PropertyID: req.PropertyID,
			Kind:       req.Kind,
			Dates:      result.Succeeded,
			Value:      req.Value(),
			Actor:      req.Actor,
			At:         finished,
		})
	}
	if len(result.Failed) > 0 {
		recorder.Record(availability.CalendarMutationFailed{
			CommitID:   commitID,
			PropertyID: req.PropertyID,
			Kind:       req.Kind,
			Dates:      result.FailedDates(),
			At:         finished,
		})
	}
	if err := appoutbox.RecordDomainEvents(ctx, c.outbox, c.encoder, recorder.Drain()); err != nil {
		c.logger.Error("outbox record failed", "property_id", req.PropertyID, "error", err)
	}
}

func (c *Coordinator) settleAndRefresh(ctx context.Context, req Request) {
	if req.Kind == availability.MutationUnblock && c.settleDelay > 0 {
		timer := time.NewTimer(c.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if c.refresher == nil {
		return
	}
	if err := c.refresher.RefreshProperty(ctx, req.PropertyID); err != nil {
		c.logger.Warn("refresh after mutation failed", "property_id", req.PropertyID, "error", err)
	}
}
