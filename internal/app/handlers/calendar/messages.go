package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/domain/selection"
	"hostboard/internal/domain/shared/daterange"
)

const (
	openSessionKey     = "calendar.session.open"
	navigateKey        = "calendar.session.navigate"
	gestureKey         = "calendar.selection.gesture"
	cancelSelectionKey = "calendar.selection.cancel"
	commitKey          = "calendar.commit"
	closeSessionKey    = "calendar.session.close"

	getSessionKey    = "calendar.session.get"
	getCellKey       = "calendar.cell.get"
	getDateDetailKey = "calendar.date_detail.get"
	propertyFeedKey  = "calendar.feed.ics"
)

var (
	ErrInvalidInput      = errors.New("calendar handlers: invalid input")
	ErrFeedNotConfigured = errors.New("calendar handlers: feed renderer not configured")
)

type OpenSessionCommand struct {
	Viewer     appcalendar.Viewer
	PropertyID string
	Year       int
	Month      time.Month
}

func (OpenSessionCommand) Key() string { return openSessionKey }

func (c OpenSessionCommand) Validate() error {
	if strings.TrimSpace(c.Viewer.UserID) == "" {
		return fmt.Errorf("%w: viewer is required", ErrInvalidInput)
	}
	if c.Month != 0 && (c.Month < time.January || c.Month > time.December) {
		return ErrInvalidInput
	}
	return nil
}

type sessionRef struct {
	Viewer    appcalendar.Viewer
	SessionID string
}

func (r sessionRef) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return nil
}

// NavigateCommand moves the session to Year/Month, or to PropertyID when it is set.
type NavigateCommand struct {
	sessionRef
	Year       int
	Month      time.Month
	PropertyID *string
}

func NewNavigateCommand(viewer appcalendar.Viewer, sessionID string, year int, month time.Month, propertyID *string) NavigateCommand {
	return NavigateCommand{sessionRef: sessionRef{Viewer: viewer, SessionID: sessionID}, Year: year, Month: month, PropertyID: propertyID}
}

func (NavigateCommand) Key() string { return navigateKey }

func (c NavigateCommand) Validate() error {
	if err := c.sessionRef.Validate(); err != nil {
		return err
	}
	if c.PropertyID == nil && (c.Month < time.January || c.Month > time.December) {
		return ErrInvalidInput
	}
	return nil
}

type GestureCommand struct {
	sessionRef
	Gesture selection.Gesture
}

func NewGestureCommand(viewer appcalendar.Viewer, sessionID string, g selection.Gesture) GestureCommand {
	return GestureCommand{sessionRef: sessionRef{Viewer: viewer, SessionID: sessionID}, Gesture: g}
}

func (GestureCommand) Key() string { return gestureKey }

func (c GestureCommand) Validate() error {
	if err := c.sessionRef.Validate(); err != nil {
		return err
	}
	if !c.Gesture.Kind.Valid() {
		return selection.ErrUnknownGesture
	}
	return nil
}

type CancelSelectionCommand struct{ sessionRef }

func NewCancelSelectionCommand(viewer appcalendar.Viewer, sessionID string) CancelSelectionCommand {
	return CancelSelectionCommand{sessionRef{Viewer: viewer, SessionID: sessionID}}
}

func (CancelSelectionCommand) Key() string { return cancelSelectionKey }

type CommitCommand struct {
	sessionRef
	Mutation appcalendar.Mutation
}

func NewCommitCommand(viewer appcalendar.Viewer, sessionID string, m appcalendar.Mutation) CommitCommand {
	return CommitCommand{sessionRef: sessionRef{Viewer: viewer, SessionID: sessionID}, Mutation: m}
}

func (CommitCommand) Key() string { return commitKey }

type CloseSessionCommand struct{ sessionRef }

func NewCloseSessionCommand(viewer appcalendar.Viewer, sessionID string) CloseSessionCommand {
	return CloseSessionCommand{sessionRef{Viewer: viewer, SessionID: sessionID}}
}

func (CloseSessionCommand) Key() string { return closeSessionKey }

type GetSessionQuery struct{ sessionRef }

func NewGetSessionQuery(viewer appcalendar.Viewer, sessionID string) GetSessionQuery {
	return GetSessionQuery{sessionRef{Viewer: viewer, SessionID: sessionID}}
}

func (GetSessionQuery) Key() string { return getSessionKey }

type GetCellQuery struct {
	sessionRef
	Date daterange.Date
}

func NewGetCellQuery(viewer appcalendar.Viewer, sessionID string, d daterange.Date) GetCellQuery {
	return GetCellQuery{sessionRef: sessionRef{Viewer: viewer, SessionID: sessionID}, Date: d}
}

func (GetCellQuery) Key() string { return getCellKey }

type GetDateDetailQuery struct {
	sessionRef
	Date daterange.Date
}

func NewGetDateDetailQuery(viewer appcalendar.Viewer, sessionID string, d daterange.Date) GetDateDetailQuery {
	return GetDateDetailQuery{sessionRef: sessionRef{Viewer: viewer, SessionID: sessionID}, Date: d}
}

func (GetDateDetailQuery) Key() string { return getDateDetailKey }

// PropertyFeedQuery renders the availability of a property from today for Days days.
type PropertyFeedQuery struct {
	PropertyID string
	Days       int
	Token      string
}

func (PropertyFeedQuery) Key() string { return propertyFeedKey }

func (q PropertyFeedQuery) Validate() error {
	if strings.TrimSpace(q.PropertyID) == "" {
		return fmt.Errorf("%w: property id is required", ErrInvalidInput)
	}
	if q.Days < 0 {
		return ErrInvalidInput
	}
	return nil
}
