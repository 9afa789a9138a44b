package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"hostboard/internal/app/bus"
	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/app/coordinator"
	calendarapp "hostboard/internal/app/handlers/calendar"
	"hostboard/internal/app/recurrence"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/selection"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
)

type CalendarHandler struct {
	Commands        bus.Bus
	Queries         bus.Bus
	Logger          *slog.Logger
	DefaultCurrency string
}

type openSessionRequest struct {
	PropertyID string `json:"propertyId"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

type navigateRequest struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	PropertyID *string `json:"propertyId"`
}

type gestureRequest struct {
	Kind string `json:"kind" binding:"required"`
	Date string `json:"date"`
}

type commitRequest struct {
	Kind         string   `json:"kind" binding:"required"`
	UseSelection bool     `json:"useSelection"`
	Dates        []string `json:"dates"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Rule         string   `json:"rule"`
	Price        *float64 `json:"price"`
	Currency     string   `json:"currency"`
	MinimumStay  int      `json:"minimumStay"`
}

func (h CalendarHandler) OpenSession(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req openSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	cmd := calendarapp.OpenSessionCommand{
		Viewer:     p.viewer(),
		PropertyID: req.PropertyID,
		Year:       req.Year,
		Month:      time.Month(req.Month),
	}
	view, err := bus.Send[calendarapp.OpenSessionCommand, appcalendar.View](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/calendar/sessions/%s", view.ID))
	c.JSON(http.StatusCreated, view)
}

func (h CalendarHandler) GetSession(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	view, err := bus.Send[calendarapp.GetSessionQuery, appcalendar.View](c.Request.Context(), h.Queries,
		calendarapp.NewGetSessionQuery(p.viewer(), c.Param("sid")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h CalendarHandler) Cell(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	d, ok := h.dateParam(c)
	if !ok {
		return
	}
	cell, err := bus.Send[calendarapp.GetCellQuery, availability.Cell](c.Request.Context(), h.Queries,
		calendarapp.NewGetCellQuery(p.viewer(), c.Param("sid"), d))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cell)
}

func (h CalendarHandler) DateDetail(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	d, ok := h.dateParam(c)
	if !ok {
		return
	}
	detail, err := bus.Send[calendarapp.GetDateDetailQuery, availability.DateDetail](c.Request.Context(), h.Queries,
		calendarapp.NewGetDateDetailQuery(p.viewer(), c.Param("sid"), d))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h CalendarHandler) Navigate(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	cmd := calendarapp.NewNavigateCommand(p.viewer(), c.Param("sid"), req.Year, time.Month(req.Month), req.PropertyID)
	view, err := bus.Send[calendarapp.NavigateCommand, appcalendar.View](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h CalendarHandler) Gesture(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req gestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	g := selection.Gesture{Kind: selection.GestureKind(strings.ToLower(strings.TrimSpace(req.Kind)))}
	if g.Kind != selection.GestureBeginRange || req.Date != "" {
		d, err := daterange.Parse(req.Date)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, "invalid_date", err)
			return
		}
		g.Date = d
	}
	res, err := bus.Send[calendarapp.GestureCommand, appcalendar.GestureResult](c.Request.Context(), h.Commands,
		calendarapp.NewGestureCommand(p.viewer(), c.Param("sid"), g))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h CalendarHandler) CancelSelection(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	state, err := bus.Send[calendarapp.CancelSelectionCommand, selection.State](c.Request.Context(), h.Commands,
		calendarapp.NewCancelSelectionCommand(p.viewer(), c.Param("sid")))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h CalendarHandler) Commit(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	m, err := h.buildMutation(req)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := bus.Send[calendarapp.CommitCommand, calendarapp.CommitOutcome](c.Request.Context(), h.Commands,
		calendarapp.NewCommitCommand(p.viewer(), c.Param("sid"), m))
	var remote *coordinator.RemoteError
	if errors.As(err, &remote) {
		h.log(c, http.StatusBadGateway, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  err.Error(),
			"code":   "remote_failure",
			"result": out.Result,
			"view":   out.View,
		})
		return
	}
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h CalendarHandler) CloseSession(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if _, err := bus.Send[calendarapp.CloseSessionCommand, bool](c.Request.Context(), h.Commands,
		calendarapp.NewCloseSessionCommand(p.viewer(), c.Param("sid"))); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PropertyFeed serves the iCalendar export of a property.
func (h CalendarHandler) PropertyFeed(c *gin.Context) {
	q := calendarapp.PropertyFeedQuery{PropertyID: c.Param("id")}
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 || days > 3*366 {
			h.respondWithError(c, http.StatusBadRequest, "invalid_request", errors.New("days must be between 1 and 1098"))
			return
		}
		q.Days = days
	}
	if p, ok := currentPrincipal(c); ok {
		q.Token = p.Token
	}
	body, err := bus.Send[calendarapp.PropertyFeedQuery, []byte](c.Request.Context(), h.Queries, q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", q.PropertyID+".ics"))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", body)
}

func (h CalendarHandler) buildMutation(req commitRequest) (appcalendar.Mutation, error) {
	m := appcalendar.Mutation{
		Kind:         availability.MutationKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		UseSelection: req.UseSelection,
		Rule:         req.Rule,
		MinimumStay:  req.MinimumStay,
	}
	for _, raw := range req.Dates {
		d, err := daterange.Parse(raw)
		if err != nil {
			return m, err
		}
		m.Dates = append(m.Dates, d)
	}
	if req.Start != "" || req.End != "" {
		start, err := daterange.Parse(req.Start)
		if err != nil {
			return m, fmt.Errorf("start: %w", err)
		}
		end, err := daterange.Parse(req.End)
		if err != nil {
			return m, fmt.Errorf("end: %w", err)
		}
		r, err := daterange.New(start, end)
		if err != nil {
			return m, err
		}
		m.Range = &r
	}
	if req.Price != nil {
		currency := req.Currency
		if currency == "" {
			currency = h.currency()
		}
		price, err := money.FromMajor(*req.Price, currency)
		if err != nil {
			return m, err
		}
		m.Price = &price
	}
	return m, nil
}

func (h CalendarHandler) dateParam(c *gin.Context) (daterange.Date, bool) {
	d, err := daterange.Parse(c.Param("date"))
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "invalid_date", err)
		return daterange.Date{}, false
	}
	return d, true
}

func (h CalendarHandler) handleError(c *gin.Context, err error) {
	var ineligible *appcalendar.IneligibleError
	switch {
	case errors.As(err, &ineligible):
		h.log(c, http.StatusUnprocessableEntity, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    err.Error(),
			"code":     "invalid_operation",
			"dates":    ineligible.Dates,
			"statuses": ineligible.Statuses,
		})
	case errors.Is(err, appcalendar.ErrAuthorizationDenied):
		h.respondWithError(c, http.StatusForbidden, "authorization_denied", err)
	case errors.Is(err, appcalendar.ErrSessionNotFound):
		h.respondWithError(c, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, appcalendar.ErrSessionClosed):
		h.respondWithError(c, http.StatusGone, "session_closed", err)
	case errors.Is(err, coordinator.ErrConflict):
		h.respondWithError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, appcalendar.ErrNoPropertySelected):
		h.respondWithError(c, http.StatusUnprocessableEntity, "no_property_selected", err)
	case errors.Is(err, appcalendar.ErrOutsideWindow):
		h.respondWithError(c, http.StatusUnprocessableEntity, "outside_window", err)
	case errors.Is(err, appcalendar.ErrInvalidOperation):
		h.respondWithError(c, http.StatusUnprocessableEntity, "invalid_operation", err)
	case errors.Is(err, calendarapp.ErrFeedNotConfigured):
		h.respondWithError(c, http.StatusServiceUnavailable, "feed_unavailable", err)
	case isValidationError(err):
		h.respondWithError(c, http.StatusBadRequest, "invalid_request", err)
	default:
		h.respondWithError(c, http.StatusInternalServerError, "internal", err)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		coordinator.ErrInvalidRequest,
		calendarapp.ErrInvalidInput,
		selection.ErrUnknownGesture,
		recurrence.ErrInvalidRule,
		daterange.ErrInvalidDate,
		daterange.ErrInvalidRange,
		money.ErrInvalidAmount,
		money.ErrInvalidCurrency,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h CalendarHandler) respondWithError(c *gin.Context, status int, code string, err error) {
	h.log(c, status, err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func (h CalendarHandler) log(c *gin.Context, status int, err error) {
	if h.Logger == nil {
		return
	}
	fields := []any{"status", status, "error", err, "path", c.FullPath()}
	if p, ok := currentPrincipal(c); ok {
		fields = append(fields, "user_id", p.ID)
	}
	if status >= http.StatusInternalServerError {
		h.Logger.Error("calendar request failed", fields...)
		return
	}
	h.Logger.Warn("calendar request rejected", fields...)
}

func (h CalendarHandler) currency() string {
	if h.DefaultCurrency == "" {
		return "EUR"
	}
	return h.DefaultCurrency
}

var (
	_ CalendarHTTP = CalendarHandler{}
	_ FeedHTTP     = CalendarHandler{}
)
