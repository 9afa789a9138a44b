package ginserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostboard/internal/app/bus"
	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/app/coordinator"
	calendarapp "hostboard/internal/app/handlers/calendar"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
	"hostboard/internal/domain/shared/money"
	"hostboard/internal/infra/config"
	"hostboard/internal/infra/obs"
	"hostboard/internal/infra/storage/memory"
)

type lineRenderer struct{}

func (lineRenderer) Render(propertyID string, cells []availability.Cell, _ time.Time) ([]byte, error) {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\n")
	for _, c := range cells {
		if c.Status != availability.StatusAvailable {
			b.WriteString(propertyID + " " + c.Date.String() + " " + string(c.Status) + "\n")
		}
	}
	b.WriteString("END:VCALENDAR\n")
	return []byte(b.String()), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestRouterWithFeeds(t, lineRenderer{})
}

func newTestRouterWithFeeds(t *testing.T, feeds calendarapp.FeedRenderer) http.Handler {
	t.Helper()
	platform := memory.NewPlatform()
	platform.AddProperty("p1", money.Must(10000, "EUR"), 2)
	require.NoError(t, platform.AddBooking("p1", availability.BookingSpan{
		ID:       "b1",
		CheckIn:  daterange.MustParse("2024-07-20"),
		CheckOut: daterange.MustParse("2024-07-23"),
		Status:   availability.BookingConfirmed,
	}))
	now := func() time.Time { return time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC) }
	sessions := memory.NewSessionStore()
	coord := coordinator.New(platform, sessions, coordinator.WithUnblockSettleDelay(0), coordinator.WithClock(now))

	h := &calendarapp.Handlers{
		Sessions: sessions,
		Deps:     appcalendar.Deps{Gateway: platform, Committer: coord, Now: now},
		Feeds:    feeds,
		FeedDays: 60,
		Now:      now,
	}
	commands, queries := bus.NewRegistry(), bus.NewRegistry()
	h.Register(commands, queries)

	ch := CalendarHandler{
		Commands: bus.Chain(commands, bus.Validation()),
		Queries:  bus.Chain(queries, bus.Validation()),
	}
	return NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{Calendar: ch, Feed: ch})
}

func do(t *testing.T, router http.Handler, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set(headerUserID, "u-"+role)
		req.Header.Set(headerUserRole, role)
		req.Header.Set("Authorization", "Bearer tok-"+role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func openSession(t *testing.T, router http.Handler, role string) appcalendar.View {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/v1/calendar/sessions", role,
		map[string]any{"propertyId": "p1", "year": 2024, "month": 7})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view appcalendar.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func TestCalendarFlowSelectAndBlock(t *testing.T) {
	router := newTestRouter(t)
	view := openSession(t, router, "owner")
	assert.Equal(t, "p1", view.PropertyID)
	assert.True(t, view.CanEdit)
	assert.NotEmpty(t, view.Cells)
	base := "/api/v1/calendar/sessions/" + view.ID

	rec := do(t, router, http.MethodPost, base+"/gestures", "owner", map[string]string{"kind": "double_click", "date": "2024-07-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var gesture appcalendar.GestureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gesture))
	assert.Equal(t, []daterange.Date{daterange.MustParse("2024-07-10")}, gesture.Selection.Committed)

	rec = do(t, router, http.MethodPost, base+"/commit", "owner", map[string]any{"kind": "block", "useSelection": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out calendarapp.CommitOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []daterange.Date{daterange.MustParse("2024-07-10")}, out.Result.Succeeded)
	assert.Empty(t, out.View.Selection.Committed)

	rec = do(t, router, http.MethodGet, base+"/cells/2024-07-10", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cell availability.Cell
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cell))
	assert.Equal(t, availability.StatusBlocked, cell.Status)

	rec = do(t, router, http.MethodDelete, base, "owner", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, base, "owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalendarCommitOnBookedDayIsUnprocessable(t *testing.T) {
	router := newTestRouter(t)
	view := openSession(t, router, "owner")

	rec := do(t, router, http.MethodPost, "/api/v1/calendar/sessions/"+view.ID+"/commit", "owner",
		map[string]any{"kind": "block", "dates": []string{"2024-07-19", "2024-07-21"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var body struct {
		Code     string   `json:"code"`
		Dates    []string `json:"dates"`
		Statuses []string `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_operation", body.Code)
	assert.Equal(t, []string{"2024-07-21"}, body.Dates)
	assert.Equal(t, []string{"booked"}, body.Statuses)
}

func TestCalendarRequiresIdentityAndEditorRole(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/calendar/sessions", "", map[string]any{"propertyId": "p1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	view := openSession(t, router, "guest")
	assert.False(t, view.CanEdit)
	rec = do(t, router, http.MethodPost, "/api/v1/calendar/sessions/"+view.ID+"/gestures", "guest",
		map[string]string{"kind": "click", "date": "2024-07-10"})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/v1/calendar/sessions/"+view.ID, "owner", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "sessions belong to the user who opened them")
}

func TestCalendarBadInputIsRejected(t *testing.T) {
	router := newTestRouter(t)
	view := openSession(t, router, "owner")
	base := "/api/v1/calendar/sessions/" + view.ID

	rec := do(t, router, http.MethodGet, base+"/cells/not-a-date", "owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/gestures", "owner", map[string]string{"kind": "wiggle", "date": "2024-07-10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, base+"/commit", "owner", map[string]any{"kind": "block", "dates": []string{"2024-09-01"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestPropertyFeedServesCalendar(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/v1/properties/p1/calendar.ics?days=31", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	assert.Contains(t, rec.Body.String(), "p1 2024-07-20 booked")

	rec = do(t, router, http.MethodGet, "/api/v1/properties/p1/calendar.ics?days=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPropertyFeedWithoutRendererIsUnavailable(t *testing.T) {
	router := newTestRouterWithFeeds(t, nil)

	rec := do(t, router, http.MethodGet, "/api/v1/properties/p1/calendar.ics?days=31", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "feed_unavailable")
}
