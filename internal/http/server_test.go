package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"depenses/internal/core"
	"depenses/internal/log"
	"depenses/internal/services"
	"depenses/internal/storage/memory"
	"depenses/internal/view"
)

func newTestServer(t *testing.T, svc ExpenseService, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Config{Output: &bytes.Buffer{}})
	}
	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func newMemoryServer(t *testing.T) *Server {
	t.Helper()
	return newTestServer(t, services.NewExpenseService(memory.New(), nil), ServerConfig{})
}

type client struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		if strings.HasPrefix(body, "{") {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.srv.Handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndHeartbeat(t *testing.T) {
	srv := newMemoryServer(t)
	srv.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	c := &client{t: t, srv: srv}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := c.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := c.do(http.MethodGet, "/api/heartbeat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","timestamp":"2025-03-10T09:00:00Z"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestExpenseLifecycle(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}

	rec := c.do(http.MethodPost, "/api/expenses",
		`{"amount": 2000, "currency": "Ariary", "label": " Taxi ", "date": "2025-03-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[expenseJSON](t, rec)
	require.NotEmpty(t, created.ID)
	require.Equal(t, int64(10000), created.Amount.FMG)
	require.Equal(t, "10,000 FMG", created.Amount.Formatted)
	require.Equal(t, "2,000 Ar", created.Entered)
	require.Equal(t, "Taxi", created.Label)
	require.Equal(t, "paid", created.BalanceStatus)
	require.Equal(t, "/api/expenses/"+created.ID, rec.Header().Get("Location"))

	rec = c.do(http.MethodGet, "/api/expenses/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodPatch, "/api/expenses/"+created.ID,
		`{"remark": "airport", "balanceStatus": "owed_to_me", "balanceAmount": 500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[expenseJSON](t, rec)
	require.Equal(t, "airport", updated.Remark)
	require.Equal(t, "owed_to_me", updated.BalanceStatus)
	require.Equal(t, int64(2500), updated.BalanceAmount.FMG, "balance is read in the record currency")

	rec = c.do(http.MethodPost, "/api/expenses/"+created.ID+"/clear-balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := decode[expenseJSON](t, rec)
	require.Equal(t, "paid", cleared.BalanceStatus)
	require.Zero(t, cleared.BalanceAmount.FMG)

	rec = c.do(http.MethodGet, "/api/expenses?from=2025-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]expenseJSON](t, rec), 1)

	rec = c.do(http.MethodDelete, "/api/expenses/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = c.do(http.MethodGet, "/api/expenses/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = c.do(http.MethodDelete, "/api/expenses/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateExpenseValidation(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"bad amount form", "amount=abc&label=x&date=2025-03-10", http.StatusUnprocessableEntity, ""},
		{"missing label", `{"amount": 10, "date": "2025-03-10"}`, http.StatusUnprocessableEntity, "label is required"},
		{"bad date", `{"amount": 10, "label": "x", "date": "10/03/2025"}`, http.StatusUnprocessableEntity, "date"},
		{"open balance without amount", `{"amount": 10, "label": "x", "date": "2025-03-10", "balanceStatus": "i_owe"}`, http.StatusUnprocessableEntity, ""},
		{"unknown currency", `{"amount": 10, "label": "x", "date": "2025-03-10", "currency": "EUR"}`, http.StatusUnprocessableEntity, "currency"},
		{"malformed json", `{"amount": `, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.do(http.MethodPost, "/api/expenses", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			require.NotEmpty(t, body.Error)
			if tt.msg != "" {
				require.Contains(t, body.Error, tt.msg)
			}
		})
	}

	rec := c.do(http.MethodGet, "/api/expenses/x/clear-balance", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLabelOperations(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	for _, label := range []string{"Taxi", "Taxi", "Food"} {
		rec := c.do(http.MethodPost, "/api/expenses", "amount=100&label="+label+"&date=2025-03-10")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := c.do(http.MethodPut, "/api/labels/Taxi", `{"newLabel": "Transport"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, services.LabelResult{Affected: 2}, decode[services.LabelResult](t, rec))

	rec = c.do(http.MethodGet, "/api/labels", "")
	require.ElementsMatch(t, []string{"Transport", "Food"}, decode[[]string](t, rec))

	rec = c.do(http.MethodPut, "/api/labels/Food", `{"newLabel": ""}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = c.do(http.MethodDelete, "/api/labels/Missing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[services.LabelResult](t, rec).NoOp)

	rec = c.do(http.MethodDelete, "/api/labels/Food", "")
	require.Equal(t, int64(1), decode[services.LabelResult](t, rec).Affected)
}

func TestViewPaginationAndAccordion(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	for i := 1; i <= 12; i++ {
		body := fmt.Sprintf(`{"amount": %d, "label": "L%02d", "date": "2025-03-10"}`, i*100, i)
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/expenses", body).Code)
	}
	require.Equal(t, http.StatusCreated,
		c.do(http.MethodPost, "/api/expenses", `{"amount": 50, "label": "Bus", "date": "2025-03-09", "remark": "late"}`).Code)

	rec := c.do(http.MethodGet, "/api/view", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, c.cookie)
	v := decode[viewJSON](t, rec)
	require.Len(t, v.Days, 2)
	day := v.Days[0]
	require.Equal(t, "2025-03-10", day.Date)
	require.Equal(t, 12, day.Labels)
	require.Len(t, day.Groups, 10)
	require.Equal(t, "L12", day.Groups[0].Label, "amount-desc by default")
	require.Equal(t, 2, day.Page.TotalPages)
	require.Equal(t, 1, day.Page.First)
	require.Equal(t, 10, day.Page.Last)
	require.Equal(t, []pageItemJSON{{Page: 1}, {Page: 2}}, day.Page.Window)
	require.Equal(t, int64(7850), v.Total.FMG)
	require.Equal(t, []int{10, 20, 50, 100}, v.PageSizes)
	require.Empty(t, v.Open)

	rec = c.do(http.MethodPost, "/api/view/pages", `{"day": "2025-03-10", "page": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v = decode[viewJSON](t, rec)
	require.Len(t, v.Days[0].Groups, 2)
	require.Equal(t, 2, v.Days[0].Page.Current)
	require.Equal(t, 11, v.Days[0].Page.First)

	rec = c.do(http.MethodPost, "/api/view/accordion", `{"command": "all-open"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v = decode[viewJSON](t, rec)
	require.Len(t, v.Open, 13)
	require.True(t, v.Days[1].Groups[0].Open)

	rec = c.do(http.MethodPost, "/api/view/accordion", `{"toggle": "2025-03-09-Bus"}`)
	v = decode[viewJSON](t, rec)
	require.False(t, v.Days[1].Groups[0].Open)
	require.Len(t, v.Open, 12)

	// A new search restarts pagination.
	rec = c.do(http.MethodGet, "/api/view?q=L", "")
	v = decode[viewJSON](t, rec)
	require.Equal(t, 1, v.Days[0].Page.Current)
	require.Equal(t, "L", v.Search)

	rec = c.do(http.MethodGet, "/api/view?remark=1", "")
	v = decode[viewJSON](t, rec)
	require.Len(t, v.Days, 1)
	require.Equal(t, []string{"2025-03-09-Bus"}, v.Open, "active filters expand every group")

	rec = c.do(http.MethodGet, "/api/view?q=nothing", "")
	v = decode[viewJSON](t, rec)
	require.Equal(t, string(view.EmptyNoMatches), v.Empty)
	require.Equal(t, string(view.ReasonSearched), v.Reason)
	require.Empty(t, v.Days)

	rec = c.do(http.MethodPost, "/api/view/pages", `{"day": "2025-03-10", "itemsPerPage": 7}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestViewQueryErrors(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	for _, q := range []string{"to=2025-03-10", "from=2025-03-10&to=2025-03-01", "balance=maybe", "from=March"} {
		rec := c.do(http.MethodGet, "/api/view?"+q, "")
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, q)
	}

	rec := c.do(http.MethodGet, "/api/view?from=2025-03-10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(view.EmptyNoExpenses), decode[viewJSON](t, rec).Empty)
}

type unavailableService struct {
	*services.ExpenseService
}

func (unavailableService) Snapshot(context.Context) ([]core.Expense, error) {
	return nil, fmt.Errorf("list: %w", core.ErrStoreUnavailable)
}

func (unavailableService) ViewSession(_ context.Context, _ view.Query, sess view.Session) (view.Result, view.Session, error) {
	return view.Result{}, sess, fmt.Errorf("list: %w", core.ErrStoreUnavailable)
}

func (unavailableService) Ping(context.Context) error {
	return fmt.Errorf("ping: %w", core.ErrStoreUnavailable)
}

func TestStoreUnavailable(t *testing.T) {
	svc := unavailableService{services.NewExpenseService(memory.New(), nil)}
	c := &client{t: t, srv: newTestServer(t, svc, ServerConfig{})}

	for _, path := range []string{"/api/view", "/api/expenses", "/readyz"} {
		rec := c.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		require.Equal(t, "5", rec.Header().Get("Retry-After"))
		require.Equal(t, "storage temporarily unavailable", decode[errorBody](t, rec).Error)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, services.NewExpenseService(memory.New(), nil), ServerConfig{RateLimitPerMinute: 1})
	c := &client{t: t, srv: srv}

	body := `{"amount": 10, "label": "x", "date": "2025-03-10"}`
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/expenses", body).Code)
	rec := c.do(http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate limit exceeded", decode[errorBody](t, rec).Error)

	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/view", "").Code)
	require.Equal(t, int64(1), srv.Metrics().RateLimit.TotalHits)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrEmptyLabel, http.StatusUnprocessableEntity},
		{fmt.Errorf("get: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("list: %w", core.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errMalformedBody, http.StatusBadRequest},
		{errBodyTooLarge, http.StatusRequestEntityTooLarge},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
}

func TestSessionCookieRenewedWhenUnknown(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	c.cookie = &http.Cookie{Name: sessionCookie, Value: "not-a-uuid"}
	c.do(http.MethodGet, "/api/view", "")
	require.NotEqual(t, "not-a-uuid", c.cookie.Value)
	require.True(t, c.cookie.HttpOnly)

	first := c.cookie.Value
	c.do(http.MethodGet, "/api/view", "")
	require.Equal(t, first, c.cookie.Value)
	require.Equal(t, 1, c.srv.Metrics().ActiveSessions)
}

func TestPageChangeOnFreshSessionSticks(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	for i := 1; i <= 12; i++ {
		body := fmt.Sprintf(`{"amount": %d, "label": "L%02d", "date": "2025-03-10"}`, i*100, i)
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/expenses", body).Code)
	}

	// No GET /api/view first: the session is created by this request.
	c.cookie = nil
	rec := c.do(http.MethodPost, "/api/view/pages", `{"day": "2025-03-10", "page": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[viewJSON](t, rec)
	require.Equal(t, 2, v.Days[0].Page.Current)
	require.Len(t, v.Days[0].Groups, 2)

	v = decode[viewJSON](t, c.do(http.MethodGet, "/api/view", ""))
	require.Equal(t, 2, v.Days[0].Page.Current)
}

func TestCollapseHoldsWhileSearching(t *testing.T) {
	c := &client{t: t, srv: newMemoryServer(t)}
	require.Equal(t, http.StatusCreated,
		c.do(http.MethodPost, "/api/expenses", `{"amount": 100, "label": "Coffee", "date": "2025-03-05"}`).Code)

	v := decode[viewJSON](t, c.do(http.MethodGet, "/api/view?q=cof", ""))
	require.Equal(t, []string{"2025-03-05-Coffee"}, v.Open)

	v = decode[viewJSON](t, c.do(http.MethodPost, "/api/view/accordion", `{"toggle": "2025-03-05-Coffee"}`))
	require.Empty(t, v.Open)

	v = decode[viewJSON](t, c.do(http.MethodGet, "/api/view?q=cof", ""))
	require.Empty(t, v.Open, "same search keeps the collapse")
}
