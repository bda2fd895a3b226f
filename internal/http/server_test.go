package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fintrack/internal/backend"
	"fintrack/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alice = "alice"

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Kind    core.ErrorKind  `json:"kind"`
	Count   int             `json:"count"`
}

type testServer struct {
	t *testing.T
	s *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	app, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend})
	require.NoError(t, err)
	s := NewServer(":0", app, nil)
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		_ = app.Close()
	})
	return &testServer{t: t, s: s}
}

func (ts *testServer) raw(method, path, user string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rd = strings.NewReader(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(ts.t, err)
			rd = bytes.NewReader(b)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	ts.s.Handler.ServeHTTP(rec, req)
	return rec
}

// do sends a request as user and decodes the envelope, checking the status.
func (ts *testServer) do(method, path, user string, body any, wantStatus int) response {
	ts.t.Helper()
	rec := ts.raw(method, path, user, body)
	require.Equal(ts.t, wantStatus, rec.Code, rec.Body.String())
	var resp response
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

type txBody = map[string]any

type entity struct {
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t)

	health := ts.do(http.MethodGet, "/healthz", "", nil, http.StatusOK)
	assert.True(t, health.Success)

	ready := ts.do(http.MethodGet, "/readyz", "", nil, http.StatusOK)
	body := decode[map[string]any](t, ready)
	assert.Equal(t, "ready", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["storage"])
	assert.Equal(t, "disabled", checks["events"])
}

func TestRequestsNeedAUser(t *testing.T) {
	ts := newTestServer(t)

	for _, user := range []string{"", "bad user", strings.Repeat("x", 200)} {
		resp := ts.do(http.MethodGet, "/api/transactions", user, nil, http.StatusUnauthorized)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Message, UserIDHeader)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	acct := decode[entity](t, ts.do(http.MethodPost, "/api/accounts", alice,
		map[string]any{"name": "Checking", "type": "bank", "balance": "100"}, http.StatusCreated))

	created := ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "expense", "category": "Food", "amount": "25", "accountId": acct.ID,
	}, http.StatusCreated)
	assert.Equal(t, "Transaction created successfully", created.Message)
	tx := decode[entity](t, created)
	require.NotEmpty(t, tx.ID)

	details := decode[struct {
		Account entity `json:"account"`
	}](t, ts.do(http.MethodGet, "/api/accounts/"+acct.ID, alice, nil, http.StatusOK))
	assert.Equal(t, "75", details.Account.Balance)

	page := decode[struct {
		Transactions []entity       `json:"transactions"`
		Pagination   map[string]any `json:"pagination"`
	}](t, ts.do(http.MethodGet, "/api/transactions?type=expense&category=foo&sortOrder=asc", alice, nil, http.StatusOK))
	require.Len(t, page.Transactions, 1)
	assert.EqualValues(t, 1, page.Pagination["totalCount"])
	assert.EqualValues(t, 50, page.Pagination["limit"])

	updated := decode[entity](t, ts.do(http.MethodPut, "/api/transactions/"+tx.ID, alice, txBody{
		"type": "expense", "category": "Food", "amount": "40", "accountId": acct.ID,
	}, http.StatusOK))
	assert.Equal(t, "40", updated.Amount)

	details = decode[struct {
		Account entity `json:"account"`
	}](t, ts.do(http.MethodGet, "/api/accounts/"+acct.ID, alice, nil, http.StatusOK))
	assert.Equal(t, "60", details.Account.Balance, "update reverses the old amount first")

	dup := decode[entity](t, ts.do(http.MethodPost, "/api/transactions/"+tx.ID+"/duplicate", alice, nil, http.StatusCreated))
	assert.NotEqual(t, tx.ID, dup.ID)

	recent := decode[[]entity](t, ts.do(http.MethodGet, "/api/transactions/recent?limit=1", alice, nil, http.StatusOK))
	assert.Len(t, recent, 1)

	bulk := decode[map[string]int](t, ts.do(http.MethodDelete, "/api/transactions/bulk", alice,
		map[string]any{"transactionIds": []string{tx.ID, dup.ID, "unknown"}}, http.StatusOK))
	assert.Equal(t, 2, bulk["deletedCount"])

	gone := decode[map[string]any](t, ts.do(http.MethodGet, "/api/transactions/"+tx.ID, alice, nil, http.StatusOK))
	assert.Equal(t, true, gone["isDeleted"], "deleted rows stay readable by id")

	trash := decode[struct {
		Transactions []entity `json:"transactions"`
	}](t, ts.do(http.MethodGet, "/api/transactions?includeDeleted=true", alice, nil, http.StatusOK))
	assert.Len(t, trash.Transactions, 2)

	details = decode[struct {
		Account entity `json:"account"`
	}](t, ts.do(http.MethodGet, "/api/accounts/"+acct.ID, alice, nil, http.StatusOK))
	assert.Equal(t, "100", details.Account.Balance, "deleting restores the balance")
}

func TestValidationFailures(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"negative amount", http.MethodPost, "/api/transactions", txBody{"type": "expense", "category": "Food", "amount": "-5"}},
		{"unknown type", http.MethodPost, "/api/transactions", txBody{"type": "gift", "category": "Food", "amount": "5"}},
		{"empty body", http.MethodPost, "/api/transactions", nil},
		{"malformed json", http.MethodPost, "/api/accounts", "{"},
		{"two objects", http.MethodPost, "/api/accounts", `{"name":"a"} {"name":"b"}`},
		{"bad page", http.MethodGet, "/api/transactions?page=abc", nil},
		{"bad date", http.MethodGet, "/api/transactions?startDate=yesterday", nil},
		{"bad group", http.MethodGet, "/api/transactions/analytics?groupBy=quarter", nil},
		{"bad period", http.MethodGet, "/api/budgets?period=daily", nil},
		{"missing balance", http.MethodPut, "/api/accounts/any/balance", map[string]any{"reason": "fix"}},
		{"empty bulk", http.MethodDelete, "/api/transactions/bulk", map[string]any{"transactionIds": []string{}}},
		{"bad currency", http.MethodPut, "/api/users/profile", map[string]any{"currency": "EURO"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(tt.method, tt.path, alice, tt.body, http.StatusBadRequest)
			assert.False(t, resp.Success)
			assert.Equal(t, core.KindValidation, resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAccountDeleteConflict(t *testing.T) {
	ts := newTestServer(t)

	acct := decode[entity](t, ts.do(http.MethodPost, "/api/accounts", alice,
		map[string]any{"name": "Wallet", "type": "cash", "balance": "10"}, http.StatusCreated))
	ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "expense", "category": "Food", "amount": "5", "accountId": acct.ID,
	}, http.StatusCreated)

	resp := ts.do(http.MethodDelete, "/api/accounts/"+acct.ID, alice, nil, http.StatusConflict)
	assert.Equal(t, core.KindConflict, resp.Kind)
	assert.Equal(t, 1, resp.Count)

	change := decode[map[string]any](t, ts.do(http.MethodPut, "/api/accounts/"+acct.ID+"/balance", alice,
		map[string]any{"balance": "20", "reason": "recount"}, http.StatusOK))
	assert.Equal(t, "20", change["newBalance"])
}

func TestOwnersAreIsolated(t *testing.T) {
	ts := newTestServer(t)

	tx := decode[entity](t, ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "income", "category": "Salary", "amount": "1000",
	}, http.StatusCreated))

	ts.do(http.MethodGet, "/api/transactions/"+tx.ID, "bob", nil, http.StatusNotFound)
	ts.do(http.MethodDelete, "/api/transactions/"+tx.ID, "bob", nil, http.StatusNotFound)

	page := decode[struct {
		Transactions []entity `json:"transactions"`
	}](t, ts.do(http.MethodGet, "/api/transactions", "bob", nil, http.StatusOK))
	assert.Empty(t, page.Transactions)
}

func TestGoalContribution(t *testing.T) {
	ts := newTestServer(t)

	goal := decode[entity](t, ts.do(http.MethodPost, "/api/goals", alice, map[string]any{
		"name": "Trip", "targetAmount": "500", "targetDate": "2099-01-01T00:00:00Z", "category": "Vacation",
	}, http.StatusCreated))

	c := decode[map[string]any](t, ts.do(http.MethodPost, "/api/goals/"+goal.ID+"/contribute", alice,
		map[string]any{"amount": "50"}, http.StatusOK))
	assert.Equal(t, "50", c["newAmount"])

	ts.do(http.MethodPost, "/api/goals/"+goal.ID+"/contribute", alice, map[string]any{"amount": "0"}, http.StatusBadRequest)
	ts.do(http.MethodPost, "/api/goals/missing/contribute", alice, map[string]any{"amount": "1"}, http.StatusNotFound)

	list := decode[struct {
		Goals   []entity       `json:"goals"`
		Summary map[string]any `json:"summary"`
	}](t, ts.do(http.MethodGet, "/api/goals?status=active", alice, nil, http.StatusOK))
	assert.Len(t, list.Goals, 1)

	analytics := decode[map[string]any](t, ts.do(http.MethodGet, "/api/transactions/analytics", alice, nil, http.StatusOK))
	assert.Equal(t, "month", analytics["groupBy"])
}

func TestBudgetsAndRecurring(t *testing.T) {
	ts := newTestServer(t)

	budget := decode[entity](t, ts.do(http.MethodPost, "/api/budgets", alice, map[string]any{
		"name": "Groceries", "period": "monthly", "totalBudget": "500",
		"categories": []map[string]any{{"category": "Food", "budgetAmount": "200"}},
	}, http.StatusCreated))

	page := decode[struct {
		Budgets    []entity       `json:"budgets"`
		Pagination map[string]any `json:"pagination"`
	}](t, ts.do(http.MethodGet, "/api/budgets?isActive=true", alice, nil, http.StatusOK))
	require.Len(t, page.Budgets, 1)
	assert.Equal(t, budget.ID, page.Budgets[0].ID)
	assert.EqualValues(t, 10, page.Pagination["limit"])

	ts.do(http.MethodGet, "/api/budgets/analytics?period=monthly", alice, nil, http.StatusOK)
	ts.do(http.MethodDelete, "/api/budgets/"+budget.ID, alice, nil, http.StatusOK)
	ts.do(http.MethodGet, "/api/budgets/"+budget.ID, alice, nil, http.StatusNotFound)

	rec := decode[entity](t, ts.do(http.MethodPost, "/api/recurring", alice, map[string]any{
		"templateTransaction": txBody{"type": "expense", "category": "Rent", "amount": "900"},
		"frequency":           "monthly",
		"nextDueDate":         "2099-01-01T00:00:00Z",
	}, http.StatusCreated))
	items := decode[[]entity](t, ts.do(http.MethodGet, "/api/recurring", alice, nil, http.StatusOK))
	assert.Len(t, items, 1)

	ts.do(http.MethodPut, "/api/recurring/"+rec.ID, alice, map[string]any{"isActive": false}, http.StatusOK)
	items = decode[[]entity](t, ts.do(http.MethodGet, "/api/recurring", alice, nil, http.StatusOK))
	assert.Empty(t, items)
	items = decode[[]entity](t, ts.do(http.MethodGet, "/api/recurring?includeInactive=true", alice, nil, http.StatusOK))
	assert.Len(t, items, 1)
}

func TestProfile(t *testing.T) {
	ts := newTestServer(t)

	u := decode[map[string]any](t, ts.do(http.MethodGet, "/api/users/profile", alice, nil, http.StatusOK))
	assert.Equal(t, alice, u["id"])
	assert.Equal(t, core.DefaultCurrency, u["currency"])

	u = decode[map[string]any](t, ts.do(http.MethodPut, "/api/users/profile", alice, map[string]any{"currency": "usd"}, http.StatusOK))
	assert.Equal(t, "USD", u["currency"])
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.raw(http.MethodGet, "/api/transactions", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = ts.raw("TRACE", "/api/transactions", alice, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = ts.raw(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.Contains(t, rec.Body.String(), "blocked_requests_total 1")
}

func TestWritesAreRateLimited(t *testing.T) {
	ts := newTestServer(t)

	limited := false
	for i := 0; i < 200 && !limited; i++ {
		rec := ts.raw(http.MethodPost, "/api/transactions", "spammer", "{")
		limited = rec.Code == http.StatusTooManyRequests
	}
	assert.True(t, limited)

	rec := ts.raw(http.MethodPost, "/api/transactions", "spammer", "{")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"success":false`)

	rec = ts.raw(http.MethodGet, "/api/transactions", "spammer", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not limited")
}

func TestRequestBodiesAcceptCalendarDates(t *testing.T) {
	ts := newTestServer(t)

	created := decode[map[string]any](t, ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "expense", "category": "Food", "amount": "12", "date": "2024-05-01",
	}, http.StatusCreated))
	assert.Equal(t, "2024-05-01T00:00:00Z", created["date"])

	id := created["id"].(string)
	updated := decode[map[string]any](t, ts.do(http.MethodPut, "/api/transactions/"+id, alice, txBody{
		"type": "expense", "category": "Food", "amount": "12", "date": "2024-05-03T08:00:00Z",
	}, http.StatusOK))
	assert.Equal(t, "2024-05-03T08:00:00Z", updated["date"])

	goal := decode[map[string]any](t, ts.do(http.MethodPost, "/api/goals", alice, map[string]any{
		"name": "House", "targetAmount": "1000", "targetDate": "2099-12-31",
	}, http.StatusCreated))
	assert.Equal(t, "2099-12-31T00:00:00Z", goal["targetDate"])

	budget := decode[map[string]any](t, ts.do(http.MethodPost, "/api/budgets", alice, map[string]any{
		"name": "May", "totalBudget": "100", "startDate": "2024-05-01", "endDate": "2024-05-31",
		"categories": []map[string]any{{"category": "Food", "budgetAmount": "100"}},
	}, http.StatusCreated))
	assert.Equal(t, "2024-05-31T00:00:00Z", budget["endDate"])

	rec := decode[map[string]any](t, ts.do(http.MethodPost, "/api/recurring", alice, map[string]any{
		"templateTransaction": txBody{"type": "expense", "category": "Rent", "amount": "900"},
		"frequency":           "monthly",
		"nextDueDate":         "2099-01-01",
		"endDate":             "2099-12-31",
	}, http.StatusCreated))
	assert.Equal(t, "2099-01-01T00:00:00Z", rec["nextDueDate"])

	bad := ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "expense", "category": "Food", "amount": "12", "date": "01/05/2024",
	}, http.StatusBadRequest)
	assert.Equal(t, core.KindValidation, bad.Kind)
}

func TestEmptyListsSurviveStorage(t *testing.T) {
	ts := newTestServer(t)

	tx := decode[entity](t, ts.do(http.MethodPost, "/api/transactions", alice, txBody{
		"type": "income", "category": "Salary", "amount": "10",
	}, http.StatusCreated))

	rec := ts.raw(http.MethodGet, "/api/transactions/"+tx.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tags":[]`)
	assert.Contains(t, rec.Body.String(), `"attachments":[]`)

	rec = ts.raw(http.MethodGet, "/api/transactions/recent", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"tags":null`)
}
