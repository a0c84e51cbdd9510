package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"balancio/internal/auth"
	"balancio/internal/cache"
	"balancio/internal/ledger/memory"
	"balancio/internal/ofx"
	"balancio/internal/realtime"
	"balancio/internal/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokens(testSecret, time.Hour, "balancio-test")
	hub := realtime.NewHub(nil, nil)
	dashboards := cache.NewLRUCache[services.Evaluation](10, time.Minute)
	budgets := services.NewBudgetService(store, nil, hub, dashboards, nil)
	authSvc := services.NewAuthService(store, tokens, nil)

	svc := Services{
		Store:        store,
		Auth:         authSvc,
		Budgets:      budgets,
		Transactions: services.NewTransactionService(store, budgets, nil),
		Categories:   services.NewCategoryService(store, budgets, nil),
		Profiles:     services.NewProfileService(store, budgets, nil),
		Tokens:       tokens,
		Broker:       auth.NewBroker(time.Minute, authSvc.OAuthLogin, nil),
		Hub:          hub,
		Statements:   ofx.NewParser(nil),
		Dashboards:   dashboards,
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = 1000
	}
	srv := NewServer(opts, svc)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (ts *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "correct horse", "firstName": "Ada", "lastName": "Lovelace",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[authResponse](t, rr).Token
}

func (ts *testServer) createCategory(t *testing.T, token, name, kind string) services.CategoryView {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/categories", token, map[string]string{"name": name, "type": kind})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decode[services.CategoryView](t, rr)
}

func today() string {
	return time.Now().UTC().Format(time.DateOnly)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}

	ready := decode[map[string]any](t, ts.do(t, http.MethodGet, "/readyz", "", nil))
	checks := ready["checks"].(map[string]any)
	if checks["store"] != "ok" {
		t.Errorf("store check = %v", checks["store"])
	}

	rr := ts.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Errorf("metrics missing request counter: %s", rr.Body.String())
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	ts := newTestServer(t, Options{})
	rr := ts.do(t, http.MethodGet, "/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
	if decode[APIError](t, rr).Error == "" {
		t.Error("expected error message")
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	rr := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ADA@example.com", "password": "another secret",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate register status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong password"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad login status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "correct horse"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	login := decode[authResponse](t, rr)
	if login.User.Email != "ada@example.com" || login.Token == "" {
		t.Errorf("unexpected login response: %+v", login)
	}

	rr = ts.do(t, http.MethodGet, "/api/users/profile", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile status=%d", rr.Code)
	}

	if rr := ts.do(t, http.MethodPost, "/api/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}
	rr = ts.do(t, http.MethodGet, "/api/users/profile", token, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked token status=%d", rr.Code)
	}
	// the second session is unaffected
	if rr := ts.do(t, http.MethodGet, "/api/users/profile", login.Token, nil); rr.Code != http.StatusOK {
		t.Errorf("other session status=%d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, Options{})
	for _, path := range []string{"/api/transactions", "/api/dashboard", "/api/budget/overview", "/api/users/profile"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("%s missing WWW-Authenticate", path)
		}
	}
	if rr := ts.do(t, http.MethodGet, "/api/dashboard", "not-a-jwt", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status=%d", rr.Code)
	}
}

func TestDecodeBoundary(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{"truncated json", `{"title":`, http.StatusBadRequest, "syntax error: unexpected end of JSON"},
		{"malformed json", `{"title" "x"}`, http.StatusBadRequest, "syntax error at offset"},
		{"empty body", ``, http.StatusBadRequest, "body is empty"},
		{"unknown field", `{"title":"x","type":"expense","amount":1,"date":"2025-03-01","colour":"red"}`, http.StatusBadRequest, "unknown field"},
		{"trailing data", `{"title":"x","type":"expense","amount":1,"date":"2025-03-01"} {}`, http.StatusBadRequest, ""},
		{"missing title", `{"type":"expense","amount":1,"date":"2025-03-01"}`, http.StatusUnprocessableEntity, "title is required"},
		{"bad type", `{"title":"x","type":"gift","amount":1,"date":"2025-03-01"}`, http.StatusUnprocessableEntity, "type must be one of"},
		{"bad date", `{"title":"x","type":"expense","amount":1,"date":"01/03/2025"}`, http.StatusUnprocessableEntity, "date must be a YYYY-MM-DD date"},
		{"zero amount", `{"title":"x","type":"expense","amount":0,"date":"2025-03-01"}`, http.StatusUnprocessableEntity, ""},
		{"negative amount", `{"title":"x","type":"expense","amount":"-3","date":"2025-03-01"}`, http.StatusUnprocessableEntity, ""},
		{"oversized amount", `{"title":"x","type":"expense","amount":92233720368547758,"date":"2025-03-01"}`, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/transactions", token, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantDetail == "" {
				return
			}
			e := decode[APIError](t, rr)
			if !strings.Contains(strings.Join(e.Details, "|"), tt.wantDetail) {
				t.Errorf("details %v do not mention %q", e.Details, tt.wantDetail)
			}
		})
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")
	food := ts.createCategory(t, token, "Food", "expense")
	salary := ts.createCategory(t, token, "Salary", "income")

	rr := ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": "12.345", "type": "expense", "categoryId": food.ID, "title": "Groceries", "date": "2025-03-02",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[services.TransactionView](t, rr)
	if created.Amount != 12.35 {
		t.Errorf("amount = %v, want 12.35 (half-up)", created.Amount)
	}
	if created.Category != "Food" {
		t.Errorf("category name = %q", created.Category)
	}
	if rr.Header().Get("Location") != "/api/transactions/"+created.ID {
		t.Errorf("location = %q", rr.Header().Get("Location"))
	}

	rr = ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 10, "type": "expense", "categoryId": salary.ID, "title": "Wrong", "date": "2025-03-02",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("kind mismatch status=%d", rr.Code)
	}

	ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 2000, "type": "income", "categoryId": salary.ID, "title": "Salary", "date": "2025-03-01",
	})

	list := decode[transactionList](t, ts.do(t, http.MethodGet, "/api/transactions?type=expense&search=GROC", token, nil))
	if list.Count != 1 || list.Transactions[0].ID != created.ID {
		t.Fatalf("filtered list = %+v", list)
	}
	list = decode[transactionList](t, ts.do(t, http.MethodGet, "/api/transactions?sortBy=amount&sortOrder=asc", token, nil))
	if list.Count != 2 || list.Transactions[0].Amount != 12.35 {
		t.Fatalf("sorted list = %+v", list)
	}
	if rr := ts.do(t, http.MethodGet, "/api/transactions?dateFrom=2025-13-01", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad filter status=%d", rr.Code)
	}

	rr = ts.do(t, http.MethodPut, "/api/transactions/"+created.ID, token, map[string]any{
		"amount": 20, "type": "expense", "categoryId": food.ID, "title": "Groceries and wine", "date": "2025-03-02",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[services.TransactionView](t, rr); got.Title != "Groceries and wine" || got.Amount != 20 {
		t.Errorf("updated = %+v", got)
	}

	other := ts.register(t, "grace@example.com")
	if rr := ts.do(t, http.MethodGet, "/api/transactions/"+created.ID, other, nil); rr.Code != http.StatusNotFound {
		t.Errorf("foreign transaction status=%d", rr.Code)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/transactions/"+created.ID, token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/transactions/"+created.ID, token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("deleted transaction status=%d", rr.Code)
	}
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")
	food := ts.createCategory(t, token, "Food", "expense")
	ts.createCategory(t, token, "Salary", "income")

	cats := decode[[]services.CategoryView](t, ts.do(t, http.MethodGet, "/api/categories?type=income", token, nil))
	if len(cats) != 1 || cats[0].Name != "Salary" {
		t.Fatalf("income categories = %+v", cats)
	}
	if rr := ts.do(t, http.MethodGet, "/api/categories?type=gift", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad kind status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/categories", token, map[string]string{"name": "Bad", "type": "expense", "color": "red"}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad color status=%d", rr.Code)
	}

	rr := ts.do(t, http.MethodPut, "/api/categories/"+food.ID, token, map[string]string{"name": "Groceries", "color": "#112233"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[services.CategoryView](t, rr); got.Name != "Groceries" || got.Type != "expense" {
		t.Errorf("updated = %+v", got)
	}

	ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 5, "type": "expense", "categoryId": food.ID, "title": "Bread", "date": today(),
	})
	rr = ts.do(t, http.MethodDelete, "/api/categories/"+food.ID, token, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("in-use delete status=%d", rr.Code)
	}
	if !strings.Contains(decode[APIError](t, rr).Error, "still has transactions") {
		t.Errorf("unexpected error: %s", rr.Body.String())
	}
}

func TestBudgetOverviewAndDashboard(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	if rr := ts.do(t, http.MethodGet, "/api/budget", token, nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing budget status=%d", rr.Code)
	}
	ov := decode[services.OverviewView](t, ts.do(t, http.MethodGet, "/api/budget/overview", token, nil))
	if ov.Status != "no_budget" {
		t.Errorf("status without budget = %q", ov.Status)
	}

	rr := ts.do(t, http.MethodPut, "/api/budget", token, map[string]any{"limit": 100})
	if rr.Code != http.StatusOK {
		t.Fatalf("save budget status=%d body=%s", rr.Code, rr.Body.String())
	}
	b := decode[budgetResponse](t, rr)
	if b.Currency != "EUR" || b.WarningThreshold != 80 || b.CriticalThreshold != 95 {
		t.Errorf("defaults not applied: %+v", b)
	}
	if rr := ts.do(t, http.MethodPut, "/api/budget", token, map[string]any{"limit": -5}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("negative limit status=%d", rr.Code)
	}

	for _, amount := range []int{100, 50} {
		ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
			"amount": amount, "type": "expense", "title": "Spend", "date": today(),
		})
	}
	ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 500, "type": "income", "title": "Pay", "date": today(),
	})

	ov = decode[services.OverviewView](t, ts.do(t, http.MethodGet, "/api/budget/overview", token, nil))
	if ov.Spent != 150 || ov.PercentageUsed != 150 || ov.Status != "critical" {
		t.Errorf("overview = %+v", ov)
	}

	dash := decode[services.DashboardView](t, ts.do(t, http.MethodGet, "/api/dashboard", token, nil))
	if dash.Totals.Balance != 350 || dash.Totals.Expenses != 150 {
		t.Errorf("totals = %+v", dash.Totals)
	}
	if len(dash.Recent) != 3 {
		t.Errorf("recent = %d", len(dash.Recent))
	}

	diag := decode[services.AlertDiagnostics](t, ts.do(t, http.MethodGet, "/api/users/budget/alerts", token, nil))
	if !diag.BudgetSet || diag.CurrentStatus != "critical" {
		t.Errorf("diagnostics = %+v", diag)
	}

	res := decode[services.TestAlertResult](t, ts.do(t, http.MethodPost, "/api/test/budget-alerts", token, nil))
	if res.BudgetStatus == nil || res.BudgetStatus.AlertLevel != "critical" {
		t.Errorf("test alert = %+v", res)
	}

	if rr := ts.do(t, http.MethodDelete, "/api/budget", token, nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete budget status=%d", rr.Code)
	}
}

func TestProfileUpdate(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	rr := ts.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{
		"firstName": "Augusta", "timezone": "Europe/Rome",
		"settings": map[string]any{"monthlyReports": true, "reportFormat": "json"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	u := decode[services.UserView](t, rr)
	if u.FirstName != "Augusta" || u.LastName != "Lovelace" || u.Timezone != "Europe/Rome" {
		t.Errorf("profile = %+v", u)
	}
	if !u.Settings.MonthlyReports || u.Settings.ReportFormat != "json" || !u.Settings.BudgetAlerts {
		t.Errorf("settings = %+v", u.Settings)
	}

	rr = ts.do(t, http.MethodPut, "/api/users/profile", token, map[string]any{"timezone": "Mars/Olympus"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad timezone status=%d", rr.Code)
	}
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")
	ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 9.5, "type": "expense", "title": "Cinema", "date": "2025-03-02",
	})

	rr := ts.do(t, http.MethodGet, "/api/transactions/export?fileType=excel", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment; filename=transactions-") {
		t.Errorf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "\ufeffDate,Title") || !strings.Contains(body, "2025-03-02,Cinema") {
		t.Errorf("excel body = %q", body)
	}

	rr = ts.do(t, http.MethodGet, "/api/transactions/export?fileType=json", token, nil)
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("json content type = %q", ct)
	}
	if rr := ts.do(t, http.MethodGet, "/api/transactions/export?fileType=pdf", token, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown format status=%d", rr.Code)
	}
}

const statement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>EUR
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>IT60X0542811101000000123456
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250301120000[0:GMT]
<DTEND>20250331120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250305120000[0:GMT]
<TRNAMT>-25.50
<FITID>F-001
<NAME>SUPERMARKET
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250310120000[0:GMT]
<TRNAMT>1500.00
<FITID>F-002
<NAME>ACME SALARY
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20250331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func (ts *testServer) upload(t *testing.T, token, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "statement.ofx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func TestImportStatement(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	rr := ts.upload(t, token, statement)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	if res := decode[services.ImportResult](t, rr); res.Imported != 2 || res.Skipped != 0 {
		t.Errorf("first import = %+v", res)
	}

	rr = ts.upload(t, token, statement)
	if res := decode[services.ImportResult](t, rr); res.Imported != 0 || res.Skipped != 2 {
		t.Errorf("re-import = %+v", res)
	}

	list := decode[transactionList](t, ts.do(t, http.MethodGet, "/api/transactions", token, nil))
	if list.Count != 2 {
		t.Errorf("stored %d transactions", list.Count)
	}

	if rr := ts.upload(t, token, "not a statement"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("garbage upload status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/transactions/import", token, `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("non-multipart status=%d", rr.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 2})
	body := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	}
	rr := ts.do(t, http.MethodPost, "/api/auth/login", "", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if decode[APIError](t, rr).Error == "" {
		t.Error("expected JSON error body")
	}
	// reads are not throttled
	if rr := ts.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Errorf("read status=%d", rr.Code)
	}
}

func TestOAuthEndpointsWithoutFlow(t *testing.T) {
	ts := newTestServer(t, Options{})

	if rr := ts.do(t, http.MethodGet, "/api/auth/oauth/myspace/start", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown provider status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/auth/oauth/wait", "", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("missing state status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/auth/oauth/wait?state=unknown", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown state status=%d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/auth/oauth/github/callback?state=unknown&code=x", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown callback status=%d", rr.Code)
	}
}

func TestWebSocketReceivesOverview(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.register(t, "ada@example.com")

	srv := httptest.NewServer(ts.Handler)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.svc.Hub.Connections(mustVerify(t, ts, token)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := ts.do(t, http.MethodPost, "/api/transactions", token, map[string]any{
		"amount": 42, "type": "expense", "title": "Books", "date": today(),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string                `json:"type"`
		Seq  uint64                `json:"seq"`
		Data services.OverviewView `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != realtime.EventBudgetOverview || ev.Data.Spent != 42 {
		t.Errorf("event = %+v", ev)
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil); err == nil {
		t.Error("dial without token should fail")
	}
}

func mustVerify(t *testing.T, ts *testServer, token string) string {
	t.Helper()
	sess, err := ts.svc.Tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return sess.UserID
}
