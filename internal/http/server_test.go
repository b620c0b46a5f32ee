package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"penny/internal/assistant"
	"penny/internal/core"
	"penny/internal/genai"
	"penny/internal/store/memory"
)

const chatJSON = `Sure! {"response":"Hello **Ada**, let's look at rent.","quit":false,"name":"Ada","predictiveText1":"How do I save?","predictiveText2":""}`

type testServer struct {
	t       *testing.T
	srv     *Server
	store   *memory.Store
	cookies []*http.Cookie
	// reply is what the fake generator answers; empty means it fails.
	reply string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{t: t, store: memory.New(), reply: chatJSON}
	gen := genai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if ts.reply == "" {
			return "", errors.New("model unavailable")
		}
		return ts.reply, nil
	})
	ts.srv = NewServer(Options{
		Addr:               ":0",
		Store:              ts.store,
		Assistant:          assistant.New(gen, nil, assistant.Config{Timeout: time.Second}),
		RateLimitPerMinute: 1000,
	})
	t.Cleanup(func() { _ = ts.srv.Shutdown(context.Background()) })
	return ts
}

// do sends a request carrying the cookies collected so far.
func (ts *testServer) do(method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	ts.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if cs := rr.Result().Cookies(); len(cs) > 0 {
		ts.cookies = cs
	}
	return rr
}

func (ts *testServer) signup(email string) core.User {
	ts.t.Helper()
	rr := ts.do(http.MethodPost, "/signup", url.Values{
		"first_name": {"Ada"},
		"last_name":  {"Lovelace"},
		"email":      {email},
		"password1":  {"s3cret!pass"},
		"password2":  {"s3cret!pass"},
	}, false)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/budget" {
		ts.t.Fatalf("signup: status=%d location=%q body=%s", rr.Code, rr.Header().Get("Location"), rr.Body.String())
	}
	u, err := ts.store.UserByEmail(context.Background(), email)
	if err != nil {
		ts.t.Fatalf("user not stored: %v", err)
	}
	return u
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Hi, I'm Penny.") {
		t.Fatalf("index body missing heading")
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Fatalf("security headers missing")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id missing")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := ts.do(http.MethodGet, path, nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr = ts.do(http.MethodGet, "/nope", nil, false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

type unreachableStore struct{ *memory.Store }

func (unreachableStore) Ping(context.Context) error { return errors.New("disk gone") }

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(Options{Addr: ":0", Store: unreachableStore{memory.New()}})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rr.Code)
	}
	var rep struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Status != "not_ready" || rep.Checks["store"] != "disk gone" || rep.Checks["templates"] != "ok" {
		t.Fatalf("unexpected report %+v", rep)
	}
}

// slowBudgetStore holds the first GetBudget until released.
type slowBudgetStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowBudgetStore) GetBudget(ctx context.Context, userID string) (core.BudgetRecord, bool, error) {
	rec, ok, err := s.Store.GetBudget(ctx, userID)
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return rec, ok, err
}

func TestGraphLoadRacingBudgetSaveIsNotCached(t *testing.T) {
	ctx := context.Background()
	st := &slowBudgetStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	srv := NewServer(Options{Addr: ":0", Store: st})
	t.Cleanup(func() { _ = srv.Shutdown(ctx) })

	u, err := st.CreateUser(ctx, core.User{FirstName: "Ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.SaveBudget(ctx, u.ID, core.BudgetRecord{Income: core.AmountFromFloat(1000), Rent: core.AmountFromFloat(400)}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := srv.graphFor(ctx, u.ID)
		done <- err
	}()
	<-st.entered
	if _, err := st.SaveBudget(ctx, u.ID, core.BudgetRecord{Income: core.AmountFromFloat(1000), Rent: core.AmountFromFloat(900)}); err != nil {
		t.Fatal(err)
	}
	srv.invalidateGraphs(u.ID)
	close(st.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if _, cached := srv.graphs.Get(u.ID); cached {
		t.Fatal("breakdown loaded before the save was cached")
	}
	fresh, err := srv.graphFor(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cached, ok := srv.graphs.Get(u.ID); !ok || !reflect.DeepEqual(cached, fresh) {
		t.Fatal("breakdown loaded after the save should be cached")
	}
}

func TestStaticAssets(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(http.MethodGet, "/static/style.css", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("cache header = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestRequireLogin(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/budget", "/goals", "/graphs"} {
		rr := ts.do(http.MethodGet, path, nil, false)
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Fatalf("%s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	rr := ts.do(http.MethodGet, "/budget", nil, true)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("htmx redirect = %q", rr.Header().Get("HX-Redirect"))
	}
}

func TestChatAnonymous(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/chat", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("chat page status=%d", rr.Code)
	}

	rr = ts.do(http.MethodPost, "/chat", url.Values{"message": {"hi"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("chat post status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "<strong>Ada</strong>") {
		t.Fatalf("reply not rendered as markdown: %s", body)
	}
	if !strings.Contains(body, "How do I save?") {
		t.Fatalf("suggestion missing: %s", body)
	}
	if strings.Contains(body, "<html") {
		t.Fatalf("htmx request got the full page")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "form:reset") {
		t.Fatalf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}

	// history survives in the session
	rr = ts.do(http.MethodGet, "/chat", nil, false)
	if !strings.Contains(rr.Body.String(), "<p>hi</p>") {
		t.Fatalf("history lost: %s", rr.Body.String())
	}
}

func TestChatValidationAndFallback(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/chat", url.Values{"message": {""}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty message status=%d", rr.Code)
	}
	rr = ts.do(http.MethodPost, "/chat", url.Values{"message": {strings.Repeat("x", maxMessageChars+1)}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("long message status=%d", rr.Code)
	}

	ts.reply = ""
	rr = ts.do(http.MethodPost, "/chat", url.Values{"message": {"hello?"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("fallback status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "put together an answer") {
		t.Fatalf("fallback reply missing: %s", rr.Body.String())
	}

	ts.reply = "no json here"
	rr = ts.do(http.MethodPost, "/chat", url.Values{"message": {"again"}}, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "trouble right now") {
		t.Fatalf("malformed reply not handled: %d %s", rr.Code, rr.Body.String())
	}
}

func TestChatQuitAndReset(t *testing.T) {
	ts := newTestServer(t)
	ts.reply = `{"response":"Bye for now!","quit":true,"name":"Ada"}`

	rr := ts.do(http.MethodPost, "/chat", url.Values{"message": {"bye"}}, true)
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "chat:ended") {
		t.Fatalf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if !strings.Contains(rr.Body.String(), "This conversation has ended.") {
		t.Fatalf("ended banner missing")
	}

	rr = ts.do(http.MethodPost, "/chat/reset", url.Values{}, true)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "Bye for now!") {
		t.Fatalf("reset kept history: %s", rr.Body.String())
	}
}

func TestChatPersonaSwitch(t *testing.T) {
	ts := newTestServer(t)
	names := ts.srv.assistant.Catalog().Names()
	if len(names) < 2 {
		t.Skip("catalog has a single persona")
	}
	other := string(names[1])

	rr := ts.do(http.MethodPost, "/chat", url.Values{"persona": {other}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("persona switch status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `value="`+other+`" selected`) {
		t.Fatalf("persona not selected: %s", rr.Body.String())
	}

	// unknown personas are ignored
	rr = ts.do(http.MethodPost, "/chat", url.Values{"persona": {"Nobody"}}, true)
	if !strings.Contains(rr.Body.String(), `value="`+other+`" selected`) {
		t.Fatalf("unknown persona replaced the selection")
	}
}

func TestChatAPI(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got chatAPIResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != "Ada" || got.Quit || got.Fallback || len(got.Suggestions) != 1 {
		t.Fatalf("unexpected response %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", rr.Code)
	}
}

func TestSignupValidationAndLogin(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/signup", url.Values{
		"first_name": {"Ada"},
		"last_name":  {"Lovelace"},
		"email":      {"not-an-email"},
		"password1":  {"short"},
		"password2":  {"other"},
	}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"valid email", "special character"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in %s", want, body)
		}
	}
	if strings.Contains(body, "short") {
		t.Errorf("password echoed back")
	}

	ts.signup("ada@example.com")

	other := newTestServer(t)
	other.store = ts.store
	other.srv.store = ts.store
	rr = other.do(http.MethodPost, "/signup", url.Values{
		"first_name": {"Ada"},
		"last_name":  {"Again"},
		"email":      {"ADA@example.com"},
		"password1":  {"s3cret!pass"},
		"password2":  {"s3cret!pass"},
	}, true)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate email status=%d", rr.Code)
	}

	rr = other.do(http.MethodPost, "/login", url.Values{"email": {"nobody@example.com"}}, true)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email status=%d", rr.Code)
	}
	rr = other.do(http.MethodPost, "/login", url.Values{"email": {" Ada@Example.com "}}, true)
	if rr.Header().Get("HX-Redirect") != "/chat" {
		t.Fatalf("login redirect = %q (status %d)", rr.Header().Get("HX-Redirect"), rr.Code)
	}

	rr = other.do(http.MethodPost, "/logout", url.Values{}, false)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("logout status=%d", rr.Code)
	}
	rr = other.do(http.MethodGet, "/budget", nil, false)
	if rr.Header().Get("Location") != "/login" {
		t.Fatalf("still logged in after logout")
	}
}

func TestBudgetAndGraphs(t *testing.T) {
	ts := newTestServer(t)
	u := ts.signup("budget@example.com")

	rr := ts.do(http.MethodGet, "/graphs", nil, false)
	if !strings.Contains(rr.Body.String(), "nothing to draw yet") {
		t.Fatalf("empty graphs page: %s", rr.Body.String())
	}

	rr = ts.do(http.MethodPost, "/budget", url.Values{"income": {"abc"}, "rent": {"-5"}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid budget status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Please enter a number") || !strings.Contains(rr.Body.String(), "cannot be negative") {
		t.Fatalf("field errors missing: %s", rr.Body.String())
	}
	if _, ok, _ := ts.store.GetBudget(context.Background(), u.ID); ok {
		t.Fatalf("invalid budget was stored")
	}

	rr = ts.do(http.MethodPost, "/budget", url.Values{
		"income":            {"3,000"},
		"monthly_budget":    {"2500"},
		"rent":              {"1000"},
		"food":              {"400"},
		"transport":         {"100"},
		"other_liabilities": {""},
	}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "budget:saved") {
		t.Fatalf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if rec, _, _ := ts.store.GetBudget(context.Background(), u.ID); !rec.Income.OrZero().Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("income %q stored as %s, want 3000", "3,000", rec.Income.OrZero())
	}
	body := rr.Body.String()
	for _, want := range []string{"1,500.00", "500.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("summary missing %q", want)
		}
	}

	rr = ts.do(http.MethodGet, "/graphs", nil, false)
	body = rr.Body.String()
	for _, want := range []string{"Rent", "Remaining Balance", "1,000.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("graphs missing %q", want)
		}
	}
	ts.do(http.MethodGet, "/graphs", nil, false)
	if hits := ts.srv.graphs.Stats().Hits; hits != 1 {
		t.Fatalf("graph cache hits = %d, want 1", hits)
	}

	// saving again invalidates the cached breakdown
	ts.do(http.MethodPost, "/budget", url.Values{"income": {"3000"}, "rent": {"3500"}}, true)
	rr = ts.do(http.MethodGet, "/graphs", nil, false)
	if strings.Contains(rr.Body.String(), "Remaining Balance") {
		t.Fatalf("stale breakdown served")
	}
	if !strings.Contains(rr.Body.String(), "Expenses exceed income") {
		t.Fatalf("over budget warning missing")
	}
}

func TestGoalsLifecycle(t *testing.T) {
	ts := newTestServer(t)
	u := ts.signup("goals@example.com")
	ctx := context.Background()

	rr := ts.do(http.MethodPost, "/goals", url.Values{"goal_name": {""}, "goal_amount": {"0"}, "time_span": {"0"}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid goal status=%d", rr.Code)
	}

	rr = ts.do(http.MethodPost, "/goals", url.Values{"goal_name": {"Laptop"}, "goal_amount": {"1200"}, "time_span": {"12"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "100.00 a month") {
		t.Fatalf("monthly requirement missing: %s", rr.Body.String())
	}
	goals, _ := ts.store.ListGoals(ctx, u.ID)
	if len(goals) != 1 {
		t.Fatalf("goals = %d", len(goals))
	}
	id := goals[0].ID
	if !strings.Contains(rr.Header().Get("HX-Trigger"), id) {
		t.Fatalf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}

	rr = ts.do(http.MethodPost, "/goals/contribute", url.Values{"id": {id}, "amount": {"300"}, "date": {"2024-01-15"}}, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "300.00 of 1,200.00 saved") {
		t.Fatalf("contribute: %d %s", rr.Code, rr.Body.String())
	}
	future := time.Now().AddDate(0, 0, 2).Format(dateLayout)
	rr = ts.do(http.MethodPost, "/goals/contribute", url.Values{"id": {id}, "amount": {"10"}, "date": {future}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("future contribution status=%d", rr.Code)
	}
	rr = ts.do(http.MethodPost, "/goals/contribute", url.Values{"id": {id}, "amount": {"-1"}}, true)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative contribution status=%d", rr.Code)
	}

	rr = ts.do(http.MethodPost, "/goals/edit", url.Values{"id": {id}}, true)
	if !strings.Contains(rr.Body.String(), `action="/goals/update"`) {
		t.Fatalf("edit form not shown")
	}
	rr = ts.do(http.MethodPost, "/goals/update", url.Values{"id": {id}, "goal_name": {"New laptop"}, "goal_amount": {"1500"}, "time_span": {"10"}}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d", rr.Code)
	}
	g, _ := ts.store.GetGoal(ctx, u.ID, id)
	if g.Name != "New laptop" || g.Months != 10 || len(g.SavingsHistory) != 1 {
		t.Fatalf("update result %+v", g)
	}

	ts.reply = "You need **150.00** a month."
	rr = ts.do(http.MethodPost, "/goals/analyze", url.Values{"id": {id}}, true)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<strong>150.00</strong>") {
		t.Fatalf("analyze: %d %s", rr.Code, rr.Body.String())
	}
	g, _ = ts.store.GetGoal(ctx, u.ID, id)
	if g.Analysis == "" {
		t.Fatalf("analysis not stored")
	}

	rr = ts.do(http.MethodPost, "/goals/contribute", url.Values{"id": {"missing"}, "amount": {"1"}}, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing goal status=%d", rr.Code)
	}

	rr = ts.do(http.MethodDelete, "/goals/delete?id="+id, nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if goals, _ := ts.store.ListGoals(ctx, u.ID); len(goals) != 0 {
		t.Fatalf("goal not deleted")
	}
	if ts.srv.goalChanges.Load() != 5 {
		t.Fatalf("goal changes = %d, want 5", ts.srv.goalChanges.Load())
	}
}

func TestGoalsAreScopedToOwner(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signup("owner@example.com")
	g, err := ts.store.CreateGoal(context.Background(), core.GoalRecord{
		UserID: owner.ID, Name: "Car", TargetAmount: mustDecimal(t, "5000"), Months: 20,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	intruder := newTestServer(t)
	intruder.store = ts.store
	intruder.srv.store = ts.store
	intruder.signup("intruder@example.com")

	rr := intruder.do(http.MethodPost, "/goals/delete", url.Values{"id": {g.ID}}, true)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status=%d", rr.Code)
	}
	if _, err := ts.store.GetGoal(context.Background(), owner.ID, g.ID); err != nil {
		t.Fatalf("goal gone: %v", err)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct{ method, path string }{
		{http.MethodGet, "/chat/reset"},
		{http.MethodGet, "/logout"},
		{http.MethodPut, "/chat"},
		{http.MethodGet, "/api/chat"},
	}
	for _, tt := range tests {
		rr := ts.do(tt.method, tt.path, nil, false)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status=%d", tt.method, tt.path, rr.Code)
		}
	}
}
