package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fincon/internal/auth"
	"fincon/internal/docstore/memory"
	"fincon/internal/ledger"
	applog "fincon/internal/log"
	"fincon/internal/services"
)

type captureMailer struct {
	mu    sync.Mutex
	token string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

type testEnv struct {
	srv    *Server
	mailer *captureMailer
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store := memory.New()
	mailer := &captureMailer{}
	identity := auth.NewLocal(store, mailer, auth.LocalConfig{
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		BcryptCost: bcrypt.MinCost,
	})
	l := ledger.New(store)
	accounts := services.NewAccountService(store, store, identity, nil, l)

	if opts.Logger == nil {
		opts.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	if opts.RateLimitPerMinute == 0 {
		opts.RateLimitPerMinute = 1000
	}
	srv := NewServer(opts, identity, l, accounts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if strings.HasPrefix(body, "{") {
		req.Header.Set("Content-Type", "application/json")
	} else if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"`+email+`","password":"secret1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup status=%d body=%s", rr.Code, rr.Body.String())
	}
	var sess sessionView
	if err := json.Unmarshal(rr.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Token == "" || sess.Identity.Email != email {
		t.Fatalf("unexpected session %+v", sess)
	}
	return sess.Token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := env.do(t, http.MethodGet, path, "", ""); rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestEnv(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	if rr := down.do(t, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.signup(t, "ana@example.com")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"duplicate email", "/api/auth/signup", `{"email":"ana@example.com","password":"secret1"}`, http.StatusConflict},
		{"invalid email", "/api/auth/signup", `{"email":"nope","password":"secret1"}`, http.StatusUnprocessableEntity},
		{"weak password", "/api/auth/signup", `{"email":"bob@example.com","password":"123"}`, http.StatusUnprocessableEntity},
		{"malformed json", "/api/auth/signup", `{"email":`, http.StatusBadRequest},
		{"wrong password", "/api/auth/login", `{"email":"ana@example.com","password":"nope123"}`, http.StatusUnauthorized},
		{"unknown account", "/api/auth/login", `{"email":"zoe@example.com","password":"secret1"}`, http.StatusUnauthorized},
		{"login ok", "/api/auth/login", `{"email":"ANA@example.com","password":"secret1"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, "", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d, body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if rr.Code >= 400 && rr.Code != http.StatusBadRequest {
				if body := decode[errorBody](t, rr); body.Error == "" {
					t.Fatal("error body missing message")
				}
			}
		})
	}
}

func TestTransactionsRequireAuth(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, token := range []string{"", "not-a-token"} {
		rr := env.do(t, http.MethodGet, "/api/transactions", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status=%d, want 401", token, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("missing WWW-Authenticate header")
		}
	}
}

func TestTransactionLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signup(t, "ana@example.com")

	for _, body := range []string{
		`{"description":"salary","amount":1000,"type":"income"}`,
		`{"description":"rent","amount":"200","type":"expense"}`,
		`description=coffee&amount=50&type=expense`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", token, body); rr.Code != http.StatusAccepted {
			t.Fatalf("create %s: status=%d body=%s", body, rr.Code, rr.Body.String())
		}
	}

	list := decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", token, ""))
	if len(list.Transactions) != 3 {
		t.Fatalf("got %d transactions, want 3", len(list.Transactions))
	}
	if list.Transactions[0].Description != "coffee" || list.Transactions[2].Description != "salary" {
		t.Fatalf("not newest first: %+v", list.Transactions)
	}
	if list.Transactions[0].Signed != "-50.00" || list.Transactions[2].Signed != "+1000.00" {
		t.Fatalf("unexpected signed amounts: %+v", list.Transactions)
	}
	want := totalsView{TotalIncome: "1000.00", TotalExpenses: "250.00", Balance: "750.00"}
	if list.Totals != want {
		t.Fatalf("totals = %+v, want %+v", list.Totals, want)
	}
	if got := decode[totalsView](t, env.do(t, http.MethodGet, "/api/summary", token, "")); got != want {
		t.Fatalf("summary = %+v, want %+v", got, want)
	}

	rentID := list.Transactions[1].ID
	if rr := env.do(t, http.MethodPut, "/api/transactions/"+rentID, token, `{"description":"rent (june)","amount":"210.5"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("update status=%d", rr.Code)
	}
	coffeeID := list.Transactions[0].ID
	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+coffeeID, token, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}

	list = decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", token, ""))
	if len(list.Transactions) != 2 {
		t.Fatalf("got %d transactions after delete, want 2", len(list.Transactions))
	}
	if list.Transactions[0].Description != "rent (june)" || list.Transactions[0].Amount != "210.50" || list.Transactions[0].Type != "expense" {
		t.Fatalf("update not applied: %+v", list.Transactions[0])
	}
	if list.Totals.Balance != "789.50" {
		t.Fatalf("balance = %s, want 789.50", list.Totals.Balance)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signup(t, "ana@example.com")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty description", `{"description":"  ","amount":"5","type":"expense"}`, http.StatusUnprocessableEntity},
		{"unknown type", `{"description":"gift","amount":"5","type":"transfer"}`, http.StatusUnprocessableEntity},
		{"missing type", `{"description":"gift","amount":"5"}`, http.StatusUnprocessableEntity},
		{"unparseable amount stores zero", `{"description":"odd","amount":"abc","type":"income"}`, http.StatusAccepted},
		{"oversized body", `{"description":"` + strings.Repeat("x", maxBodyBytes) + `","type":"income"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(t, http.MethodPost, "/api/transactions", token, tt.body); rr.Code != tt.want {
				t.Fatalf("status=%d, want %d", rr.Code, tt.want)
			}
		})
	}

	list := decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", token, ""))
	if len(list.Transactions) != 1 || list.Transactions[0].Amount != "0.00" {
		t.Fatalf("unexpected transactions %+v", list.Transactions)
	}
	if rr := env.do(t, http.MethodPut, "/api/transactions/"+list.Transactions[0].ID, token, `{"description":""}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("update with empty description status=%d", rr.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	env := newTestEnv(t, Options{})
	ana := env.signup(t, "ana@example.com")
	bob := env.signup(t, "bob@example.com")

	env.do(t, http.MethodPost, "/api/transactions", ana, `{"description":"salary","amount":"100","type":"income"}`)
	anaList := decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", ana, ""))

	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+anaList.Transactions[0].ID, bob, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("foreign delete status=%d", rr.Code)
	}
	bobList := decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", bob, ""))
	if len(bobList.Transactions) != 0 {
		t.Fatalf("bob sees %d transactions", len(bobList.Transactions))
	}
	anaList = decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", ana, ""))
	if len(anaList.Transactions) != 1 {
		t.Fatalf("bob's delete reached ana's collection")
	}
}

func TestPasswordResetAndLogout(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signup(t, "ana@example.com")

	if rr := env.do(t, http.MethodPost, "/api/auth/reset", "", `{"email":"nobody@example.com"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("reset for unknown email status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/auth/reset", "", `{"email":"ana@example.com"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("reset status=%d", rr.Code)
	}
	env.mailer.mu.Lock()
	resetToken := env.mailer.token
	env.mailer.mu.Unlock()

	body := `{"token":"` + resetToken + `","password":"newsecret"}`
	if rr := env.do(t, http.MethodPost, "/api/auth/reset/confirm", "", body); rr.Code != http.StatusNoContent {
		t.Fatalf("confirm status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPost, "/api/auth/reset/confirm", "", body); rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused reset token status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"newsecret"}`); rr.Code != http.StatusOK {
		t.Fatalf("login with new password status=%d", rr.Code)
	}

	if rr := env.do(t, http.MethodPost, "/api/auth/logout", token, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/summary", token, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status=%d", rr.Code)
	}
}

func TestProfileAndAccountDeletion(t *testing.T) {
	env := newTestEnv(t, Options{})
	token := env.signup(t, "ana.rossi@example.com")
	env.do(t, http.MethodPost, "/api/transactions", token, `{"description":"salary","amount":"100","type":"income"}`)

	p := decode[profileView](t, env.do(t, http.MethodGet, "/api/profile", token, ""))
	if p.DisplayName != "ana.rossi" || p.Email != "ana.rossi@example.com" || p.CreatedAt == nil {
		t.Fatalf("unexpected profile %+v", p)
	}

	if rr := env.do(t, http.MethodDelete, "/api/profile", token, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete account status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, "/api/transactions", token, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("token still valid after deletion: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana.rossi@example.com","password":"secret1"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("deleted account can log in: %d", rr.Code)
	}

	// The address is free again and the new account starts empty.
	fresh := env.signup(t, "ana.rossi@example.com")
	list := decode[snapshotView](t, env.do(t, http.MethodGet, "/api/transactions", fresh, ""))
	if len(list.Transactions) != 0 {
		t.Fatalf("new account inherited %d transactions", len(list.Transactions))
	}
}

func TestAccountDeletionEndsEverySession(t *testing.T) {
	env := newTestEnv(t, Options{})
	first := env.signup(t, "ana@example.com")
	rr := env.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"secret1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d", rr.Code)
	}
	second := decode[sessionView](t, rr).Token

	if rr := env.do(t, http.MethodDelete, "/api/profile", first, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete account status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := env.do(t, http.MethodPost, "/api/transactions", second, `{"description":"ghost","amount":"5","type":"income"}`); rr.Code != http.StatusUnauthorized {
		t.Fatalf("write with other session after deletion: status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/transactions", second, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("read with other session after deletion: status=%d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		env.do(t, http.MethodGet, "/api/summary", "", "")
	}
	rr := env.do(t, http.MethodGet, "/api/summary", "", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if rr := env.do(t, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("probes must not be limited: %d", rr.Code)
	}
	if m := env.srv.Metrics(); m.RateLimitHits != 1 || m.Requests != 4 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestResponsesCarrySecurityHeaders(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing headers: %v", rr.Header())
	}
}

// readEvent reads one server-sent event and decodes its data.
func readEvent(t *testing.T, r *bufio.Reader) (string, snapshotView) {
	t.Helper()
	var event string
	var snap snapshotView
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				t.Fatalf("decode event data: %v", err)
			}
		case line == "" && event != "":
			return event, snap
		}
	}
}

func TestStreamDeliversSnapshots(t *testing.T) {
	env := newTestEnv(t, Options{Heartbeat: time.Hour})
	token := env.signup(t, "ana@example.com")

	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/transactions/stream?access_token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("status=%d content-type=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	events := bufio.NewReader(resp.Body)

	event, snap := readEvent(t, events)
	if event != "snapshot" || len(snap.Transactions) != 0 || snap.Totals.Balance != "0.00" {
		t.Fatalf("unexpected initial event %q %+v", event, snap)
	}

	if rr := env.do(t, http.MethodPost, "/api/transactions", token, `{"description":"salary","amount":"1000","type":"income"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("create status=%d", rr.Code)
	}

	_, snap = readEvent(t, events)
	if len(snap.Transactions) != 1 || snap.Totals.TotalIncome != "1000.00" {
		t.Fatalf("unexpected snapshot after write %+v", snap)
	}
}

func TestStreamRequiresAuth(t *testing.T) {
	env := newTestEnv(t, Options{})
	if rr := env.do(t, http.MethodGet, "/api/transactions/stream", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rr.Code)
	}
}
