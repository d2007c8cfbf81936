package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"wafra.app/internal/api"
	"wafra.app/internal/config"
	"wafra.app/internal/locale"
)

// memStore is an in-memory TokenStore.
type memStore struct {
	access, refresh string
}

func (s *memStore) SaveTokens(access, refresh string) error {
	s.access, s.refresh = access, refresh
	return nil
}
func (s *memStore) LoadTokens() (string, string, error) { return s.access, s.refresh, nil }
func (s *memStore) ClearTokens() error                  { s.access, s.refresh = "", ""; return nil }

// backend is a minimal fake of the hosted API with a request counter.
type backend struct {
	requests atomic.Int64

	loginStatus  int    // 0 means success
	loginBody    string // error body when loginStatus != 0
	failProfiles bool
	failLogout   bool
	failRefresh  bool
}

func (b *backend) handler(t *testing.T) http.Handler {
	identity := api.Identity{ID: "u1", Email: "user@example.com", CreatedAt: time.Now().Add(-time.Hour)}
	session := api.Session{AccessToken: "access-token", RefreshToken: "refresh-token", TokenType: "bearer", User: identity}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
			if b.loginStatus != 0 {
				w.WriteHeader(b.loginStatus)
				w.Write([]byte(b.loginBody))
				return
			}
			json.NewEncoder(w).Encode(session)

		case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
			if b.failRefresh {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Token has expired or is invalid"}`))
				return
			}
			json.NewEncoder(w).Encode(session)

		case r.URL.Path == "/auth/v1/signup":
			json.NewEncoder(w).Encode(session)

		case r.URL.Path == "/auth/v1/user":
			json.NewEncoder(w).Encode(identity)

		case r.URL.Path == "/auth/v1/logout":
			if b.failLogout {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"message":"session store down"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)

		case r.URL.Path == "/auth/v1/otp":
			w.Write([]byte(`{}`))

		case r.URL.Path == "/rest/v1/credentials":
			json.NewEncoder(w).Encode(api.Credentials{UserID: "u1", Username: "user", AccountNumber: "910000000001"})

		case r.URL.Path == "/rest/v1/profiles":
			if b.failProfiles {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"message":"profile service down"}`))
				return
			}
			json.NewEncoder(w).Encode(api.Profile{UserID: "u1", FullName: "Test User", KYCStatus: "verified"})

		case r.URL.Path == "/rest/v1/balances":
			json.NewEncoder(w).Encode(api.Balance{UserID: "u1", Currency: "SAR", Available: 5000})

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestManager(t *testing.T, b *backend, opts ...Option) *Manager {
	t.Helper()
	ts := httptest.NewServer(b.handler(t))
	t.Cleanup(ts.Close)
	client, err := api.New(ts.URL, "anon", api.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(client, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestLoginValidationMakesNoNetworkCall(t *testing.T) {
	b := &backend{}
	m := newTestManager(t, b)

	_, err := m.Login(context.Background(), "not-an-email", "secret123")
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if opErr.Message != locale.MsgInvalidEmailFormat {
		t.Fatalf("message = %q, want %q", opErr.Message, locale.MsgInvalidEmailFormat)
	}

	_, err = m.Login(context.Background(), "user@example.com", "short")
	opErr, ok = err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if opErr.Message != locale.MsgPasswordTooShort {
		t.Fatalf("message = %q, want %q", opErr.Message, locale.MsgPasswordTooShort)
	}

	if n := b.requests.Load(); n != 0 {
		t.Fatalf("validation errors reached the network: %d requests", n)
	}
	if snap := m.Snapshot(); snap.Err != locale.MsgPasswordTooShort {
		t.Fatalf("snapshot error = %q", snap.Err)
	}
}

func TestLoginSuccess(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, &backend{}, WithTokenStore(store))

	user, err := m.Login(context.Background(), "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if user.Identity.ID != "u1" {
		t.Fatalf("user id = %q", user.Identity.ID)
	}
	if user.Credentials == nil || user.Balance == nil || user.Profile == nil {
		t.Fatalf("enrichment incomplete: %+v", user)
	}

	snap := m.Snapshot()
	if snap.State != StateAuthenticated || snap.Loading || snap.Err != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if store.refresh != "refresh-token" {
		t.Fatalf("tokens not persisted: %q", store.refresh)
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	b := &backend{loginStatus: http.StatusBadRequest, loginBody: `{"message":"Invalid login credentials"}`}
	m := newTestManager(t, b)

	_, err := m.Login(context.Background(), "user@example.com", "wrongpass")
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T: %v", err, err)
	}
	if opErr.Kind != api.KindAuthInvalid {
		t.Fatalf("kind = %s", opErr.Kind)
	}
	if opErr.Message != locale.MsgWrongCredentials {
		t.Fatalf("message = %q, want %q", opErr.Message, locale.MsgWrongCredentials)
	}

	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.Loading {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Err != locale.MsgWrongCredentials {
		t.Fatalf("snapshot error = %q", snap.Err)
	}
}

func TestLoginTimeoutSettles(t *testing.T) {
	hang := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hang.Close()
	client, err := api.New(hang.URL, "anon", api.WithHTTPClient(hang.Client()))
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(client, WithTimeouts(config.Timeouts{Login: 50 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err = m.Login(context.Background(), "user@example.com", "secret123")
	if time.Since(start) > 5*time.Second {
		t.Fatal("login did not respect its deadline")
	}
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if opErr.Kind != api.KindTimeout {
		t.Fatalf("kind = %s, want timeout", opErr.Kind)
	}
	if opErr.Message != locale.MsgOperationTimedOut {
		t.Fatalf("message = %q", opErr.Message)
	}

	snap := m.Snapshot()
	if snap.Loading {
		t.Fatal("snapshot still loading after timeout")
	}
	if snap.State != StateUnauthenticated {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestEnrichmentIsAllSettled(t *testing.T) {
	m := newTestManager(t, &backend{failProfiles: true})

	user, err := m.Login(context.Background(), "user@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if user.Profile != nil {
		t.Fatal("profile should be missing")
	}
	if user.Credentials == nil || user.Balance == nil {
		t.Fatal("surviving sub-fetches should still land")
	}
	if snap := m.Snapshot(); snap.State != StateAuthenticated || snap.Err != "" {
		t.Fatalf("partial enrichment must not fail the login: %+v", snap)
	}
}

func TestStaleCompletionDiscarded(t *testing.T) {
	m := newTestManager(t, &backend{})

	e1 := m.begin(StateAuthenticating)
	e2 := m.begin(StateAuthenticating)

	m.commitUser(e1, &ExtendedUser{Identity: api.Identity{ID: "stale"}})
	if snap := m.Snapshot(); snap.User != nil {
		t.Fatalf("stale commit applied: %+v", snap.User)
	}

	m.commitSignedOut(e2)
	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.Loading {
		t.Fatalf("current commit not applied: %+v", snap)
	}
}

func TestRestoreWithoutTokens(t *testing.T) {
	b := &backend{}
	m := newTestManager(t, b, WithTokenStore(&memStore{}))

	user, err := m.Restore(context.Background())
	if err != nil || user != nil {
		t.Fatalf("got user=%v err=%v", user, err)
	}
	if n := b.requests.Load(); n != 0 {
		t.Fatalf("restore without tokens made %d requests", n)
	}
	if snap := m.Snapshot(); snap.State != StateUnauthenticated || snap.Loading {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRestoreValidToken(t *testing.T) {
	store := &memStore{access: mintToken(t, time.Now().Add(time.Hour)), refresh: "rt"}
	m := newTestManager(t, &backend{}, WithTokenStore(store))

	user, err := m.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if user == nil || user.Identity.ID != "u1" {
		t.Fatalf("user = %+v", user)
	}
	if snap := m.Snapshot(); snap.State != StateAuthenticated {
		t.Fatalf("state = %s", snap.State)
	}
}

func TestRestoreExpiredSessionIsSilent(t *testing.T) {
	store := &memStore{access: mintToken(t, time.Now().Add(-time.Hour)), refresh: "stale-rt"}
	m := newTestManager(t, &backend{failRefresh: true}, WithTokenStore(store))

	user, err := m.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore failure must not surface an error, got %v", err)
	}
	if user != nil {
		t.Fatalf("user = %+v", user)
	}
	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.Err != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if store.access != "" || store.refresh != "" {
		t.Fatal("dead tokens not cleared")
	}
}

func TestRestoreKeepsTokensOnNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	store := &memStore{access: mintToken(t, time.Now().Add(-time.Hour)), refresh: "offline-rt"}
	client, err := api.New(url, "anon")
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(client, WithTokenStore(store))
	if err != nil {
		t.Fatal(err)
	}

	user, err := m.Restore(context.Background())
	if err != nil || user != nil {
		t.Fatalf("got user=%v err=%v", user, err)
	}
	if snap := m.Snapshot(); snap.State != StateUnauthenticated || snap.Err != "" {
		t.Fatalf("snapshot = %+v", snap)
	}
	// An unreachable backend is not a rejection; the next launch retries.
	if store.refresh != "offline-rt" {
		t.Fatalf("transient failure cleared the persisted tokens: %q", store.refresh)
	}
}

func TestLogoutClearsStateEvenWhenRemoteFails(t *testing.T) {
	store := &memStore{}
	b := &backend{failLogout: true}
	m := newTestManager(t, b, WithTokenStore(store))

	if _, err := m.Login(context.Background(), "user@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout must swallow remote failure, got %v", err)
	}
	snap := m.Snapshot()
	if snap.State != StateUnauthenticated || snap.User != nil {
		t.Fatalf("snapshot = %+v", snap)
	}
	if store.access != "" || store.refresh != "" {
		t.Fatal("persisted tokens not cleared")
	}

	// Second logout is a no-op: no further requests.
	before := b.requests.Load()
	if err := m.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if after := b.requests.Load(); after != before {
		t.Fatalf("idempotent logout made %d extra requests", after-before)
	}
}

func TestSendOTPThrottled(t *testing.T) {
	b := &backend{}
	m := newTestManager(t, b, WithOTPLimit(rate.Every(time.Hour), 1))

	if err := m.SendOTP(context.Background(), api.OTPParams{Email: "user@example.com", Type: "email"}); err != nil {
		t.Fatal(err)
	}
	before := b.requests.Load()

	err := m.SendOTP(context.Background(), api.OTPParams{Email: "user@example.com", Type: "email"})
	opErr, ok := err.(*OpError)
	if !ok {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if opErr.Kind != api.KindRateLimited {
		t.Fatalf("kind = %s", opErr.Kind)
	}
	if opErr.Message != locale.MsgTooManyAttempts {
		t.Fatalf("message = %q", opErr.Message)
	}
	if b.requests.Load() != before {
		t.Fatal("throttled send reached the network")
	}
}

func TestSendOTPRequiresTarget(t *testing.T) {
	b := &backend{}
	m := newTestManager(t, b)

	err := m.SendOTP(context.Background(), api.OTPParams{Type: "email"})
	opErr, ok := err.(*OpError)
	if !ok || opErr.Message != locale.MsgTargetRequired {
		t.Fatalf("got %v", err)
	}
	if b.requests.Load() != 0 {
		t.Fatal("validation error reached the network")
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	m := newTestManager(t, &backend{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := m.Subscribe(ctx)

	if _, err := m.Login(context.Background(), "user@example.com", "secret123"); err != nil {
		t.Fatal(err)
	}

	sawAuthenticating, sawAuthenticated := false, false
	deadline := time.After(2 * time.Second)
	for !sawAuthenticated {
		select {
		case snap := <-ch:
			if snap.State == StateAuthenticating {
				sawAuthenticating = true
			}
			if snap.State == StateAuthenticated {
				sawAuthenticated = true
			}
		case <-deadline:
			t.Fatal("did not observe authenticated state")
		}
	}
	if !sawAuthenticating {
		t.Fatal("did not observe authenticating state")
	}
}

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}
