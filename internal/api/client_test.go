package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL, "test-anon-key", WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return c, ts
}

func TestRequestHeaders(t *testing.T) {
	var gotKey, gotAuth string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))

	c.SetSession("access-abc", "refresh-xyz")
	if err := c.do(context.Background(), http.MethodGet, "/auth/v1/user", nil, nil); err != nil {
		t.Fatal(err)
	}
	if gotKey != "test-anon-key" {
		t.Fatalf("apikey header = %q", gotKey)
	}
	if gotAuth != "Bearer access-abc" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
}

func TestPasswordGrant(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
		}
		json.NewEncoder(w).Encode(Session{
			AccessToken:  "at",
			RefreshToken: "rt",
			TokenType:    "bearer",
			User:         Identity{ID: "u1", Email: "a@b.co"},
		})
	}))

	sess, err := c.PasswordGrant(context.Background(), "a@b.co", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.AccessToken != "at" || sess.User.ID != "u1" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestRemoteErrorClassifiedOnce(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid login credentials","status":400}`))
	}))

	_, err := c.PasswordGrant(context.Background(), "a@b.co", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := KindOf(err); got != KindAuthInvalid {
		t.Fatalf("kind = %s, want auth_invalid", got)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != 400 {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestServerErrorKind(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	err := c.do(context.Background(), http.MethodGet, "/rest/v1/balances", nil, nil)
	if got := KindOf(err); got != KindServer {
		t.Fatalf("kind = %s, want server", got)
	}
}

func TestDeadlineMapsToTimeout(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := WithDeadline(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("kind = %s, want timeout", got)
	}
}

func TestCancellationMapsToCanceled(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, nil)
	if got := KindOf(err); got != KindCanceled {
		t.Fatalf("kind = %s, want canceled", got)
	}
}

func TestUnreachableMapsToNetwork(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := New(url, "k")
	if err != nil {
		t.Fatal(err)
	}
	err = c.do(context.Background(), http.MethodGet, "/auth/v1/user", nil, nil)
	if got := KindOf(err); got != KindNetwork {
		t.Fatalf("kind = %s, want network", got)
	}
}

func TestSelectOneMissingRowIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("single") != "true" || r.URL.Query().Get("limit") != "1" {
			t.Errorf("missing single-row params: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("user_id") != "eq.u1" {
			t.Errorf("missing eq filter: %s", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no rows found"}`))
	}))

	var out Credentials
	err := c.SelectOne(context.Background(), "credentials", Filters{"user_id": "u1"}, &out)
	if got := KindOf(err); got != KindNotFound {
		t.Fatalf("kind = %s, want not_found", got)
	}
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("", "k"); err == nil {
		t.Fatal("expected error for empty URL")
	}
	if _, err := New("http://x", ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSessionTokenLifecycle(t *testing.T) {
	c, err := New("http://localhost", "k")
	if err != nil {
		t.Fatal(err)
	}
	if c.HasSession() {
		t.Fatal("fresh client should not have a session")
	}
	c.SetSession("a", "r")
	if !c.HasSession() {
		t.Fatal("session not installed")
	}
	access, refresh := c.Tokens()
	if access != "a" || refresh != "r" {
		t.Fatalf("tokens = %q/%q", access, refresh)
	}
	c.ClearSession()
	if c.HasSession() {
		t.Fatal("session not cleared")
	}
}
