package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func newTestServerStore(t *testing.T) (*ServerStore, *memoryBackend) {
	t.Helper()
	backend := newMemoryBackend()
	return newServerStore(backend, 3600, []byte("test-secret")), backend
}

// requestWith builds a request carrying the cookies set on rec.
func requestWith(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func saveUser(t *testing.T, store *ServerStore, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	session, err := store.Get(req, sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	session.Values[userKey] = user
	if err := session.Save(req, rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	return rec
}

func TestServerStore_NewSession(t *testing.T) {
	store, _ := newTestServerStore(t)

	session, err := store.Get(httptest.NewRequest(http.MethodGet, "/", nil), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !session.IsNew {
		t.Error("expected a new session")
	}
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected no user in a new session")
	}
}

func TestServerStore_SaveAndLoad(t *testing.T) {
	store, backend := newTestServerStore(t)

	rec := saveUser(t, store, "User1")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionName {
		t.Fatalf("expected one %q cookie, got %v", sessionName, cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("expected HttpOnly session cookie")
	}
	if len(backend.entries) != 1 {
		t.Errorf("expected 1 stored session, got %d", len(backend.entries))
	}

	session, err := store.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if session.IsNew {
		t.Error("expected an existing session")
	}
	if got := session.Values[userKey]; got != "User1" {
		t.Errorf("expected user User1, got %v", got)
	}
}

func TestServerStore_ForgedCookie(t *testing.T) {
	store, _ := newTestServerStore(t)
	saveUser(t, store, "User1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "not-a-signed-id"})

	session, err := store.Get(req, sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected forged cookie to yield no user")
	}
}

func TestServerStore_OtherSecretRejected(t *testing.T) {
	store, _ := newTestServerStore(t)
	rec := saveUser(t, store, "User1")

	other := newServerStore(store.backend, 3600, []byte("another-secret"))
	session, err := other.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected cookie signed with another secret to be rejected")
	}
}

func TestServerStore_Destroy(t *testing.T) {
	store, backend := newTestServerStore(t)
	rec := saveUser(t, store, "User1")

	req := requestWith(rec)
	session, _ := store.Get(req, sessionName)
	session.Options.MaxAge = -1
	out := httptest.NewRecorder()
	if err := session.Save(req, out); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if len(backend.entries) != 0 {
		t.Errorf("expected session removed from backend, %d left", len(backend.entries))
	}
	cookies := out.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expiring cookie, got %v", cookies)
	}

	// The old cookie no longer names a session.
	session, _ = store.Get(requestWith(rec), sessionName)
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected destroyed session to have no user")
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	store, backend := newTestServerStore(t)
	now := time.Now()
	backend.now = func() time.Time { return now }

	rec := saveUser(t, store, "User1")
	saveUser(t, store, "User2")

	now = now.Add(2 * time.Hour)

	session, _ := store.Get(requestWith(rec), sessionName)
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected expired session to have no user")
	}

	if n := backend.sweep(); n != 1 {
		t.Errorf("expected sweep to remove 1 session, removed %d", n)
	}
	if len(backend.entries) != 0 {
		t.Errorf("expected no sessions left, got %d", len(backend.entries))
	}
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := newCookieStore(3600, []byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, _ := store.Get(req, sessionName)
	session.Values[userKey] = "User2"
	if err := session.Save(req, rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	session, err := store.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got := session.Values[userKey]; got != "User2" {
		t.Errorf("expected user User2, got %v", got)
	}
}

// brokenDeleteBackend stores sessions but cannot delete them.
type brokenDeleteBackend struct {
	*memoryBackend
}

func (brokenDeleteBackend) delete(context.Context, string) error {
	return errors.New("backend unavailable")
}

func TestServerStore_DestroyClearsCookieWhenDeleteFails(t *testing.T) {
	store := newServerStore(brokenDeleteBackend{newMemoryBackend()}, 3600, []byte("test-secret"))
	rec := saveUser(t, store, "User1")

	req := requestWith(rec)
	session, _ := store.Get(req, sessionName)
	session.Options.MaxAge = -1
	out := httptest.NewRecorder()
	if err := session.Save(req, out); err == nil {
		t.Fatal("expected the delete error to be returned")
	}

	cookies := out.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionName || cookies[0].MaxAge >= 0 {
		t.Errorf("expected the session cookie to be cleared anyway, got %v", cookies)
	}
}

func newTestRedisStore(t *testing.T) (*ServerStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newServerStore(newRedisBackend(client), 3600, []byte("test-secret")), mr
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store, mr := newTestRedisStore(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, _ := store.Get(req, sessionName)
	session.Values[userKey] = "User1"
	if err := session.Save(req, rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	key := "session:" + session.ID
	if !mr.Exists(key) {
		t.Fatalf("expected redis key %q", key)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %v", ttl)
	}

	loaded, err := store.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if loaded.IsNew {
		t.Error("expected an existing session")
	}
	if got := loaded.Values[userKey]; got != "User1" {
		t.Errorf("expected user User1, got %v", got)
	}
}

func TestRedisStore_Missing(t *testing.T) {
	store, mr := newTestRedisStore(t)
	rec := saveUser(t, store, "User1")

	// A validly signed id whose key is gone is a miss, not an error.
	mr.FlushAll()

	session, err := store.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !session.IsNew {
		t.Error("expected a fresh session")
	}
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected no user for a missing redis key")
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	rec := saveUser(t, store, "User1")

	mr.FastForward(2 * time.Hour)

	session, err := store.Get(requestWith(rec), sessionName)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected expired session to have no user")
	}
}

func TestRedisStore_Destroy(t *testing.T) {
	store, mr := newTestRedisStore(t)
	rec := saveUser(t, store, "User1")

	req := requestWith(rec)
	session, _ := store.Get(req, sessionName)
	key := "session:" + session.ID
	session.Options.MaxAge = -1
	if err := session.Save(req, httptest.NewRecorder()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if mr.Exists(key) {
		t.Errorf("expected redis key %q to be deleted", key)
	}
	session, _ = store.Get(requestWith(rec), sessionName)
	if _, ok := session.Values[userKey]; ok {
		t.Error("expected destroyed session to have no user")
	}
}
