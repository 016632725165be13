package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": 1,
		"role":   "USER",
		"exp":    exp.Unix(),
	}).SignedString([]byte("client-side-secret-is-never-checked"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newTestSync(t *testing.T, opts ...Option) (*Synchronizer, *FileStore, *MemoryCache) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	cache := NewMemoryCache()
	return NewSynchronizer(store, cache, opts...), store, cache
}

var alice = &User{ID: 1, Email: "alice@example.com", Name: "Alice", Role: "USER", IsActive: true}

func TestLoginPersistsWithOwnerOnlyPermissions(t *testing.T) {
	s, store, cache := newTestSync(t)
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	if !cache.Get().equal(alice) {
		t.Fatalf("cache not populated: %+v", cache.Get())
	}
	if !s.IsAuthenticated() {
		t.Fatal("expected authenticated")
	}
}

func TestSyncRestoresTamperedCache(t *testing.T) {
	s, _, cache := newTestSync(t)
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	forged := alice.clone()
	forged.Role = "ADMIN"
	cache.Set(forged)

	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := s.User(); got == nil || got.Role != "USER" {
		t.Fatalf("expected cache restored from durable store, got %+v", got)
	}
}

func TestSyncClearsExpiredSession(t *testing.T) {
	s, store, cache := newTestSync(t)
	if err := store.Save(&Record{Token: signToken(t, time.Now().Add(-time.Minute)), User: alice}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cache.Set(alice)

	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cache.Get() != nil {
		t.Fatal("expected cache cleared")
	}
	if rec, _ := store.Load(); rec != nil {
		t.Fatalf("expected durable store cleared, got %+v", rec)
	}
}

func TestSyncClearsCorruptSession(t *testing.T) {
	s, store, cache := newTestSync(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cache.Set(alice)

	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cache.Get() != nil {
		t.Fatal("expected cache cleared")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt file removed, got %v", err)
	}
}

func TestSyncWithoutDurableSessionClearsCache(t *testing.T) {
	s, _, cache := newTestSync(t)
	cache.Set(alice)
	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if cache.Get() != nil {
		t.Fatal("expected cache cleared")
	}
}

func TestIsAuthenticatedIsDerivedOnEachCall(t *testing.T) {
	now := time.Now()
	s, _, _ := newTestSync(t, WithClock(func() time.Time { return now }))
	if err := s.Login(signToken(t, now.Add(time.Minute)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !s.IsAuthenticated() {
		t.Fatal("expected authenticated before expiry")
	}
	now = now.Add(2 * time.Minute)
	if s.IsAuthenticated() {
		t.Fatal("expected unauthenticated after expiry")
	}
	if s.Token() != "" {
		t.Fatal("expected no token after expiry")
	}
}

func TestLogoutClearsBothAndIsIdempotent(t *testing.T) {
	s, store, cache := newTestSync(t)
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Logout(); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		if cache.Get() != nil || s.User() != nil {
			t.Fatal("expected cache cleared")
		}
		if rec, _ := store.Load(); rec != nil {
			t.Fatal("expected durable store cleared")
		}
		if s.IsAuthenticated() {
			t.Fatal("expected unauthenticated")
		}
	}
}

func TestUpdateUserKeepsToken(t *testing.T) {
	s, store, _ := newTestSync(t)
	token := signToken(t, time.Now().Add(time.Hour))
	if err := s.Login(token, alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	renamed := alice.clone()
	renamed.Name = "Alice B"
	if err := s.UpdateUser(renamed); err != nil {
		t.Fatalf("update user: %v", err)
	}
	rec, err := store.Load()
	if err != nil || rec == nil {
		t.Fatalf("load: %v", err)
	}
	if rec.Token != token || rec.User.Name != "Alice B" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if s.User().Name != "Alice B" {
		t.Fatalf("cache not updated: %+v", s.User())
	}
}

func TestPermissions(t *testing.T) {
	s, _, _ := newTestSync(t)
	if p := s.Permissions(); p.ViewItems || p.EditItem {
		t.Fatalf("expected no permissions when logged out: %+v", p)
	}
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	if p := s.Permissions(); !p.ViewItems || !p.CreateItem || p.EditItem || p.ManageUsers {
		t.Fatalf("unexpected user permissions: %+v", p)
	}
	admin := alice.clone()
	admin.Role = "ADMIN"
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), admin); err != nil {
		t.Fatalf("login: %v", err)
	}
	if p := s.Permissions(); !p.EditItem || !p.DeleteItem || !p.ManageUsers {
		t.Fatalf("unexpected admin permissions: %+v", p)
	}
}

func TestWatchPicksUpExternalLogout(t *testing.T) {
	s, store, cache := newTestSync(t, WithPollInterval(50*time.Millisecond))
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Another process removes the session file.
	if err := os.Remove(store.Path()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, func() bool { return cache.Get() == nil })

	// Another process logs in as a different user.
	bob := &User{ID: 2, Email: "bob@example.com", Name: "Bob", Role: "USER", IsActive: true}
	if err := store.Save(&Record{Token: signToken(t, time.Now().Add(time.Hour)), User: bob}); err != nil {
		t.Fatalf("save: %v", err)
	}
	waitFor(t, func() bool { u := cache.Get(); return u != nil && u.ID == 2 })
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := TokenExpiry(signToken(t, exp))
	if !ok || !got.Equal(exp) {
		t.Fatalf("expected %v, got %v (%v)", exp, got, ok)
	}
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, ok := TokenExpiry(tok); ok {
			t.Fatalf("expected %q to have no expiry", tok)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMemoryStoreSync(t *testing.T) {
	store := NewMemoryStore()
	cache := NewMemoryCache()
	s := NewSynchronizer(store, cache)
	if err := s.Login(signToken(t, time.Now().Add(time.Hour)), alice); err != nil {
		t.Fatalf("login: %v", err)
	}
	cache.Clear()
	if err := s.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !s.User().equal(alice) {
		t.Fatalf("expected cache rebuilt from memory store, got %+v", s.User())
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if rec, _ := store.Load(); rec != nil {
		t.Fatal("expected memory store cleared")
	}
}
