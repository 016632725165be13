package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang-jwt/jwt/v5"
)

const DefaultPollInterval = 2 * time.Second

const roleAdmin = "ADMIN"

// Synchronizer keeps a MemoryCache consistent with a durable Store. The
// durable store is authoritative: a cache that disagrees with it is
// overwritten, never the reverse.
type Synchronizer struct {
	store    Store
	cache    *MemoryCache
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

type Option func(*Synchronizer)

func WithPollInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSynchronizer(store Store, cache *MemoryCache, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		cache:    cache,
		interval: DefaultPollInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync reconciles the cache from the durable store. A missing, corrupt, or
// expired durable session clears both sides.
func (s *Synchronizer) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked()
}

func (s *Synchronizer) syncLocked() error {
	rec, err := s.store.Load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if err != nil || rec == nil || !s.live(rec.Token) {
		s.cache.Clear()
		if err != nil || rec != nil {
			s.logger.Info("session cleared", "reason", clearReason(err, rec))
			return s.store.Clear()
		}
		return nil
	}
	if !s.cache.Get().equal(rec.User) {
		if s.cache.Get() != nil {
			s.logger.Warn("session cache mismatch, restoring from durable store")
		}
		s.cache.Set(rec.User)
	}
	return nil
}

func clearReason(err error, rec *Record) string {
	switch {
	case err != nil:
		return "corrupt"
	case rec != nil:
		return "expired"
	default:
		return "missing"
	}
}

// Login stores a freshly issued session on both sides.
func (s *Synchronizer) Login(token string, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(&Record{Token: token, User: user}); err != nil {
		return err
	}
	s.cache.Set(user)
	return nil
}

// UpdateUser replaces the stored user while keeping the current token. It
// is a no-op when no session is stored.
func (s *Synchronizer) UpdateUser(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.store.Load()
	if err != nil || rec == nil {
		return err
	}
	rec.User = user
	if err := s.store.Save(rec); err != nil {
		return err
	}
	s.cache.Set(user)
	return nil
}

// Logout clears both sides. The cache is cleared even if the durable store
// cannot be removed.
func (s *Synchronizer) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
	return s.store.Clear()
}

// IsAuthenticated reports whether the durable token exists and has not
// expired. It reads the store on every call and does no network I/O.
func (s *Synchronizer) IsAuthenticated() bool {
	rec, err := s.store.Load()
	if err != nil || rec == nil {
		return false
	}
	return s.live(rec.Token)
}

func (s *Synchronizer) IsAdmin() bool {
	u := s.User()
	return u != nil && u.Role == roleAdmin && s.IsAuthenticated()
}

// User is the fast-path read from the cache.
func (s *Synchronizer) User() *User {
	return s.cache.Get()
}

// Token returns the durable bearer token, or "" when none is live.
func (s *Synchronizer) Token() string {
	rec, err := s.store.Load()
	if err != nil || rec == nil || !s.live(rec.Token) {
		return ""
	}
	return rec.Token
}

func (s *Synchronizer) live(token string) bool {
	exp, ok := TokenExpiry(token)
	return ok && exp.After(s.now())
}

// TokenExpiry decodes the exp claim without verifying the signature.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Watch resynchronizes on every change to the durable file and on a fixed
// poll interval until ctx is cancelled. Change notification is only
// available for a FileStore; other stores fall back to polling.
func (s *Synchronizer) Watch(ctx context.Context) error {
	if err := s.Sync(); err != nil {
		s.logger.Warn("session sync failed", "error", err)
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	var target string
	if fs, ok := s.store.(*FileStore); ok {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create session watcher: %w", err)
		}
		defer watcher.Close()
		// Watch the directory: the file is replaced by rename on save.
		if err := watcher.Add(filepath.Dir(fs.Path())); err != nil {
			return fmt.Errorf("watch session dir: %w", err)
		}
		target = filepath.Clean(fs.Path())
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if err := s.Sync(); err != nil {
				s.logger.Warn("session sync failed", "error", err)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.logger.Warn("session watcher error", "error", err)
		case <-ticker.C:
			if err := s.Sync(); err != nil {
				s.logger.Warn("session sync failed", "error", err)
			}
		}
	}
}
