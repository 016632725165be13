package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
)

const (
	userListNamespace = "users.list"
	userListKey       = "all"
)

// ListCacheStore holds serialized list responses grouped by namespace so a
// whole namespace can be dropped after a write.
type ListCacheStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	InvalidateNamespace(ctx context.Context, namespace string) error
}

type NoopListCacheStore struct{}

func NewNoopListCacheStore() *NoopListCacheStore {
	return &NoopListCacheStore{}
}

func (s *NoopListCacheStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopListCacheStore) Set(context.Context, string, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopListCacheStore) InvalidateNamespace(context.Context, string) error {
	return nil
}

type memoryCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

type InMemoryListCacheStore struct {
	mu    sync.RWMutex
	store map[string]map[string]memoryCacheEntry
	now   func() time.Time
}

func NewInMemoryListCacheStore() *InMemoryListCacheStore {
	return &InMemoryListCacheStore{
		store: make(map[string]map[string]memoryCacheEntry),
		now:   time.Now,
	}
}

func (s *InMemoryListCacheStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.store[namespace][key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		if ns, ok := s.store[namespace]; ok {
			delete(ns, key)
			if len(ns) == 0 {
				delete(s.store, namespace)
			}
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (s *InMemoryListCacheStore) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.store[namespace]
	if !ok {
		ns = make(map[string]memoryCacheEntry)
		s.store[namespace] = ns
	}
	ns[key] = memoryCacheEntry{
		payload:   append([]byte(nil), value...),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *InMemoryListCacheStore) InvalidateNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, namespace)
	return nil
}

// UserListCache serves the admin user listing. Concurrent misses share one
// load, and store failures degrade to a direct read. A load that overlaps an
// Invalidate is returned to its callers but not written back.
type UserListCache struct {
	store      ListCacheStore
	ttl        time.Duration
	logger     *slog.Logger
	group      singleflight.Group
	generation atomic.Uint64
}

func NewUserListCache(store ListCacheStore, ttl time.Duration, logger *slog.Logger) *UserListCache {
	if store == nil {
		store = NewNoopListCacheStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserListCache{store: store, ttl: ttl, logger: logger}
}

func (c *UserListCache) Load(ctx context.Context, load func(context.Context) ([]domain.User, error)) ([]domain.User, error) {
	if c == nil {
		return load(ctx)
	}
	if users, ok := c.get(ctx); ok {
		observability.RecordUserListCacheEvent(ctx, "hit")
		return users, nil
	}
	observability.RecordUserListCacheEvent(ctx, "miss")

	v, err, shared := c.group.Do(userListKey, func() (any, error) {
		gen := c.generation.Load()
		users, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			observability.RecordUserListCacheEvent(ctx, "stale_skip")
			return users, nil
		}
		c.set(ctx, users)
		return users, nil
	})
	if shared {
		observability.RecordUserListCacheEvent(ctx, "shared")
	}
	if err != nil {
		return nil, err
	}
	return append([]domain.User(nil), v.([]domain.User)...), nil
}

func (c *UserListCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	c.generation.Add(1)
	c.group.Forget(userListKey)
	if err := c.store.InvalidateNamespace(ctx, userListNamespace); err != nil {
		observability.RecordUserListCacheEvent(ctx, "invalidate_error")
		c.logger.WarnContext(ctx, "user list cache invalidation failed", "error", err)
		return
	}
	observability.RecordUserListCacheEvent(ctx, "invalidate")
}

func (c *UserListCache) get(ctx context.Context) ([]domain.User, bool) {
	payload, ok, err := c.store.Get(ctx, userListNamespace, userListKey)
	if err != nil {
		observability.RecordUserListCacheEvent(ctx, "error")
		c.logger.WarnContext(ctx, "user list cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var users []domain.User
	if err := json.Unmarshal(payload, &users); err != nil {
		c.logger.WarnContext(ctx, "user list cache payload unreadable", "error", err)
		return nil, false
	}
	return users, true
}

func (c *UserListCache) set(ctx context.Context, users []domain.User) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(users)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, userListNamespace, userListKey, payload, c.ttl); err != nil {
		observability.RecordUserListCacheEvent(ctx, "error")
		c.logger.WarnContext(ctx, "user list cache write failed", "error", err)
	}
}
