package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorrupt is returned when the durable record cannot be decoded.
var ErrCorrupt = errors.New("session record is corrupt")

type User struct {
	ID       uint    `json:"id"`
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Role     string  `json:"role"`
	IsActive bool    `json:"isActive"`
	Avatar   *string `json:"avatar"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Avatar != nil {
		avatar := *u.Avatar
		c.Avatar = &avatar
	}
	return &c
}

func (u *User) equal(o *User) bool {
	if u == nil || o == nil {
		return u == nil && o == nil
	}
	if (u.Avatar == nil) != (o.Avatar == nil) {
		return false
	}
	if u.Avatar != nil && *u.Avatar != *o.Avatar {
		return false
	}
	return u.ID == o.ID && u.Email == o.Email && u.Name == o.Name && u.Role == o.Role && u.IsActive == o.IsActive
}

// Record is the durable session: the bearer token and the user it was
// issued for.
type Record struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Store is the durable side of a session. Load returns nil, nil when no
// session is stored.
type Store interface {
	Load() (*Record, error)
	Save(rec *Record) error
	Clear() error
}

// FileStore keeps the record as a JSON file readable only by its owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load() (*Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, ErrCorrupt
	}
	if rec.Token == "" {
		return nil, nil
	}
	return &rec, nil
}

// Save writes to a temporary file and renames it so readers never observe a
// partial record.
func (s *FileStore) Save(rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// MemoryCache holds the user for immediate reads. It is never trusted over
// the durable store.
type MemoryCache struct {
	mu   sync.RWMutex
	user *User
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user.clone()
}

func (c *MemoryCache) Set(u *User) {
	c.mu.Lock()
	c.user = u.clone()
	c.mu.Unlock()
}

func (c *MemoryCache) Clear() {
	c.Set(nil)
}

// MemoryStore is a process-local durable store for short-lived clients such
// as load generators.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	rec := Record{Token: s.rec.Token, User: s.rec.User.clone()}
	return &rec, nil
}

func (s *MemoryStore) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil || rec.Token == "" {
		s.rec = nil
		return nil
	}
	s.rec = &Record{Token: rec.Token, User: rec.User.clone()}
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save(nil)
}
