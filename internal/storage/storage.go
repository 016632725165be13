// Package storage persists uploaded image assets under namespaced keys such
// as "items/item-1700000000000-123.webp".
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ModTime     time.Time
}

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Delete removes key. Deleting a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (*Object, error)
	Ping(ctx context.Context) error
}

// ValidateKey accepts "<namespace>/<file>" keys made of a single directory
// level with no traversal or absolute components.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	if path.Clean(key) != key {
		return ErrInvalidKey
	}
	parts := strings.Split(key, "/")
	if len(parts) != 2 {
		return ErrInvalidKey
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
