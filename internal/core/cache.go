// Package core defines the repository contracts shared by the service and data layers.
package core

import (
	"context"
	"time"
)

// CacheRepository is a byte-valued key store with expiry. A missing key reads as nil
// with no error; transport failures are network errors.
type CacheRepository interface {
	// Set writes value under key. A zero ttl keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether a key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// SetIfNotExists writes value only when key is absent and reports whether it did.
	// It is the primitive behind one-shot locks, so it always carries a ttl.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// DocumentCacheKey is where the cache tier keeps a document.
func DocumentCacheKey(collection, key string) string {
	return "doc:" + collection + ":" + key
}

// DocumentCacheConfig sets the lifetime of cached admin and user documents.
type DocumentCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultDocumentCacheConfig keeps documents for a day.
func DefaultDocumentCacheConfig() DocumentCacheConfig {
	return DocumentCacheConfig{TTL: 24 * time.Hour}
}
