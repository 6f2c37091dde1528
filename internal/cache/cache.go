// Package cache provides TTL-bound JSON caches on top of a blob store. The
// shop verification cache and the taxonomy corpus cache are both instances
// of it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefrontlab/catalog-crawler/internal/storage"
)

// Cache persists JSON values with an expiry under a path prefix. Entries are
// durable across runs; a stale entry behaves like a miss.
type Cache struct {
	blobs  storage.BlobStore
	prefix string
	clock  func() time.Time
}

type envelope struct {
	ExpiresAt time.Time       `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
}

// New creates a Cache rooted at prefix.
func New(blobs storage.BlobStore, prefix string) *Cache {
	return &Cache{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		clock:  time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.clock = clock
	return c
}

// Get unmarshals the cached value for key into v. It returns false on a miss
// or an expired entry; an unreadable entry is treated as a miss.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.blobs.GetObject(ctx, c.path(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read cache entry: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, nil
	}
	if !env.ExpiresAt.IsZero() && !c.clock().Before(env.ExpiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return false, fmt.Errorf("decode cache payload: %w", err)
	}
	return true, nil
}

// Put stores v under key with the given TTL. A zero TTL stores the entry
// without expiry.
func (c *Cache) Put(ctx context.Context, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache payload: %w", err)
	}
	env := envelope{Payload: payload}
	if ttl > 0 {
		env.ExpiresAt = c.clock().Add(ttl)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if _, err := c.blobs.PutObject(ctx, c.path(key), "application/json", strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// path maps an arbitrary key onto a filesystem-safe blob path.
func (c *Cache) path(key string) string {
	safe := sanitizeKey(key)
	if safe == "" {
		sum := sha256.Sum256([]byte(key))
		safe = hex.EncodeToString(sum[:16])
	}
	return c.prefix + "/" + safe + ".json"
}

func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
