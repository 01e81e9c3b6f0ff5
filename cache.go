package nova

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// cacheSchemaVersion is folded into every key so a change to key derivation
// invalidates all prior entries at once.
const cacheSchemaVersion = "nova:v1"

// DefaultCacheTTL is the entry lifetime used when callers pass a zero TTL.
const DefaultCacheTTL = time.Hour

// Cache is a content-addressed store of full generation text.
// Implementations are externally synchronized and must tolerate concurrent
// writers; entries are never mutated and expire rather than being invalidated.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CacheKey derives the stable content address for one generation: the SHA-256
// of a pipe-joined string of the schema version, the model identity, the
// context window size, the prompt, and the sampling configuration serialized
// with sorted field names. Model identity and context window are part of the
// key because cached text is invalid if the serving model changes; sampling
// configuration is included because different sampling can legitimately
// produce different acceptable outputs.
func CacheKey(model string, contextWindow int, prompt string, cfg SamplingConfig) string {
	joined := strings.Join([]string{
		cacheSchemaVersion,
		model,
		fmt.Sprintf("%d", contextWindow),
		prompt,
		cfg.canonical(),
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// failOpenCache wraps a Cache so storage errors never reach a loop: a failed
// Get is a miss, a failed Set is a no-op. Caching is a performance
// optimization, never a correctness dependency.
type failOpenCache struct {
	inner  Cache
	logger *slog.Logger
}

func (c *failOpenCache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.inner == nil {
		return "", false, nil
	}
	v, ok, err := c.inner.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", "error", err)
		return "", false, nil
	}
	return v, ok, nil
}

func (c *failOpenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.inner == nil {
		return nil
	}
	if err := c.inner.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("cache set failed, skipping", "error", err)
	}
	return nil
}

// MemoryCache is an in-process Cache with TTL expiry. Entries are dropped
// lazily on read and during Set sweeps. Safe for concurrent use. Intended
// for tests and single-process deployments; use store/badgercache for a
// persistent cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

type memoryCacheEntry struct {
	value  string
	expiry time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if c.now().After(e.expiry) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	// Opportunistic sweep keeps the map from accumulating dead entries.
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryCacheEntry{value: value, expiry: now.Add(ttl)}
	return nil
}

// compile-time check
var _ Cache = (*MemoryCache)(nil)
