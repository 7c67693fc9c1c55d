// Package cache implements the three independent TTL+LRU caches from spec
// §4.13, each wrapping github.com/hashicorp/golang-lru/v2's expirable LRU
// (or, where the spec calls for sliding last-access TTL rather than a
// fixed insertion TTL, its non-expirable Cache plus an explicit access
// timestamp).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	embeddingCacheSize = 1000
	embeddingCacheTTL  = 5 * time.Minute
)

type embeddingEntry struct {
	Vector   []float32
	HitCount int
}

// EmbeddingCache caches embedding vectors keyed by normalized text, per
// spec §4.13.1.
type EmbeddingCache struct {
	mu    sync.Mutex
	inner *expirable.LRU[string, *embeddingEntry]
}

// NewEmbeddingCache constructs an EmbeddingCache with the spec-mandated
// capacity and TTL.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{inner: expirable.NewLRU[string, *embeddingEntry](embeddingCacheSize, nil, embeddingCacheTTL)}
}

// Get returns the cached vector for text, if present and unexpired,
// updating its hit count.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := EmbeddingKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	entry.HitCount++
	return entry.Vector, true
}

// Put stores vector for text.
func (c *EmbeddingCache) Put(text string, vector []float32) {
	key := EmbeddingKey(text)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, &embeddingEntry{Vector: vector})
}

// Len reports the number of live entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Sweep is a no-op: expirable.LRU runs its own background expiration
// goroutine. It exists so Manager can treat all three caches uniformly
// regardless of which eviction strategy backs them.
func (c *EmbeddingCache) Sweep(_ time.Time) {}

// EmbeddingKey is the cache key for text: SHA-256 of the normalized
// (trimmed, lowercased, whitespace-collapsed) text, per spec §4.13.1.
func EmbeddingKey(text string) string {
	return hashHex(normalizeForCacheKey(text))
}

func normalizeForCacheKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
