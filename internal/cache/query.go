package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dangrewal8/patientqa/internal/types"
)

const (
	queryCacheSize = 100
	queryCacheTTL  = 5 * time.Minute
)

type queryResultEntry struct {
	Response *types.UIResponse
	HitCount int
}

// QueryResultCache caches full UIResponse objects keyed by the
// normalized query, patient, and filters that produced them, per spec
// §4.13.2.
type QueryResultCache struct {
	mu    sync.Mutex
	inner *expirable.LRU[string, *queryResultEntry]
}

// NewQueryResultCache constructs a QueryResultCache with the
// spec-mandated capacity and TTL.
func NewQueryResultCache() *QueryResultCache {
	return &QueryResultCache{inner: expirable.NewLRU[string, *queryResultEntry](queryCacheSize, nil, queryCacheTTL)}
}

// Get returns the cached response for (query, patientID, filters), if
// present and unexpired, updating its hit count.
func (c *QueryResultCache) Get(query, patientID string, filters map[string]any) (*types.UIResponse, bool) {
	key := QueryKey(query, patientID, filters)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	entry.HitCount++
	return entry.Response, true
}

// Put stores response for (query, patientID, filters).
func (c *QueryResultCache) Put(query, patientID string, filters map[string]any, response *types.UIResponse) {
	key := QueryKey(query, patientID, filters)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, &queryResultEntry{Response: response})
}

// Len reports the number of live entries.
func (c *QueryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Sweep is a no-op; see EmbeddingCache.Sweep.
func (c *QueryResultCache) Sweep(_ time.Time) {}

// QueryKey is the cache key for (query, patientID, filters): SHA-256 of
// normalized_query + patient_id + the filters' canonical JSON encoding,
// per spec §4.13.2.
func QueryKey(query, patientID string, filters map[string]any) string {
	filtersJSON, err := json.Marshal(sortedFilters(filters))
	if err != nil {
		filtersJSON = []byte("{}")
	}
	return hashHex(normalizeForCacheKey(query) + "\x00" + patientID + "\x00" + string(filtersJSON))
}

// sortedFilters returns filters unchanged; Go's encoding/json already
// marshals map keys in sorted order, which is what makes this cache key
// deterministic across calls with the same logical filter set.
func sortedFilters(filters map[string]any) map[string]any {
	if filters == nil {
		return map[string]any{}
	}
	return filters
}
