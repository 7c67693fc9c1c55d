package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	patientCacheSize = 5
	patientCacheTTL  = 30 * time.Minute
)

// PatientIndex is the cached per-patient retrieval index: the chunk IDs
// known for that patient plus whatever lightweight metadata the caller
// wants to carry alongside them.
type PatientIndex struct {
	ChunkIDs []string
	Metadata map[string]any
}

type patientEntry struct {
	Index      PatientIndex
	LastAccess time.Time
	HitCount   int
}

// PatientIndexCache caches per-patient indexes keyed by patient_id, with
// a sliding 30-minute TTL measured from last access rather than
// insertion, per spec §4.13.3.
type PatientIndexCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, *patientEntry]
}

// NewPatientIndexCache constructs a PatientIndexCache with the
// spec-mandated capacity.
func NewPatientIndexCache() *PatientIndexCache {
	inner, _ := lru.New[string, *patientEntry](patientCacheSize)
	return &PatientIndexCache{inner: inner}
}

// Get returns patientID's cached index, if present and accessed within
// the last patientCacheTTL, refreshing its last-access time and hit
// count.
func (c *PatientIndexCache) Get(patientID string, now time.Time) (PatientIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(patientID)
	if !ok {
		return PatientIndex{}, false
	}
	if now.Sub(entry.LastAccess) > patientCacheTTL {
		c.inner.Remove(patientID)
		return PatientIndex{}, false
	}
	entry.LastAccess = now
	entry.HitCount++
	return entry.Index, true
}

// Put stores index for patientID.
func (c *PatientIndexCache) Put(patientID string, index PatientIndex, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(patientID, &patientEntry{Index: index, LastAccess: now})
}

// Len reports the number of live entries.
func (c *PatientIndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

// Sweep evicts every entry whose last access is older than
// patientCacheTTL as of now.
func (c *PatientIndexCache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.inner.Keys() {
		entry, ok := c.inner.Peek(key)
		if ok && now.Sub(entry.LastAccess) > patientCacheTTL {
			c.inner.Remove(key)
		}
	}
}
