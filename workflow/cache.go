package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
)

// DefaultCacheTTL is used when a ProofCache is built with a non-positive TTL.
const DefaultCacheTTL = time.Hour

type cacheEntry struct {
	record     ProofRecord
	insertedAt time.Time
}

// ProofCache is an in-memory, TTL-bounded Fingerprint → ProofRecord store
// shared by every workflow in the process. Expiry is evaluated lazily on
// read; there is no background sweep and no size bound.
type ProofCache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics metrics.MetricsRecorder

	mu      sync.RWMutex
	entries map[Fingerprint]cacheEntry
}

// CacheOption customises a ProofCache.
type CacheOption func(*ProofCache)

// WithCacheClock replaces the wall clock, mainly for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ProofCache) { c.now = now }
}

// WithCacheMetrics records hits, misses and evictions.
func WithCacheMetrics(m metrics.MetricsRecorder) CacheOption {
	return func(c *ProofCache) { c.metrics = m }
}

// NewProofCache creates an empty cache whose entries expire after ttl.
func NewProofCache(ttl time.Duration, opts ...CacheOption) *ProofCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &ProofCache{
		ttl:     ttl,
		now:     time.Now,
		metrics: metrics.NewNoOpMetrics(),
		entries: make(map[Fingerprint]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *ProofCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the record stored under fp. An entry older than the TTL is
// reported absent and removed.
func (c *ProofCache) Get(fp Fingerprint) (ProofRecord, bool) {
	ctx := context.Background()

	c.mu.RLock()
	entry, ok := c.entries[fp]
	c.mu.RUnlock()

	if !ok {
		c.metrics.RecordCacheMiss(ctx)
		return ProofRecord{}, false
	}
	if !c.expired(entry) {
		c.metrics.RecordCacheHit(ctx)
		return cloneRecord(entry.record), true
	}

	c.mu.Lock()
	// Double-check: a concurrent Set may have replaced the stale entry.
	if current, ok := c.entries[fp]; ok {
		if !c.expired(current) {
			c.mu.Unlock()
			c.metrics.RecordCacheHit(ctx)
			return cloneRecord(current.record), true
		}
		delete(c.entries, fp)
	}
	c.mu.Unlock()

	c.metrics.RecordCacheEviction(ctx)
	c.metrics.RecordCacheMiss(ctx)
	return ProofRecord{}, false
}

// Set stores record under fp. A live entry for fp is kept as is: proofs for a
// finalized round never change, so the first stored record wins.
func (c *ProofCache) Set(fp Fingerprint, record ProofRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.entries[fp]; ok && !c.expired(current) {
		return
	}
	c.entries[fp] = cacheEntry{record: cloneRecord(record), insertedAt: c.now()}
}

// Clear drops every entry.
func (c *ProofCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Fingerprint]cacheEntry)
}

// Len returns the number of stored entries, including ones that have expired
// but not yet been read.
func (c *ProofCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *ProofCache) expired(e cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

func cloneRecord(r ProofRecord) ProofRecord {
	out := ProofRecord{AttestationKind: r.AttestationKind}
	if r.ResponseBytes != nil {
		out.ResponseBytes = append([]byte(nil), r.ResponseBytes...)
	}
	if r.ProofPath != nil {
		out.ProofPath = append(r.ProofPath[:0:0], r.ProofPath...)
	}
	return out
}
