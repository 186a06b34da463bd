package command

import (
	"container/list"

	"StrategyVault/internal/observability"

	"github.com/rs/zerolog"
)

// DedupStore is the durable tier: it answers whether any event in the log
// carries the composite key.
type DedupStore interface {
	IsDuplicate(compositeKey string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU of
// recently applied keys, then the event log.
// Not thread-safe; only the Runner goroutine touches it.
type IdempotencyChecker struct {
	lru     *IdempotencyLRU
	store   DedupStore
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewIdempotencyChecker(capacity int, store DedupStore, metrics *observability.Metrics, logger zerolog.Logger) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:     NewIdempotencyLRU(capacity),
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// IsDuplicate reports whether (t, key) was already applied.
func (ic *IdempotencyChecker) IsDuplicate(t Type, key string) bool {
	composite := CompositeKey(t, key)

	if ic.lru.Contains(composite) {
		ic.recordDuplicate(t, "lru")
		return true
	}

	if ic.store == nil {
		return false
	}
	isDup, err := ic.store.IsDuplicate(composite)
	if err != nil {
		// A store outage must not stall the vault; the LRU still covers the
		// recent window.
		ic.logger.Warn().Err(err).Str("key", composite).Msg("dedup store lookup failed")
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}
	if isDup {
		ic.recordDuplicate(t, "postgres")
		ic.lru.Add(composite)
		return true
	}
	return false
}

// MarkProcessed records (t, key) as applied.
func (ic *IdempotencyChecker) MarkProcessed(t Type, key string) {
	ic.lru.Add(CompositeKey(t, key))
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

// RecentKeys returns the LRU contents, oldest first, for snapshots.
func (ic *IdempotencyChecker) RecentKeys() []string {
	return ic.lru.Keys()
}

// Warm loads keys saved by RecentKeys.
func (ic *IdempotencyChecker) Warm(keys []string) {
	ic.lru.WarmFromKeys(keys)
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(t Type, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(string(t), tier).Inc()
	}
}

// --- LRU ---

// IdempotencyLRU is a bounded set of composite keys with LRU eviction.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks membership and promotes the key.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts or promotes key.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}
	lru.cache[key] = lru.lruList.PushFront(key)
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem == nil {
		return
	}
	lru.lruList.Remove(elem)
	delete(lru.cache, elem.Value.(string))
	lru.evictions++
}

// WarmFromKeys loads keys in order, so the last one ends up most recent.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		lru.Add(key)
	}
}

// Keys returns every key, least recently used first.
func (lru *IdempotencyLRU) Keys() []string {
	keys := make([]string, 0, lru.lruList.Len())
	for e := lru.lruList.Back(); e != nil; e = e.Prev() {
		keys = append(keys, e.Value.(string))
	}
	return keys
}

func (lru *IdempotencyLRU) Size() int { return lru.lruList.Len() }

func (lru *IdempotencyLRU) Evictions() int64 { return lru.evictions }
