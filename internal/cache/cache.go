package cache

import (
    "container/list"
    "sync"
    "time"
)

// entry is a single cached value with its expiry.
type entry[V any] struct {
    key       string
    val       V
    expiresAt time.Time
}

// Region is a named cache partition with its own TTL and size limit.
// Expired entries are dropped lazily on read; when an insert would push the
// region past MaxEntries, least-recently-used entries are evicted first.
// Safe for concurrent use.
type Region[V any] struct {
    ttl        time.Duration
    maxEntries int

    mu    sync.Mutex
    items map[string]*list.Element
    order *list.List // front = most recently used
}

func New[V any](ttl time.Duration, maxEntries int) *Region[V] {
    return &Region[V]{
        ttl:        ttl,
        maxEntries: maxEntries,
        items:      make(map[string]*list.Element),
        order:      list.New(),
    }
}

// Get returns the cached value for key, or a miss when absent or expired.
// An expired entry is removed as part of the read.
func (r *Region[V]) Get(key string) (V, bool) {
    var zero V
    if r == nil || r.ttl <= 0 { return zero, false }
    r.mu.Lock()
    defer r.mu.Unlock()
    el, ok := r.items[key]
    if !ok { return zero, false }
    e := el.Value.(*entry[V])
    if time.Now().After(e.expiresAt) {
        r.order.Remove(el)
        delete(r.items, key)
        return zero, false
    }
    r.order.MoveToFront(el)
    return e.val, true
}

// Put stores val under key, refreshing expiry and recency. If the region is
// full, expired entries are dropped first, then LRU entries, so the size
// never exceeds MaxEntries.
func (r *Region[V]) Put(key string, val V) {
    if r == nil || r.ttl <= 0 { return }
    r.mu.Lock()
    defer r.mu.Unlock()
    expiresAt := time.Now().Add(r.ttl)
    if el, ok := r.items[key]; ok {
        e := el.Value.(*entry[V])
        e.val = val
        e.expiresAt = expiresAt
        r.order.MoveToFront(el)
        return
    }
    if r.maxEntries > 0 && len(r.items) >= r.maxEntries {
        r.evictLocked(len(r.items) - r.maxEntries + 1)
    }
    el := r.order.PushFront(&entry[V]{key: key, val: val, expiresAt: expiresAt})
    r.items[key] = el
}

// Len reports the number of entries currently held, including any that have
// expired but not yet been read.
func (r *Region[V]) Len() int {
    if r == nil { return 0 }
    r.mu.Lock()
    defer r.mu.Unlock()
    return len(r.items)
}

// evictLocked removes at least n entries, preferring expired ones and then
// the least recently used. Caller holds r.mu.
func (r *Region[V]) evictLocked(n int) {
    now := time.Now()
    for el := r.order.Back(); el != nil && n > 0; {
        prev := el.Prev()
        if now.After(el.Value.(*entry[V]).expiresAt) {
            delete(r.items, el.Value.(*entry[V]).key)
            r.order.Remove(el)
            n--
        }
        el = prev
    }
    for n > 0 {
        el := r.order.Back()
        if el == nil { return }
        delete(r.items, el.Value.(*entry[V]).key)
        r.order.Remove(el)
        n--
    }
}
