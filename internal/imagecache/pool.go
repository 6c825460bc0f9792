// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagecache

import (
	"container/list"
	"sync"
)

// =============================================================================
// LRU POOL
// =============================================================================

// PoolLimits bounds a pool by entry count and total bytes.
type PoolLimits struct {
	MaxEntries int
	MaxBytes   int64
}

// PoolStats holds statistics for one pool.
type PoolStats struct {
	Name       string
	Entries    int
	Bytes      int64
	MaxEntries int
	MaxBytes   int64
	Hits       int64
	Misses     int64
	Evictions  int64
	HitRate    float64
}

// lruPool is a least-recently-used cache bounded by both entry count and the
// caller-reported size of each value.
type lruPool[V any] struct {
	mu         sync.Mutex
	name       string
	maxEntries int
	maxBytes   int64
	curBytes   int64
	order      *list.List // front = most recently used
	items      map[string]*list.Element

	// Statistics
	hits      int64
	misses    int64
	evictions int64
}

type poolEntry[V any] struct {
	key   string
	value V
	size  int64
}

func newPool[V any](name string, limits PoolLimits) *lruPool[V] {
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = 32
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 32 * 1024 * 1024
	}
	return &lruPool[V]{
		name:       name,
		maxEntries: limits.MaxEntries,
		maxBytes:   limits.MaxBytes,
		order:      list.New(),
		items:      make(map[string]*list.Element),
	}
}

// get returns the cached value and marks it most recently used.
func (p *lruPool[V]) get(key string) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elem, ok := p.items[key]
	if !ok {
		p.misses++
		var zero V
		return zero, false
	}
	p.order.MoveToFront(elem)
	p.hits++
	return elem.Value.(*poolEntry[V]).value, true
}

// put stores value under key. Values larger than the whole pool are not
// cached.
func (p *lruPool[V]) put(key string, value V, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size > p.maxBytes {
		return
	}

	if elem, ok := p.items[key]; ok {
		p.removeElementLocked(elem)
	}

	for p.order.Len() > 0 && (p.curBytes+size > p.maxBytes || p.order.Len() >= p.maxEntries) {
		p.removeElementLocked(p.order.Back())
		p.evictions++
	}

	p.items[key] = p.order.PushFront(&poolEntry[V]{key: key, value: value, size: size})
	p.curBytes += size
}

// purge removes every entry. Statistics are kept.
func (p *lruPool[V]) purge() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.order.Init()
	p.items = make(map[string]*list.Element)
	p.curBytes = 0
}

func (p *lruPool[V]) stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	hitRate := 0.0
	if total := p.hits + p.misses; total > 0 {
		hitRate = float64(p.hits) / float64(total)
	}
	return PoolStats{
		Name:       p.name,
		Entries:    p.order.Len(),
		Bytes:      p.curBytes,
		MaxEntries: p.maxEntries,
		MaxBytes:   p.maxBytes,
		Hits:       p.hits,
		Misses:     p.misses,
		Evictions:  p.evictions,
		HitRate:    hitRate,
	}
}

// removeElementLocked removes an entry (must hold lock).
func (p *lruPool[V]) removeElementLocked(elem *list.Element) {
	entry := p.order.Remove(elem).(*poolEntry[V])
	delete(p.items, entry.key)
	p.curBytes -= entry.size
}
