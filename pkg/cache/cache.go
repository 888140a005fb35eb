// Copyright 2025 Deckhand Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Class identifies an independent cache budget. Static images and animated
// loops are evicted separately so a burst of one class cannot flush the other.
type Class string

const (
	// ClassStatic holds still images (deck covers, icons).
	ClassStatic Class = "static"

	// ClassAnimated holds animated loops (loading, shutdown).
	ClassAnimated Class = "animated"
)

// Default per-class budgets in bytes.
const (
	DefaultStaticBudget   = 32 << 20
	DefaultAnimatedBudget = 64 << 20
)

// Loader produces the payload and its cost in bytes for a cache key.
// The payload is opaque to the cache; callers type-assert on retrieval.
type Loader func(class Class, key string) (payload any, cost int, err error)

type entry struct {
	key        string
	payload    any
	cost       int
	lastAccess uint64
}

type classCache struct {
	budget  int
	used    int
	entries map[string]*entry
}

// ResourceCache is a cost-bounded asset cache shared by the application.
// Each class keeps its own byte budget; insertion evicts least-recently-used
// entries within the same class until the budget holds. Safe for use from
// multiple goroutines.
type ResourceCache struct {
	mu      sync.Mutex
	classes map[Class]*classCache
	loader  Loader

	// access is a monotonic counter stamped onto entries on every touch;
	// eviction picks the smallest stamp.
	access uint64

	hits   int
	misses int
}

// Option configures a ResourceCache.
type Option func(*ResourceCache)

// WithBudget overrides the byte budget for a class.
func WithBudget(class Class, bytes int) Option {
	return func(c *ResourceCache) {
		c.classes[class] = &classCache{budget: bytes, entries: make(map[string]*entry)}
	}
}

// New creates a ResourceCache backed by the given loader with default budgets.
func New(loader Loader, opts ...Option) *ResourceCache {
	c := &ResourceCache{
		loader: loader,
		classes: map[Class]*classCache{
			ClassStatic:   {budget: DefaultStaticBudget, entries: make(map[string]*entry)},
			ClassAnimated: {budget: DefaultAnimatedBudget, entries: make(map[string]*entry)},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload for key, loading and inserting it on a miss.
func (c *ResourceCache) Get(class Class, key string) (any, error) {
	c.mu.Lock()
	cc, ok := c.classes[class]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("unknown cache class %q", class)
	}

	if e, ok := cc.entries[key]; ok {
		c.hits++
		c.access++
		e.lastAccess = c.access
		c.mu.Unlock()
		return e.payload, nil
	}
	c.misses++
	c.mu.Unlock()

	// Load outside the lock; loads can be slow (disk, decode).
	payload, cost, err := c.loader(class, key)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", class, key, err)
	}

	c.mu.Lock()
	c.insertLocked(cc, key, payload, cost)
	c.mu.Unlock()
	return payload, nil
}

// Preload loads key into the cache without returning the payload. Used to
// warm shared assets ahead of need; a key already present is left untouched.
func (c *ResourceCache) Preload(class Class, key string) error {
	c.mu.Lock()
	cc, ok := c.classes[class]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown cache class %q", class)
	}
	if _, ok := cc.entries[key]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	payload, cost, err := c.loader(class, key)
	if err != nil {
		return fmt.Errorf("preload %s/%s: %w", class, key, err)
	}

	c.mu.Lock()
	c.insertLocked(cc, key, payload, cost)
	c.mu.Unlock()
	return nil
}

// insertLocked inserts key, evicting LRU entries of the same class until the
// post-insert total cost fits the budget. An entry larger than the whole
// budget is not cached at all.
func (c *ResourceCache) insertLocked(cc *classCache, key string, payload any, cost int) {
	if cost > cc.budget {
		log.Debug().Str("key", key).Int("cost", cost).Int("budget", cc.budget).
			Msg("asset exceeds cache budget, not caching")
		return
	}

	// Double-insert from a racing Get: keep the existing entry.
	if _, ok := cc.entries[key]; ok {
		return
	}

	for cc.used+cost > cc.budget {
		c.evictOneLocked(cc)
	}

	c.access++
	cc.entries[key] = &entry{key: key, payload: payload, cost: cost, lastAccess: c.access}
	cc.used += cost
}

func (c *ResourceCache) evictOneLocked(cc *classCache) {
	var victim *entry
	for _, e := range cc.entries {
		if victim == nil || e.lastAccess < victim.lastAccess {
			victim = e
		}
	}
	if victim == nil {
		return
	}
	delete(cc.entries, victim.key)
	cc.used -= victim.cost
	log.Debug().Str("key", victim.key).Int("cost", victim.cost).Msg("evicted cached asset")
}

// Contains reports whether key is currently cached without counting a hit.
func (c *ResourceCache) Contains(class Class, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc, ok := c.classes[class]
	if !ok {
		return false
	}
	_, ok = cc.entries[key]
	return ok
}

// Used returns the current total cost for a class.
func (c *ResourceCache) Used(class Class) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.classes[class]; ok {
		return cc.used
	}
	return 0
}

// HitRatio reports hits/(hits+misses) since creation or the last Reset.
// Diagnostics only; returns 0 before any lookup.
func (c *ResourceCache) HitRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Stats returns the raw hit and miss counters.
func (c *ResourceCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Reset clears the hit/miss counters without touching cached entries.
func (c *ResourceCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses = 0, 0
}

// Clear drops every entry in the given class.
func (c *ResourceCache) Clear(class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.classes[class]; ok {
		cc.entries = make(map[string]*entry)
		cc.used = 0
	}
}
