// Package refcache caches read-mostly reference records (rates, destination
// and filter sets, modifiers) keyed by table and id.
package refcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	TTL        time.Duration
	MaxEntries int
}

type MetricsHooks struct {
	OnHit   func(table string)
	OnMiss  func(table string)
	OnEvict func(table string)
}

type entry struct {
	value     any
	expiresAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	order   []string
	gen     uint64
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
	bus     Broadcaster
	onDrop  []DropListener
	now     func() time.Time
}

// DropListener is told about every invalidation applied to the cache, local
// or received from another process.
type DropListener func(keys []string, prefix bool)

// Broadcaster fans invalidations out to other processes sharing the store.
type Broadcaster interface {
	Publish(ctx context.Context, keys []string, prefix bool) error
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 128),
		opts:    opts,
		metrics: hooks,
		now:     time.Now,
	}
}

// Key builds the canonical "<table>:<id>" cache key.
func Key(table string, id snowflake.ID) string {
	return table + ":" + id.String()
}

type Loader func(ctx context.Context) (any, error)

type loadResult struct {
	val any
	gen uint64
}

// Get returns the cached value for key or runs loader once for all concurrent
// callers. Loader errors are never cached.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (any, error) {
	now := c.now()
	c.mu.RLock()
	if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
		val := e.value
		c.mu.RUnlock()
		c.hook(c.metrics.OnHit, key)
		return val, nil
	}
	gen := c.gen
	c.mu.RUnlock()

	c.hook(c.metrics.OnMiss, key)
	result, err, _ := c.sf.Do(key, func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, val, gen)
		return loadResult{val: val, gen: gen}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(loadResult).val, nil
}

// GetAs is Get with the value asserted to T.
func GetAs[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	val, err := c.Get(ctx, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := val.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("refcache: key %q holds %T", key, val)
	}
	return out, nil
}

// store drops results whose load started before an invalidation.
func (c *Cache) store(key string, val any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = &entry{value: val, expiresAt: c.now().Add(c.opts.TTL)}
	c.evictIfNeeded()
}

// Invalidate drops keys locally and publishes them when a broadcaster is set.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if bus := c.drop(keys, false); bus != nil {
		return bus.Publish(ctx, keys, false)
	}
	return nil
}

// InvalidatePrefix drops every key starting with prefix, e.g. "destinations:".
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	if bus := c.drop([]string{prefix}, true); bus != nil {
		return bus.Publish(ctx, []string{prefix}, true)
	}
	return nil
}

func (c *Cache) drop(keys []string, prefix bool) Broadcaster {
	c.mu.Lock()
	c.gen++
	for key := range c.items {
		for _, k := range keys {
			if key == k || (prefix && strings.HasPrefix(key, k)) {
				delete(c.items, key)
				c.removeFromOrder(key)
				break
			}
		}
	}
	bus, listeners := c.bus, c.onDrop
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(keys, prefix)
	}
	return bus
}

// OnDrop registers fn to run after every invalidation.
func (c *Cache) OnDrop(fn DropListener) {
	c.mu.Lock()
	c.onDrop = append(c.onDrop, fn)
	c.mu.Unlock()
}

// SetBroadcaster attaches the cross-process invalidation fan-out.
func (c *Cache) SetBroadcaster(b Broadcaster) {
	c.mu.Lock()
	c.bus = b
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		c.hook(c.metrics.OnEvict, victim)
		excess--
	}
}

func (c *Cache) hook(fn func(string), key string) {
	if fn == nil {
		return
	}
	table, _, _ := strings.Cut(key, ":")
	fn(table)
}
