// Package querycache is a keyed read-through cache with per-key request
// de-duplication, stale-while-revalidate and idle eviction.
package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Defaults applied to every query unless overridden.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultCacheTime = 10 * time.Minute
)

// ErrDisabled is returned for keys with a missing identifier; nothing is fetched.
var ErrDisabled = errors.New("query disabled: missing identifier")

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Status of a cache slot.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// State is the observable view of one key.
type State struct {
	Data      any
	HasData   bool
	Status    Status
	Err       error
	UpdatedAt time.Time
	Fetching  bool
}

// IsLoading reports a first load with nothing to show yet.
func (s State) IsLoading() bool { return s.Fetching && !s.HasData }

// Options are per-query knobs.
type Options struct {
	StaleTime  time.Duration
	CacheTime  time.Duration
	Retry      int
	RetryDelay time.Duration
}

// Option overrides a default for one call.
type Option func(*Options)

func WithStaleTime(d time.Duration) Option  { return func(o *Options) { o.StaleTime = d } }
func WithCacheTime(d time.Duration) Option  { return func(o *Options) { o.CacheTime = d } }
func WithRetry(n int) Option                { return func(o *Options) { o.Retry = n } }
func WithRetryDelay(d time.Duration) Option { return func(o *Options) { o.RetryDelay = d } }

type entry struct {
	key        Key
	data       any
	hasData    bool
	err        error
	status     Status
	fetching   bool
	fetchedAt  time.Time
	lastAccess time.Time
	staleTime  time.Duration
	cacheTime  time.Duration
	stale      bool // forced by Invalidate
}

func (e *entry) state() State {
	return State{
		Data:      e.data,
		HasData:   e.hasData,
		Status:    e.status,
		Err:       e.err,
		UpdatedAt: e.fetchedAt,
		Fetching:  e.fetching,
	}
}

// Cache is safe for concurrent use. The cache itself is the only writer of entries.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	subs     map[string]map[chan State]struct{}
	group    singleflight.Group
	defaults Options
	now      func() time.Time
	log      *zap.Logger
}

// New constructs a cache. Zero fields of defaults fall back to package defaults.
func New(defaults Options, log *zap.Logger) *Cache {
	if defaults.StaleTime <= 0 {
		defaults.StaleTime = DefaultStaleTime
	}
	if defaults.CacheTime <= 0 {
		defaults.CacheTime = DefaultCacheTime
	}
	if defaults.RetryDelay <= 0 {
		defaults.RetryDelay = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		entries:  map[string]*entry{},
		subs:     map[string]map[chan State]struct{}{},
		defaults: defaults,
		now:      time.Now,
		log:      log,
	}
}

func (c *Cache) options(opts []Option) Options {
	o := c.defaults
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Fetch returns the cached value for key, loading it through fn when absent.
// Stale data is returned immediately and refreshed in the background. Concurrent
// callers for one key share a single call to fn.
func (c *Cache) Fetch(ctx context.Context, key Key, fn Fetcher, opts ...Option) (any, error) {
	if !key.Enabled() {
		return nil, ErrDisabled
	}
	o := c.options(opts)
	k := key.String()

	c.mu.Lock()
	e := c.entryLocked(key, k, o)
	e.lastAccess = c.now()
	if e.hasData {
		data := e.data
		stale := e.stale || c.now().Sub(e.fetchedAt) >= e.staleTime
		c.mu.Unlock()
		if stale {
			c.revalidate(ctx, key, fn, o)
		}
		return data, nil
	}
	c.mu.Unlock()

	return c.load(ctx, key, fn, o)
}

// Prefetch warms key without a consumer. A fresh entry is left untouched.
func (c *Cache) Prefetch(ctx context.Context, key Key, fn Fetcher, opts ...Option) {
	if !key.Enabled() {
		return
	}
	o := c.options(opts)
	k := key.String()

	c.mu.Lock()
	e := c.entryLocked(key, k, o)
	e.lastAccess = c.now()
	fresh := e.hasData && !e.stale && c.now().Sub(e.fetchedAt) < e.staleTime
	c.mu.Unlock()
	if fresh {
		return
	}
	c.revalidate(ctx, key, fn, o)
}

// Peek is a synchronous best-effort read; it never fetches.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	e.lastAccess = c.now()
	return e.data, true
}

// State returns the observable state of key.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{}
	}
	return e.state()
}

// Set writes data for key as a successful fetch.
func (c *Cache) Set(key Key, data any) {
	k := key.String()
	c.mu.Lock()
	e := c.entryLocked(key, k, c.defaults)
	now := c.now()
	e.data, e.hasData, e.err, e.status = data, true, nil, StatusSuccess
	e.fetchedAt, e.lastAccess, e.stale = now, now, false
	st := e.state()
	c.mu.Unlock()
	c.notify(k, st)
}

// Invalidate marks every entry under prefix stale; the next read refetches.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.stale = true
			n++
		}
	}
	return n
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.key.HasPrefix(prefix) && !e.fetching {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Entry is a cached key/value pair returned by Scan.
type Entry struct {
	Key  Key
	Data any
}

// Scan returns every entry under prefix that holds data.
func (c *Cache) Scan(prefix Key) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for _, e := range c.entries {
		if e.hasData && e.key.HasPrefix(prefix) {
			out = append(out, Entry{Key: e.key, Data: e.data})
		}
	}
	return out
}

// Len returns the number of slots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) entryLocked(key Key, k string, o Options) *entry {
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...), status: StatusIdle}
		c.entries[k] = e
	}
	e.staleTime, e.cacheTime = o.StaleTime, o.CacheTime
	return e
}

// load waits for the shared fetch of key. The fetch itself is detached from the
// caller's cancellation: an abandoned caller stops waiting, the write still lands.
func (c *Cache) load(ctx context.Context, key Key, fn Fetcher, o Options) (any, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.run(context.WithoutCancel(ctx), key, fn, o)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) revalidate(ctx context.Context, key Key, fn Fetcher, o Options) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.run(context.WithoutCancel(ctx), key, fn, o)
	})
	go func() {
		if res := <-ch; res.Err != nil {
			c.log.Debug("background refresh failed", zap.String("key", key.String()), zap.Error(res.Err))
		}
	}()
}

func (c *Cache) run(ctx context.Context, key Key, fn Fetcher, o Options) (any, error) {
	k := key.String()
	c.mu.Lock()
	e := c.entryLocked(key, k, o)
	e.fetching = true
	if !e.hasData {
		e.status = StatusLoading
	}
	st := e.state()
	c.mu.Unlock()
	c.notify(k, st)

	var (
		data any
		err  error
	)
	for attempt := 0; ; attempt++ {
		data, err = fn(ctx)
		if err == nil || attempt >= o.Retry {
			break
		}
		delay := o.RetryDelay << attempt
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	// The entry may have been evicted or removed while fetching.
	e = c.entryLocked(key, k, o)
	e.fetching = false
	now := c.now()
	if err != nil {
		e.err, e.status = err, StatusError
	} else {
		e.data, e.hasData, e.err, e.status = data, true, nil, StatusSuccess
		e.fetchedAt, e.stale = now, false
	}
	e.lastAccess = now
	st = e.state()
	c.mu.Unlock()
	c.notify(k, st)

	if err != nil {
		c.log.Debug("query failed", zap.String("key", k), zap.Error(err))
	}
	return data, err
}
