package querycache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Subscribe delivers state changes of key until cancel is called. The channel
// holds only the latest state; a slow reader skips intermediate states.
// A subscribed key is never evicted.
func (c *Cache) Subscribe(key Key) (<-chan State, func()) {
	k := key.String()
	ch := make(chan State, 1)

	c.mu.Lock()
	set, ok := c.subs[k]
	if !ok {
		set = map[chan State]struct{}{}
		c.subs[k] = set
	}
	set[ch] = struct{}{}
	if e, ok := c.entries[k]; ok {
		ch <- e.state()
	}
	c.mu.Unlock()

	var once bool
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if once {
			return
		}
		once = true
		delete(c.subs[k], ch)
		if len(c.subs[k]) == 0 {
			delete(c.subs, k)
		}
		close(ch)
	}
	return ch, cancel
}

func (c *Cache) notify(k string, st State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs[k] {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// GC evicts entries idle longer than their cache time. Entries with subscribers
// or an in-flight fetch are kept.
func (c *Cache) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if e.fetching || len(c.subs[k]) > 0 {
			continue
		}
		if now.Sub(e.lastAccess) > e.cacheTime {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Run collects idle entries every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.GC(); n > 0 {
				c.log.Debug("cache gc", zap.Int("evicted", n))
			}
		}
	}
}
