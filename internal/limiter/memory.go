package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is a process-local sliding-window limiter.
type Memory struct {
	mu       sync.Mutex
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
	m        map[string]*attempts
}

// NewMemory constructs a Memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
		m:        map[string]*attempts{},
	}
}

func (l *Memory) Allow(_ context.Context, email string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.m[string(HashEmail(email))]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, email string) error {
	l.mu.Lock()
	delete(l.m, string(HashEmail(email)))
	l.mu.Unlock()
	return nil
}

func (l *Memory) Failure(_ context.Context, email string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := string(HashEmail(email))
	now := l.now()
	a, ok := l.m[k]
	if !ok || now.Sub(a.updatedAt) > l.window {
		a = &attempts{}
		l.m[k] = a
	}
	a.fails++
	a.updatedAt = now
	if a.fails >= l.maxFails {
		a.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
