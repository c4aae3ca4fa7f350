// Package ratelimit provides sliding-window request limiting keyed by
// client+route. Limiter is injected into the HTTP layer so the in-memory
// window can be swapped for the Redis-backed one without touching call
// sites.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more request under key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow is an in-memory sliding-window counter suitable for a
// single-process deployment.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string][]time.Time
	lastSweep time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
}

func (l *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Keys that stop sending requests would otherwise pin their buckets
	// forever, so drop fully aged-out entries once per window.
	if now.Sub(l.lastSweep) >= l.window {
		for k, stamps := range l.buckets {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	stamps := l.buckets[key]
	kept := stamps[:0]
	for _, stamp := range stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}

	if len(kept) >= l.limit {
		l.buckets[key] = kept
		return false, nil
	}

	l.buckets[key] = append(kept, now)
	return true, nil
}
