// Package ratelimit provides keyed token buckets: non-blocking Allow for inbound API
// protection and blocking Wait for outbound calls to the backend and places provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Idle limiters are dropped after this long.
const defaultIdleTTL = 10 * time.Minute

// KeyedRateLimiter manages one independent limiter per key.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*trackedLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

type trackedLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// New creates a keyed limiter allowing rps requests per second with the given burst.
func New(rps float64, burst int) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*trackedLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  defaultIdleTTL,
		done:     make(chan struct{}),
	}

	go krl.cleanup()

	return krl
}

// Allow reports whether a request for key may proceed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key).Allow()
}

// Wait blocks until a request for key may proceed or ctx is done.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.getLimiter(key).Wait(ctx)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	l, ok := krl.limiters[key]
	if !ok {
		l = &trackedLimiter{Limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = l
	}
	l.lastSeen = time.Now()
	return l.Limiter
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(krl.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case now := <-ticker.C:
			krl.evictIdle(now)
		}
	}
}

func (krl *KeyedRateLimiter) evictIdle(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, l := range krl.limiters {
		if now.Sub(l.lastSeen) > krl.idleTTL {
			delete(krl.limiters, key)
		}
	}
}
