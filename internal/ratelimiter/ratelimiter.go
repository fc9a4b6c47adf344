// Package ratelimiter throttles requests per owner using token buckets.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleExpiry is how long an owner's bucket survives without traffic before
// the janitor discards it.
const idleExpiry = 10 * time.Minute

// OwnerLimiter maintains one token bucket per owner id.
//
// The token bucket algorithm allows short bursts while enforcing a sustained
// rate: tokens accrue at requestsPerSecond, each request consumes one, and
// an empty bucket rejects the request. Buckets are created lazily on first
// sight of an owner and discarded after idleExpiry without traffic, so the
// map cannot grow without bound under churning owner ids.
//
// Thread safety:
// All methods are safe for concurrent use.
type OwnerLimiter struct {
	requestsPerSecond float64
	burst             int

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates an OwnerLimiter.
//
// Parameters:
//   - requestsPerSecond: Sustained rate allowed per owner
//   - burst: Bucket capacity per owner (instantaneous spike allowance)
//
// requestsPerSecond <= 0 disables limiting entirely: Allow always returns
// true and no state is kept.
func New(requestsPerSecond float64, burst int) *OwnerLimiter {
	l := &OwnerLimiter{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		buckets:           make(map[string]*bucket),
		done:              make(chan struct{}),
	}
	if requestsPerSecond > 0 {
		go l.janitor()
	}
	return l
}

// Allow reports whether one request by ownerID may proceed now.
//
// Fast path: no waiting, a token is consumed when available and the request
// rejected otherwise.
func (l *OwnerLimiter) Allow(ownerID string) bool {
	if l.requestsPerSecond <= 0 {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[ownerID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.requestsPerSecond), l.burst)}
		l.buckets[ownerID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.limiter.Allow()
}

// Close stops the janitor goroutine.
func (l *OwnerLimiter) Close() {
	if l.requestsPerSecond > 0 {
		close(l.done)
	}
}

// janitor periodically drops buckets that have seen no traffic.
func (l *OwnerLimiter) janitor() {
	ticker := time.NewTicker(idleExpiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for owner, b := range l.buckets {
				if now.Sub(b.lastSeen) > idleExpiry {
					delete(l.buckets, owner)
				}
			}
			l.mu.Unlock()
		}
	}
}
