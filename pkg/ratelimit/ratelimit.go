// Package ratelimit bounds repeated Hello handshake attempts from a single
// source address with a per-peer token bucket, so brute-forcing a
// validator secret is throttled without penalizing other peers.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket: tokens refill at a fixed rate up to a cap, and
// each handshake attempt consumes one.
type bucket struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

func newBucket(maxTokens int, refillInterval time.Duration) *bucket {
	if maxTokens <= 0 || refillInterval <= 0 {
		maxTokens, refillInterval = 1, time.Second
	}
	return &bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillInterval,
		lastRefill: time.Now(),
	}
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.refillRate {
		return
	}
	added := int(elapsed / b.refillRate)
	b.tokens += added
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// allow reports whether an attempt is permitted right now, and if not, how
// long until the next token refills.
func (b *bucket) allow() (ok bool, retryAfter time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refillLocked(now)

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	retryAfter = b.refillRate - now.Sub(b.lastRefill)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// PeerLimiter tracks one token bucket per source address (the peer address
// of an inbound TCP connection), so a brute-forcing peer can be throttled
// without penalizing other validators attempting to connect.
type PeerLimiter struct {
	mu         sync.RWMutex
	buckets    map[string]*bucket
	lastSeen   map[string]time.Time
	maxTokens  int
	refillRate time.Duration
}

// NewPeerLimiter builds a PeerLimiter giving each distinct peer address a
// burst of maxTokens handshake attempts, refilled at one token per
// refillInterval.
func NewPeerLimiter(maxTokens int, refillInterval time.Duration) *PeerLimiter {
	if maxTokens <= 0 || refillInterval <= 0 {
		maxTokens, refillInterval = 1, time.Second
	}
	return &PeerLimiter{
		buckets:    make(map[string]*bucket),
		lastSeen:   make(map[string]time.Time),
		maxTokens:  maxTokens,
		refillRate: refillInterval,
	}
}

func (pl *PeerLimiter) bucketFor(peerAddr string) *bucket {
	pl.mu.RLock()
	b, ok := pl.buckets[peerAddr]
	pl.mu.RUnlock()
	if ok {
		pl.touch(peerAddr)
		return b
	}

	pl.mu.Lock()
	b, ok = pl.buckets[peerAddr]
	if !ok {
		b = newBucket(pl.maxTokens, pl.refillRate)
		pl.buckets[peerAddr] = b
	}
	pl.lastSeen[peerAddr] = time.Now()
	pl.mu.Unlock()
	return b
}

func (pl *PeerLimiter) touch(peerAddr string) {
	pl.mu.Lock()
	pl.lastSeen[peerAddr] = time.Now()
	pl.mu.Unlock()
}

// Allow reports whether peerAddr may attempt another handshake now.
func (pl *PeerLimiter) Allow(peerAddr string) bool {
	ok, _ := pl.bucketFor(peerAddr).allow()
	return ok
}

// AllowWithRetryAfter is Allow plus, on denial, how long peerAddr must wait
// before its next token is available — used to annotate the HelloAck
// rejection reason with a concrete cooldown.
func (pl *PeerLimiter) AllowWithRetryAfter(peerAddr string) (bool, time.Duration) {
	return pl.bucketFor(peerAddr).allow()
}

// Cleanup evicts buckets for peer addresses unseen for longer than maxAge,
// bounding memory as validators cycle through ephemeral source ports.
func (pl *PeerLimiter) Cleanup(maxAge time.Duration) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := time.Now()
	for addr, last := range pl.lastSeen {
		if now.Sub(last) > maxAge {
			delete(pl.buckets, addr)
			delete(pl.lastSeen, addr)
		}
	}
}
