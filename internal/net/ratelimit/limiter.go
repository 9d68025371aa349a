package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-client rate limiting using token buckets
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     float64 // Requests per second
	burst   int     // Burst capacity
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter granting each client rps with the given burst
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		clients: make(map[string]*client),
		rps:     rps,
		burst:   burst,
		now:     time.Now,
	}
}

// get returns or creates the bucket for a client and marks it as seen
func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.clients[key]
	if !exists {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = l.now()
	return c.limiter
}

// Allow reports whether a request from the client may proceed now
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Wait blocks until a request from the client is allowed or ctx is done
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}

// RetryAfter estimates how long the client must wait for its next token
func (l *Limiter) RetryAfter(key string) time.Duration {
	r := l.get(key).Reserve()
	defer r.Cancel()
	return r.Delay()
}

// EvictIdle drops clients not seen for longer than idle and returns how many were removed
func (l *Limiter) EvictIdle(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// RunEvictor evicts idle clients every interval until ctx is cancelled
func (l *Limiter) RunEvictor(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.EvictIdle(idle)
		}
	}
}

// Stats returns statistics for all tracked clients
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[string]LimiterStats, len(l.clients))
	for key, c := range l.clients {
		stats[key] = LimiterStats{
			Client:          key,
			RPS:             float64(c.limiter.Limit()),
			Burst:           c.limiter.Burst(),
			TokensAvailable: c.limiter.Tokens(),
			LastSeen:        c.lastSeen,
		}
	}
	return stats
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// LimiterStats represents statistics for a single client bucket
type LimiterStats struct {
	Client          string    `json:"client"`
	RPS             float64   `json:"rps"`
	Burst           int       `json:"burst"`
	TokensAvailable float64   `json:"tokens_available"`
	LastSeen        time.Time `json:"last_seen"`
}

// IsThrottled returns true if the client has no whole token left
func (s *LimiterStats) IsThrottled() bool {
	return s.TokensAvailable < 1
}
