package resilience

import (
	"sync"
	"time"
)

// ClientLimiter admits at most limit requests per key inside any one
// window. Admitted requests are counted over a sliding window, so the
// ceiling holds for spread-out arrivals as well as bursts. Idle clients
// are pruned so the map does not grow without bound.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string][]time.Time // admission times, oldest first
	limit   int
	window  time.Duration
	idleTTL time.Duration
	now     func() time.Time // for testing
}

// NewClientLimiter creates a limiter allowing limit requests per key per
// window. A client idle longer than 10 windows is forgotten.
func NewClientLimiter(limit int, window time.Duration) *ClientLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &ClientLimiter{
		clients: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		idleTTL: 10 * window,
		now:     time.Now,
	}
}

// Allow reports whether the client identified by key may proceed, counting
// the request against the window if so. Denied requests consume no budget.
func (c *ClientLimiter) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	stamps := c.clients[key]
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	stamps = stamps[i:]

	if len(stamps) >= c.limit {
		c.clients[key] = stamps
		return false
	}
	c.clients[key] = append(stamps, now)
	return true
}

// pruneLocked drops clients whose newest admission is older than idleTTL.
// Must hold mu.
func (c *ClientLimiter) pruneLocked(now time.Time) {
	for k, stamps := range c.clients {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) > c.idleTTL {
			delete(c.clients, k)
		}
	}
}

// Len returns the number of tracked clients.
func (c *ClientLimiter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
