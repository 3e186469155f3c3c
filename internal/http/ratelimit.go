package http

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mutating requests a client may send per window.
const (
	defaultRateLimit = 120
	rateWindow       = time.Minute
	sweepEvery       = 5 * time.Minute
	idleAfter        = 10 * time.Minute
)

// window counts one client's requests since start.
type window struct {
	start time.Time
	last  time.Time
	n     int
}

// rateLimiter admits at most limit mutating requests per client IP in each
// fixed window. Idle clients are swept in the background.
type rateLimiter struct {
	limit int

	mu      sync.Mutex
	windows map[string]*window

	done     chan struct{}
	stopOnce sync.Once
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	rl := &rateLimiter{
		limit:   limit,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *rateLimiter) sweepLoop() {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			rl.sweep(now)
		case <-rl.done:
			return
		}
	}
}

// sweep forgets clients idle since before now-idleAfter and reports how
// many were dropped.
func (rl *rateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, w := range rl.windows {
		if now.Sub(w.last) > idleAfter {
			delete(rl.windows, ip)
			n++
		}
	}
	return n
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *rateLimiter) allow(ip string, m *securityMetrics) bool {
	return rl.admit(ip, time.Now(), m)
}

func (rl *rateLimiter) admit(ip string, now time.Time, m *securityMetrics) bool {
	rl.mu.Lock()
	w := rl.windows[ip]
	if w == nil || now.Sub(w.start) > rateWindow {
		w = &window{start: now}
		rl.windows[ip] = w
	}
	w.n++
	w.last = now
	ok := w.n <= rl.limit
	rl.mu.Unlock()

	if !ok && m != nil {
		atomic.AddInt64(&m.rateLimitHits, 1)
	}
	return ok
}
