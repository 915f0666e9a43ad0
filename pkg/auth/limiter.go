package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a bucket may go unused before it is dropped.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterPool hands out one token bucket per key. Keys are principals for
// granted requests and "ip:<addr>" for failed authentications.
type limiterPool struct {
	mu     sync.Mutex
	m      map[string]*limiterEntry
	rps    float64
	burst  int
	now    func() time.Time
	pruned time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rps, burst: burst, now: time.Now}
}

func (p *limiterPool) get(key string) (*rate.Limiter, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.pruned) >= limiterIdle {
		p.prune(now)
	}
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.m[key] = e
	}
	e.seen = now
	return e.lim, now
}

// prune drops buckets idle for limiterIdle. An idle bucket is full again,
// so dropping it changes nothing for its key. Callers hold mu.
func (p *limiterPool) prune(now time.Time) {
	for k, e := range p.m {
		if now.Sub(e.seen) >= limiterIdle {
			delete(p.m, k)
		}
	}
	p.pruned = now
}

// Allow reports whether key may proceed. A nil pool allows everything.
func (p *limiterPool) Allow(key string) bool {
	if p == nil {
		return true
	}
	lim, now := p.get(key)
	return lim.AllowN(now, 1)
}

func (p *limiterPool) len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
