package api

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultRPS   = 5
	defaultBurst = 10
)

// RateLimit configures the per-actor token bucket on mutating routes.
// Zero values select the defaults; a negative RPS disables limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type limiterPool struct {
	mu  sync.Mutex
	m   map[string]*rate.Limiter
	cfg RateLimit
}

func newLimiterPool(cfg RateLimit) *limiterPool {
	return &limiterPool{m: make(map[string]*rate.Limiter), cfg: cfg}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.cfg.RPS
	if rps == 0 {
		rps = defaultRPS
	}
	burst := p.cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	if p.cfg.RPS < 0 {
		return true
	}
	return p.get(key).Allow()
}
