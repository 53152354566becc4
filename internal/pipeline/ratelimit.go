package pipeline

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter applies two-tier politeness limiting to pipeline runs: a
// global runs/second bound for the service and a per-portal-domain bound so
// repeated extractions do not hammer a single provider.
type RateLimiter struct {
	globalLimiter     *rate.Limiter
	perDomainLimiters *sync.Map // map[string]*rate.Limiter
	perDomainRate     float64
}

// NewRateLimiter creates a two-tier rate limiter.
func NewRateLimiter(globalRate, perDomainRate float64) *RateLimiter {
	return &RateLimiter{
		globalLimiter:     rate.NewLimiter(rate.Limit(globalRate), int(globalRate*2)),
		perDomainLimiters: &sync.Map{},
		perDomainRate:     perDomainRate,
	}
}

// Wait blocks until both tiers admit a run against the given domain.
func (rl *RateLimiter) Wait(ctx context.Context, domain string) error {
	if err := rl.globalLimiter.Wait(ctx); err != nil {
		return err
	}
	return rl.domainLimiter(domain).Wait(ctx)
}

func (rl *RateLimiter) domainLimiter(domain string) *rate.Limiter {
	if limiter, ok := rl.perDomainLimiters.Load(domain); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(rl.perDomainRate), 1)
	actual, _ := rl.perDomainLimiters.LoadOrStore(domain, limiter)
	return actual.(*rate.Limiter)
}
