package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/verdant-home/verdant-core/internal/adapters"
	"github.com/verdant-home/verdant-core/internal/infrastructure/config"
)

// RateLimiter throttles alerts with one token bucket per alert key and
// priority. Buckets are created full on first use so a device's first
// alerts are never delayed.
//
// Thread Safety: all methods are safe for concurrent use.
type RateLimiter struct {
	buckets config.AlertBucketsConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// now is injectable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter with the given per-priority bucket
// parameters.
func NewRateLimiter(buckets config.AlertBucketsConfig) *RateLimiter {
	return &RateLimiter{
		buckets:  buckets,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// alertKey derives the bucket key: the alert's group when set,
// otherwise its type and metric.
func alertKey(alert adapters.Alert) string {
	if alert.GroupID != "" {
		return alert.GroupID
	}
	return alert.Type + "/" + alert.Metric
}

func (l *RateLimiter) bucketParams(priority adapters.Priority) config.BucketConfig {
	switch priority {
	case adapters.PriorityCritical:
		return l.buckets.Critical
	case adapters.PriorityHigh:
		return l.buckets.High
	case adapters.PriorityMedium:
		return l.buckets.Medium
	default:
		return l.buckets.Low
	}
}

func (l *RateLimiter) limiterFor(alert adapters.Alert) *rate.Limiter {
	key := string(alert.Priority) + "/" + alertKey(alert)

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		p := l.bucketParams(alert.Priority)
		refill := rate.Limit(float64(p.Refill) / float64(p.Interval))
		lim = rate.NewLimiter(refill, p.Burst)
		l.limiters[key] = lim
	}
	return lim
}

// ShouldAllow consumes one token from the alert's bucket and reports
// whether the alert may be delivered.
func (l *RateLimiter) ShouldAllow(alert adapters.Alert) bool {
	return l.limiterFor(alert).AllowN(l.now(), 1)
}

// QuotaRemaining reports the tokens currently available for the
// alert's bucket without consuming any.
func (l *RateLimiter) QuotaRemaining(alert adapters.Alert) float64 {
	return l.limiterFor(alert).TokensAt(l.now())
}
