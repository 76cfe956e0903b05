package services

import (
	"dm-core/domain"
	"sync"

	"golang.org/x/time/rate"
)

// SendLimiter holds one token bucket per author.
type SendLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[domain.UserID]*rate.Limiter
}

func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	return &SendLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[domain.UserID]*rate.Limiter),
	}
}

func (l *SendLimiter) Allow(author domain.UserID) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[author]
	if !ok {
		limiter = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[author] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
