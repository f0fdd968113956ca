// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/adiadia/tracker/internal/domain"
	"golang.org/x/time/rate"
)

type rateLimitDecision struct {
	Allowed           bool
	LimitPerMinute    int
	Remaining         int
	RetryAfterSeconds int
}

// userRateLimiter keeps one token bucket per user. A bucket holds a full
// minute of requests and refills continuously.
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.UserID]*rate.Limiter
}

func newUserRateLimiter() *userRateLimiter {
	return &userRateLimiter{
		limiters: make(map[domain.UserID]*rate.Limiter, 32),
	}
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

func (l *userRateLimiter) limiterFor(userID domain.UserID, limitPerMinute int, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(perMinute(limitPerMinute), limitPerMinute)
		l.limiters[userID] = lim
		return lim
	}
	// The most recently seen limit wins.
	if lim.Burst() != limitPerMinute {
		lim.SetLimitAt(now, perMinute(limitPerMinute))
		lim.SetBurstAt(now, limitPerMinute)
	}
	return lim
}

// Allow spends one request of userID's budget at now.
func (l *userRateLimiter) Allow(userID domain.UserID, limitPerMinute int, now time.Time) rateLimitDecision {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	lim := l.limiterFor(userID, limitPerMinute, now)

	decision := rateLimitDecision{LimitPerMinute: limitPerMinute}

	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		decision.RetryAfterSeconds = max(1, int(math.Ceil(delay.Seconds())))
	} else {
		decision.Allowed = true
	}
	decision.Remaining = max(0, int(math.Floor(lim.TokensAt(now))))
	return decision
}
