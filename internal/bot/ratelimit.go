package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Command rate limit: sustained one command every 2 seconds per sender,
// short bursts allowed. Over-limit commands are dropped without a reply so
// an abuser cannot use the bot to flood the channel.
const (
	limiterRate  = rate.Limit(0.5)
	limiterBurst = 4
)

type senderLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*senderLimiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*senderLimiter),
	}
}

func (r *rateLimiter) allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl, ok := r.limiters[sender]
	if !ok {
		sl = &senderLimiter{lim: rate.NewLimiter(limiterRate, limiterBurst)}
		r.limiters[sender] = sl
	}
	sl.lastSeen = time.Now()
	return sl.lim.Allow()
}

// prune drops limiter entries idle longer than maxIdle and returns how many
func (r *rateLimiter) prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for sender, sl := range r.limiters {
		if sl.lastSeen.Before(cutoff) {
			delete(r.limiters, sender)
			pruned++
		}
	}
	return pruned
}
