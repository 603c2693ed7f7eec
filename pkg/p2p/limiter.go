package p2p

import (
	"sync"

	"golang.org/x/time/rate"
)

// --- Per-Sender Rate Limiting ---
//
// 60 messages per 60 seconds per sender, enforced in the chain
// broadcaster before any signature work. Excess messages are silently
// dropped.

const (
	limiterRate  = rate.Limit(1.0) // refill per second
	limiterBurst = 60
)

type senderLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSenderLimiter() *senderLimiter {
	return &senderLimiter{limiters: map[string]*rate.Limiter{}}
}

func (s *senderLimiter) allow(senderID string) bool {
	s.mu.Lock()
	l, ok := s.limiters[senderID]
	if !ok {
		l = rate.NewLimiter(limiterRate, limiterBurst)
		s.limiters[senderID] = l
	}
	s.mu.Unlock()
	return l.Allow()
}
