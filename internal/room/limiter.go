package room

import (
	"sync"
	"time"
)

// DefaultMinFrameGap caps ingress at 100 frames per second per participant.
// Honest clients send at 20 to 60 Hz, so the cap only bites on floods.
const DefaultMinFrameGap = 10 * time.Millisecond

// IngressLimiter enforces a minimum gap between accepted binary frames per
// participant. Frames above the rate are silently dropped by the caller.
// Safe for concurrent use.
type IngressLimiter struct {
	minGap time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewIngressLimiter creates a limiter with the given minimum gap.
// Non-positive minGap falls back to DefaultMinFrameGap.
func NewIngressLimiter(minGap time.Duration) *IngressLimiter {
	if minGap <= 0 {
		minGap = DefaultMinFrameGap
	}
	return &IngressLimiter{
		minGap: minGap,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether a frame from participantID may pass now. An allowed
// frame updates the participant's timestamp; a denied one does not, so a
// flood cannot push the window forward.
func (il *IngressLimiter) Allow(participantID string) bool {
	il.mu.Lock()
	defer il.mu.Unlock()

	now := il.now()
	if last, ok := il.last[participantID]; ok && now.Sub(last) < il.minGap {
		return false
	}
	il.last[participantID] = now
	return true
}

// Forget drops the participant's state, e.g. when they disconnect.
func (il *IngressLimiter) Forget(participantID string) {
	il.mu.Lock()
	defer il.mu.Unlock()
	delete(il.last, participantID)
}
