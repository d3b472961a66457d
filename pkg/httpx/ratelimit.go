package httpx

import (
	"sync"
	"time"
)

// SlidingWindowLimiter implements the per-IP, 15-minute sliding window
// rate limiter of spec.md §4.I, adapted from cloudvault's
// SlidingWindowLimiter. That version leaves the windows map nil (a
// write-to-nil-map panic waiting to happen); this one initializes it in
// the constructor.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	windows    map[string][]time.Time
	windowSize time.Duration
	limit      int
}

// NewSlidingWindowLimiter creates a limiter allowing `limit` events per
// key within windowSize.
func NewSlidingWindowLimiter(windowSize time.Duration, limit int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows:    make(map[string][]time.Time),
		windowSize: windowSize,
		limit:      limit,
	}
}

// Allow reports whether key may proceed, recording the attempt if so.
func (s *SlidingWindowLimiter) Allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.windowSize)

	timestamps := s.windows[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= s.limit {
		s.windows[key] = valid
		return false
	}

	s.windows[key] = append(valid, now)
	return true
}

// Count reports how many still-valid attempts are recorded for key,
// pruning expired ones, without recording a new attempt.
func (s *SlidingWindowLimiter) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.windowSize)
	timestamps := s.windows[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	s.windows[key] = valid
	return len(valid)
}

// Record unconditionally appends an attempt for key, used by the
// failed-only counting tier which records after the fact.
func (s *SlidingWindowLimiter) Record(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = append(s.windows[key], time.Now())
}

// Cleanup drops keys with no activity in the last window, preventing
// unbounded growth from one-shot IPs.
func (s *SlidingWindowLimiter) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.windowSize)
	for key, timestamps := range s.windows {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1].Before(cutoff) {
			delete(s.windows, key)
		}
	}
}

// StartCleanup runs Cleanup periodically until stop is closed.
func (s *SlidingWindowLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Limiters bundles the three named tiers of spec.md §4.I: general
// (300/15m), auth-like (5/15m), heavy (20/15m).
type Limiters struct {
	General *SlidingWindowLimiter
	Auth    *SlidingWindowLimiter
	Heavy   *SlidingWindowLimiter
}

// NewLimiters builds the three tiers with spec.md's default thresholds.
func NewLimiters() *Limiters {
	const window = 15 * time.Minute
	return &Limiters{
		General: NewSlidingWindowLimiter(window, 300),
		Auth:    NewSlidingWindowLimiter(window, 5),
		Heavy:   NewSlidingWindowLimiter(window, 20),
	}
}
