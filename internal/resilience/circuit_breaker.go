package resilience

import (
	"sync"
	"time"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type bucket struct {
	start    time.Time
	failures int
	total    int
}

// CircuitBreaker tracks attempt outcomes for a target in fixed-width
// time buckets and opens once the failure rate over the window crosses
// threshold, provided at least minSamples outcomes were observed. It
// half-opens after cooldown and allows a single probe before deciding.
type CircuitBreaker struct {
	mu          sync.Mutex
	st          state
	window      time.Duration
	bucketWidth time.Duration
	threshold   float64
	minSamples  int
	cooldown    time.Duration
	openedAt    time.Time
	buckets     []bucket
	onTransition func(from, to string)
}

// NewCircuitBreaker builds a breaker with a sliding window of the given
// duration, divided into buckets, opening when the failure rate within
// the window reaches threshold (0..1) with at least minSamples outcomes.
func NewCircuitBreaker(window, bucketWidth, cooldown time.Duration, threshold float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{
		window:      window,
		bucketWidth: bucketWidth,
		threshold:   threshold,
		minSamples:  minSamples,
		cooldown:    cooldown,
		st:          stateClosed,
	}
}

// OnTransition registers a callback invoked whenever the breaker changes
// state, used to emit an OTel counter increment without coupling this
// package to any particular metrics backend.
func (c *CircuitBreaker) OnTransition(fn func(from, to string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// Allow reports whether a new attempt may be dispatched.
func (c *CircuitBreaker) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.st {
	case stateOpen:
		if time.Since(c.openedAt) >= c.cooldown {
			c.transition(stateHalfOpen)
			return true
		}
		return false
	case stateHalfOpen:
		return true
	default:
		return true
	}
}

// RecordResult reports the outcome of a dispatched attempt.
func (c *CircuitBreaker) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.prune(now)

	if len(c.buckets) == 0 || now.Sub(c.buckets[len(c.buckets)-1].start) >= c.bucketWidth {
		c.buckets = append(c.buckets, bucket{start: now})
	}
	cur := &c.buckets[len(c.buckets)-1]
	cur.total++
	if !success {
		cur.failures++
	}

	if c.st == stateHalfOpen {
		if success {
			c.transition(stateClosed)
		} else {
			c.transition(stateOpen)
			c.openedAt = now
		}
		return
	}

	failures, total := c.windowCounts()
	if total >= c.minSamples && float64(failures)/float64(total) >= c.threshold {
		c.transition(stateOpen)
		c.openedAt = now
	}
}

func (c *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.buckets) && c.buckets[i].start.Before(cutoff) {
		i++
	}
	c.buckets = c.buckets[i:]
}

func (c *CircuitBreaker) windowCounts() (failures, total int) {
	for _, b := range c.buckets {
		failures += b.failures
		total += b.total
	}
	return
}

func (c *CircuitBreaker) transition(to state) {
	if c.st == to {
		return
	}
	from := c.st
	c.st = to
	if c.onTransition != nil {
		c.onTransition(stateName(from), stateName(to))
	}
}

func stateName(s state) string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// IsOpen reports the current state without mutating it, used for logging.
func (c *CircuitBreaker) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st == stateOpen
}
