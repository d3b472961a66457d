// Package circuit implements a rolling-window circuit breaker, adapted
// from the teacher's pkg/circuit/breaker.go. The teacher trips on a raw
// consecutive-failure count; this version buckets outcomes into 1s
// buckets over a rolling window and trips on failure rate, per spec.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned immediately when the breaker is open.
	ErrOpen = errors.New("circuit breaker is open")
)

// Event is one of the four observable breaker transitions/events spec.md
// §4.B names for logging.
type Event int

const (
	EventOpen Event = iota
	EventHalfOpen
	EventClose
	EventTimeout
)

type bucket struct {
	successes int
	failures  int
}

// Config configures a Breaker.
type Config struct {
	Name            string
	BucketCount     int           // number of rolling buckets, default 10
	BucketWidth     time.Duration // width of each bucket, default 1s
	FailureRatio    float64       // trip threshold, default 0.5
	MinObservations int           // minimum samples in the window before ratio applies, default 5
	ResetTimeout    time.Duration // how long to stay open, default 60s
	OnEvent         func(name string, event Event)
}

func (c *Config) setDefaults() {
	if c.BucketCount <= 0 {
		c.BucketCount = 10
	}
	if c.BucketWidth <= 0 {
		c.BucketWidth = time.Second
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	if c.MinObservations <= 0 {
		c.MinObservations = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
}

// Breaker is a single per-dependency circuit breaker. It is safe for
// concurrent use; all mutable state lives behind one mutex since every
// operation here is cheap (no suspension points are held across it).
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	buckets     []bucket
	bucketStart time.Time
	openedAt    time.Time
	halfOpenUse bool
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg Config) *Breaker {
	cfg.setDefaults()
	return &Breaker{
		cfg:         cfg,
		state:       StateClosed,
		buckets:     make([]bucket, cfg.BucketCount),
		bucketStart: time.Now(),
	}
}

// Execute runs fn under breaker protection. If the breaker is open, fn is
// never called and ErrOpen is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rotate()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(StateHalfOpen)
			b.halfOpenUse = true
			return nil
		}
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenUse {
			// a probe is already in flight; reject concurrent probes
			return ErrOpen
		}
		b.halfOpenUse = true
		return nil
	default:
		return ErrOpen
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rotate()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenUse = false
		if err != nil {
			b.openedAt = time.Now()
			b.transition(StateOpen)
			return
		}
		b.reset()
		b.transition(StateClosed)
		return
	case StateClosed:
		if err != nil {
			b.buckets[len(b.buckets)-1].failures++
		} else {
			b.buckets[len(b.buckets)-1].successes++
		}
		if b.shouldTrip() {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
	}
}

// rotate advances the bucket window, dropping buckets older than
// BucketCount*BucketWidth and shifting in empty ones for elapsed time.
func (b *Breaker) rotate() {
	elapsed := time.Since(b.bucketStart)
	shift := int(elapsed / b.cfg.BucketWidth)
	if shift <= 0 {
		return
	}
	if shift >= len(b.buckets) {
		for i := range b.buckets {
			b.buckets[i] = bucket{}
		}
	} else {
		copy(b.buckets, b.buckets[shift:])
		for i := len(b.buckets) - shift; i < len(b.buckets); i++ {
			b.buckets[i] = bucket{}
		}
	}
	b.bucketStart = b.bucketStart.Add(time.Duration(shift) * b.cfg.BucketWidth)
}

func (b *Breaker) shouldTrip() bool {
	var successes, failures int
	for _, bk := range b.buckets {
		successes += bk.successes
		failures += bk.failures
	}
	total := successes + failures
	if total < b.cfg.MinObservations {
		return false
	}
	return float64(failures)/float64(total) >= b.cfg.FailureRatio
}

func (b *Breaker) reset() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if b.cfg.OnEvent == nil {
		return
	}
	switch to {
	case StateOpen:
		b.cfg.OnEvent(b.cfg.Name, EventOpen)
	case StateHalfOpen:
		b.cfg.OnEvent(b.cfg.Name, EventHalfOpen)
	case StateClosed:
		b.cfg.OnEvent(b.cfg.Name, EventClose)
	}
}

// NotifyTimeout emits the EventTimeout observability event for a call
// that timed out. It does not touch breaker state: Execute already ran
// the timed-out call's error through after(), so calling after() again
// here would count one timeout as two failures against the rolling
// window's trip ratio (spec.md §8 invariant 9). This is purely the
// logging hook spec.md §4.B calls out alongside open/half-open/close.
func (b *Breaker) NotifyTimeout() {
	if b.cfg.OnEvent != nil {
		b.cfg.OnEvent(b.cfg.Name, EventTimeout)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group manages one Breaker per named dependency, created lazily. This is
// the teacher's BreakerGroup, unchanged in shape.
type Group struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	template Config
}

// NewGroup creates a breaker group; each breaker it creates copies
// template with its own Name.
func NewGroup(template Config) *Group {
	return &Group{
		breakers: make(map[string]*Breaker),
		template: template,
	}
}

// Get returns (creating if necessary) the breaker for name.
func (g *Group) Get(name string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[name]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[name]; ok {
		return b
	}
	cfg := g.template
	cfg.Name = name
	b = NewBreaker(cfg)
	g.breakers[name] = b
	return b
}
