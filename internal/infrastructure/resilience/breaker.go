package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is the number of trial calls allowed while half-open and
	// the number of successes needed to close again
	MaxRequests uint32
	// Interval is how often counts are cleared while closed
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration
	// ReadyToTrip decides, after a failure while closed, whether to open
	ReadyToTrip func(counts Counts) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock
	Now func() time.Time
}

// Counts holds the statistics for the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		expiry:   settings.Now().Add(settings.Interval),
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advance(b.settings.Now())
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs req if the breaker admits it. A panic in req counts as a
// failure and is re-raised.
func (b *Breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	generation, err := b.admit()
	if err != nil {
		return nil, err
	}

	succeeded := false
	defer func() {
		if r := recover(); r != nil {
			b.record(generation, false)
			panic(r)
		}
		b.record(generation, succeeded)
	}()

	result, err := req()
	succeeded = err == nil
	return result, err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.advance(b.settings.Now()) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.settings.MaxRequests {
			return b.generation, ErrTooManyRequests
		}
	}

	b.counts.Requests++
	return b.generation, nil
}

// record applies a result unless the generation moved on meanwhile
func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	state := b.advance(now)
	if generation != b.generation {
		return
	}

	if success {
		b.counts.success()
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.failure()
	switch state {
	case StateClosed:
		if b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// advance applies time-based transitions and returns the current state
func (b *Breaker) advance(now time.Time) State {
	switch b.state {
	case StateClosed:
		if b.expiry.Before(now) {
			b.newGeneration(now.Add(b.settings.Interval))
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) transition(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state

	switch state {
	case StateClosed:
		b.newGeneration(now.Add(b.settings.Interval))
	case StateOpen:
		b.newGeneration(now.Add(b.settings.Timeout))
	case StateHalfOpen:
		b.newGeneration(time.Time{})
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) newGeneration(expiry time.Time) {
	b.generation++
	b.counts = Counts{}
	b.expiry = expiry
}
