// Package circuit provides a two-state circuit breaker. Callers keep using
// their primary backend while the breaker is closed and switch to a slower
// path that does not depend on it once it opens.
package circuit

import "sync"

// Breaker opens after a run of consecutive failures and closes again after a
// run of consecutive successes. It is safe for concurrent use.
type Breaker struct {
	mu               sync.Mutex
	name             string
	open             bool
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	onChange         func(name string, open bool)
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker. Default 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close an open breaker. Default 3.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithOnChange registers fn to run after every transition. fn runs outside
// the breaker's lock and may call back into it.
func WithOnChange(fn func(name string, open bool)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: 5,
		successThreshold: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// Open reports whether callers should take the fallback path.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Observe records the outcome of one call to the primary backend and
// returns whether the breaker is open afterwards.
func (b *Breaker) Observe(err error) bool {
	b.mu.Lock()
	changed := false
	if err != nil {
		b.failures++
		b.successes = 0
		if !b.open && b.failures >= b.failureThreshold {
			b.open, changed = true, true
		}
	} else {
		b.failures = 0
		if b.open {
			b.successes++
			if b.successes >= b.successThreshold {
				b.open, changed = false, true
				b.successes = 0
			}
		}
	}
	open, fn := b.open, b.onChange
	b.mu.Unlock()

	if changed && fn != nil {
		fn(b.name, open)
	}
	return open
}

// Reset closes the breaker and clears its counters without notifying.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.failures = 0
	b.successes = 0
}
