// Package circuitbreaker implements a per-provider availability gate for the
// LLM and embedding clients the engine calls out to. It tracks failures
// within a rolling window and trips to an Open state that rejects calls for
// a cooldown period before allowing a single HalfOpen probe through.
package circuitbreaker

import (
	"sync"
	"time"

	"memengine/internal/logging"
)

// state is the closed set of per-provider states.
type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// providerState tracks one provider's failure history and trip state.
type providerState struct {
	state      state
	failures   []time.Time // timestamps within the current window, Closed only
	trippedAt  time.Time   // set when transitioning to Open
	probeInFlight bool     // HalfOpen admits exactly one concurrent probe
}

// Breaker is a per-provider circuit breaker. Zero value is not usable; use
// New.
type Breaker struct {
	mu        sync.Mutex
	states    map[string]*providerState
	threshold int
	window    time.Duration
	cooldown  time.Duration
}

// New constructs a Breaker with the given trip threshold, failure-counting
// window, and open-state cooldown.
func New(threshold int, window, cooldown time.Duration) *Breaker {
	return &Breaker{
		states:    make(map[string]*providerState),
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
	}
}

// IsAvailable reports whether a call to provider should be attempted right
// now. A provider with no recorded history is always available. An Open
// provider becomes available (transitioning to HalfOpen) once the cooldown
// has elapsed, admitting exactly one probe at a time.
func (b *Breaker) IsAvailable(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps, ok := b.states[provider]
	if !ok {
		return true
	}

	switch ps.state {
	case stateClosed:
		return true
	case stateHalfOpen:
		if ps.probeInFlight {
			return false
		}
		ps.probeInFlight = true
		return true
	case stateOpen:
		if time.Since(ps.trippedAt) >= b.cooldown {
			logging.CircuitDebug("provider %s: cooldown elapsed, admitting probe", provider)
			ps.state = stateHalfOpen
			ps.probeInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess clears a provider's failure history. From HalfOpen this
// closes the circuit; from Closed it simply resets the failure window.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps, ok := b.states[provider]
	if !ok {
		return
	}
	if ps.state == stateHalfOpen {
		logging.Circuit("provider %s: probe succeeded, closing circuit", provider)
	}
	ps.state = stateClosed
	ps.failures = nil
	ps.probeInFlight = false
}

// RecordFailure records a failed call. From Closed, threshold failures
// within window trips the circuit Open. From HalfOpen, a single failure
// re-trips it Open immediately.
func (b *Breaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ps, ok := b.states[provider]
	if !ok {
		ps = &providerState{state: stateClosed}
		b.states[provider] = ps
	}

	now := time.Now()

	switch ps.state {
	case stateHalfOpen:
		logging.Circuit("provider %s: probe failed, re-tripping circuit", provider)
		ps.state = stateOpen
		ps.trippedAt = now
		ps.failures = nil
		ps.probeInFlight = false
	case stateOpen:
		ps.trippedAt = now
	default: // stateClosed
		ps.failures = append(ps.failures, now)
		ps.failures = pruneBefore(ps.failures, now.Add(-b.window))
		if len(ps.failures) >= b.threshold {
			logging.Circuit("provider %s: %d failures within %s, tripping circuit", provider, len(ps.failures), b.window)
			ps.state = stateOpen
			ps.trippedAt = now
			ps.failures = nil
		}
	}
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// StatusOpen reports whether provider is currently in the Open state
// (i.e. calls will be rejected without a probe).
func (b *Breaker) StatusOpen(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ps, ok := b.states[provider]
	return ok && ps.state == stateOpen && time.Since(ps.trippedAt) < b.cooldown
}
