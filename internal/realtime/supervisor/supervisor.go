// Package supervisor re-establishes push channels after app lifecycle and
// connectivity transitions. Retry and backoff are an explicit policy here,
// never an assumption about transport self-healing.
package supervisor

import (
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
)

// Reconnector is the registry surface the supervisor drives.
type Reconnector interface {
	ReconnectAll() error
}

const (
	defaultCooldown        = 3 * time.Second
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 2 * time.Minute
	defaultMultiplier      = 2
)

// Supervisor watches foreground/background and online/offline transitions
// and drives channel reconnection with a cooldown against signal flapping
// and capped exponential retry after failed passes.
// It is safe for concurrent use.
type Supervisor struct {
	reconnector Reconnector
	clock       clock.Clock
	cooldown    time.Duration

	mu           sync.Mutex
	policy       *backoff.ExponentialBackOff
	foregrounded bool
	online       bool
	lastAttempt  time.Time
	hasAttempted bool
	retryTimer   *clock.Timer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock injects the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Supervisor) { s.clock = clk }
}

// WithCooldown overrides the flap-suppression window between
// signal-triggered reconnect attempts.
func WithCooldown(cooldown time.Duration) Option {
	return func(s *Supervisor) { s.cooldown = cooldown }
}

// WithRetryIntervals overrides the retry backoff curve. The constants are a
// tunable, not a contract.
func WithRetryIntervals(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		s.policy.InitialInterval = initial
		s.policy.MaxInterval = max
		s.policy.Reset()
	}
}

// New creates a supervisor in the foregrounded, online state.
func New(reconnector Reconnector, opts ...Option) *Supervisor {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultInitialInterval
	policy.MaxInterval = defaultMaxInterval
	policy.Multiplier = defaultMultiplier
	// Deterministic intervals; the cooldown already spreads out bursts.
	policy.RandomizationFactor = 0
	policy.Reset()

	s := &Supervisor{
		reconnector:  reconnector,
		clock:        clock.New(),
		cooldown:     defaultCooldown,
		policy:       policy,
		foregrounded: true,
		online:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleForeground reacts to the app becoming foregrounded.
func (s *Supervisor) HandleForeground() {
	s.mu.Lock()
	wasForegrounded := s.foregrounded
	s.foregrounded = true
	online := s.online
	s.mu.Unlock()

	if wasForegrounded || !online {
		return
	}
	s.attempt(false)
}

// HandleBackground records that the app left the foreground.
func (s *Supervisor) HandleBackground() {
	s.mu.Lock()
	s.foregrounded = false
	s.stopRetryLocked()
	s.mu.Unlock()
}

// HandleOnline reacts to connectivity coming back.
func (s *Supervisor) HandleOnline() {
	s.mu.Lock()
	wasOnline := s.online
	s.online = true
	foregrounded := s.foregrounded
	s.mu.Unlock()

	if wasOnline || !foregrounded {
		return
	}
	s.attempt(false)
}

// HandleOffline records connectivity loss and cancels any pending retry;
// retrying while offline is pointless.
func (s *Supervisor) HandleOffline() {
	s.mu.Lock()
	s.online = false
	s.stopRetryLocked()
	s.mu.Unlock()
}

// Close cancels any pending retry timer.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.stopRetryLocked()
	s.mu.Unlock()
}

// attempt runs one reconnect pass. Signal-triggered attempts are debounced
// by the cooldown window; retry attempts bypass it, their spacing is the
// backoff curve itself.
func (s *Supervisor) attempt(isRetry bool) {
	s.mu.Lock()
	now := s.clock.Now()
	if !isRetry && s.hasAttempted && now.Sub(s.lastAttempt) < s.cooldown {
		s.mu.Unlock()
		return
	}
	s.lastAttempt = now
	s.hasAttempted = true
	s.stopRetryLocked()
	s.mu.Unlock()

	err := s.reconnector.ReconnectAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.policy.Reset()
		return
	}

	if !s.online || !s.foregrounded {
		return
	}
	delay := s.policy.NextBackOff()
	log.Printf("realtime: reconnect failed, retrying in %s: %v", delay, err)
	s.retryTimer = s.clock.AfterFunc(delay, func() {
		s.attempt(true)
	})
}

func (s *Supervisor) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}
