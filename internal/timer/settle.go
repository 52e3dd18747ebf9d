package timer

import (
	"sync"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// DefaultSettleWindow absorbs the burst of "final" events a recognition
// engine emits before the speaker is really done.
const DefaultSettleWindow = 700 * time.Millisecond

// Option configures a Settle timer.
type Option func(*Settle)

// WithWindow sets how long the timer waits after the latest Reset.
func WithWindow(d time.Duration) Option {
	return func(s *Settle) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock overrides the clock. Tests pass a *Fake.
func WithClock(c Clock) Option {
	return func(s *Settle) { s.clock = c }
}

// Settle is a single cancelable delayed task holding one pending value.
// Each Reset replaces the value and restarts the window; the callback
// receives only the latest value. A fire that races with Stop or a later
// Reset is suppressed by a generation check.
type Settle struct {
	clock  Clock
	window time.Duration
	fire   func(gen uint64, value string)
	log    *logger.Logger

	mu      sync.Mutex
	gen     uint64
	pending Stopper
	value   string
}

// NewSettle creates a settle timer. fire runs on the clock's goroutine
// with the generation returned by the matching Reset.
func NewSettle(fire func(gen uint64, value string), log *logger.Logger, opts ...Option) *Settle {
	s := &Settle{
		clock:  Real{},
		window: DefaultSettleWindow,
		fire:   fire,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset stores value and (re)starts the window. It returns the new
// generation.
func (s *Settle) Reset(value string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
	}
	s.gen++
	gen := s.gen
	s.value = value
	s.pending = s.clock.AfterFunc(s.window, func() { s.expire(gen) })

	s.log.Debug("settle: armed gen=%d window=%s value=%q", gen, s.window, value)
	return gen
}

// Stop cancels any pending fire and drops the held value. Safe to call
// when nothing is pending.
func (s *Settle) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return
	}
	s.pending.Stop()
	s.pending = nil
	s.value = ""
	s.gen++
	s.log.Debug("settle: stopped")
}

func (s *Settle) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	value := s.value
	s.pending = nil
	s.value = ""
	s.mu.Unlock()

	s.log.Debug("settle: fired gen=%d", gen)
	s.fire(gen, value)
}
