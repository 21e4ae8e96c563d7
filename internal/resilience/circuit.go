package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen lets a bounded number of probes through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// Counts is the outcome tally of the current closed-state window.
type Counts struct {
	Successes int
	Failures  int
}

// Total returns the number of reported outcomes.
func (c Counts) Total() int { return c.Successes + c.Failures }

// FailureRatio returns failures over total, or zero when nothing was reported.
func (c Counts) FailureRatio() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Failures) / float64(c.Total())
}

// BreakerConfig tunes a Breaker. Zero values fall back to the defaults noted
// on each field.
type BreakerConfig struct {
	// Target labels metrics and logs. Defaults to "default".
	Target string
	// MinRequests is the sample size needed before the ratio is checked. Defaults to 1.
	MinRequests int
	// FailureRatio trips the breaker when reached. Defaults to 0.5, capped at 1.
	FailureRatio float64
	// OpenFor is the cool-off before probing. Defaults to 30s.
	OpenFor time.Duration
	// Window resets the closed-state counts. Defaults to one minute.
	Window time.Duration
	// HalfOpenProbes caps concurrent probes while half-open. Defaults to 1.
	HalfOpenProbes int
	Logger         *zerolog.Logger
	Now            func() time.Time
}

// Breaker is a failure-ratio circuit breaker. A nil *Breaker allows everything.
type Breaker struct {
	mu          sync.Mutex
	cfg         BreakerConfig
	state       State
	counts      Counts
	windowStart time.Time
	openedAt    time.Time
	probes      int
}

// NewBreaker builds a breaker from the three thresholds most callers tune.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	return New(BreakerConfig{MinRequests: minRequests, FailureRatio: failureRatio, OpenFor: openFor})
}

// New builds a breaker from cfg.
func New(cfg BreakerConfig) *Breaker {
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.FailureRatio > 1 {
		cfg.FailureRatio = 1
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Target = strings.TrimSpace(cfg.Target)
	b := &Breaker{cfg: cfg, state: Closed, windowStart: cfg.Now()}
	b.publishState()
	return b
}

// WithTarget sets the dependency label used for metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithClock replaces the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	if now == nil {
		return b
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Now = now
	b.windowStart = now()
	return b
}

// WithLogger sets the fallback logger for transition events. A logger on the
// request context takes precedence.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg.Logger = &logger
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a snapshot of the closed-state window.
func (b *Breaker) Counts() Counts {
	if b == nil {
		return Counts{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reports whether a request may proceed. Every true result must be
// followed by exactly one Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Now()
	switch b.state {
	case Open:
		if now.Sub(b.openedAt) < b.cfg.OpenFor {
			return false
		}
		b.transition(ctx, HalfOpen)
		b.probes = 1
		return true
	case HalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false
		}
		b.probes++
		return true
	default:
		if now.Sub(b.windowStart) >= b.cfg.Window {
			b.counts = Counts{}
			b.windowStart = now
		}
		return true
	}
}

// Report records the outcome of an allowed request.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transition(ctx, Closed)
		} else {
			b.transition(ctx, Open)
		}
		return
	}

	if success {
		b.counts.Successes++
	} else {
		b.counts.Failures++
	}
	if b.counts.Total() >= b.cfg.MinRequests && b.counts.FailureRatio() >= b.cfg.FailureRatio {
		b.transition(ctx, Open)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.cfg.Now()
	b.state = next
	b.counts = Counts{}
	b.probes = 0
	switch next {
	case Open:
		b.openedAt = now
	case Closed:
		b.openedAt = time.Time{}
		b.windowStart = now
	}

	b.publishState()
	label := b.label()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	}
	if next == Open && BreakerOpenedTotal != nil {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	evt := b.logger(ctx).Info().Str("target", label).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.label()).Set(b.state.gauge())
	}
}

func (b *Breaker) label() string {
	if b.cfg.Target == "" {
		return "default"
	}
	return b.cfg.Target
}

func (b *Breaker) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
