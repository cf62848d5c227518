package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/fraudscore/internal/circuitbreaker"
	"github.com/mbd888/fraudscore/internal/features"
	"github.com/mbd888/fraudscore/internal/metrics"
)

// State is the guard's circuit state.
type State = circuitbreaker.State

const (
	StateClosed   = circuitbreaker.StateClosed   // lookups flow through
	StateOpen     = circuitbreaker.StateOpen     // lookups short-circuit to "not found"
	StateHalfOpen = circuitbreaker.StateHalfOpen // one trial lookup in flight
)

const (
	DefaultFailureThreshold = circuitbreaker.DefaultThreshold
	DefaultCooldown         = circuitbreaker.DefaultOpenDuration
	DefaultLookupTimeout    = 50 * time.Millisecond

	defaultGuardName = "history"
)

// Guard wraps a provider with a consecutive-failure circuit breaker and a
// per-lookup timeout. A failing history backend then adds no latency to
// scoring; requests fall back to defaults until a trial lookup succeeds.
type Guard struct {
	inner    Provider
	recorder Recorder
	logger   *slog.Logger
	name     string
	timeout  time.Duration
	breaker  *circuitbreaker.Breaker

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithThreshold sets the consecutive failures that open the circuit.
func WithThreshold(n int) GuardOption {
	return func(g *Guard) { g.threshold = n }
}

// WithCooldown sets how long the circuit stays open before probing.
func WithCooldown(d time.Duration) GuardOption {
	return func(g *Guard) { g.cooldown = d }
}

// WithLookupTimeout bounds each lookup. Zero disables the bound.
func WithLookupTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// WithName sets the breaker key and log name, usually the backend name.
func WithName(name string) GuardOption {
	return func(g *Guard) {
		if name != "" {
			g.name = name
		}
	}
}

// NewGuard wraps p. If p also records, Record is forwarded.
func NewGuard(p Provider, logger *slog.Logger, opts ...GuardOption) *Guard {
	g := &Guard{
		inner:     p,
		logger:    logger,
		name:      defaultGuardName,
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		timeout:   DefaultLookupTimeout,
		now:       time.Now,
	}
	if r, ok := p.(Recorder); ok {
		g.recorder = r
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.breaker = circuitbreaker.New(
		circuitbreaker.WithThreshold(g.threshold),
		circuitbreaker.WithOpenDuration(g.cooldown),
		circuitbreaker.WithClock(g.now),
		circuitbreaker.OnTransition(g.onTransition),
	)
	return g
}

func (g *Guard) Lookup(ctx context.Context, customerID string) (features.History, bool, error) {
	if !g.breaker.Allow(g.name) {
		metrics.HistoryLookupsTotal.WithLabelValues(resultSkipped).Inc()
		return features.History{}, false, nil
	}

	lctx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	h, found, err := g.inner.Lookup(lctx, customerID)
	if err != nil {
		g.breaker.RecordFailure(g.name)
		metrics.HistoryLookupsTotal.WithLabelValues(resultError).Inc()
		return features.History{}, false, err
	}
	g.breaker.RecordSuccess(g.name)
	if found {
		metrics.HistoryLookupsTotal.WithLabelValues(resultHit).Inc()
	} else {
		metrics.HistoryLookupsTotal.WithLabelValues(resultMiss).Inc()
	}
	return h, found, nil
}

// Record forwards to the wrapped backend when it records. Writes are not
// gated by the circuit.
func (g *Guard) Record(ctx context.Context, customerID string, amount float64) error {
	if g.recorder == nil {
		return nil
	}
	return g.recorder.Record(ctx, customerID, amount)
}

// Ping forwards to the wrapped backend when it supports health checks.
func (g *Guard) Ping(ctx context.Context) error {
	if p, ok := g.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// State returns the current circuit state.
func (g *Guard) State() State {
	return g.breaker.State(g.name)
}

func (g *Guard) onTransition(tr circuitbreaker.Transition) {
	metrics.HistoryBreakerTransitions.WithLabelValues(tr.To.String()).Inc()
	g.logger.Warn("history circuit breaker state change",
		"backend", tr.Key,
		"from", tr.From.String(),
		"to", tr.To.String(),
		"failures", tr.Failures,
	)
}
