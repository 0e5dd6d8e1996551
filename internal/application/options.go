package application

import (
	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"go.uber.org/zap"
)

// Metrics receives orchestrator activity. The telemetry/metrics package
// provides the Prometheus implementation.
type Metrics interface {
	ObserveTransition(from, to domain.ConnectionState)
	ObserveAttempt(kind domain.TransactionKind, outcome domain.AttemptOutcome)
	ObserveAutoReconnect(allowed bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTransition(domain.ConnectionState, domain.ConnectionState) {}
func (noopMetrics) ObserveAttempt(domain.TransactionKind, domain.AttemptOutcome)     {}
func (noopMetrics) ObserveAutoReconnect(bool)                                        {}

type options struct {
	clock    ports.Clock
	logger   *zap.Logger
	metrics  Metrics
	recovery RecoveryStrategy
}

type Option func(*options)

func WithClock(clock ports.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithRecoveryStrategy replaces the disconnect/reconnect permission recovery.
func WithRecoveryStrategy(strategy RecoveryStrategy) Option {
	return func(o *options) {
		o.recovery = strategy
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = ports.SystemClock{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	return o
}
