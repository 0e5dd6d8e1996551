package metrics

import (
	"net/http"
	"strconv"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletctl"

// Collector records orchestrator activity on its own registry.
type Collector struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	sessionState   *prometheus.GaugeVec
	attempts       *prometheus.CounterVec
	autoReconnects *prometheus.CounterVec
}

var _ application.Metrics = (*Collector)(nil)

var allStates = []domain.ConnectionState{
	domain.StateDisconnected,
	domain.StateDetecting,
	domain.StateSelecting,
	domain.StateConnecting,
	domain.StateConnected,
	domain.StateErrored,
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions",
		}, []string{"from", "to"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transaction",
			Name:      "attempts_total",
			Help:      "Finished transaction attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		autoReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auto_reconnects_total",
			Help:      "Automatic reconnect decisions by the reconnect gate",
		}, []string{"allowed"}),
	}

	c.registry.MustRegister(c.transitions, c.sessionState, c.attempts, c.autoReconnects)
	c.setState(domain.StateDisconnected)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObserveTransition(from, to domain.ConnectionState) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
	c.setState(to)
}

func (c *Collector) ObserveAttempt(kind domain.TransactionKind, outcome domain.AttemptOutcome) {
	c.attempts.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (c *Collector) ObserveAutoReconnect(allowed bool) {
	c.autoReconnects.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

func (c *Collector) setState(current domain.ConnectionState) {
	for _, state := range allStates {
		value := 0.0
		if state == current {
			value = 1
		}
		c.sessionState.WithLabelValues(string(state)).Set(value)
	}
}
