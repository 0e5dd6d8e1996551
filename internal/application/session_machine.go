package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidTransition = errors.New("invalid session transition")

type transitionListener struct {
	id string
	fn func(domain.Transition)
}

// SessionMachine owns the single WalletSession. All state changes go through
// transition, which delivers them to subscribers in order.
type SessionMachine struct {
	host    ports.HostBinding
	probe   *Probe
	cfg     Config
	clock   ports.Clock
	logger  *zap.Logger
	metrics Metrics

	// emitMu serializes apply+deliver so subscribers see transitions in order.
	emitMu sync.Mutex

	mu          sync.Mutex
	session     domain.WalletSession
	inFlight    bool
	erroredAt   time.Time
	lastOptions ports.ConnectOptions
	listeners   []transitionListener
}

func NewSessionMachine(host ports.HostBinding, probe *Probe, cfg Config, opts ...Option) *SessionMachine {
	o := buildOptions(opts)

	return &SessionMachine{
		host:        host,
		probe:       probe,
		cfg:         cfg,
		clock:       o.clock,
		logger:      o.logger.Named("session"),
		metrics:     o.metrics,
		session:     domain.NewWalletSession(),
		lastOptions: cloneConnectOptions(cfg.Connect),
	}
}

func (m *SessionMachine) Snapshot() domain.WalletSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// LastConnectOptions returns the options used by the most recent connect.
func (m *SessionMachine) LastConnectOptions() ports.ConnectOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneConnectOptions(m.lastOptions)
}

// Subscribe registers fn for every applied transition and returns the
// matching unsubscribe func. fn runs synchronously and must not call back
// into methods that transition the session.
func (m *SessionMachine) Subscribe(fn func(domain.Transition)) func() {
	id := uuid.NewString()

	m.mu.Lock()
	m.listeners = append(m.listeners, transitionListener{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners = slices.DeleteFunc(m.listeners, func(l transitionListener) bool {
			return l.id == id
		})
	}
}

// Connect runs one full detect, select, connect sequence. A call made while a
// sequence is running, or while connected, returns the current session
// without side effects. From the errored state it first waits out the retry
// cooldown. The returned error is the classified failure, if any; it is also
// recorded on the session.
func (m *SessionMachine) Connect(ctx context.Context, opts ports.ConnectOptions) (domain.WalletSession, error) {
	if err := ctx.Err(); err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	if m.inFlight || m.session.State.InFlight() || m.session.State == domain.StateConnected {
		session := m.session
		m.mu.Unlock()
		m.logger.Debug("connect ignored", zap.String("state", string(session.State)))
		return session, nil
	}
	m.inFlight = true
	m.lastOptions = cloneConnectOptions(opts)
	var wait time.Duration
	if m.session.State == domain.StateErrored {
		wait = m.cfg.RetryCooldown - m.clock.Now().Sub(m.erroredAt)
	}
	m.mu.Unlock()

	defer m.release()

	if wait > 0 {
		m.logger.Debug("waiting for retry cooldown", zap.Duration("wait", wait))
		if err := sleepContext(ctx, wait); err != nil {
			return m.Snapshot(), err
		}
	}

	err := m.run(ctx, opts)
	return m.Snapshot(), err
}

func (m *SessionMachine) release() {
	m.mu.Lock()
	m.inFlight = false
	m.mu.Unlock()
}

func (m *SessionMachine) run(ctx context.Context, opts ports.ConnectOptions) error {
	if err := m.transition(domain.StateDetecting, func(s *domain.WalletSession) {
		s.LastError = nil
		s.AdapterName = ""
	}); err != nil {
		return err
	}

	if !m.probe.Detect(ctx) {
		if err := ctx.Err(); err != nil {
			return m.fail(domain.Sentinel(domain.ClassifyConnectError(err)).WithCause(err))
		}
		return m.fail(domain.ErrNotInstalled.WithAction(m.cfg.InstallURL))
	}

	if err := m.transition(domain.StateSelecting, nil); err != nil {
		return err
	}

	adapterName, err := m.selectAdapter(ctx)
	if err != nil {
		return m.fail(err)
	}

	if err := m.transition(domain.StateConnecting, func(s *domain.WalletSession) {
		s.AdapterName = adapterName
	}); err != nil {
		return err
	}

	result, err := m.connectWithTimeout(ctx, opts)
	if err != nil {
		return m.fail(err)
	}

	now := m.clock.Now()
	return m.transition(domain.StateConnected, func(s *domain.WalletSession) {
		s.Address = result.Address
		if result.AdapterName != "" {
			s.AdapterName = result.AdapterName
		}
		s.ConnectedAt = now
	})
}

// selectAdapter asks the host to select the adapter and confirms the choice
// once the settle delay has passed. The adapter library commits selections
// asynchronously, so reading Selected earlier is unreliable.
func (m *SessionMachine) selectAdapter(ctx context.Context) (string, error) {
	adapters := m.host.Adapters()
	name := m.cfg.AdapterName
	switch {
	case name == "" && len(adapters) == 0:
		return "", domain.ErrSelectionFailure.WithMessage("no wallet adapters offered")
	case name == "":
		name = adapters[0]
	case !slices.Contains(adapters, name):
		return "", domain.ErrSelectionFailure.WithMessage(fmt.Sprintf("adapter %q not offered", name))
	}

	if err := m.host.Select(ctx, name); err != nil {
		return "", domain.ErrSelectionFailure.WithCause(err)
	}

	if err := sleepContext(ctx, m.cfg.SettleDelay); err != nil {
		return "", domain.Sentinel(domain.ClassifyConnectError(err)).WithCause(err)
	}

	if selected := m.host.Selected(); selected != name {
		m.logger.Warn("adapter selection not confirmed",
			zap.String("want", name),
			zap.String("got", selected),
			zap.Duration("settle_delay", m.cfg.SettleDelay),
		)
		return "", domain.ErrSelectionFailure.WithMessage(fmt.Sprintf("adapter %q not confirmed after %s", name, m.cfg.SettleDelay))
	}

	return name, nil
}

type connectOutcome struct {
	result ports.ConnectResult
	err    error
}

// connectWithTimeout bounds the host connect call. The host sees the deadline
// through its context; a host that ignores it is abandoned.
func (m *SessionMachine) connectWithTimeout(ctx context.Context, opts ports.ConnectOptions) (ports.ConnectResult, error) {
	timeout := m.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan connectOutcome, 1)
	go func() {
		result, err := m.host.Connect(connectCtx, cloneConnectOptions(opts))
		done <- connectOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return ports.ConnectResult{}, classifyConnectError(out.err)
		}
		if out.result.Address == "" {
			return ports.ConnectResult{}, domain.ErrConnectionFailure.WithMessage("wallet returned no address")
		}
		return out.result, nil
	case <-connectCtx.Done():
		err := connectCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return ports.ConnectResult{}, domain.ErrTimeout.WithMessage(fmt.Sprintf("wallet did not respond within %s", timeout))
		}
		return ports.ConnectResult{}, domain.ErrConnectionFailure.WithCause(err)
	}
}

func classifyConnectError(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.Sentinel(domain.ClassifyConnectError(err)).WithCause(err)
}

func (m *SessionMachine) fail(err error) error {
	record := domain.RecordOf(err, domain.KindConnectionFailure, m.clock.Now())
	if transitionErr := m.transition(domain.StateErrored, func(s *domain.WalletSession) {
		s.LastError = record
	}); transitionErr != nil {
		return errors.Join(err, transitionErr)
	}
	return err
}

// Disconnect tears down a connected session, or dismisses an errored one.
// It is a no-op while a connect sequence is running. Host disconnect errors
// are logged; the session always ends disconnected.
func (m *SessionMachine) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		return nil
	}
	state := m.session.State
	if state == domain.StateConnected {
		m.inFlight = true
	}
	m.mu.Unlock()

	switch state {
	case domain.StateConnected:
		defer m.release()
		if err := m.host.Disconnect(ctx); err != nil {
			m.logger.Warn("host disconnect failed", zap.Error(err))
		}
		return m.toDisconnected()
	case domain.StateErrored:
		return m.toDisconnected()
	default:
		return nil
	}
}

// Dismiss clears an errored session without contacting the host.
func (m *SessionMachine) Dismiss() error {
	m.mu.Lock()
	skip := m.inFlight || m.session.State != domain.StateErrored
	m.mu.Unlock()
	if skip {
		return nil
	}
	return m.toDisconnected()
}

// HandleExternalDisconnect applies a disconnect the wallet reported on its own.
func (m *SessionMachine) HandleExternalDisconnect() {
	if m.Snapshot().State != domain.StateConnected {
		return
	}
	m.logger.Info("wallet reported disconnect")
	if err := m.toDisconnected(); err != nil && !errors.Is(err, ErrInvalidTransition) {
		m.logger.Warn("apply external disconnect", zap.Error(err))
	}
}

func (m *SessionMachine) toDisconnected() error {
	return m.transition(domain.StateDisconnected, func(s *domain.WalletSession) {
		s.LastError = nil
		s.AdapterName = ""
	})
}

func (m *SessionMachine) transition(to domain.ConnectionState, mutate func(*domain.WalletSession)) error {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	now := m.clock.Now()

	m.mu.Lock()
	from := m.session.State
	if !from.CanTransitionTo(to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	next := m.session
	next.State = to
	if mutate != nil {
		mutate(&next)
	}
	if to != domain.StateConnected {
		next.Address = ""
		next.ConnectedAt = time.Time{}
	}
	if to == domain.StateErrored {
		m.erroredAt = now
	}
	m.session = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.metrics.ObserveTransition(from, to)
	fields := []zap.Field{zap.String("from", string(from)), zap.String("to", string(to))}
	if next.LastError != nil && to == domain.StateErrored {
		fields = append(fields, zap.String("kind", string(next.LastError.Kind)), zap.String("error", next.LastError.Message))
		m.logger.Warn("session transition", fields...)
	} else {
		m.logger.Debug("session transition", fields...)
	}

	tr := domain.Transition{From: from, To: to, Session: next, At: now}
	for _, l := range listeners {
		l.fn(tr)
	}
	return nil
}

// Reset returns the machine to a fresh disconnected session. Tests only.
func (m *SessionMachine) Reset() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	m.session = domain.NewWalletSession()
	m.inFlight = false
	m.erroredAt = time.Time{}
	m.lastOptions = cloneConnectOptions(m.cfg.Connect)
	m.mu.Unlock()

	m.probe.Reset()
}

func cloneConnectOptions(opts ports.ConnectOptions) ports.ConnectOptions {
	opts.ProgramIDs = slices.Clone(opts.ProgramIDs)
	return opts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
