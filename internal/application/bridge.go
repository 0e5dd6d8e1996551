package application

import (
	"context"
	"encoding/json"
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

// KeyWalletConnection holds the last connected SessionRecord.
const KeyWalletConnection = "walletConnection"

var ErrUnknownEvent = errors.New("unknown event")

// InboundEvent is a request from a presentation context.
type InboundEvent struct {
	Name    domain.EventName
	Payload json.RawMessage
}

// Reply answers a sign or mint request with the operation's result.
type Reply struct {
	Event  domain.EventName    `json:"-"`
	Result any                 `json:"result,omitempty"`
	Error  *domain.ErrorRecord `json:"error,omitempty"`
}

// ReplyFor builds the result event for request. ok is false for requests
// that are answered through session notifications instead.
func ReplyFor(request domain.EventName, result any, err error, now time.Time) (reply Reply, ok bool) {
	switch request {
	case domain.EventSignRequest:
		reply.Event = domain.EventSignResult
	case domain.EventMintRequest:
		reply.Event = domain.EventMintResult
	default:
		return Reply{}, false
	}
	if err != nil {
		reply.Error = domain.RecordOf(err, domain.KindOf(err), now)
		return reply, true
	}
	reply.Result = result
	return reply, true
}

type SignRequest struct {
	Message string `json:"message"`
}

// SessionView is what presentation layers render: the real session, the
// optimistic record restored from storage, and whether the user chose to
// continue without a wallet.
type SessionView struct {
	Session  domain.WalletSession  `json:"session"`
	Restored *domain.SessionRecord `json:"restored,omitempty"`
	Degraded bool                  `json:"degraded"`
}

type notificationListener struct {
	id string
	fn func(domain.Notification)
}

// Bridge connects presentation contexts to the machine and pipeline. It
// republishes every transition as a Notification and keeps the persisted
// session record in step with the session.
type Bridge struct {
	machine  *SessionMachine
	pipeline *Pipeline
	gate     *ReconnectGate
	store    ports.KeyValueStore
	cfg      Config
	clock    ports.Clock
	logger   *zap.Logger
	metrics  Metrics

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu             sync.Mutex
	listeners      []notificationListener
	degraded       bool
	restored       *domain.SessionRecord
	recoverPending bool
	closed         bool
}

func NewBridge(machine *SessionMachine, pipeline *Pipeline, gate *ReconnectGate, store ports.KeyValueStore, cfg Config, opts ...Option) *Bridge {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		machine:  machine,
		pipeline: pipeline,
		gate:     gate,
		store:    store,
		cfg:      cfg,
		clock:    o.clock,
		logger:   o.logger.Named("bridge"),
		metrics:  o.metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
	b.unsubscribe = machine.Subscribe(b.onTransition)
	return b
}

// Subscribe registers fn for every notification. Delivery is synchronous and
// ordered; fn must not block.
func (b *Bridge) Subscribe(fn func(domain.Notification)) func() {
	id := uuid.NewString()

	b.mu.Lock()
	b.listeners = append(b.listeners, notificationListener{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.listeners = slices.DeleteFunc(b.listeners, func(l notificationListener) bool {
			return l.id == id
		})
	}
}

func (b *Bridge) onTransition(tr domain.Transition) {
	n := domain.Notification{
		Event:       domain.EventFor(tr.To),
		State:       tr.To,
		Address:     tr.Session.Address,
		AdapterName: tr.Session.AdapterName,
		At:          tr.At,
	}
	if tr.To == domain.StateErrored {
		n.Error = tr.Session.LastError
	}

	b.persist(tr)

	b.mu.Lock()
	if tr.To == domain.StateConnected {
		b.degraded = false
		b.restored = nil
	}
	listeners := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l.fn(n)
	}

	if tr.To == domain.StateErrored && b.autoRecoverable(tr.Session.LastError) {
		b.scheduleAutoReconnect()
	}
}

func (b *Bridge) persist(tr domain.Transition) {
	switch tr.To {
	case domain.StateConnected:
		record := domain.SessionRecord{
			Address:   tr.Session.Address,
			Name:      tr.Session.AdapterName,
			Timestamp: tr.At,
		}
		data, err := json.Marshal(record)
		if err != nil {
			b.logger.Warn("encode session record", zap.Error(err))
			return
		}
		if err := b.store.Put(b.ctx, KeyWalletConnection, string(data)); err != nil {
			b.logger.Warn("persist session record", zap.Error(err))
		}
		if err := b.gate.Reset(b.ctx); err != nil {
			b.logger.Warn("reset reconnect counters", zap.Error(err))
		}
	case domain.StateDisconnected, domain.StateErrored:
		if err := b.store.Delete(b.ctx, KeyWalletConnection); err != nil {
			b.logger.Warn("clear session record", zap.Error(err))
		}
	}
}

func (b *Bridge) autoRecoverable(record *domain.ErrorRecord) bool {
	if !b.cfg.Reconnect.AutoRecover || record == nil {
		return false
	}
	return record.Kind == domain.KindSelectionFailure || record.Kind == domain.KindTimeout
}

func (b *Bridge) scheduleAutoReconnect() {
	b.mu.Lock()
	if b.closed || b.recoverPending {
		b.mu.Unlock()
		return
	}
	b.recoverPending = true
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			b.mu.Lock()
			b.recoverPending = false
			b.mu.Unlock()
		}()

		if err := sleepContext(b.ctx, b.cfg.RetryCooldown); err != nil {
			return
		}
		if _, _, err := b.AutoReconnect(b.ctx); err != nil {
			b.logger.Debug("automatic reconnect failed", zap.Error(err))
		}
	}()
}

// Connect is an explicit user connect and is never gated. Nil opts uses the
// configured connect options.
func (b *Bridge) Connect(ctx context.Context, opts *ports.ConnectOptions) (domain.WalletSession, error) {
	return b.machine.Connect(ctx, b.connectOptions(opts))
}

func (b *Bridge) connectOptions(opts *ports.ConnectOptions) ports.ConnectOptions {
	merged := cloneConnectOptions(b.cfg.Connect)
	if opts == nil {
		return merged
	}
	if opts.Permission != "" {
		merged.Permission = opts.Permission
	}
	if opts.Network != "" {
		merged.Network = opts.Network
	}
	if len(opts.ProgramIDs) > 0 {
		merged.ProgramIDs = slices.Clone(opts.ProgramIDs)
	}
	return merged
}

// AutoReconnect runs a connect only when the reconnect gate allows it.
// attempted reports whether a connect sequence ran.
func (b *Bridge) AutoReconnect(ctx context.Context) (session domain.WalletSession, attempted bool, err error) {
	current := b.machine.Snapshot()
	if current.State == domain.StateConnected || current.State.InFlight() {
		return current, false, nil
	}

	allowed, err := b.gate.Allow(ctx)
	if err != nil {
		return current, false, fmt.Errorf("check reconnect gate: %w", err)
	}
	b.metrics.ObserveAutoReconnect(allowed)
	if !allowed {
		b.logger.Info("automatic reconnect suppressed")
		return current, false, nil
	}

	b.logger.Info("automatic reconnect")
	session, err = b.machine.Connect(ctx, b.machine.LastConnectOptions())
	return session, true, err
}

func (b *Bridge) Disconnect(ctx context.Context) error {
	return b.machine.Disconnect(ctx)
}

// Forget disconnects and drops the persisted record, for callers that never
// held the live session, such as a one-shot CLI run.
func (b *Bridge) Forget(ctx context.Context) error {
	if err := b.machine.Disconnect(ctx); err != nil {
		return err
	}
	if err := b.store.Delete(ctx, KeyWalletConnection); err != nil {
		return fmt.Errorf("clear session record: %w", err)
	}

	b.mu.Lock()
	b.restored = nil
	b.mu.Unlock()
	return nil
}

// Skip continues without a wallet. An errored session is dismissed.
func (b *Bridge) Skip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.degraded = true
	b.mu.Unlock()

	return b.machine.Dismiss()
}

func (b *Bridge) Sign(ctx context.Context, message string) (domain.SignatureResult, error) {
	return b.pipeline.RequestSignature(ctx, message)
}

func (b *Bridge) Mint(ctx context.Context, req domain.MintRequest) (domain.MintResult, error) {
	return b.pipeline.SubmitMint(ctx, req)
}

// Restore loads the persisted record for display. The session itself stays
// disconnected until a real connect succeeds.
func (b *Bridge) Restore(ctx context.Context) (domain.SessionRecord, bool, error) {
	data, err := b.store.Get(ctx, KeyWalletConnection)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return domain.SessionRecord{}, false, nil
	}
	if err != nil {
		return domain.SessionRecord{}, false, fmt.Errorf("load session record: %w", err)
	}

	var record domain.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return domain.SessionRecord{}, false, fmt.Errorf("decode session record: %w", err)
	}

	b.mu.Lock()
	b.restored = &record
	b.mu.Unlock()

	return record, true, nil
}

func (b *Bridge) View() SessionView {
	session := b.machine.Snapshot()

	b.mu.Lock()
	defer b.mu.Unlock()

	view := SessionView{Session: session, Degraded: b.degraded}
	if b.restored != nil {
		restored := *b.restored
		view.Restored = &restored
	}
	return view
}

// HandleEvent dispatches an inbound presentation event and returns the value
// the matching operation produced.
func (b *Bridge) HandleEvent(ctx context.Context, event InboundEvent) (any, error) {
	switch event.Name {
	case domain.EventConnectRequest:
		var opts ports.ConnectOptions
		if err := decodePayload(event.Payload, &opts); err != nil {
			return nil, err
		}
		return b.Connect(ctx, &opts)
	case domain.EventDisconnectRequest:
		return nil, b.Disconnect(ctx)
	case domain.EventSignRequest:
		var req SignRequest
		if err := decodePayload(event.Payload, &req); err != nil {
			return nil, err
		}
		return b.Sign(ctx, req.Message)
	case domain.EventMintRequest:
		var req domain.MintRequest
		if err := decodePayload(event.Payload, &req); err != nil {
			return nil, err
		}
		return b.Mint(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event.Name)
	}
}

func decodePayload(payload json.RawMessage, target any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}

// reset clears presentation state. Tests only, via Orchestrator.Reset.
func (b *Bridge) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.degraded = false
	b.restored = nil
}

// Close detaches from the machine and waits for scheduled reconnects.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.unsubscribe()
	b.cancel()
	b.wg.Wait()
}
