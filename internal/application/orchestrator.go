package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/walletctl/internal/ports"
	"go.uber.org/zap"
)

// Orchestrator is the single owner of the probe window, the session and the
// reconnect counters for one host binding.
type Orchestrator struct {
	host     ports.HostBinding
	store    ports.KeyValueStore
	logger   *zap.Logger
	probe    *Probe
	machine  *SessionMachine
	pipeline *Pipeline
	gate     *ReconnectGate
	bridge   *Bridge
}

func NewOrchestrator(host ports.HostBinding, store ports.KeyValueStore, cfg Config, opts ...Option) *Orchestrator {
	o := buildOptions(opts)

	probe := NewProbe(host, cfg, opts...)
	machine := NewSessionMachine(host, probe, cfg, opts...)
	pipeline := NewPipeline(host, machine, cfg, opts...)
	gate := NewReconnectGate(store, cfg.Reconnect, o.clock)
	bridge := NewBridge(machine, pipeline, gate, store, cfg, opts...)

	if notifier, ok := host.(ports.DisconnectNotifier); ok {
		notifier.OnExternalDisconnect(machine.HandleExternalDisconnect)
	}

	return &Orchestrator{
		host:     host,
		store:    store,
		logger:   o.logger,
		probe:    probe,
		machine:  machine,
		pipeline: pipeline,
		gate:     gate,
		bridge:   bridge,
	}
}

func (o *Orchestrator) Probe() *Probe                 { return o.probe }
func (o *Orchestrator) Machine() *SessionMachine      { return o.machine }
func (o *Orchestrator) Pipeline() *Pipeline           { return o.pipeline }
func (o *Orchestrator) Bridge() *Bridge               { return o.bridge }
func (o *Orchestrator) ReconnectGate() *ReconnectGate { return o.gate }

// Reset restores a fresh orchestrator state: disconnected session, empty
// probe window, cleared counters and record. Tests only.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.machine.Reset()
	o.bridge.reset()

	var resetErr error
	if err := o.gate.Reset(ctx); err != nil {
		resetErr = errors.Join(resetErr, fmt.Errorf("reset reconnect counters: %w", err))
	}
	if err := o.store.Delete(ctx, KeyWalletConnection); err != nil {
		resetErr = errors.Join(resetErr, fmt.Errorf("clear session record: %w", err))
	}
	return resetErr
}

func (o *Orchestrator) Close() {
	o.bridge.Close()
	o.logger.Debug("orchestrator closed")
}
