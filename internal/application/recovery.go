package application

import (
	"context"
	"fmt"
	"slices"

	"github.com/bnema/walletctl/internal/domain"
)

// RecoveryStrategy restores a session after a permission-classified
// submission failure. The pipeline calls it at most once per logical mint.
type RecoveryStrategy interface {
	Recover(ctx context.Context) error
}

// ReconnectRecovery disconnects and runs a full connect cycle, asking for the
// programs the retried submission needs.
type ReconnectRecovery struct {
	machine          *SessionMachine
	requiredPrograms []string
}

var _ RecoveryStrategy = (*ReconnectRecovery)(nil)

func NewReconnectRecovery(machine *SessionMachine, requiredPrograms ...string) *ReconnectRecovery {
	return &ReconnectRecovery{machine: machine, requiredPrograms: requiredPrograms}
}

func (r *ReconnectRecovery) Recover(ctx context.Context) error {
	if err := r.machine.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect for recovery: %w", err)
	}

	opts := r.machine.LastConnectOptions()
	for _, program := range r.requiredPrograms {
		if program != "" && !slices.Contains(opts.ProgramIDs, program) {
			opts.ProgramIDs = append(opts.ProgramIDs, program)
		}
	}

	session, err := r.machine.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("reconnect for recovery: %w", err)
	}
	if !session.Connected() {
		return fmt.Errorf("reconnect for recovery: %w", domain.ErrNotConnected)
	}
	return nil
}

// NoRecovery never recovers; the first permission failure is final.
type NoRecovery struct{}

func (NoRecovery) Recover(context.Context) error {
	return fmt.Errorf("recovery disabled: %w", domain.ErrMintFailure)
}
