package application

import (
	"context"
	"fmt"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline runs signature and mint operations against a connected session.
type Pipeline struct {
	host     ports.HostBinding
	machine  *SessionMachine
	cfg      Config
	clock    ports.Clock
	logger   *zap.Logger
	metrics  Metrics
	recovery RecoveryStrategy
}

func NewPipeline(host ports.HostBinding, machine *SessionMachine, cfg Config, opts ...Option) *Pipeline {
	o := buildOptions(opts)

	recovery := o.recovery
	if recovery == nil {
		recovery = NewReconnectRecovery(machine, cfg.Mint.FeeProgramID, cfg.Mint.ProgramID)
	}

	return &Pipeline{
		host:     host,
		machine:  machine,
		cfg:      cfg,
		clock:    o.clock,
		logger:   o.logger.Named("pipeline"),
		metrics:  o.metrics,
		recovery: recovery,
	}
}

func (p *Pipeline) RequestSignature(ctx context.Context, message string) (domain.SignatureResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SignatureResult{}, err
	}
	if !p.machine.Snapshot().Connected() {
		return domain.SignatureResult{}, domain.ErrNotConnected
	}

	attempt := p.newAttempt(domain.TransactionSignature, message, 1)
	result, err := p.host.SignMessage(ctx, message)
	if err == nil && result.Signature == "" {
		err = fmt.Errorf("wallet returned an empty signature")
	}
	if err != nil {
		signErr := domain.ErrSignatureRejected.WithCause(err)
		attempt = p.finish(attempt, "", signErr)
		return domain.SignatureResult{Message: message, Attempt: attempt}, signErr
	}

	attempt = p.finish(attempt, "", nil)
	return domain.SignatureResult{Signature: result.Signature, Message: message, Attempt: attempt}, nil
}

// SubmitMint gates the mint on a fresh balance snapshot, submits it, and on a
// permission-classified failure runs one recovery cycle and one retry.
func (p *Pipeline) SubmitMint(ctx context.Context, req domain.MintRequest) (domain.MintResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MintResult{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.MintResult{}, fmt.Errorf("validate mint request: %w", err)
	}

	session := p.machine.Snapshot()
	if !session.Connected() {
		return domain.MintResult{}, domain.ErrNotConnected
	}

	if err := p.checkFunds(ctx, session.Address); err != nil {
		return domain.MintResult{}, err
	}

	var result domain.MintResult

	first, err := p.submit(ctx, req, 1)
	result.Attempts = append(result.Attempts, first)
	if err == nil {
		result.TransactionID = first.TransactionID
		return result, nil
	}
	if !domain.IsPermissionFailure(err) {
		return result, domain.ErrMintFailure.WithCause(err)
	}

	p.logger.Info("mint permission failure, recovering session", zap.Error(err))
	if recoverErr := p.recovery.Recover(ctx); recoverErr != nil {
		return result, domain.ErrMintFailure.WithMessage("permission recovery failed").WithCause(recoverErr)
	}
	result.Recovered = true

	second, err := p.submit(ctx, req, domain.MaxMintAttempts)
	result.Attempts = append(result.Attempts, second)
	if err != nil {
		return result, domain.ErrMintFailure.WithCause(err)
	}

	result.TransactionID = second.TransactionID
	return result, nil
}

// Balances returns the connected wallet's balances.
func (p *Pipeline) Balances(ctx context.Context) (domain.BalanceSnapshot, error) {
	session := p.machine.Snapshot()
	if !session.Connected() {
		return domain.BalanceSnapshot{}, domain.ErrNotConnected
	}
	return p.fetchBalances(ctx, session.Address)
}

// MintRequirement is the balance a mint needs before it is submitted.
func (p *Pipeline) MintRequirement() domain.CreditRequirement {
	return p.cfg.Mint.requirement()
}

func (p *Pipeline) fetchBalances(ctx context.Context, address string) (domain.BalanceSnapshot, error) {
	snapshot, err := p.host.Balances(ctx, address)
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("fetch balances: %w", err)
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = p.clock.Now()
	}
	return snapshot, nil
}

func (p *Pipeline) checkFunds(ctx context.Context, address string) error {
	snapshot, err := p.fetchBalances(ctx, address)
	if err != nil {
		return domain.ErrMintFailure.WithMessage("balance fetch failed").WithCause(err)
	}

	requirement := p.cfg.Mint.requirement()
	if !snapshot.Satisfies(requirement) {
		p.logger.Info("mint blocked by balance",
			zap.String("program", requirement.ProgramID),
			zap.Uint64("fee", requirement.Fee),
		)
		return domain.ErrInsufficientFunds.WithAction(p.cfg.FaucetURL)
	}
	return nil
}

func (p *Pipeline) submit(ctx context.Context, req domain.MintRequest, number int) (domain.TransactionAttempt, error) {
	attempt := p.newAttempt(domain.TransactionMint, req, number)

	result, err := p.host.RequestTransaction(ctx, ports.TransactionRequest{
		ProgramID:    p.cfg.Mint.ProgramID,
		Function:     p.cfg.Mint.Function,
		Inputs:       req.Inputs(),
		Fee:          p.cfg.Mint.Fee,
		FeeProgramID: p.cfg.Mint.FeeProgramID,
	})
	if err == nil && result.EventID == "" {
		err = fmt.Errorf("wallet returned no transaction id")
	}
	if err != nil {
		return p.finish(attempt, "", err), err
	}
	return p.finish(attempt, result.EventID, nil), nil
}

func (p *Pipeline) newAttempt(kind domain.TransactionKind, payload any, number int) domain.TransactionAttempt {
	return domain.TransactionAttempt{
		ID:            uuid.NewString(),
		Kind:          kind,
		Payload:       payload,
		AttemptNumber: number,
		Outcome:       domain.OutcomePending,
	}
}

func (p *Pipeline) finish(attempt domain.TransactionAttempt, transactionID string, err error) domain.TransactionAttempt {
	if err != nil {
		fallback := domain.KindSignatureRejected
		if attempt.Kind == domain.TransactionMint {
			fallback = domain.KindMintFailure
		}
		attempt.Outcome = domain.OutcomeFailed
		attempt.Error = domain.RecordOf(err, fallback, p.clock.Now())
	} else {
		attempt.Outcome = domain.OutcomeSucceeded
		attempt.TransactionID = transactionID
	}

	p.metrics.ObserveAttempt(attempt.Kind, attempt.Outcome)
	p.logger.Debug("transaction attempt",
		zap.String("kind", string(attempt.Kind)),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.String("outcome", string(attempt.Outcome)),
	)
	return attempt
}
