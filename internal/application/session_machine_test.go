package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMachineConnectRunsFullSequence(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	machine, recorder := newTestMachine(host, testConfig())

	session, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)

	assert.Equal(t, domain.StateConnected, session.State)
	assert.Equal(t, testAddress, session.Address)
	assert.Equal(t, "Puzzle Wallet", session.AdapterName)
	assert.False(t, session.ConnectedAt.IsZero())
	assert.Nil(t, session.LastError)
	assert.Equal(t, []domain.ConnectionState{
		domain.StateDetecting,
		domain.StateSelecting,
		domain.StateConnecting,
		domain.StateConnected,
	}, recorder.states())
	assert.Equal(t, []string{DefaultFeeProgramID, DefaultMintProgramID}, host.lastConnectOptions().ProgramIDs)
}

func TestSessionMachineConcurrentConnectsRunOneSequence(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.connectDelay = 40 * time.Millisecond
	machine, recorder := newTestMachine(host, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = machine.Connect(context.Background(), testConfig().Connect)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, host.calls("connect"))
	assert.Equal(t, 1, host.calls("select"))
	assert.Len(t, recorder.states(), 4)
	assert.Equal(t, domain.StateConnected, machine.Snapshot().State)
}

func TestSessionMachineConnectWhileConnectedIsNoOp(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	machine, recorder := newTestMachine(host, testConfig())

	_, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)

	session, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, session.State)
	assert.Equal(t, 1, host.calls("connect"))
	assert.Len(t, recorder.states(), 4)
}

func TestSessionMachineNotInstalled(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	cfg := testConfig()
	machine, recorder := newTestMachine(host, cfg)

	session, err := machine.Connect(context.Background(), cfg.Connect)
	require.ErrorIs(t, err, domain.ErrNotInstalled)

	assert.Equal(t, domain.StateErrored, session.State)
	require.NotNil(t, session.LastError)
	assert.Equal(t, domain.KindNotInstalled, session.LastError.Kind)
	assert.Equal(t, cfg.InstallURL, session.LastError.Action)
	assert.Equal(t, []domain.ConnectionState{domain.StateDetecting, domain.StateErrored}, recorder.states())
	assert.Zero(t, host.calls("select"))
	assert.Zero(t, host.calls("connect"))
}

func TestSessionMachineSelectionMismatchThenRetryAfterCooldown(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.uncommittedSelects = 1
	cfg := testConfig()
	machine, recorder := newTestMachine(host, cfg)

	session, err := machine.Connect(context.Background(), cfg.Connect)
	require.ErrorIs(t, err, domain.ErrSelectionFailure)
	assert.Equal(t, domain.StateErrored, session.State)
	assert.Empty(t, session.Address)

	session, err = machine.Connect(context.Background(), cfg.Connect)
	require.NoError(t, err)
	assert.Equal(t, domain.StateConnected, session.State)
	assert.Nil(t, session.LastError)

	transitions := recorder.all()
	require.Len(t, transitions, 7)
	erroredAt := transitions[2].At
	retriedAt := transitions[3].At
	assert.Equal(t, domain.StateErrored, transitions[2].To)
	assert.Equal(t, domain.StateDetecting, transitions[3].To)
	assert.GreaterOrEqual(t, retriedAt.Sub(erroredAt), cfg.RetryCooldown)
}

func TestSessionMachineConnectTimeoutCancelsHostCall(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.connectBlocks = true
	cfg := testConfig()
	cfg.ConnectTimeout = 30 * time.Millisecond
	machine, _ := newTestMachine(host, cfg)

	session, err := machine.Connect(context.Background(), cfg.Connect)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.StateErrored, session.State)
	assert.Equal(t, domain.KindTimeout, session.LastError.Kind)

	require.Eventually(t, func() bool {
		return errors.Is(host.connectCtxErr(), context.DeadlineExceeded)
	}, time.Second, 5*time.Millisecond)
}

func TestSessionMachineClassifiesConnectFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		address  string
		wantKind domain.ErrorKind
	}{
		{name: "user rejection", err: errors.New("User rejected the request"), wantKind: domain.KindConnectionFailure},
		{name: "selection text", err: errors.New("WalletNotSelectedError: wallet not selected"), wantKind: domain.KindSelectionFailure},
		{name: "typed kind wins", err: domain.ErrNotInstalled.WithMessage("timeout while loading"), wantKind: domain.KindNotInstalled},
		{name: "deadline", err: context.DeadlineExceeded, wantKind: domain.KindTimeout},
		{name: "empty address", wantKind: domain.KindConnectionFailure},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			host := newFakeHost()
			host.connectErr = tc.err
			host.address = tc.address
			machine, _ := newTestMachine(host, testConfig())

			session, err := machine.Connect(context.Background(), testConfig().Connect)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, domain.KindOf(err))
			assert.Equal(t, domain.StateErrored, session.State)
			assert.Equal(t, tc.wantKind, session.LastError.Kind)
		})
	}
}

func TestSessionMachineUnknownAdapterFailsSelection(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	cfg := testConfig()
	cfg.AdapterName = "Leo Wallet"
	machine, _ := newTestMachine(host, cfg)

	_, err := machine.Connect(context.Background(), cfg.Connect)
	require.ErrorIs(t, err, domain.ErrSelectionFailure)
	assert.ErrorContains(t, err, `"Leo Wallet" not offered`)
	assert.Zero(t, host.calls("select"))
}

func TestSessionMachineDisconnect(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.disconnectErr = errors.New("extension closed")
	machine, recorder := newTestMachine(host, testConfig())

	_, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)

	require.NoError(t, machine.Disconnect(context.Background()))

	session := machine.Snapshot()
	assert.Equal(t, domain.StateDisconnected, session.State)
	assert.Empty(t, session.Address)
	assert.Empty(t, session.AdapterName)
	assert.Equal(t, 1, host.calls("disconnect"))
	assert.Equal(t, domain.StateDisconnected, recorder.states()[4])

	require.NoError(t, machine.Disconnect(context.Background()))
	assert.Equal(t, 1, host.calls("disconnect"))
}

func TestSessionMachineDismissErrored(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	machine, _ := newTestMachine(host, testConfig())

	_, _ = machine.Connect(context.Background(), testConfig().Connect)
	require.Equal(t, domain.StateErrored, machine.Snapshot().State)

	require.NoError(t, machine.Dismiss())
	session := machine.Snapshot()
	assert.Equal(t, domain.StateDisconnected, session.State)
	assert.Nil(t, session.LastError)
	assert.Zero(t, host.calls("disconnect"))

	require.NoError(t, machine.Dismiss())
}

func TestSessionMachineExternalDisconnect(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	machine, recorder := newTestMachine(host, testConfig())

	machine.HandleExternalDisconnect()
	assert.Empty(t, recorder.states())

	_, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)

	machine.HandleExternalDisconnect()
	assert.Equal(t, domain.StateDisconnected, machine.Snapshot().State)
	assert.Zero(t, host.calls("disconnect"))
}

func TestSessionMachineUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	machine := NewSessionMachine(host, NewProbe(host, testConfig()), testConfig())
	var count int
	unsubscribe := machine.Subscribe(func(domain.Transition) { count++ })

	_, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)
	unsubscribe()
	require.NoError(t, machine.Disconnect(context.Background()))

	assert.Equal(t, 4, count)
}

func TestSessionMachineResetReturnsToDisconnectedSilently(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	machine, recorder := newTestMachine(host, testConfig())

	_, err := machine.Connect(context.Background(), testConfig().Connect)
	require.NoError(t, err)

	machine.Reset()
	assert.Equal(t, domain.NewWalletSession(), machine.Snapshot())
	assert.Len(t, recorder.states(), 4)
}

func TestSessionMachineCanceledContextDuringDetectionErrors(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	cfg := testConfig()
	cfg.DetectWait = time.Second
	machine, _ := newTestMachine(host, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	session, err := machine.Connect(ctx, cfg.Connect)
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, domain.StateErrored, session.State)
}

const testAddress = "aleo1qnr4dkkvkgfqph0vzc3y6z2eu975wnpz2925ntjccd5cfqxtyu8s7pyjh9"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 5 * time.Millisecond
	cfg.RetryCooldown = 30 * time.Millisecond
	cfg.DetectWait = 20 * time.Millisecond
	cfg.DetectInterval = 5 * time.Millisecond
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.Reconnect.AutoRecover = false
	return cfg
}

func newTestMachine(host *fakeHost, cfg Config) (*SessionMachine, *transitionRecorder) {
	machine := NewSessionMachine(host, NewProbe(host, cfg), cfg)
	recorder := &transitionRecorder{}
	machine.Subscribe(recorder.record)
	return machine, recorder
}

type transitionRecorder struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (r *transitionRecorder) record(tr domain.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *transitionRecorder) all() []domain.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Transition(nil), r.transitions...)
}

func (r *transitionRecorder) states() []domain.ConnectionState {
	var states []domain.ConnectionState
	for _, tr := range r.all() {
		states = append(states, tr.To)
	}
	return states
}

type fakeHost struct {
	mu sync.Mutex

	present            bool
	adapters           []string
	selected           string
	uncommittedSelects int
	address            string
	connectErr         error
	connectDelay       time.Duration
	connectBlocks      bool
	disconnectErr      error
	signErr            error
	transactionErrs    []error
	balances           domain.BalanceSnapshot
	balancesErr        error

	counts       map[string]int
	lastConnect  ports.ConnectOptions
	lastCtxErr   error
	transactions []ports.TransactionRequest
	onDisconnect func()
}

var (
	_ ports.HostBinding        = (*fakeHost)(nil)
	_ ports.DisconnectNotifier = (*fakeHost)(nil)
)

func newFakeHost() *fakeHost {
	return &fakeHost{
		present:  true,
		adapters: []string{"Puzzle Wallet"},
		address:  testAddress,
		balances: domain.BalanceSnapshot{Entries: []domain.BalanceEntry{
			{ProgramID: DefaultFeeProgramID, Symbol: "ALEO", PublicAmount: 5_000_000},
		}},
		counts: map[string]int{},
	}
}

func (h *fakeHost) count(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[name]++
}

func (h *fakeHost) calls(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[name]
}

func (h *fakeHost) lastConnectOptions() ports.ConnectOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastConnect
}

func (h *fakeHost) connectCtxErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastCtxErr
}

func (h *fakeHost) Probe() bool {
	h.count("probe")
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.present
}

func (h *fakeHost) Adapters() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.adapters...)
}

func (h *fakeHost) Select(_ context.Context, adapterName string) error {
	h.count("select")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uncommittedSelects > 0 {
		h.uncommittedSelects--
		return nil
	}
	h.selected = adapterName
	return nil
}

func (h *fakeHost) Selected() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}

func (h *fakeHost) Connect(ctx context.Context, opts ports.ConnectOptions) (ports.ConnectResult, error) {
	h.count("connect")
	h.mu.Lock()
	h.lastConnect = opts
	delay, blocks, err, address := h.connectDelay, h.connectBlocks, h.connectErr, h.address
	h.mu.Unlock()

	if blocks {
		<-ctx.Done()
		h.mu.Lock()
		h.lastCtxErr = ctx.Err()
		h.mu.Unlock()
		return ports.ConnectResult{}, ctx.Err()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return ports.ConnectResult{}, err
	}
	return ports.ConnectResult{Address: address}, nil
}

func (h *fakeHost) Disconnect(context.Context) error {
	h.count("disconnect")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selected = ""
	return h.disconnectErr
}

func (h *fakeHost) SignMessage(_ context.Context, message string) (ports.SignResult, error) {
	h.count("sign")
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.signErr != nil {
		return ports.SignResult{}, h.signErr
	}
	return ports.SignResult{Signature: "sign1" + message}, nil
}

func (h *fakeHost) RequestTransaction(_ context.Context, req ports.TransactionRequest) (ports.TransactionResult, error) {
	h.count("transaction")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transactions = append(h.transactions, req)
	if len(h.transactionErrs) > 0 {
		err := h.transactionErrs[0]
		h.transactionErrs = h.transactionErrs[1:]
		if err != nil {
			return ports.TransactionResult{}, err
		}
	}
	return ports.TransactionResult{EventID: "event-" + req.Function}, nil
}

func (h *fakeHost) Balances(context.Context, string) (domain.BalanceSnapshot, error) {
	h.count("balances")
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balances, h.balancesErr
}

func (h *fakeHost) OnExternalDisconnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnect = fn
}

func (h *fakeHost) fireExternalDisconnect() {
	h.mu.Lock()
	fn := h.onDisconnect
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}
