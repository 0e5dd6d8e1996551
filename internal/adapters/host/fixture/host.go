package fixture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	fixturePathKey    = "host.fixture"
	fixtureConfigDir  = ".walletctl"
	fixtureConfigFile = "fixture.toml"
)

// Host simulates a browser wallet extension from a TOML fixture file. Edits
// to the file are picked up on Reload, or live once Watch is running.
type Host struct {
	path   string
	logger *zap.Logger

	mu            sync.Mutex
	settings      settings
	balances      []domain.BalanceEntry
	selected      string
	connected     bool
	granted       []string
	selectTimer   *time.Timer
	disconnectFns []func()
	watcher       *Watcher
}

var (
	_ ports.HostBinding        = (*Host)(nil)
	_ ports.DisconnectNotifier = (*Host)(nil)
)

type Option func(*Host)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHost resolves the fixture path from cfg, writing a default fixture when
// none exists.
func NewHost(cfg *viper.Viper, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.SetDefault(fixturePathKey, filepath.Join(homeDir, fixtureConfigDir, fixtureConfigFile))

	path := cfg.GetString(fixturePathKey)
	if path == "" {
		return nil, errors.New("fixture path is empty")
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve fixture path: %w", err)
	}

	if err := ensureFile(path); err != nil {
		return nil, err
	}

	return Open(path, opts...)
}

// Open loads an existing fixture file.
func Open(path string, opts ...Option) (*Host, error) {
	h := &Host{path: filepath.Clean(path), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("fixture")

	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Host) Path() string {
	return h.path
}

// Reload re-reads the fixture. A connected session is dropped, and external
// disconnect listeners run, when the new fixture uninstalls or locks the
// wallet or changes its address.
func (h *Host) Reload() error {
	file, err := readSchema(h.path)
	if err != nil {
		return err
	}
	next, err := file.settings()
	if err != nil {
		return err
	}

	h.mu.Lock()
	previous := h.settings
	h.settings = next
	h.balances = slices.Clone(next.balances)

	var notify []func()
	if h.connected && (!next.installed || next.locked || next.address != previous.address) {
		h.connected = false
		h.granted = nil
		h.selected = ""
		notify = slices.Clone(h.disconnectFns)
	}
	h.mu.Unlock()

	if len(notify) > 0 {
		h.logger.Info("fixture change ended the wallet session")
	}
	for _, fn := range notify {
		fn()
	}
	return nil
}

// Watch reloads the fixture whenever its file changes, until Close.
func (h *Host) Watch() error {
	watcher, err := NewWatcher(h.logger)
	if err != nil {
		return fmt.Errorf("create fixture watcher: %w", err)
	}
	if err := watcher.Watch(h.path); err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("watch fixture file: %w", err)
	}

	watcher.OnChange(func(changed string) {
		if filepath.Clean(changed) != h.path {
			return
		}
		if err := h.Reload(); err != nil {
			h.logger.Warn("reload fixture", zap.Error(err))
		}
	})

	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()

	watcher.StartAsync()
	return nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	watcher := h.watcher
	h.watcher = nil
	if h.selectTimer != nil {
		h.selectTimer.Stop()
	}
	h.mu.Unlock()

	if watcher != nil {
		return watcher.Stop()
	}
	return nil
}

func (h *Host) OnExternalDisconnect(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectFns = append(h.disconnectFns, fn)
}

func (h *Host) Probe() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings.installed
}

func (h *Host) Adapters() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.settings.installed {
		return nil
	}
	return slices.Clone(h.settings.adapters)
}

// Select commits the adapter after the fixture's selection lag, like the
// adapter library that commits selections asynchronously.
func (h *Host) Select(ctx context.Context, adapterName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.settings.installed {
		return errors.New("wallet extension not installed")
	}
	if !slices.Contains(h.settings.adapters, adapterName) {
		return fmt.Errorf("adapter not found: %s", adapterName)
	}

	if h.selectTimer != nil {
		h.selectTimer.Stop()
	}
	if h.settings.selectionLag <= 0 {
		h.selected = adapterName
		return nil
	}
	h.selectTimer = time.AfterFunc(h.settings.selectionLag, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.selected = adapterName
	})
	return nil
}

func (h *Host) Selected() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selected
}

func (h *Host) Connect(ctx context.Context, opts ports.ConnectOptions) (ports.ConnectResult, error) {
	h.mu.Lock()
	latency := h.settings.connectLatency
	h.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ports.ConnectResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return ports.ConnectResult{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.settings
	switch {
	case !s.installed:
		return ports.ConnectResult{}, errors.New("wallet extension not installed")
	case h.selected == "":
		return ports.ConnectResult{}, errors.New("wallet not selected")
	case s.locked:
		return ports.ConnectResult{}, errors.New("wallet is locked")
	case s.rejectConnect != "":
		return ports.ConnectResult{}, errors.New(s.rejectConnect)
	}

	h.connected = s.address != ""
	h.granted = slices.Clone(opts.ProgramIDs)
	h.logger.Debug("fixture connected",
		zap.String("adapter", h.selected),
		zap.Strings("programs", opts.ProgramIDs),
		zap.String("network", opts.Network),
	)
	return ports.ConnectResult{Address: s.address, AdapterName: h.selected}, nil
}

func (h *Host) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.granted = nil
	h.selected = ""
	return nil
}

func (h *Host) SignMessage(ctx context.Context, message string) (ports.SignResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.SignResult{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return ports.SignResult{}, errors.New("wallet not connected")
	}
	if h.settings.rejectSign != "" {
		return ports.SignResult{}, errors.New(h.settings.rejectSign)
	}

	sum := sha256.Sum256([]byte(h.settings.address + "\x00" + message))
	return ports.SignResult{Signature: "sign1" + hex.EncodeToString(sum[:])}, nil
}

// RequestTransaction accepts programs the account authorized up front or that
// the current connection requested.
func (h *Host) RequestTransaction(ctx context.Context, req ports.TransactionRequest) (ports.TransactionResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.TransactionResult{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return ports.TransactionResult{}, errors.New("wallet not connected")
	}
	if !slices.Contains(h.settings.authorizedPrograms, req.ProgramID) && !slices.Contains(h.granted, req.ProgramID) {
		return ports.TransactionResult{}, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, req.ProgramID)
	}
	if h.settings.transactionError != "" {
		return ports.TransactionResult{}, errors.New(h.settings.transactionError)
	}

	h.chargeFee(req.FeeProgramID, req.Fee)
	eventID := uuid.NewString()
	h.logger.Debug("fixture transaction accepted",
		zap.String("program", req.ProgramID),
		zap.String("function", req.Function),
		zap.String("event_id", eventID),
	)
	return ports.TransactionResult{EventID: eventID}, nil
}

// chargeFee debits the fee from feeProgram, public balance first. An empty
// feeProgram pays in credits.aleo.
func (h *Host) chargeFee(feeProgram string, fee uint64) {
	if feeProgram == "" {
		feeProgram = defaultFeeProgram
	}
	for i := range h.balances {
		entry := &h.balances[i]
		if entry.ProgramID != feeProgram {
			continue
		}
		switch {
		case entry.PublicAmount >= fee:
			entry.PublicAmount -= fee
			return
		case entry.PrivateAmount >= fee:
			entry.PrivateAmount -= fee
			return
		}
	}
}

func (h *Host) Balances(ctx context.Context, address string) (domain.BalanceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.BalanceSnapshot{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if address != h.settings.address {
		return domain.BalanceSnapshot{}, fmt.Errorf("unknown account %q", address)
	}
	return domain.BalanceSnapshot{Entries: slices.Clone(h.balances), FetchedAt: time.Now()}, nil
}
