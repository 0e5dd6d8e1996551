package application

import (
	"fmt"
	"time"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
)

const (
	DefaultSettleDelay    = 1000 * time.Millisecond
	MinSettleDelay        = 800 * time.Millisecond
	MaxSettleDelay        = 1500 * time.Millisecond
	DefaultConnectTimeout = 12 * time.Second
	DefaultRetryCooldown  = 500 * time.Millisecond
	DefaultProbeWindow    = 5 * time.Second
	DefaultDetectWait     = 1500 * time.Millisecond
	DefaultDetectInterval = 100 * time.Millisecond

	DefaultReconnectMaxAttempts = 2
	DefaultReconnectWindow      = 30 * time.Second

	DefaultMintProgramID = "game_nft.aleo"
	DefaultMintFunction  = "mint"
	DefaultFeeProgramID  = "credits.aleo"
	DefaultMintFee       = 100_000
)

type Config struct {
	SettleDelay    time.Duration
	ConnectTimeout time.Duration
	RetryCooldown  time.Duration
	DetectWait     time.Duration
	DetectInterval time.Duration
	ProbeWindow    time.Duration

	// AdapterName is the adapter to select; empty picks the first one offered.
	AdapterName string
	Connect     ports.ConnectOptions

	Reconnect ReconnectConfig
	Mint      MintConfig

	InstallURL string
	FaucetURL  string
}

type ReconnectConfig struct {
	MaxAttempts int
	Window      time.Duration
	// AutoRecover schedules a gated automatic reconnect after recoverable
	// connection errors.
	AutoRecover bool
}

type MintConfig struct {
	ProgramID    string
	Function     string
	Fee          uint64
	FeeProgramID string
}

func (c MintConfig) requirement() domain.CreditRequirement {
	return domain.CreditRequirement{ProgramID: c.FeeProgramID, Fee: c.Fee}
}

func DefaultConfig() Config {
	return Config{
		SettleDelay:    DefaultSettleDelay,
		ConnectTimeout: DefaultConnectTimeout,
		RetryCooldown:  DefaultRetryCooldown,
		DetectWait:     DefaultDetectWait,
		DetectInterval: DefaultDetectInterval,
		ProbeWindow:    DefaultProbeWindow,
		Connect: ports.ConnectOptions{
			Permission: ports.DecryptPermissionUponRequest,
			Network:    "AleoTestnet",
			ProgramIDs: []string{DefaultFeeProgramID, DefaultMintProgramID},
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: DefaultReconnectMaxAttempts,
			Window:      DefaultReconnectWindow,
			AutoRecover: true,
		},
		Mint: MintConfig{
			ProgramID:    DefaultMintProgramID,
			Function:     DefaultMintFunction,
			Fee:          DefaultMintFee,
			FeeProgramID: DefaultFeeProgramID,
		},
		InstallURL: "https://puzzle.online/download",
		FaucetURL:  "https://faucet.aleo.org",
	}
}

// Validate checks user supplied settings. The settle delay is held to the
// window the adapter library needs to confirm a selection.
func (c Config) Validate() error {
	if c.SettleDelay < MinSettleDelay || c.SettleDelay > MaxSettleDelay {
		return fmt.Errorf("settle delay %s outside [%s, %s]", c.SettleDelay, MinSettleDelay, MaxSettleDelay)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.RetryCooldown < DefaultRetryCooldown {
		return fmt.Errorf("retry cooldown must be at least %s", DefaultRetryCooldown)
	}
	if c.ProbeWindow <= 0 {
		return fmt.Errorf("probe window must be positive")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect max attempts must not be negative")
	}
	if c.Mint.ProgramID == "" || c.Mint.Function == "" {
		return fmt.Errorf("mint program and function are required")
	}
	return nil
}
