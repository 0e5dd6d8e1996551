package fixture

import (
	"fmt"
	"time"

	"github.com/bnema/walletctl/internal/domain"
)

const (
	currentSchemaVersion = 1
	defaultFeeProgram    = "credits.aleo"
)

// fileSchema is the on-disk description of a simulated wallet extension.
type fileSchema struct {
	Version   int             `toml:"version"`
	Extension extensionSchema `toml:"extension"`
	Account   accountSchema   `toml:"account"`
	Balances  []balanceSchema `toml:"balances,omitempty"`
}

type extensionSchema struct {
	Installed      bool     `toml:"installed"`
	Adapters       []string `toml:"adapters"`
	SelectionLag   string   `toml:"selection_lag,omitempty"`
	ConnectLatency string   `toml:"connect_latency,omitempty"`
	RejectConnect  string   `toml:"reject_connect,omitempty"`
}

type accountSchema struct {
	Address            string   `toml:"address"`
	Locked             bool     `toml:"locked,omitempty"`
	AuthorizedPrograms []string `toml:"authorized_programs,omitempty"`
	RejectSign         string   `toml:"reject_sign,omitempty"`
	TransactionError   string   `toml:"transaction_error,omitempty"`
}

type balanceSchema struct {
	ProgramID string `toml:"program_id"`
	Symbol    string `toml:"symbol,omitempty"`
	Public    uint64 `toml:"public"`
	Private   uint64 `toml:"private"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported fixture schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// settings is a decoded fixture with durations parsed.
type settings struct {
	installed          bool
	adapters           []string
	selectionLag       time.Duration
	connectLatency     time.Duration
	rejectConnect      string
	address            string
	locked             bool
	authorizedPrograms []string
	rejectSign         string
	transactionError   string
	balances           []domain.BalanceEntry
}

func (s fileSchema) settings() (settings, error) {
	selectionLag, err := parseDuration("extension.selection_lag", s.Extension.SelectionLag)
	if err != nil {
		return settings{}, err
	}
	connectLatency, err := parseDuration("extension.connect_latency", s.Extension.ConnectLatency)
	if err != nil {
		return settings{}, err
	}

	balances := make([]domain.BalanceEntry, 0, len(s.Balances))
	for _, b := range s.Balances {
		balances = append(balances, domain.BalanceEntry{
			ProgramID:     b.ProgramID,
			Symbol:        b.Symbol,
			PublicAmount:  b.Public,
			PrivateAmount: b.Private,
		})
	}

	return settings{
		installed:          s.Extension.Installed,
		adapters:           s.Extension.Adapters,
		selectionLag:       selectionLag,
		connectLatency:     connectLatency,
		rejectConnect:      s.Extension.RejectConnect,
		address:            s.Account.Address,
		locked:             s.Account.Locked,
		authorizedPrograms: s.Account.AuthorizedPrograms,
		rejectSign:         s.Account.RejectSign,
		transactionError:   s.Account.TransactionError,
		balances:           balances,
	}, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse %s: negative duration %s", field, raw)
	}
	return d, nil
}

// defaultSchema is written when no fixture exists yet: an installed wallet
// with credits for a few mints, authorized for credits.aleo only. Other
// programs are granted when a connect requests them; a connect that omits the
// mint program sends the first mint through permission recovery.
func defaultSchema() fileSchema {
	return fileSchema{
		Version: currentSchemaVersion,
		Extension: extensionSchema{
			Installed:      true,
			Adapters:       []string{"Puzzle Wallet"},
			ConnectLatency: "150ms",
		},
		Account: accountSchema{
			Address:            "aleo1qnr4dkkvkgfqph0vzc3y6z2eu975wnpz2925ntjccd5cfqxtyu8s7pyjh9",
			AuthorizedPrograms: []string{"credits.aleo"},
		},
		Balances: []balanceSchema{
			{ProgramID: "credits.aleo", Symbol: "ALEO", Public: 5_000_000},
		},
	}
}
