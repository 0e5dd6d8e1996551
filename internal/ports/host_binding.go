package ports

import (
	"context"

	"github.com/bnema/walletctl/internal/domain"
)

type DecryptPermission string

const (
	DecryptPermissionNone           DecryptPermission = "NO_DECRYPT"
	DecryptPermissionUponRequest    DecryptPermission = "UPON_REQUEST"
	DecryptPermissionAutoDecrypt    DecryptPermission = "AUTO_DECRYPT"
	DecryptPermissionOnChainHistory DecryptPermission = "ON_CHAIN_HISTORY"
)

type ConnectOptions struct {
	Permission DecryptPermission `json:"decryptPermission,omitempty"`
	Network    string            `json:"network,omitempty"`
	ProgramIDs []string          `json:"programIds,omitempty"`
}

type ConnectResult struct {
	Address     string
	AdapterName string
}

type TransactionRequest struct {
	ProgramID string
	Function  string
	Inputs    []string
	Fee       uint64
	// FeeProgramID names the balance the fee is paid from.
	FeeProgramID string
}

type TransactionResult struct {
	// EventID references the submission inside the wallet; resolving it to an
	// on-chain transaction hash is the caller's job.
	EventID string
}

type SignResult struct {
	Signature string
}

// HostBinding is the capability set a wallet extension injects into the host
// environment. Probe must be a side-effect free read.
type HostBinding interface {
	Probe() bool
	Adapters() []string
	Select(ctx context.Context, adapterName string) error
	Selected() string
	Connect(ctx context.Context, opts ConnectOptions) (ConnectResult, error)
	Disconnect(ctx context.Context) error
	SignMessage(ctx context.Context, message string) (SignResult, error)
	RequestTransaction(ctx context.Context, req TransactionRequest) (TransactionResult, error)
	Balances(ctx context.Context, address string) (domain.BalanceSnapshot, error)
}

// DisconnectNotifier is implemented by hosts that can report a disconnect
// initiated outside the orchestrator, e.g. from the extension popup.
type DisconnectNotifier interface {
	OnExternalDisconnect(fn func())
}
