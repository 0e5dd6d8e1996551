package domain

import "time"

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateDetecting    ConnectionState = "detecting"
	StateSelecting    ConnectionState = "selecting"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateErrored      ConnectionState = "errored"
)

// InFlight reports whether a connection attempt owns the session.
func (s ConnectionState) InFlight() bool {
	switch s {
	case StateDetecting, StateSelecting, StateConnecting:
		return true
	default:
		return false
	}
}

func (s ConnectionState) Valid() bool {
	switch s {
	case StateDisconnected, StateDetecting, StateSelecting, StateConnecting, StateConnected, StateErrored:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[ConnectionState][]ConnectionState{
	StateDisconnected: {StateDetecting},
	StateDetecting:    {StateSelecting, StateErrored},
	StateSelecting:    {StateConnecting, StateErrored},
	StateConnecting:   {StateConnected, StateErrored},
	StateConnected:    {StateDisconnected},
	StateErrored:      {StateDetecting, StateDisconnected},
}

func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type WalletSession struct {
	State       ConnectionState `json:"state"`
	Address     string          `json:"address,omitempty"`
	AdapterName string          `json:"adapterName,omitempty"`
	LastError   *ErrorRecord    `json:"lastError,omitempty"`
	ConnectedAt time.Time       `json:"connectedAt,omitzero"`
}

func NewWalletSession() WalletSession {
	return WalletSession{State: StateDisconnected}
}

func (s WalletSession) Connected() bool {
	return s.State == StateConnected && s.Address != ""
}

// Transition is one applied state change, as seen by subscribers.
type Transition struct {
	From    ConnectionState
	To      ConnectionState
	Session WalletSession
	At      time.Time
}
