package domain

import "time"

type EventName string

const (
	EventConnectRequest    EventName = "wallet-connect-request"
	EventDisconnectRequest EventName = "wallet-disconnect-request"
	EventSignRequest       EventName = "wallet-sign-request"
	EventMintRequest       EventName = "wallet-mint-request"

	EventConnected    EventName = "wallet-connected"
	EventError        EventName = "wallet-error"
	EventDisconnected EventName = "wallet-disconnected"
	EventState        EventName = "wallet-state"
	EventSignResult   EventName = "wallet-sign-result"
	EventMintResult   EventName = "wallet-mint-result"
)

// EventFor names the outbound event published when a session enters state.
func EventFor(state ConnectionState) EventName {
	switch state {
	case StateConnected:
		return EventConnected
	case StateErrored:
		return EventError
	case StateDisconnected:
		return EventDisconnected
	default:
		return EventState
	}
}

type Notification struct {
	Event       EventName       `json:"event"`
	State       ConnectionState `json:"state"`
	Address     string          `json:"address,omitempty"`
	AdapterName string          `json:"adapterName,omitempty"`
	Error       *ErrorRecord    `json:"error,omitempty"`
	At          time.Time       `json:"at"`
}

// ConnectedPayload is the wallet-connected event detail.
type ConnectedPayload struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// EventPayload is the detail page scripts receive for n. wallet-connected
// carries {address, name}, wallet-error the error message and
// wallet-disconnected nothing. Intermediate states keep the full notification.
func EventPayload(n Notification) any {
	switch n.Event {
	case EventConnected:
		return ConnectedPayload{Address: n.Address, Name: n.AdapterName}
	case EventError:
		if n.Error == nil {
			return ""
		}
		return n.Error.Message
	case EventDisconnected:
		return nil
	default:
		return n
	}
}
