package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStateTransitions(t *testing.T) {
	tests := []struct {
		from ConnectionState
		to   ConnectionState
		want bool
	}{
		{from: StateDisconnected, to: StateDetecting, want: true},
		{from: StateDisconnected, to: StateConnected, want: false},
		{from: StateDetecting, to: StateSelecting, want: true},
		{from: StateDetecting, to: StateErrored, want: true},
		{from: StateSelecting, to: StateConnecting, want: true},
		{from: StateSelecting, to: StateDisconnected, want: false},
		{from: StateConnecting, to: StateConnected, want: true},
		{from: StateConnecting, to: StateErrored, want: true},
		{from: StateConnected, to: StateDisconnected, want: true},
		{from: StateConnected, to: StateDetecting, want: false},
		{from: StateErrored, to: StateDetecting, want: true},
		{from: StateErrored, to: StateDisconnected, want: true},
		{from: StateErrored, to: StateConnected, want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestConnectionStateInFlight(t *testing.T) {
	assert.True(t, StateDetecting.InFlight())
	assert.True(t, StateSelecting.InFlight())
	assert.True(t, StateConnecting.InFlight())
	assert.False(t, StateConnected.InFlight())
	assert.False(t, StateErrored.InFlight())
	assert.False(t, StateDisconnected.InFlight())
	assert.False(t, ConnectionState("paused").Valid())
}

func TestWalletSessionConnectedRequiresAddress(t *testing.T) {
	assert.False(t, NewWalletSession().Connected())
	assert.False(t, WalletSession{State: StateConnected}.Connected())
	assert.True(t, WalletSession{State: StateConnected, Address: "aleo1abc"}.Connected())
}

func TestErrorMatchesByKind(t *testing.T) {
	cause := errors.New("popup closed")
	err := fmt.Errorf("connect: %w", ErrConnectionFailure.WithCause(cause).WithAction("retry"))

	assert.ErrorIs(t, err, ErrConnectionFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindConnectionFailure, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, "connection_failure: wallet connection failed: popup closed", ErrConnectionFailure.WithCause(cause).Error())
	assert.Empty(t, ErrConnectionFailure.Action, "With* must not mutate sentinels")
}

func TestRecordOf(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := RecordOf(ErrInsufficientFunds.WithAction("https://faucet.example"), KindMintFailure, now)
	require.NotNil(t, record)
	assert.Equal(t, KindInsufficientFunds, record.Kind)
	assert.Equal(t, "insufficient balance for transaction fee", record.Message)
	assert.Equal(t, "https://faucet.example", record.Action)
	assert.Equal(t, now, record.OccurredAt)

	record = RecordOf(ErrMintFailure.WithCause(errors.New("rpc down")), KindConnectionFailure, now)
	assert.Equal(t, "mint transaction failed: rpc down", record.Message)

	record = RecordOf(errors.New("boom"), KindSignatureRejected, now)
	assert.Equal(t, KindSignatureRejected, record.Kind)
	assert.Equal(t, "boom", record.Message)

	assert.Nil(t, RecordOf(nil, KindMintFailure, now))
}

func TestClassifyConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "typed", err: ErrSelectionFailure.WithMessage("timeout"), want: KindSelectionFailure},
		{name: "deadline", err: fmt.Errorf("connect: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "not installed text", err: errors.New("Puzzle Wallet is not installed"), want: KindNotInstalled},
		{name: "not selected text", err: errors.New("WalletNotSelectedError"), want: KindConnectionFailure},
		{name: "wallet not selected text", err: errors.New("Wallet not selected"), want: KindSelectionFailure},
		{name: "timed out text", err: errors.New("Request timed out"), want: KindTimeout},
		{name: "unmatched", err: errors.New("User rejected the request"), want: KindConnectionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyConnectError(tt.err))
		})
	}
}

func TestIsPermissionFailure(t *testing.T) {
	assert.True(t, IsPermissionFailure(fmt.Errorf("submit: %w", ErrPermissionDenied)))
	assert.True(t, IsPermissionFailure(errors.New("Program game_nft.aleo not authorized")))
	assert.True(t, IsPermissionFailure(errors.New("PERMISSION_DENIED")))
	assert.False(t, IsPermissionFailure(errors.New("insufficient fee")))
	assert.False(t, IsPermissionFailure(nil))
}

func TestBalanceSnapshotSatisfies(t *testing.T) {
	req := CreditRequirement{ProgramID: "credits.aleo", Fee: 100_000}

	tests := []struct {
		name    string
		entries []BalanceEntry
		want    bool
	}{
		{name: "empty snapshot", want: false},
		{name: "public covers fee", entries: []BalanceEntry{{ProgramID: "credits.aleo", PublicAmount: 100_000}}, want: true},
		{name: "private covers fee", entries: []BalanceEntry{{ProgramID: "credits.aleo", PrivateAmount: 250_000}}, want: true},
		{name: "split does not count", entries: []BalanceEntry{{ProgramID: "credits.aleo", PublicAmount: 50_000, PrivateAmount: 50_000}}, want: false},
		{name: "program match is case insensitive", entries: []BalanceEntry{{ProgramID: "Credits.Aleo", PublicAmount: 100_000}}, want: true},
		{name: "other program ignored", entries: []BalanceEntry{{ProgramID: "usdc.aleo", PublicAmount: 9_000_000}}, want: false},
		{name: "second entry satisfies", entries: []BalanceEntry{{ProgramID: "credits.aleo", PublicAmount: 1}, {ProgramID: "credits.aleo", PrivateAmount: 200_000}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BalanceSnapshot{Entries: tt.entries}.Satisfies(req))
		})
	}

	zeroFee := CreditRequirement{ProgramID: "credits.aleo"}
	assert.False(t, BalanceSnapshot{Entries: []BalanceEntry{{ProgramID: "credits.aleo"}}}.Satisfies(zeroFee))
}

func TestFormatCredits(t *testing.T) {
	tests := []struct {
		value uint64
		want  string
	}{
		{value: 0, want: "0"},
		{value: 100_000, want: "0.1"},
		{value: 1_000_000, want: "1"},
		{value: 1_234_567, want: "1.234567"},
		{value: 5_000_500, want: "5.0005"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCredits(tt.value))
		})
	}
}

func TestMintRequest(t *testing.T) {
	req := MintRequest{Name: "Lost Scroll", Image: "ipfs://scroll.png", Edition: 12}
	require.NoError(t, req.Validate())
	assert.Equal(t, []string{"Lost Scroll", "ipfs://scroll.png", "12u32"}, req.Inputs())

	assert.ErrorContains(t, MintRequest{Image: "x"}.Validate(), "name is required")
	assert.ErrorContains(t, MintRequest{Name: "x", Image: " "}.Validate(), "image is required")
}

func TestSessionRecordJSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := json.Marshal(SessionRecord{Address: "aleo1abc", Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"aleo1abc","timestamp":1772366400000}`, string(data))

	var decoded SessionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"address":"aleo1abc","name":"Puzzle Wallet","timestamp":1772366400000}`), &decoded))
	assert.Equal(t, SessionRecord{Address: "aleo1abc", Name: "Puzzle Wallet", Timestamp: ts}, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":1}`), &decoded))
}

func TestEventFor(t *testing.T) {
	assert.Equal(t, EventConnected, EventFor(StateConnected))
	assert.Equal(t, EventError, EventFor(StateErrored))
	assert.Equal(t, EventDisconnected, EventFor(StateDisconnected))
	assert.Equal(t, EventState, EventFor(StateSelecting))
}

func TestEventPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{
			name: "connected carries address and name",
			n:    Notification{Event: EventConnected, State: StateConnected, Address: "aleo1abc", AdapterName: "Puzzle Wallet", At: at},
			want: `{"address":"aleo1abc","name":"Puzzle Wallet"}`,
		},
		{
			name: "error carries the message string",
			n: Notification{Event: EventError, State: StateErrored, At: at,
				Error: &ErrorRecord{Kind: KindNotInstalled, Message: "wallet extension not installed", OccurredAt: at}},
			want: `"wallet extension not installed"`,
		},
		{
			name: "error without record",
			n:    Notification{Event: EventError, State: StateErrored, At: at},
			want: `""`,
		},
		{
			name: "disconnected carries nothing",
			n:    Notification{Event: EventDisconnected, State: StateDisconnected, At: at},
			want: `null`,
		},
		{
			name: "intermediate state keeps the notification",
			n:    Notification{Event: EventState, State: StateSelecting, At: at},
			want: `{"event":"wallet-state","state":"selecting","at":"2026-03-01T12:00:00Z"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(EventPayload(tc.n))
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(data))
		})
	}

	assert.Nil(t, EventPayload(Notification{Event: EventDisconnected}))
}
