package status

import (
	"testing"
	"time"

	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creditsFee = domain.CreditRequirement{ProgramID: "credits.aleo", Fee: 100_000}

func TestRenderConnectedSessionWithBalances(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(Status{
		View: application.SessionView{Session: domain.WalletSession{
			State:       domain.StateConnected,
			Address:     "aleo1qxyz",
			AdapterName: "Puzzle Wallet",
			ConnectedAt: now.Add(-5 * time.Minute),
		}},
		Balances: &domain.BalanceSnapshot{
			Entries: []domain.BalanceEntry{
				{ProgramID: "credits.aleo", Symbol: "ALEO", PublicAmount: 5_000_000, PrivateAmount: 1_500_000},
			},
			FetchedAt: now,
		},
		Requirement: creditsFee,
	}, RenderOptions{Now: now, StaleAfter: time.Hour})

	require.NoError(t, err)
	assert.Contains(t, output, "Wallet Session")
	assert.Contains(t, output, "state:")
	assert.Contains(t, output, "connected")
	assert.Contains(t, output, "aleo1qxyz")
	assert.Contains(t, output, "adapter: Puzzle Wallet")
	assert.Contains(t, output, "connected 5 minutes ago")
	assert.Contains(t, output, "credits.aleo (ALEO):")
	assert.Contains(t, output, "public 5")
	assert.Contains(t, output, "private 1.5")
	assert.Contains(t, output, "mint fee: 0.1 credits.aleo")
	assert.Contains(t, output, "covered")
	assert.NotContains(t, output, "[stale]")
}

func TestRenderInsufficientFee(t *testing.T) {
	output, err := Render(Status{
		View: application.SessionView{Session: domain.WalletSession{State: domain.StateConnected, Address: "aleo1qxyz"}},
		Balances: &domain.BalanceSnapshot{Entries: []domain.BalanceEntry{
			{ProgramID: "credits.aleo", PublicAmount: 60_000, PrivateAmount: 60_000},
		}},
		Requirement: creditsFee,
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "insufficient")
}

func TestRenderErroredSessionShowsAction(t *testing.T) {
	output, err := Render(Status{
		View: application.SessionView{Session: domain.WalletSession{
			State: domain.StateErrored,
			LastError: &domain.ErrorRecord{
				Kind:    domain.KindNotInstalled,
				Message: "wallet extension is not installed",
				Action:  "https://puzzle.online/download",
			},
		}},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "errored")
	assert.Contains(t, output, "not installed: wallet extension is not installed")
	assert.Contains(t, output, "next:")
	assert.Contains(t, output, "https://puzzle.online/download")
}

func TestRenderRestoredRecordIsNotShownAsConnected(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	output, err := Render(Status{
		View: application.SessionView{
			Session:  domain.NewWalletSession(),
			Restored: &domain.SessionRecord{Address: "aleo1qxyz", Name: "Puzzle Wallet", Timestamp: now.Add(-3 * 24 * time.Hour)},
		},
	}, RenderOptions{Now: now, StaleAfter: 24 * time.Hour})

	require.NoError(t, err)
	assert.Contains(t, output, "disconnected")
	assert.Contains(t, output, "last session:")
	assert.Contains(t, output, "aleo1qxyz (Puzzle Wallet)")
	assert.Contains(t, output, "not verified, last seen 3 days ago")
	assert.Contains(t, output, "[stale]")
	assert.NotContains(t, output, "balances")
}

func TestRenderDegradedSession(t *testing.T) {
	output, err := Render(Status{
		View: application.SessionView{Session: domain.NewWalletSession(), Degraded: true},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "continuing without a wallet")
}

func TestRenderEmptyBalances(t *testing.T) {
	output, err := Render(Status{
		View:     application.SessionView{Session: domain.WalletSession{State: domain.StateConnected, Address: "aleo1qxyz"}},
		Balances: &domain.BalanceSnapshot{},
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "balances: 0")
	assert.Contains(t, output, "No balances available.")
}

func TestFormatSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		at   time.Time
		now  time.Time
		want string
	}{
		{name: "zero", want: "at an unknown time"},
		{name: "no clock", at: now, want: "at 2026-02-14T11:00:00Z"},
		{name: "seconds", at: now.Add(-10 * time.Second), now: now, want: "just now"},
		{name: "one minute", at: now.Add(-time.Minute), now: now, want: "1 minute ago"},
		{name: "hours", at: now.Add(-2 * time.Hour), now: now, want: "2 hours ago"},
		{name: "days", at: now.Add(-49 * time.Hour), now: now, want: "2 days ago (10:00 on 12 Feb)"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatSince(tc.at, tc.now))
		})
	}
}
