package application

import (
	"context"
	"testing"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorAppliesExternalDisconnect(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	orch, store := newTestOrchestrator(t, host, testConfig())
	recorder := &notificationRecorder{}
	orch.Bridge().Subscribe(recorder.record)

	_, err := orch.Bridge().Connect(context.Background(), nil)
	require.NoError(t, err)

	host.fireExternalDisconnect()

	assert.Equal(t, domain.StateDisconnected, orch.Machine().Snapshot().State)
	assert.Len(t, recorder.withEvent(domain.EventDisconnected), 1)
	assert.NotContains(t, store.Snapshot(), KeyWalletConnection)
	assert.Zero(t, host.calls("disconnect"))
}

func TestOrchestratorResetRestoresFreshState(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	orch, store := newTestOrchestrator(t, host, testConfig())
	ctx := context.Background()

	_, err := orch.Bridge().Connect(ctx, nil)
	require.NoError(t, err)
	_, _, err = orch.Bridge().Restore(ctx)
	require.NoError(t, err)
	_, err = orch.ReconnectGate().Allow(ctx)
	require.NoError(t, err)

	require.NoError(t, orch.Reset(ctx))

	view := orch.Bridge().View()
	assert.Equal(t, domain.NewWalletSession(), view.Session)
	assert.Nil(t, view.Restored)
	assert.False(t, view.Degraded)
	assert.Empty(t, store.Snapshot())

	_, polled := orch.Probe().PollOnce(ctx)
	assert.True(t, polled)
}

func TestOrchestratorInstancesAreIndependent(t *testing.T) {
	t.Parallel()

	first, _ := newTestOrchestrator(t, newFakeHost(), testConfig())
	second, _ := newTestOrchestrator(t, newFakeHost(), testConfig())

	_, err := first.Bridge().Connect(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StateConnected, first.Machine().Snapshot().State)
	assert.Equal(t, domain.StateDisconnected, second.Machine().Snapshot().State)

	_, polled := first.Probe().PollOnce(context.Background())
	assert.True(t, polled)
	_, polled = second.Probe().PollOnce(context.Background())
	assert.True(t, polled)
}
