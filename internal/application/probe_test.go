package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbePollOnceIsLimitedToOnePollPerWindow(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	probe := NewProbe(host, testConfig(), WithClock(clock))

	present, polled := probe.PollOnce(context.Background())
	assert.True(t, present)
	assert.True(t, polled)

	clock.Advance(4 * time.Second)
	host.present = false
	present, polled = probe.PollOnce(context.Background())
	assert.True(t, present, "cached answer inside the window")
	assert.False(t, polled)
	assert.Equal(t, 1, host.calls("probe"))

	clock.Advance(time.Second)
	present, polled = probe.PollOnce(context.Background())
	assert.False(t, present)
	assert.True(t, polled)
	assert.Equal(t, 2, host.calls("probe"))
}

func TestProbeIsExtensionPresentHasNoSideEffects(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	probe := NewProbe(host, testConfig(), WithClock(clock))

	assert.True(t, probe.IsExtensionPresent())
	assert.False(t, probe.LastKnown(), "a direct read is not recorded")

	_, polled := probe.PollOnce(context.Background())
	assert.True(t, polled, "a direct read does not consume the poll window")
	assert.True(t, probe.LastKnown())

	host.present = false
	assert.False(t, probe.IsExtensionPresent())
	assert.True(t, probe.LastKnown(), "last polled answer kept")
}

func TestProbeResetClearsWindow(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	probe := NewProbe(host, testConfig(), WithClock(clock))

	_, polled := probe.PollOnce(context.Background())
	require.True(t, polled)

	probe.Reset()
	assert.False(t, probe.LastKnown())

	_, polled = probe.PollOnce(context.Background())
	assert.True(t, polled)
}

func TestProbeDetectWaitsForLateInjection(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	cfg := testConfig()
	cfg.DetectWait = time.Second
	probe := NewProbe(host, cfg)

	go func() {
		time.Sleep(30 * time.Millisecond)
		host.mu.Lock()
		host.present = true
		host.mu.Unlock()
	}()

	assert.True(t, probe.Detect(context.Background()))
	assert.Greater(t, host.calls("probe"), 1)
}

func TestProbeDetectGivesUpAfterWait(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	probe := NewProbe(host, testConfig())

	start := time.Now()
	assert.False(t, probe.Detect(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), testConfig().DetectWait)
}

func TestProbeDetectIsSupersededByNewerCall(t *testing.T) {
	t.Parallel()

	host := newFakeHost()
	host.present = false
	cfg := testConfig()
	cfg.DetectWait = 5 * time.Second
	probe := NewProbe(host, cfg)

	first := make(chan bool, 1)
	go func() {
		first <- probe.Detect(context.Background())
	}()

	require.Eventually(t, func() bool { return host.calls("probe") > 0 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan bool, 1)
	go func() {
		second <- probe.Detect(ctx)
	}()

	select {
	case got := <-first:
		assert.False(t, got)
	case <-time.After(time.Second):
		t.Fatal("first detection was not superseded")
	}

	cancel()
	assert.False(t, <-second)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
