package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/ports"
)

const (
	KeyAttemptCount         = "attemptCount"
	KeyLastAttemptTimestamp = "lastAttemptTimestamp"
)

// ReconnectGate limits automatic reconnects through durable counters so the
// limit survives restarts. Explicit user connects never consult it.
type ReconnectGate struct {
	store       ports.KeyValueStore
	clock       ports.Clock
	maxAttempts int
	window      time.Duration

	mu sync.Mutex
}

type ReconnectCounters struct {
	Attempts    int
	LastAttempt time.Time
}

func NewReconnectGate(store ports.KeyValueStore, cfg ReconnectConfig, clock ports.Clock) *ReconnectGate {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultReconnectWindow
	}
	return &ReconnectGate{store: store, clock: clock, maxAttempts: cfg.MaxAttempts, window: window}
}

// Allow records an automatic attempt when the window has room for it.
func (g *ReconnectGate) Allow(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	counters, err := g.load(ctx)
	if err != nil {
		return false, err
	}

	now := g.clock.Now()
	if !counters.LastAttempt.IsZero() && now.Sub(counters.LastAttempt) >= g.window {
		counters.Attempts = 0
	}
	if counters.Attempts >= g.maxAttempts {
		return false, nil
	}

	counters.Attempts++
	counters.LastAttempt = now
	if err := g.save(ctx, counters); err != nil {
		return false, err
	}
	return true, nil
}

func (g *ReconnectGate) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return errors.Join(
		g.store.Delete(ctx, KeyAttemptCount),
		g.store.Delete(ctx, KeyLastAttemptTimestamp),
	)
}

func (g *ReconnectGate) Counters(ctx context.Context) (ReconnectCounters, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(ctx)
}

// load treats absent or unparsable counters as zero.
func (g *ReconnectGate) load(ctx context.Context) (ReconnectCounters, error) {
	var counters ReconnectCounters

	count, err := g.get(ctx, KeyAttemptCount)
	if err != nil {
		return counters, err
	}
	if n, parseErr := strconv.Atoi(count); parseErr == nil && n > 0 {
		counters.Attempts = n
	}

	last, err := g.get(ctx, KeyLastAttemptTimestamp)
	if err != nil {
		return counters, err
	}
	if ms, parseErr := strconv.ParseInt(last, 10, 64); parseErr == nil && ms > 0 {
		counters.LastAttempt = time.UnixMilli(ms)
	}
	return counters, nil
}

func (g *ReconnectGate) get(ctx context.Context, key string) (string, error) {
	value, err := g.store.Get(ctx, key)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return value, nil
}

func (g *ReconnectGate) save(ctx context.Context, counters ReconnectCounters) error {
	if err := g.store.Put(ctx, KeyAttemptCount, strconv.Itoa(counters.Attempts)); err != nil {
		return fmt.Errorf("write %s: %w", KeyAttemptCount, err)
	}
	ts := strconv.FormatInt(counters.LastAttempt.UnixMilli(), 10)
	if err := g.store.Put(ctx, KeyLastAttemptTimestamp, ts); err != nil {
		return fmt.Errorf("write %s: %w", KeyLastAttemptTimestamp, err)
	}
	return nil
}
