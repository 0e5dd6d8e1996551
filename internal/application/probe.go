package application

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Probe answers whether the wallet extension is present. It never mutates
// the session.
type Probe struct {
	host     ports.HostBinding
	clock    ports.Clock
	logger   *zap.Logger
	window   time.Duration
	wait     time.Duration
	interval time.Duration

	mu            sync.Mutex
	limiter       *rate.Limiter
	lastPresent   bool
	pendingSeq    uint64
	cancelPending context.CancelFunc
}

func NewProbe(host ports.HostBinding, cfg Config, opts ...Option) *Probe {
	o := buildOptions(opts)

	window := cfg.ProbeWindow
	if window <= 0 {
		window = DefaultProbeWindow
	}
	interval := cfg.DetectInterval
	if interval <= 0 {
		interval = DefaultDetectInterval
	}

	return &Probe{
		host:     host,
		clock:    o.clock,
		logger:   o.logger.Named("probe"),
		window:   window,
		wait:     cfg.DetectWait,
		interval: interval,
		limiter:  newWindowLimiter(window),
	}
}

func newWindowLimiter(window time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(window), 1)
}

// IsExtensionPresent reads the host directly. It leaves the poll window and
// the last known answer untouched.
func (p *Probe) IsExtensionPresent() bool {
	return p.host.Probe()
}

// check reads the host and records the answer for LastKnown.
func (p *Probe) check() bool {
	present := p.host.Probe()

	p.mu.Lock()
	p.lastPresent = present
	p.mu.Unlock()

	return present
}

// PollOnce checks the host at most once per probe window. Inside the window it
// returns the last known answer and polled=false.
func (p *Probe) PollOnce(ctx context.Context) (present bool, polled bool) {
	if ctx.Err() != nil {
		return p.LastKnown(), false
	}

	p.mu.Lock()
	allowed := p.limiter.AllowN(p.clock.Now(), 1)
	last := p.lastPresent
	p.mu.Unlock()

	if !allowed {
		return last, false
	}

	present = p.check()
	p.logger.Debug("extension poll", zap.Bool("present", present))
	return present, true
}

func (p *Probe) LastKnown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPresent
}

// Detect waits up to the configured detect window for the extension to
// appear. A newer call cancels any Detect still waiting.
func (p *Probe) Detect(ctx context.Context) bool {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	if p.cancelPending != nil {
		p.cancelPending()
	}
	p.pendingSeq++
	seq := p.pendingSeq
	p.cancelPending = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.pendingSeq == seq {
			p.cancelPending = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	if p.check() {
		return true
	}
	if p.wait <= 0 {
		return false
	}

	deadline := time.NewTimer(p.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("detection poll superseded or cancelled")
			return false
		case <-deadline.C:
			return p.check()
		case <-ticker.C:
			if p.check() {
				return true
			}
		}
	}
}

// Reset clears the poll window and cancels a pending detection. Tests only.
func (p *Probe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelPending != nil {
		p.cancelPending()
		p.cancelPending = nil
	}
	p.limiter = newWindowLimiter(p.window)
	p.lastPresent = false
}
