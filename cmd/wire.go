package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bnema/walletctl/internal/adapters/host/fixture"
	statusadapter "github.com/bnema/walletctl/internal/adapters/render/status"
	chainstore "github.com/bnema/walletctl/internal/adapters/storage/chain"
	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/bnema/walletctl/internal/ports"
	"github.com/bnema/walletctl/internal/telemetry/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	settings       *viper.Viper
	config         application.Config
	logger         *zap.Logger
	host           *fixture.Host
	store          ports.KeyValueStore
	metrics        *metrics.Collector
	orch           *application.Orchestrator
	statusRenderer func(statusadapter.Status, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
	closeOnce      sync.Once
}

func wireApp() (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	cfg, err := applicationConfig(settings)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(settings.GetString("log.level"), settings.GetString("log.format"), os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	host, err := fixture.NewHost(settings, fixture.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("wire fixture host: %w", err)
	}

	store, err := chainstore.NewFileFirstWithMemoryFallback(settings.GetString("storage.dir"))
	if err != nil {
		_ = host.Close()
		return nil, fmt.Errorf("wire session store chain: %w", err)
	}

	collector := metrics.NewCollector()
	orch := application.NewOrchestrator(host, store, cfg,
		application.WithLogger(logger),
		application.WithMetrics(collector),
	)

	return &app{
		settings:       settings,
		config:         cfg,
		logger:         logger,
		host:           host,
		store:          store,
		metrics:        collector,
		orch:           orch,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

// runE wraps a command body so the orchestrator and fixture host are
// released once it returns.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		a.orch.Close()
		if err := a.host.Close(); err != nil {
			a.logger.Debug("close fixture host", zap.Error(err))
		}
		_ = a.logger.Sync()
	})
}

// ensureConnected connects unless the session already is. One-shot commands
// start from a fresh process, so the persisted record alone never counts.
func (a *app) ensureConnected(ctx context.Context, progress progressFunc) (domain.WalletSession, error) {
	bridge := a.orch.Bridge()
	if session := bridge.View().Session; session.Connected() {
		return session, nil
	}

	var session domain.WalletSession
	err := progress(ctx, "Connecting wallet...", func(ctx context.Context) error {
		var connectErr error
		session, connectErr = bridge.Connect(ctx, nil)
		return connectErr
	})
	if err != nil {
		return session, withRemediation(err)
	}
	return session, nil
}

// withRemediation appends the suggested next step of a classified error.
func withRemediation(err error) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Action != "" {
		return fmt.Errorf("%w (see %s)", err, de.Action)
	}
	return err
}
