//go:build js && wasm

// Command walletctl-wasm runs the orchestrator inside a web page. Page
// scripts talk to it through window CustomEvents.
package main

import (
	"context"

	"github.com/bnema/walletctl/internal/adapters/host/browser"
	"github.com/bnema/walletctl/internal/adapters/storage/chain"
	"github.com/bnema/walletctl/internal/adapters/storage/memory"
	"github.com/bnema/walletctl/internal/application"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	store := chain.NewStore(browser.NewLocalStorage(), memory.NewStore())
	orch := application.NewOrchestrator(
		browser.NewHost(browser.DefaultGlobal),
		store,
		application.DefaultConfig(),
		application.WithLogger(logger),
	)
	defer orch.Close()

	ctx := context.Background()
	dispatcher := browser.NewDispatcher(orch.Bridge(), logger)
	dispatcher.Attach(ctx)
	defer dispatcher.Detach()

	if _, ok, err := orch.Bridge().Restore(ctx); err != nil {
		logger.Warn("restore session record", zap.Error(err))
	} else if ok {
		go func() {
			if _, _, err := orch.Bridge().AutoReconnect(ctx); err != nil {
				logger.Info("resume session", zap.Error(err))
			}
		}()
	}

	select {}
}
