package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	wstransport "github.com/bnema/walletctl/internal/adapters/transport/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(app *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bridge wallet session events to websocket clients",
		Long:  "serve keeps one wallet session alive, relays wallet events over /ws, exposes the session at /session and Prometheus metrics at /metrics, and reloads the fixture host when its file changes.",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = app.settings.GetString("serve.listen")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.host.Watch(); err != nil {
				return fmt.Errorf("watch fixture: %w", err)
			}

			server := wstransport.NewServer(app.orch.Bridge(),
				wstransport.WithLogger(app.logger),
				wstransport.WithProber(app.orch.Probe()),
				wstransport.WithHandler("/metrics", app.metrics.Handler()),
			)
			defer server.Close()

			listener, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", listen, err)
			}

			httpServer := &http.Server{
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				serveErr <- httpServer.Serve(listener)
			}()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", listener.Addr())
			go app.resumeSession(ctx)

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from serve.listen)")

	return cmd
}

// resumeSession reconnects a remembered session through the reconnect gate.
func (a *app) resumeSession(ctx context.Context) {
	bridge := a.orch.Bridge()
	_, ok, err := bridge.Restore(ctx)
	if err != nil {
		a.logger.Warn("restore session record", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	if _, attempted, err := bridge.AutoReconnect(ctx); err != nil {
		a.logger.Info("resume session", zap.Bool("attempted", attempted), zap.Error(err))
	}
}
