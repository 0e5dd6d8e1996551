package cmd

import (
	"fmt"
	"time"

	statusadapter "github.com/bnema/walletctl/internal/adapters/render/status"
	"github.com/bnema/walletctl/internal/application"
	"github.com/bnema/walletctl/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type statusOutput struct {
	application.SessionView
	Balances *domain.BalanceSnapshot `json:"balances,omitempty"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool
	var refresh bool
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the wallet session and balances",
		Long:  "status shows the remembered session. With --refresh it connects first and includes live balances.",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			bridge := app.orch.Bridge()
			if _, _, err := bridge.Restore(cmd.Context()); err != nil {
				app.logger.Warn("restore session record", zap.Error(err))
			}

			if refresh {
				if _, err := app.ensureConnected(cmd.Context(), spinnerTo(cmd.ErrOrStderr())); err != nil {
					return err
				}
			}

			out := statusOutput{SessionView: bridge.View()}
			if out.Session.Connected() {
				snapshot, err := app.orch.Pipeline().Balances(cmd.Context())
				if err != nil {
					app.logger.Warn("fetch balances", zap.Error(err))
				} else {
					out.Balances = &snapshot
				}
			}

			return writeStatusOutput(cmd, app, out, staleAfter, asJSON)
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Connect and fetch live balances")
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 24*time.Hour, "Mark a remembered session older than this as stale")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, out statusOutput, staleAfter time.Duration, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	rendered, err := app.statusRenderer(statusadapter.Status{
		View:        out.SessionView,
		Balances:    out.Balances,
		Requirement: app.orch.Pipeline().MintRequirement(),
	}, statusadapter.RenderOptions{
		Now:        app.now(),
		StaleAfter: staleAfter,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
