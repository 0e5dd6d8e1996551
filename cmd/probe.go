package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newProbeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the wallet extension is installed",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			probe := app.orch.Probe()
			present, polled := probe.PollOnce(cmd.Context())
			app.logger.Debug("probe command", zap.Bool("present", present), zap.Bool("polled", polled))
			if !present {
				present = probe.Detect(cmd.Context())
			}
			if !present {
				return withRemediation(domain.ErrNotInstalled.WithAction(app.config.InstallURL))
			}

			adapters := app.host.Adapters()
			if len(adapters) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Wallet extension detected")
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wallet extension detected (adapters: %s)\n", strings.Join(adapters, ", "))
			return err
		}),
	}
}
