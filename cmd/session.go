package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and remember the session",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			session, err := app.ensureConnected(cmd.Context(), spinnerTo(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), session)
			}

			if session.AdapterName == "" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Connected %s\n", session.Address)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Connected %s via %s\n", session.Address, session.AdapterName)
			return err
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newDisconnectCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet and forget the remembered session",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			if err := app.orch.Bridge().Forget(cmd.Context()); err != nil {
				return fmt.Errorf("disconnect wallet: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Disconnected")
			return err
		}),
	}
}
