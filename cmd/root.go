package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Drive a browser wallet session from the terminal",
		Long:          "walletctl detects a wallet extension, connects and keeps a wallet session, signs messages and submits mint transactions, and bridges session events to web clients over a websocket.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newProbeCmd(app),
		newConnectCmd(app),
		newDisconnectCmd(app),
		newStatusCmd(app),
		newSignCmd(app),
		newMintCmd(app),
		newServeCmd(app),
	)

	return rootCmd
}
