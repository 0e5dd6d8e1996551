package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bnema/walletctl/internal/domain"
	"github.com/spf13/cobra"
)

func newSignCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sign <message>",
		Short: "Ask the wallet to sign a message",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			if _, err := app.ensureConnected(cmd.Context(), spinnerTo(cmd.ErrOrStderr())); err != nil {
				return err
			}

			result, err := app.orch.Bridge().Sign(cmd.Context(), args[0])
			if err != nil {
				return withRemediation(err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Signature)
			return err
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newMintCmd(app *app) *cobra.Command {
	var req domain.MintRequest
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Submit a mint transaction through the wallet",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, _ []string) error {
			if err := req.Validate(); err != nil {
				return fmt.Errorf("validate mint request: %w", err)
			}
			if _, err := app.ensureConnected(cmd.Context(), spinnerTo(cmd.ErrOrStderr())); err != nil {
				return err
			}

			var result domain.MintResult
			err := spinnerTo(cmd.ErrOrStderr())(cmd.Context(), "Submitting mint...", func(ctx context.Context) error {
				var mintErr error
				result, mintErr = app.orch.Bridge().Mint(ctx, req)
				return mintErr
			})
			if err != nil {
				return withRemediation(err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			note := ""
			if result.Recovered {
				note = ", after refreshing program permissions"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Minted %q: transaction %s (attempts: %d%s)\n",
				req.Name, result.TransactionID, len(result.Attempts), note)
			return err
		}),
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Item name")
	cmd.Flags().StringVar(&req.Image, "image", "", "Item image URI")
	cmd.Flags().Uint32Var(&req.Edition, "edition", 1, "Edition number")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
