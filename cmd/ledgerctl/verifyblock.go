package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercatoria.dev/core/node"
	"mercatoria.dev/core/verification"
)

// newVerifyBlockCmd checks a proposed main block against the chain's
// current tip without committing it — a dry run of the check
// node.ChainDriver.ApplyMainBlock performs before advancing the tip.
func newVerifyBlockCmd(cli *cliContext) *cobra.Command {
	var blockPath string

	cmd := &cobra.Command{
		Use:   "verify-block",
		Short: "Check a proposed main block against the committed tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			block, err := readMainBlock(blockPath)
			if err != nil {
				return err
			}

			d, err := node.OpenChainDriver(cli.cfg, cli.log)
			if err != nil {
				return fmt.Errorf("open chain driver: %w", err)
			}
			defer d.Close()

			_, head, ok := d.Head()
			if !ok {
				return fmt.Errorf("verify-block: chain %q has no genesis yet", cli.cfg.Network)
			}

			if err := verification.VerifyValidMainBlockBody(d.Store(), block, head, d.Options()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", err)
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&blockPath, "block", "", "path to main block JSON file (required)")
	cmd.MarkFlagRequired("block")
	return cmd
}
