package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercatoria.dev/core/node"
)

// newGenesisCmd cuts a genesis main block from an accounts file and an
// options file, and commits it as chain's tip.
func newGenesisCmd(cli *cliContext) *cobra.Command {
	var (
		accountsPath string
		optionsPath  string
		timestampMs  uint64
	)

	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Cut and commit a genesis main block from an accounts file",
		RunE: func(cmd *cobra.Command, args []string) error {
			inits, err := readAccountInits(accountsPath)
			if err != nil {
				return err
			}
			opts, err := readMainOptions(optionsPath)
			if err != nil {
				return err
			}

			d, err := node.OpenChainDriver(cli.cfg, cli.log)
			if err != nil {
				return fmt.Errorf("open chain driver: %w", err)
			}
			defer d.Close()

			hash, err := d.InitGenesis(inits, opts, timestampMs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "genesis committed: %s (accounts=%d)\n", hash.String(), len(inits))
			return nil
		},
	}
	cmd.Flags().StringVar(&accountsPath, "accounts", "", "path to accounts JSON file (required)")
	cmd.Flags().StringVar(&optionsPath, "options", "", "path to main options JSON file (required)")
	cmd.Flags().Uint64Var(&timestampMs, "timestamp-ms", 0, "genesis block timestamp, in milliseconds since the epoch")
	cmd.MarkFlagRequired("accounts")
	cmd.MarkFlagRequired("options")
	return cmd
}
