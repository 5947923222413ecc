package main

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/node"
	"mercatoria.dev/core/queries"
)

// newShowAccountCmd renders an account's state (view) as of the chain's
// current tip (spec.md §3), optionally producing an inclusion proof for one
// field instead.
func newShowAccountCmd(cli *cliContext) *cobra.Command {
	var (
		accountHex string
		proveField string
	)

	cmd := &cobra.Command{
		Use:   "show-account",
		Short: "Show an account's state, or prove one field's inclusion",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := decodeAccount(accountHex)
			if err != nil {
				return fmt.Errorf("--account: %w", err)
			}

			d, err := node.OpenChainDriver(cli.cfg, cli.log)
			if err != nil {
				return fmt.Errorf("open chain driver: %w", err)
			}
			defer d.Close()

			_, head, ok := d.Head()
			if !ok {
				return fmt.Errorf("show-account: chain %q has no genesis yet", cli.cfg.Network)
			}

			out := cmd.OutOrStdout()
			if proveField != "" {
				path := hexpath.BytesToPath([]byte(proveField))
				proof, err := queries.ProveField(d.Store(), head, account, path)
				if err != nil {
					return err
				}
				if !proof.Found {
					fmt.Fprintf(out, "field %q: not found\n", proveField)
					return nil
				}
				fmt.Fprintf(out, "field %q: %s\n", proveField, hex.EncodeToString(proof.Value))
				fmt.Fprintf(out, "quorum tree proof (%d nodes):\n", len(proof.QuorumNodeHashes))
				for i, h := range proof.QuorumNodeHashes {
					fmt.Fprintf(out, "  [%d] %s\n", i, h.String())
				}
				fmt.Fprintf(out, "data tree proof (%d nodes):\n", len(proof.DataTreeHashes))
				for i, h := range proof.DataTreeHashes {
					fmt.Fprintf(out, "  [%d] %s\n", i, h.String())
				}
				return nil
			}

			view, err := queries.AccountView(d.Store(), head, account)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "account:    %s\n", hex.EncodeToString(view.Account[:]))
			fmt.Fprintf(out, "balance:    %s\n", view.Balance.String())
			fmt.Fprintf(out, "stake:      %s\n", view.Stake.String())
			if view.HasPublicKey {
				fmt.Fprintf(out, "public_key: %s\n", hex.EncodeToString(view.PublicKey))
			}
			keys := make([]string, 0, len(view.Fields))
			for k := range view.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(out, "fields (%d):\n", len(keys))
			for _, k := range keys {
				fmt.Fprintf(out, "  %s = %s\n", k, hex.EncodeToString(view.Fields[k]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountHex, "account", "", "hex-encoded 32-byte account id (required)")
	cmd.Flags().StringVar(&proveField, "prove", "", "field name to produce an inclusion proof for, instead of a full view")
	cmd.MarkFlagRequired("account")
	return cmd
}
