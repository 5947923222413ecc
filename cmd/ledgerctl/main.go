// Command ledgerctl operates one account ledger: cutting a genesis main
// block, checking a proposed main block against committed history, and
// rendering an account's state (optionally with an inclusion proof).
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run builds and executes the root command against args, writing to stdout
// and stderr, and returns a process exit code — a testable entrypoint in
// place of calling cobra's Execute directly from main.
func run(args []string, stdout, stderr io.Writer) int {
	cli := &cliContext{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate a stake-weighted, quorum-signed account ledger",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.resolve(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	bindConfigFlags(root)

	root.AddCommand(newGenesisCmd(cli))
	root.AddCommand(newVerifyBlockCmd(cli))
	root.AddCommand(newShowAccountCmd(cli))

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
