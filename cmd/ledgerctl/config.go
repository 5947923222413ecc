package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercatoria.dev/core/node"
)

// cliContext carries the node.Config and logger resolved once, in the root
// command's PersistentPreRunE, from persistent flags — the same
// process-level config a peer-serving command would build from, even
// though ledgerctl itself only ever opens one local chain driver from it.
type cliContext struct {
	cfg node.Config
	log *slog.Logger
}

// bindConfigFlags registers the persistent flags every subcommand resolves
// into a node.Config.
func bindConfigFlags(cmd *cobra.Command) {
	def := node.DefaultConfig()
	cmd.PersistentFlags().String("datadir", def.DataDir, "ledger data directory")
	cmd.PersistentFlags().String("chain", def.Network, "chain identifier (content-store namespace)")
	cmd.PersistentFlags().String("log-level", def.LogLevel, "log level: debug, info, warn, or error")
	cmd.PersistentFlags().String("bind-addr", def.BindAddr, "address this node would bind for peer traffic (reserved; p2p relay is out of scope)")
	cmd.PersistentFlags().StringSlice("peers", nil, "peer addresses to dial (reserved; p2p relay is out of scope)")
	cmd.PersistentFlags().Int("max-peers", def.MaxPeers, "maximum simultaneous peer connections (reserved; p2p relay is out of scope)")
}

// resolve reads cmd's bound flags into a node.Config, validates it, and
// builds the logger every subcommand shares.
func (c *cliContext) resolve(cmd *cobra.Command) error {
	datadir, err := cmd.Flags().GetString("datadir")
	if err != nil {
		return err
	}
	chain, err := cmd.Flags().GetString("chain")
	if err != nil {
		return err
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	bindAddr, err := cmd.Flags().GetString("bind-addr")
	if err != nil {
		return err
	}
	peers, err := cmd.Flags().GetStringSlice("peers")
	if err != nil {
		return err
	}
	maxPeers, err := cmd.Flags().GetInt("max-peers")
	if err != nil {
		return err
	}

	cfg := node.Config{
		Network:  chain,
		DataDir:  datadir,
		BindAddr: bindAddr,
		LogLevel: logLevel,
		Peers:    node.NormalizePeers(peers...),
		MaxPeers: maxPeers,
	}
	if err := node.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, err := node.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
}
