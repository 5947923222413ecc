package node

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/construction"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/verification"
)

const headDiskVersion = 1

// ChainDriver holds the one piece of mutable state a node needs on top of
// the immutable content store: which main block is currently the tip. It
// opens a store.BoltStore, tracks last_main, and drives construction and
// verification to advance it one block at a time (spec.md §4.H/§4.I),
// grounded on node/chainstate.go's "hold current tip state, apply one
// block, return a summary" shape and node/miner.go's "config + chain state
// + store, produce one unit of work" shape — both renamed here from UTXO
// block-connection to account-ledger main-block advancement.
type ChainDriver struct {
	st       *store.BoltStore
	headPath string
	log      *slog.Logger

	hasHead  bool
	headHash chainopts.MainBlockBodyHash
	head     chainopts.MainBlockBody
	opts     chainopts.MainOptions
}

// headDisk is the on-disk sidecar recording which block is the tip;
// everything else lives content-addressed in the bolt store.
type headDisk struct {
	Version  uint32 `json:"version"`
	HasHead  bool   `json:"has_head"`
	HeadHash string `json:"head_hash"`
}

// OpenChainDriver validates cfg (spec.md §6's process-level knobs, not
// on-chain MainOptions), opens — creating if absent — the content store for
// cfg.Network under cfg.DataDir, and loads whatever head pointer was last
// saved. cfg.BindAddr/Peers/MaxPeers are validated but not otherwise
// consulted: they are the same knobs a peer-serving command would read,
// reserved for node/p2p's out-of-scope wire-framing boundary.
func OpenChainDriver(cfg Config, log *slog.Logger) (*ChainDriver, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("node: invalid config: %w", err)
	}
	if log == nil {
		level, err := ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	path := store.BoltStorePath(cfg.DataDir, cfg.Network)
	st, err := store.OpenBoltStore(path)
	if err != nil {
		return nil, err
	}
	d := &ChainDriver{
		st:       st,
		headPath: filepath.Join(filepath.Dir(path), "head.json"),
		log:      log.With("component", "chain_driver", "chain", cfg.Network, "max_peers", cfg.MaxPeers),
	}
	if err := d.loadHead(); err != nil {
		_ = st.Close()
		return nil, err
	}
	if d.hasHead {
		opts, err := store.LookupTyped[chainopts.MainOptions](d.st, d.head.Options)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("node: load options at head: %w", err)
		}
		d.opts = opts
	}
	return d, nil
}

// Close releases the underlying content store handle.
func (d *ChainDriver) Close() error {
	if d == nil || d.st == nil {
		return nil
	}
	return d.st.Close()
}

// Store exposes the underlying content-addressed store, e.g. for queries.
func (d *ChainDriver) Store() store.Store { return d.st }

// Head returns the current tip, or ok=false if no genesis has been applied
// yet.
func (d *ChainDriver) Head() (chainopts.MainBlockBodyHash, chainopts.MainBlockBody, bool) {
	return d.headHash, d.head, d.hasHead
}

// Options returns the chain's immutable options, valid once a head exists.
func (d *ChainDriver) Options() chainopts.MainOptions { return d.opts }

// InitGenesis builds and commits the genesis main block body (spec.md §8
// S1/S2), refusing to run if a head already exists.
func (d *ChainDriver) InitGenesis(inits []construction.AccountInit, opts chainopts.MainOptions, timestampMs uint64) (chainopts.MainBlockBodyHash, error) {
	if d.hasHead {
		return chainopts.MainBlockBodyHash{}, errors.New("node: genesis already initialized")
	}
	if err := opts.Validate(); err != nil {
		return chainopts.MainBlockBodyHash{}, fmt.Errorf("node: invalid genesis options: %w", err)
	}
	body, err := construction.GenesisBlockBody(d.st, inits, opts, timestampMs)
	if err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	h := ledgercrypto.HashOf(body)
	if _, err := store.Put[chainopts.MainBlockBody](d.st, body); err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	d.head = body
	d.headHash = h
	d.hasHead = true
	d.opts = opts
	if err := d.saveHead(); err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	d.log.Info("genesis committed", "hash", h.String(), "accounts", len(inits))
	return h, nil
}

// ApplyMainBlock verifies block against the current head (spec.md §4.I
// "valid main block body") and, on success, commits it as the new tip.
func (d *ChainDriver) ApplyMainBlock(block chainopts.MainBlock) (chainopts.MainBlockBodyHash, error) {
	if !d.hasHead {
		return chainopts.MainBlockBodyHash{}, errors.New("node: no genesis to build on")
	}
	if err := verification.VerifyValidMainBlockBody(d.st, block, d.head, d.opts); err != nil {
		d.log.Warn("rejected main block", "prev", d.headHash.String(), "error", err)
		return chainopts.MainBlockBodyHash{}, err
	}
	body := block.PreSigned.Body
	h := ledgercrypto.HashOf(body)
	if _, err := store.Put[chainopts.MainBlockBody](d.st, body); err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	if _, err := store.Put[chainopts.MainBlock](d.st, block); err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	d.head = body
	d.headHash = h
	if err := d.saveHead(); err != nil {
		return chainopts.MainBlockBodyHash{}, err
	}
	d.log.Info("applied main block", "hash", h.String(), "version", body.Version)
	return h, nil
}

func (d *ChainDriver) loadHead() error {
	raw, err := os.ReadFile(d.headPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("node: read head: %w", err)
	}
	var disk headDisk
	if err := json.Unmarshal(raw, &disk); err != nil {
		return fmt.Errorf("node: decode head: %w", err)
	}
	if disk.Version != headDiskVersion {
		return fmt.Errorf("node: unsupported head version %d", disk.Version)
	}
	if !disk.HasHead {
		return nil
	}
	raw32, err := hex.DecodeString(disk.HeadHash)
	if err != nil || len(raw32) != 32 {
		return fmt.Errorf("node: malformed head_hash %q", disk.HeadHash)
	}
	var digest [32]byte
	copy(digest[:], raw32)
	headHash := ledgercrypto.HashFromBytes[chainopts.MainBlockBody](digest)
	body, err := store.LookupTyped[chainopts.MainBlockBody](d.st, headHash)
	if err != nil {
		return fmt.Errorf("node: load head body: %w", err)
	}
	d.hasHead = true
	d.headHash = headHash
	d.head = body
	return nil
}

func (d *ChainDriver) saveHead() error {
	digest := d.headHash.Bytes()
	disk := headDisk{
		Version:  headDiskVersion,
		HasHead:  true,
		HeadHash: hex.EncodeToString(digest[:]),
	}
	raw, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("node: encode head: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.MkdirAll(filepath.Dir(d.headPath), 0o750); err != nil {
		return err
	}
	return writeFileAtomic(d.headPath, raw, 0o600)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
