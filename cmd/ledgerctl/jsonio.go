package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/construction"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/u128"
)

// accountInitFile is the on-disk JSON shape for one construction.AccountInit
// entry: a hex-encoded public key plus decimal balance/stake.
type accountInitFile struct {
	PublicKeyHex string `json:"public_key_hex"`
	Balance      uint64 `json:"balance"`
	Stake        uint64 `json:"stake"`
}

func readAccountInits(path string) ([]construction.AccountInit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	var entries []accountInitFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode accounts file: %w", err)
	}
	inits := make([]construction.AccountInit, 0, len(entries))
	for i, e := range entries {
		pub, err := hex.DecodeString(e.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("accounts[%d]: malformed public_key_hex: %w", i, err)
		}
		inits = append(inits, construction.AccountInit{
			PublicKey: pub,
			Balance:   u128.FromUint64(e.Balance),
			Stake:     u128.FromUint64(e.Stake),
		})
	}
	return inits, nil
}

// quorumSizeThresholdFile is the JSON shape for one (size, threshold) pair.
type quorumSizeThresholdFile struct {
	Size      uint32 `json:"size"`
	Threshold uint32 `json:"threshold"`
}

// mainOptionsFile is the JSON shape for chainopts.MainOptions, used as
// genesis's --options input.
type mainOptionsFile struct {
	GasCost                     uint64                    `json:"gas_cost"`
	GasLimit                    uint64                    `json:"gas_limit"`
	TimestampPeriodMs           uint64                    `json:"timestamp_period_ms"`
	MainBlockSigners            uint32                    `json:"main_block_signers"`
	MainBlockSignaturesRequired uint32                    `json:"main_block_signatures_required"`
	RandomSeedPeriod            uint64                    `json:"random_seed_period"`
	QuorumPeriod                uint64                    `json:"quorum_period"`
	MaxQuorumDepth              uint8                     `json:"max_quorum_depth"`
	QuorumSizesThresholds       []quorumSizeThresholdFile `json:"quorum_sizes_thresholds"`
}

func readMainOptions(path string) (chainopts.MainOptions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return chainopts.MainOptions{}, fmt.Errorf("read options file: %w", err)
	}
	var f mainOptionsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return chainopts.MainOptions{}, fmt.Errorf("decode options file: %w", err)
	}
	sts := make([]chainopts.QuorumSizeThreshold, len(f.QuorumSizesThresholds))
	for i, st := range f.QuorumSizesThresholds {
		sts[i] = chainopts.QuorumSizeThreshold{Size: st.Size, Threshold: st.Threshold}
	}
	opts := chainopts.MainOptions{
		GasCost:                     f.GasCost,
		GasLimit:                    f.GasLimit,
		TimestampPeriodMs:           f.TimestampPeriodMs,
		MainBlockSigners:            f.MainBlockSigners,
		MainBlockSignaturesRequired: f.MainBlockSignaturesRequired,
		RandomSeedPeriod:            f.RandomSeedPeriod,
		QuorumPeriod:                f.QuorumPeriod,
		MaxQuorumDepth:              f.MaxQuorumDepth,
		QuorumSizesThresholds:       sts,
	}
	return opts, opts.Validate()
}

// signatureFile is the JSON shape for a ledgercrypto.Signature[T]: a
// hex-encoded public key plus a hex-encoded signature.
type signatureFile struct {
	PublicKeyHex string `json:"public_key_hex"`
	SigHex       string `json:"sig_hex"`
}

func (s signatureFile) decode() (pub, sig []byte, err error) {
	pub, err = hex.DecodeString(s.PublicKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed public_key_hex: %w", err)
	}
	sig, err = hex.DecodeString(s.SigHex)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed sig_hex: %w", err)
	}
	return pub, sig, nil
}

// mainBlockFile is the JSON shape for a chainopts.MainBlock, used as
// verify-block's input.
type mainBlockFile struct {
	PrevHex          string          `json:"prev_hex,omitempty"`
	Version          uint64          `json:"version"`
	TimestampMs      uint64          `json:"timestamp_ms"`
	TreeHex          string          `json:"tree_hex"`
	OptionsHex       string          `json:"options_hex"`
	SignerSignatures []signatureFile `json:"signer_signatures"`
	MinerSignature   signatureFile   `json:"miner_signature"`
}

func readMainBlock(path string) (chainopts.MainBlock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return chainopts.MainBlock{}, fmt.Errorf("read block file: %w", err)
	}
	var f mainBlockFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return chainopts.MainBlock{}, fmt.Errorf("decode block file: %w", err)
	}

	body := chainopts.MainBlockBody{
		Version:     f.Version,
		TimestampMs: f.TimestampMs,
	}
	if f.PrevHex != "" {
		digest, err := decodeHash32(f.PrevHex)
		if err != nil {
			return chainopts.MainBlock{}, fmt.Errorf("prev_hex: %w", err)
		}
		prev := ledgercrypto.HashFromBytes[chainopts.MainBlockBody](digest)
		body.Prev = &prev
	}
	tree, err := decodeHash32(f.TreeHex)
	if err != nil {
		return chainopts.MainBlock{}, fmt.Errorf("tree_hex: %w", err)
	}
	body.Tree = tree
	optionsDigest, err := decodeHash32(f.OptionsHex)
	if err != nil {
		return chainopts.MainBlock{}, fmt.Errorf("options_hex: %w", err)
	}
	body.Options = ledgercrypto.HashFromBytes[chainopts.MainOptions](optionsDigest)

	signerSigs := make([]ledgercrypto.Signature[chainopts.MainBlockBody], len(f.SignerSignatures))
	for i, sf := range f.SignerSignatures {
		pub, sig, err := sf.decode()
		if err != nil {
			return chainopts.MainBlock{}, fmt.Errorf("signer_signatures[%d]: %w", i, err)
		}
		signerSigs[i] = ledgercrypto.Signature[chainopts.MainBlockBody]{PublicKey: pub, Sig: sig}
	}
	minerPub, minerSig, err := f.MinerSignature.decode()
	if err != nil {
		return chainopts.MainBlock{}, fmt.Errorf("miner_signature: %w", err)
	}

	return chainopts.MainBlock{
		PreSigned: chainopts.PreSignedMainBlock{
			Body:             body,
			SignerSignatures: signerSigs,
		},
		MinerSignature: ledgercrypto.Signature[chainopts.PreSignedMainBlock]{PublicKey: minerPub, Sig: minerSig},
	}, nil
}

func decodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAccount(s string) ([32]byte, error) {
	return decodeHash32(s)
}
