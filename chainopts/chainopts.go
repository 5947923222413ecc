// Package chainopts defines the wire types shared across construction,
// verification, and randomselect: chain-wide options, actions, send
// receipts, and main block bodies (spec.md §3, §6 "Fields on-chain").
package chainopts

import (
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/u128"
)

// QuorumSizeThreshold is one (size, threshold) pair from
// MainOptions.QuorumSizesThresholds.
type QuorumSizeThreshold struct {
	Size      uint32
	Threshold uint32
}

// MainOptions holds the chain's immutable parameters (spec.md §3
// "MainOptions"). It is stored once per chain and referenced by hash from
// every main block body.
type MainOptions struct {
	GasCost                    uint64
	GasLimit                   uint64
	TimestampPeriodMs           uint64
	MainBlockSigners            uint32
	MainBlockSignaturesRequired uint32
	RandomSeedPeriod             uint64
	QuorumPeriod                 uint64
	MaxQuorumDepth                uint8
	QuorumSizesThresholds         []QuorumSizeThreshold
}

// Validate checks the invariants spec.md §6 states for MainOptions.
func (o MainOptions) Validate() error {
	if o.TimestampPeriodMs == 0 {
		return ledgererr.New(ledgererr.CodeMalformed, "chainopts: timestamp_period_ms must be > 0")
	}
	if o.MainBlockSignaturesRequired > o.MainBlockSigners {
		return ledgererr.New(ledgererr.CodeMalformed, "chainopts: main_block_signatures_required exceeds main_block_signers")
	}
	if len(o.QuorumSizesThresholds) == 0 {
		return ledgererr.New(ledgererr.CodeMalformed, "chainopts: quorum_sizes_thresholds must be non-empty")
	}
	if o.MaxQuorumDepth > 64 {
		return ledgererr.New(ledgererr.CodeMalformed, "chainopts: max_quorum_depth must be <= 64")
	}
	return nil
}

func (o MainOptions) EncodeCanonical(e *ledgercrypto.Encoder) {
	e.WriteU64(o.GasCost)
	e.WriteU64(o.GasLimit)
	e.WriteU64(o.TimestampPeriodMs)
	e.WriteU32(o.MainBlockSigners)
	e.WriteU32(o.MainBlockSignaturesRequired)
	e.WriteU64(o.RandomSeedPeriod)
	e.WriteU64(o.QuorumPeriod)
	e.WriteU8(o.MaxQuorumDepth)
	e.WriteCompactSize(uint64(len(o.QuorumSizesThresholds)))
	for _, qst := range o.QuorumSizesThresholds {
		e.WriteU32(qst.Size)
		e.WriteU32(qst.Threshold)
	}
}

func (o *MainOptions) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	var err error
	if o.GasCost, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: gas_cost", err)
	}
	if o.GasLimit, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: gas_limit", err)
	}
	if o.TimestampPeriodMs, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: timestamp_period_ms", err)
	}
	if o.MainBlockSigners, err = d.ReadU32(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: main_block_signers", err)
	}
	if o.MainBlockSignaturesRequired, err = d.ReadU32(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: main_block_signatures_required", err)
	}
	if o.RandomSeedPeriod, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: random_seed_period", err)
	}
	if o.QuorumPeriod, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: quorum_period", err)
	}
	if o.MaxQuorumDepth, err = d.ReadU8(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: max_quorum_depth", err)
	}
	n, err := d.ReadCompactSize()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: quorum_sizes_thresholds length", err)
	}
	o.QuorumSizesThresholds = make([]QuorumSizeThreshold, n)
	for i := range o.QuorumSizesThresholds {
		size, err := d.ReadU32()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: quorum_sizes_thresholds size", err)
		}
		threshold, err := d.ReadU32()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: quorum_sizes_thresholds threshold", err)
		}
		o.QuorumSizesThresholds[i] = QuorumSizeThreshold{Size: size, Threshold: threshold}
	}
	return nil
}

// OptionsHash is the typed hash of a MainOptions value.
type OptionsHash = ledgercrypto.Hash[MainOptions]

// Action is a signed message targeting exactly one account (spec.md §3
// "Action", §6 "Action wire format"). Args are positional and dispatched by
// Command: send => [recipient, amount, init_spec, message, sig]; receive =>
// [sender, send_hash, sig].
type Action struct {
	LastMain ledgercrypto.Hash[MainBlockBody]
	Fee      u128.U128
	Command  []byte
	Args     [][]byte
}

func (a Action) EncodeCanonical(e *ledgercrypto.Encoder) {
	h := a.LastMain.Bytes()
	e.WriteFixed(h[:])
	e.WriteU128(a.Fee)
	e.WriteBytes(a.Command)
	e.WriteCompactSize(uint64(len(a.Args)))
	for _, arg := range a.Args {
		e.WriteBytes(arg)
	}
}

func (a *Action) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	lastMain, err := ledgercrypto.ReadHash[MainBlockBody](d)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: action last_main", err)
	}
	a.LastMain = lastMain
	if a.Fee, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: action fee", err)
	}
	if a.Command, err = d.ReadBytes(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: action command", err)
	}
	n, err := d.ReadCompactSize()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: action args length", err)
	}
	a.Args = make([][]byte, n)
	for i := range a.Args {
		if a.Args[i], err = d.ReadBytes(); err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: action arg", err)
		}
	}
	return nil
}

// WithZeroedArg returns a copy of a with Args[idx] replaced by an empty
// slice, used on both the sign and verify sides so a signature never signs
// itself (spec.md §4.F "Signature rule", §9 "Signatures excluding
// themselves").
func (a Action) WithZeroedArg(idx int) Action {
	clone := Action{LastMain: a.LastMain, Fee: a.Fee, Command: a.Command, Args: make([][]byte, len(a.Args))}
	copy(clone.Args, a.Args)
	if idx >= 0 && idx < len(clone.Args) {
		clone.Args[idx] = nil
	}
	return clone
}

// ActionHash is the typed hash of an Action.
type ActionHash = ledgercrypto.Hash[Action]

// SendInfo is the sender-side record of a "send" (spec.md §3 "SendInfo").
// InitializeSpec is optional (nil when absent).
type SendInfo struct {
	LastMain       ledgercrypto.Hash[MainBlockBody]
	Sender         [32]byte
	Recipient      [32]byte
	SendAmount     u128.U128
	InitializeSpec *[32]byte
	Message        []byte
}

func (s SendInfo) EncodeCanonical(e *ledgercrypto.Encoder) {
	h := s.LastMain.Bytes()
	e.WriteFixed(h[:])
	e.WriteFixed(s.Sender[:])
	e.WriteFixed(s.Recipient[:])
	e.WriteU128(s.SendAmount)
	if s.InitializeSpec == nil {
		e.WriteBool(false)
	} else {
		e.WriteBool(true)
		e.WriteFixed(s.InitializeSpec[:])
	}
	e.WriteBytes(s.Message)
}

func (s *SendInfo) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	lastMain, err := ledgercrypto.ReadHash[MainBlockBody](d)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo last_main", err)
	}
	s.LastMain = lastMain
	sender, err := d.ReadFixed(32)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo sender", err)
	}
	copy(s.Sender[:], sender)
	recipient, err := d.ReadFixed(32)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo recipient", err)
	}
	copy(s.Recipient[:], recipient)
	if s.SendAmount, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo send_amount", err)
	}
	hasInit, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo initialize_spec presence", err)
	}
	if hasInit {
		spec, err := d.ReadFixed(32)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo initialize_spec", err)
		}
		var arr [32]byte
		copy(arr[:], spec)
		s.InitializeSpec = &arr
	} else {
		s.InitializeSpec = nil
	}
	if s.Message, err = d.ReadBytes(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: sendinfo message", err)
	}
	return nil
}

// SendInfoHash is the typed hash of a SendInfo.
type SendInfoHash = ledgercrypto.Hash[SendInfo]

// MainBlockBody is the unit of global state advance (spec.md §3 "Main
// block"). Prev is nil for genesis.
//
// Tree is the quorum tree root's content hash, stored as a raw digest
// rather than a phantom-typed ledgercrypto.Hash[quorumtree.Body]: quorumtree
// itself must reference chainopts.Action (for a leaf body's new_action
// field), so chainopts cannot import quorumtree without a cycle. Every
// caller that imports both packages re-wraps this digest as
// ledgercrypto.Hash[quorumtree.Body] via ledgercrypto.HashFromBytes.
type MainBlockBody struct {
	Prev        *ledgercrypto.Hash[MainBlockBody]
	Version     uint64
	TimestampMs uint64
	Tree        [32]byte
	Options     OptionsHash
}

func (b MainBlockBody) EncodeCanonical(e *ledgercrypto.Encoder) {
	if b.Prev == nil {
		e.WriteBool(false)
	} else {
		e.WriteBool(true)
		h := b.Prev.Bytes()
		e.WriteFixed(h[:])
	}
	e.WriteU64(b.Version)
	e.WriteU64(b.TimestampMs)
	e.WriteFixed(b.Tree[:])
	optionsHash := b.Options.Bytes()
	e.WriteFixed(optionsHash[:])
}

func (b *MainBlockBody) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	hasPrev, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody prev presence", err)
	}
	if hasPrev {
		prev, err := ledgercrypto.ReadHash[MainBlockBody](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody prev", err)
		}
		b.Prev = &prev
	} else {
		b.Prev = nil
	}
	if b.Version, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody version", err)
	}
	if b.TimestampMs, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody timestamp_ms", err)
	}
	tree, err := d.ReadFixed(32)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody tree", err)
	}
	copy(b.Tree[:], tree)
	options, err := ledgercrypto.ReadHash[MainOptions](d)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: mainblockbody options", err)
	}
	b.Options = options
	return nil
}

// MainBlockBodyHash is the typed hash of a MainBlockBody, also the `last_main`
// value referenced throughout the rest of the core.
type MainBlockBodyHash = ledgercrypto.Hash[MainBlockBody]

// PreSignedMainBlock adds signer signatures over a MainBlockBody (spec.md
// §3 "A pre-signed main block adds a list of signer signatures").
type PreSignedMainBlock struct {
	Body             MainBlockBody
	SignerSignatures []ledgercrypto.Signature[MainBlockBody]
}

func (p PreSignedMainBlock) EncodeCanonical(e *ledgercrypto.Encoder) {
	p.Body.EncodeCanonical(e)
	e.WriteCompactSize(uint64(len(p.SignerSignatures)))
	for _, sig := range p.SignerSignatures {
		e.WriteBytes(sig.PublicKey)
		e.WriteBytes(sig.Sig)
	}
}

func (p *PreSignedMainBlock) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	// The body occupies a variable-length prefix; decode it via a nested
	// encoder round-trip is unnecessary here since DecodeCanonical reads
	// sequentially from the same cursor the body would have used, so we
	// decode the body's fields inline rather than re-entering MainBlockBody's
	// DecodeCanonical (which expects to own the whole buffer).
	hasPrev, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned prev presence", err)
	}
	if hasPrev {
		prev, err := ledgercrypto.ReadHash[MainBlockBody](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned prev", err)
		}
		p.Body.Prev = &prev
	} else {
		p.Body.Prev = nil
	}
	if p.Body.Version, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned version", err)
	}
	if p.Body.TimestampMs, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned timestamp_ms", err)
	}
	tree, err := d.ReadFixed(32)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned tree", err)
	}
	copy(p.Body.Tree[:], tree)
	options, err := ledgercrypto.ReadHash[MainOptions](d)
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned options", err)
	}
	p.Body.Options = options

	n, err := d.ReadCompactSize()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned signatures length", err)
	}
	p.SignerSignatures = make([]ledgercrypto.Signature[MainBlockBody], n)
	for i := range p.SignerSignatures {
		pub, err := d.ReadBytes()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned signature pubkey", err)
		}
		sig, err := d.ReadBytes()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "chainopts: presigned signature bytes", err)
		}
		p.SignerSignatures[i] = ledgercrypto.Signature[MainBlockBody]{PublicKey: pub, Sig: sig}
	}
	return nil
}

// MainBlock adds the miner's signature over the pre-signed form (spec.md
// §3 "a main block adds a miner signature over the pre-signed form").
type MainBlock struct {
	PreSigned      PreSignedMainBlock
	MinerSignature ledgercrypto.Signature[PreSignedMainBlock]
}

func (m MainBlock) EncodeCanonical(e *ledgercrypto.Encoder) {
	m.PreSigned.EncodeCanonical(e)
	e.WriteBytes(m.MinerSignature.PublicKey)
	e.WriteBytes(m.MinerSignature.Sig)
}
