// Package verification implements spec.md §4.I: checking a proposed quorum
// node for internal well-formedness, re-deriving it from committed history
// to confirm it is valid, checking it carries a real quorum's endorsement,
// and checking a full main block body end to end.
package verification

import (
	"math/big"

	"mercatoria.dev/core/accounttransform"
	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/randomselect"
	"mercatoria.dev/core/store"
)

// Score computes stats.fee − (stats.prize + opts.gas_cost·stats.gas), the
// figure well-formedness requires to be non-negative and that
// construction.BestSuperNode maximizes when folding candidates. It is
// signed (math/big), not u128, since the subtraction can go negative.
func Score(b quorumtree.Body, opts chainopts.MainOptions) *big.Int {
	feeBytes := b.Stats.Fee.Bytes()
	prizeBytes := b.Stats.Prize.Bytes()
	fee := new(big.Int).SetBytes(feeBytes[:])
	prize := new(big.Int).SetBytes(prizeBytes[:])
	cost := new(big.Int).Mul(new(big.Int).SetUint64(opts.GasCost), new(big.Int).SetUint64(b.Stats.Gas))
	total := new(big.Int).Add(prize, cost)
	return new(big.Int).Sub(fee, total)
}

// VerifyWellFormedQNB checks a freshly-proposed quorum node's internal
// shape without re-executing anything: a leaf (path length 64) carries a
// data tree and no children, an internal node carries no data tree, its
// last_main is either nil (only legal for an untouched genesis subtree) or
// the block's previous main, and its score is non-negative (spec.md §4.I
// "verify_well_formed_qnb").
func VerifyWellFormedQNB(prevMainHash chainopts.MainBlockBodyHash, opts chainopts.MainOptions, qnb quorumtree.Body) error {
	isLeaf := len(qnb.Path) == 64
	hasChildren := false
	for _, e := range qnb.Children {
		if e != nil {
			hasChildren = true
			break
		}
	}
	if isLeaf && hasChildren {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: leaf quorum node must not have children")
	}
	if isLeaf && qnb.DataTree == nil {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: leaf quorum node must carry a data tree")
	}
	if !isLeaf && qnb.DataTree != nil {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: internal quorum node must not carry a data tree")
	}
	if qnb.LastMain != nil && !qnb.LastMain.Equal(prevMainHash) {
		return ledgererr.New(ledgererr.CodeStale, "verification: qnb.last_main does not match the block's previous main")
	}
	if Score(qnb, opts).Sign() < 0 {
		return ledgererr.New(ledgererr.CodeInvariantViolated, "verification: qnb score is negative")
	}
	return nil
}

func fetchBody(st store.Lookup, h quorumtree.Hash) (quorumtree.Body, error) {
	bs, err := st.LookupBytes(h.Bytes())
	if err != nil {
		return quorumtree.Body{}, err
	}
	var b quorumtree.Body
	if err := b.DecodeCanonical(bs); err != nil {
		return quorumtree.Body{}, err
	}
	return b, nil
}

// verifyNoDroppedChild rejects qnb if the old tree has a node sitting
// exactly at qnb.Path and that node carries a child slot qnb no longer
// does: a new node must never silently drop a child present in the old
// one (spec.md §4.I "verify_valid_quorum_node_body"'s prev_node coverage
// check). If the old tree has no node at exactly qnb.Path — because the
// path never existed, or because qnb introduces a fresh branch point
// splitting a longer old edge — there is no old children array to compare
// against, and the check is skipped.
func verifyNoDroppedChild(ops radix.Ops[quorumtree.Body], prevRoot quorumtree.Hash, qnb quorumtree.Body) error {
	old, err := quorumtree.Follow(ops, prevRoot, qnb.Path)
	if err != nil {
		return err
	}
	if old == nil || len(old.Residual) != 0 {
		return nil
	}
	oldChildren := ops.Children(old.Node)
	for i, oc := range oldChildren {
		if oc != nil && qnb.Children[i] == nil {
			return ledgererr.Newf(ledgererr.CodeInvariantViolated, "verification: new quorum node at %s drops child %d present in old node", qnb.Path, i)
		}
	}
	return nil
}

// VerifyValidQNB re-derives qnb from prevMainHash/prevMainQuorumRoot's
// committed state and checks the result hashes to qnbHash, entirely
// against an overlay store so the base store is never mutated (spec.md
// §4.I "verify_valid_qnb", §9's recompute-then-byte-compare technique). A
// leaf is re-derived by re-running qnb.new_action through
// accounttransform.RunActionAndBuildLeaf; an internal node is re-derived by
// re-applying replace_children over qnb's own children, after first
// confirming no child slot present in the old tree at qnb.Path has
// silently disappeared and recursively re-verifying (well-formedness and
// validity) every child that differs from what the old tree carries at
// the same path. Without this recursive check, a Body blob placed
// directly into the store by anyone — never produced by re-running a
// real action, nor folded together from real children — would otherwise
// be accepted below the top as long as the top-level arithmetic and hash
// checks pass.
func VerifyValidQNB(st store.Store, prevMainHash chainopts.MainBlockBodyHash, prevMainQuorumRoot quorumtree.Hash, opts chainopts.MainOptions, qnb quorumtree.Body, qnbHash quorumtree.Hash) error {
	overlay := store.NewOverlayStore(st)
	qops := quorumtree.Ops(overlay)
	baseQops := quorumtree.Ops(st)

	var recomputed quorumtree.Body
	if len(qnb.Path) == 64 {
		if qnb.NewAction == nil {
			return ledgererr.New(ledgererr.CodeMalformed, "verification: leaf qnb carries no new_action to verify")
		}
		actionBytes, err := st.LookupBytes(qnb.NewAction.Bytes())
		if err != nil {
			return err
		}
		var action chainopts.Action
		if err := action.DecodeCanonical(actionBytes); err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "verification: decode new_action", err)
		}
		account, err := ledgercrypto.PathToHashCode(qnb.Path)
		if err != nil {
			return err
		}
		leaf, err := accounttransform.RunActionAndBuildLeaf(overlay, prevMainHash, prevMainQuorumRoot, account, action, *qnb.NewAction)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeInvariantViolated, "verification: new_action failed to re-apply", err)
		}
		recomputed = leaf
	} else {
		if err := verifyNoDroppedChild(baseQops, prevMainQuorumRoot, qnb); err != nil {
			return err
		}

		for _, edge := range qnb.Children {
			if edge == nil {
				continue
			}
			child, err := qops.Get(edge.Child)
			if err != nil {
				return err
			}
			old, err := quorumtree.Follow(baseQops, prevMainQuorumRoot, child.Path)
			if err != nil {
				return err
			}
			if old != nil && len(old.Residual) == 0 && old.Hash.Equal(edge.Child) {
				continue // byte-identical to the old tree at this path; already verified when introduced
			}
			if err := VerifyWellFormedQNB(prevMainHash, opts, child); err != nil {
				return err
			}
			if err := VerifyValidQNB(st, prevMainHash, prevMainQuorumRoot, opts, child, edge.Child); err != nil {
				return err
			}
		}

		body, err := qops.ReplaceChildren(quorumtree.Body{LastMain: qnb.LastMain, Path: qnb.Path, Prize: qnb.Prize}, qnb.Children)
		if err != nil {
			return err
		}
		recomputed = body
	}

	gotHash, err := qops.Put(recomputed)
	if err != nil {
		return err
	}
	if !gotHash.Equal(qnbHash) {
		return ledgererr.New(ledgererr.CodeInvariantViolated, "verification: recomputed quorum node does not match the proposed one")
	}
	return nil
}

// VerifyEndorsedQuorumNode checks that node's signatures verify and that
// their distinct signer accounts meet or exceed the threshold of some
// quorum derived for node.Body.Path from prevMain (spec.md §4.I
// "verify_endorsed_quorum_node").
func VerifyEndorsedQuorumNode(st store.Lookup, prevMain chainopts.MainBlockBody, opts chainopts.MainOptions, node quorumtree.Node) error {
	quorums, err := randomselect.QuorumsByPrevBlock(st, prevMain, opts, node.Body.Path)
	if err != nil {
		return err
	}

	signerSet := make(map[[32]byte]bool, len(node.Signatures))
	for _, sig := range node.Signatures {
		if !ledgercrypto.Verify(sig, node.Body) {
			return ledgererr.New(ledgererr.CodeInvalidSignature, "verification: quorum node signature does not verify")
		}
		signerSet[ledgercrypto.SignerAccount(sig)] = true
	}

	for _, q := range quorums {
		count := uint32(0)
		for _, m := range q.Members {
			if signerSet[m] {
				count++
			}
		}
		if count >= q.Threshold {
			return nil
		}
	}
	return ledgererr.New(ledgererr.CodeInvariantViolated, "verification: quorum node is not endorsed by any configured quorum")
}

// VerifyValidMainBlockBody checks block end to end against prevMain: the
// chain link, version/timestamp monotonicity, unchanged options, the top
// quorum node's well-formedness/validity when it differs from prevMain's,
// the main block signer threshold, and the miner signature (spec.md §4.I
// "verify_valid_main_block_body").
func VerifyValidMainBlockBody(st store.Store, block chainopts.MainBlock, prevMain chainopts.MainBlockBody, opts chainopts.MainOptions) error {
	prevHash := ledgercrypto.HashOf(prevMain)
	body := block.PreSigned.Body

	if body.Prev == nil || !body.Prev.Equal(prevHash) {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: main block body does not chain from prev")
	}
	if body.Version != prevMain.Version+1 {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: main block body version must be prev.version+1")
	}
	if opts.TimestampPeriodMs == 0 || body.TimestampMs%opts.TimestampPeriodMs != 0 {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: timestamp_ms not aligned to timestamp_period_ms")
	}
	if body.TimestampMs <= prevMain.TimestampMs {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: timestamp_ms must increase")
	}
	if !body.Options.Equal(prevMain.Options) {
		return ledgererr.New(ledgererr.CodeMalformed, "verification: main options must not change mid-chain")
	}

	topHash := ledgercrypto.HashFromBytes[quorumtree.Body](body.Tree)
	prevTopHash := ledgercrypto.HashFromBytes[quorumtree.Body](prevMain.Tree)
	if len(body.Tree) != 0 && !topHash.Equal(prevTopHash) {
		top, err := fetchBody(st, topHash)
		if err != nil {
			return err
		}
		if len(top.Path) != 0 {
			return ledgererr.New(ledgererr.CodeMalformed, "verification: top quorum node must have an empty path")
		}
		if err := VerifyWellFormedQNB(prevHash, opts, top); err != nil {
			return err
		}
		if err := VerifyValidQNB(st, prevHash, prevTopHash, opts, top, topHash); err != nil {
			return err
		}
	}

	mas, err := randomselect.MinerAndSignersByPrevBlock(st, prevMain, opts)
	if err != nil {
		return err
	}
	signerSet := make(map[[32]byte]bool, len(mas.Signers))
	for _, s := range mas.Signers {
		signerSet[s] = true
	}

	distinctSigners := make(map[[32]byte]bool)
	for _, sig := range block.PreSigned.SignerSignatures {
		if !ledgercrypto.Verify(sig, body) {
			return ledgererr.New(ledgererr.CodeInvalidSignature, "verification: signer signature does not verify")
		}
		account := ledgercrypto.SignerAccount(sig)
		if !signerSet[account] {
			return ledgererr.New(ledgererr.CodeInvalidSignature, "verification: signature is not from a selected signer")
		}
		distinctSigners[account] = true
	}
	if uint32(len(distinctSigners)) < opts.MainBlockSignaturesRequired {
		return ledgererr.New(ledgererr.CodeInsufficient, "verification: not enough distinct signer signatures")
	}

	if !ledgercrypto.Verify(block.MinerSignature, block.PreSigned) {
		return ledgererr.New(ledgererr.CodeInvalidSignature, "verification: miner signature does not verify")
	}
	if ledgercrypto.SignerAccount(block.MinerSignature) != mas.Miner {
		return ledgererr.New(ledgererr.CodeInvalidSignature, "verification: miner signature is not from the selected miner")
	}

	return nil
}
