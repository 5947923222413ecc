// Package construction implements spec.md §4.H: building the genesis main
// block body, folding a signed action result into the quorum tree, and
// assembling the next main block body once a round's actions have been
// applied.
package construction

import (
	"math/big"
	"sort"

	"mercatoria.dev/core/accounttransform"
	"mercatoria.dev/core/accounttree"
	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
	"mercatoria.dev/core/verification"
)

// AccountInit seeds one account in GenesisBlockBody: its public key (the
// account id is hash(public_key)) and its initial balance/stake.
type AccountInit struct {
	PublicKey []byte
	Balance   u128.U128
	Stake     u128.U128
}

// AddChildToQuorumNode inserts child under parent at child's path relative
// to parent, replacing whatever (if anything) previously occupied that
// path (spec.md §4.H "add_child_to_quorum_node"). parent.path must be a
// prefix of child.path.
func AddChildToQuorumNode(st store.Store, parentHash, childHash quorumtree.Hash) (quorumtree.Hash, error) {
	qops := quorumtree.Ops(st)
	child, err := qops.Get(childHash)
	if err != nil {
		return quorumtree.Hash{}, err
	}
	parent, err := qops.Get(parentHash)
	if err != nil {
		return quorumtree.Hash{}, err
	}
	if !hexpath.IsPrefix(parent.Path, child.Path) {
		return quorumtree.Hash{}, ledgererr.Newf(ledgererr.CodeMalformed, "construction: parent path %s is not a prefix of child path %s", parent.Path, child.Path)
	}
	rel := child.Path[len(parent.Path):]
	transform := func(old *quorumtree.Body) (quorumtree.Body, error) {
		if old != nil && !hexpath.Equal(old.Path, child.Path) {
			return quorumtree.Body{}, ledgererr.New(ledgererr.CodeMalformed, "construction: add_child_to_quorum_node path mismatch against existing child")
		}
		return child, nil
	}
	return radix.Insert(qops, parentHash, rel, transform, nil)
}

// initializeAccountNode builds a fresh quorum leaf for a genesis account:
// its data tree carries balance/stake/public_key, and its stats carry the
// node-creation count straight from accounttree.Insert's fresh-node
// counter, the same accounting RunActionAndBuildLeaf uses post-genesis.
func initializeAccountNode(st store.Store, init AccountInit) (quorumtree.Hash, error) {
	acct := ledgercrypto.HashBytes(init.PublicKey)
	aops := accounttree.Ops(st)

	root, err := store.Put[accounttree.Node](st, accounttree.EmptyNode())
	if err != nil {
		return quorumtree.Hash{}, err
	}
	var newNodes int

	bal := init.Balance.Bytes()
	root, err = accounttree.Insert(aops, root, hexpath.BytesToPath([]byte("balance")), func([]byte, bool) ([]byte, error) { return bal[:], nil }, &newNodes)
	if err != nil {
		return quorumtree.Hash{}, err
	}
	stake := init.Stake.Bytes()
	root, err = accounttree.Insert(aops, root, hexpath.BytesToPath([]byte("stake")), func([]byte, bool) ([]byte, error) { return stake[:], nil }, &newNodes)
	if err != nil {
		return quorumtree.Hash{}, err
	}
	root, err = accounttree.Insert(aops, root, hexpath.BytesToPath([]byte("public_key")), func([]byte, bool) ([]byte, error) { return init.PublicKey, nil }, &newNodes)
	if err != nil {
		return quorumtree.Hash{}, err
	}

	qops := quorumtree.Ops(st)
	dr := root
	return qops.Put(quorumtree.Body{
		Path:     hexpath.BytesToPath(acct[:]),
		DataTree: &dr,
		Stats:    Stats(newNodes, init.Stake),
	})
}

// Stats builds the new_nodes/stake pair shared by genesis leaves; fee/gas/
// prize are zero since no action ran.
func Stats(newNodes int, stake u128.U128) quorumtree.Stats {
	return quorumtree.Stats{NewNodes: uint64(newNodes) + 1, Stake: stake}
}

// GenesisBlockBody assembles the version-0 main block body: an empty top
// quorum node folded with one leaf per AccountInit (spec.md §4.H
// "genesis_block_body").
func GenesisBlockBody(st store.Store, inits []AccountInit, opts chainopts.MainOptions, timestampMs uint64) (chainopts.MainBlockBody, error) {
	if err := opts.Validate(); err != nil {
		return chainopts.MainBlockBody{}, err
	}
	optsHash, err := store.Put[chainopts.MainOptions](st, opts)
	if err != nil {
		return chainopts.MainBlockBody{}, err
	}

	qops := quorumtree.Ops(st)
	topHash, err := qops.Put(quorumtree.Body{Stats: quorumtree.Stats{NewNodes: 1}})
	if err != nil {
		return chainopts.MainBlockBody{}, err
	}

	for _, init := range inits {
		leafHash, err := initializeAccountNode(st, init)
		if err != nil {
			return chainopts.MainBlockBody{}, err
		}
		topHash, err = AddChildToQuorumNode(st, topHash, leafHash)
		if err != nil {
			return chainopts.MainBlockBody{}, err
		}
	}

	return chainopts.MainBlockBody{
		Prev:        nil,
		Version:     0,
		TimestampMs: timestampMs,
		Tree:        topHash.Bytes(),
		Options:     optsHash,
	}, nil
}

// ScoredChild is one candidate edge BestSuperNode folds: a quorum node
// together with the score it (and everything already folded into it)
// carries.
type ScoredChild struct {
	Hash  quorumtree.Hash
	Score *big.Int
}

// MakeImmediateParent locates the existing node at path in baseTreeTop (or
// synthesizes an empty one stamped with roundMain if none exists), folds
// every member into it via AddChildToQuorumNode in order of member hash
// (hex string), and returns
// the resulting hash and the members' summed score (spec.md §4.H
// "make_immediate_parent").
func MakeImmediateParent(st store.Store, roundMain *chainopts.MainBlockBodyHash, baseTreeTop quorumtree.Hash, path hexpath.Path, members []ScoredChild) (quorumtree.Hash, *big.Int, error) {
	qops := quorumtree.Ops(st)
	existing, err := quorumtree.Follow(qops, baseTreeTop, path)
	if err != nil {
		return quorumtree.Hash{}, nil, err
	}

	var parentHash quorumtree.Hash
	if existing != nil && len(existing.Residual) == 0 {
		parentHash = existing.Hash
	} else {
		h, err := qops.Put(quorumtree.Body{LastMain: roundMain, Path: hexpath.Clone(path)})
		if err != nil {
			return quorumtree.Hash{}, nil, err
		}
		parentHash = h
	}

	sorted := make([]ScoredChild, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash.String() < sorted[j].Hash.String() })

	total := new(big.Int)
	for _, m := range sorted {
		parentHash, err = AddChildToQuorumNode(st, parentHash, m.Hash)
		if err != nil {
			return quorumtree.Hash{}, nil, err
		}
		total.Add(total, m.Score)
	}
	return parentHash, total, nil
}

// BestSuperNode folds inputChildren bottom-up into the highest-scoring
// candidate at superPath (spec.md §4.H "best_super_node"): at each depth i
// from 64 down to len(superPath)+1, every currently-best entry at depth i is
// grouped by its own depth-(i-1) prefix and folded with make_immediate_parent;
// a candidate replaces the existing entry for its prefix only on strictly
// greater score, so the result is deterministic given the same inputs.
//
// TODO: max_quorum_depth is not enforced here; a caller building a
// super-path beyond opts.max_quorum_depth must reject it before calling in.
func BestSuperNode(st store.Store, roundMain *chainopts.MainBlockBodyHash, baseTreeTop quorumtree.Hash, opts chainopts.MainOptions, superPath hexpath.Path, inputChildren []ScoredChild) (quorumtree.Hash, error) {
	qops := quorumtree.Ops(st)

	byLen := map[int][]ScoredChild{}
	bodyOf := map[string]quorumtree.Body{}
	for _, c := range inputChildren {
		body, err := qops.Get(c.Hash)
		if err != nil {
			return quorumtree.Hash{}, err
		}
		byLen[len(body.Path)] = append(byLen[len(body.Path)], c)
		bodyOf[c.Hash.String()] = body
	}

	best := map[string]ScoredChild{}
	bestPath := map[string]hexpath.Path{}

	for i := 64; i > len(superPath); i-- {
		for _, c := range byLen[i] {
			body := bodyOf[c.Hash.String()]
			key := body.Path.String()
			if cur, ok := best[key]; !ok || c.Score.Cmp(cur.Score) > 0 {
				best[key] = c
				bestPath[key] = body.Path
			}
		}

		groupMembers := map[string][]ScoredChild{}
		groupPath := map[string]hexpath.Path{}
		for key, v := range best {
			p := bestPath[key]
			if len(p) != i {
				continue
			}
			prefix := p[:i-1]
			gkey := prefix.String()
			groupMembers[gkey] = append(groupMembers[gkey], v)
			groupPath[gkey] = prefix
		}

		groupKeys := make([]string, 0, len(groupMembers))
		for k := range groupMembers {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, gkey := range groupKeys {
			prefix := groupPath[gkey]
			parentHash, score, err := MakeImmediateParent(st, roundMain, baseTreeTop, prefix, groupMembers[gkey])
			if err != nil {
				return quorumtree.Hash{}, err
			}
			if cur, ok := best[gkey]; !ok || score.Cmp(cur.Score) > 0 {
				best[gkey] = ScoredChild{Hash: parentHash, Score: score}
				bestPath[gkey] = prefix
			}
		}
	}

	final, ok := best[superPath.String()]
	if !ok {
		return quorumtree.Hash{}, ledgererr.New(ledgererr.CodeNotFound, "construction: best_super_node found no candidate at super_path")
	}
	return final.Hash, nil
}

// NextMainBlockBody assembles the main block body that follows prevMain,
// whose top is newTop (unchanged from prevMain's tree, or a fresh
// endorsed-and-valid candidate) (spec.md §4.H "next_main_block_body").
func NextMainBlockBody(st store.Store, prevMainHash chainopts.MainBlockBodyHash, prevMain chainopts.MainBlockBody, opts chainopts.MainOptions, newTop quorumtree.Node, timestampMs uint64) (chainopts.MainBlockBody, error) {
	if opts.TimestampPeriodMs == 0 || timestampMs%opts.TimestampPeriodMs != 0 {
		return chainopts.MainBlockBody{}, ledgererr.New(ledgererr.CodeMalformed, "construction: timestamp_ms not aligned to timestamp_period_ms")
	}
	if timestampMs <= prevMain.TimestampMs {
		return chainopts.MainBlockBody{}, ledgererr.New(ledgererr.CodeMalformed, "construction: timestamp_ms must increase")
	}
	if len(newTop.Body.Path) != 0 {
		return chainopts.MainBlockBody{}, ledgererr.New(ledgererr.CodeMalformed, "construction: top quorum node must have an empty path")
	}

	newTopHash, err := store.Put[quorumtree.Body](st, newTop.Body)
	if err != nil {
		return chainopts.MainBlockBody{}, err
	}
	prevTopHash := ledgercrypto.HashFromBytes[quorumtree.Body](prevMain.Tree)

	if !newTopHash.Equal(prevTopHash) {
		if err := verification.VerifyWellFormedQNB(prevMainHash, opts, newTop.Body); err != nil {
			return chainopts.MainBlockBody{}, err
		}
		if err := verification.VerifyValidQNB(st, prevMainHash, prevTopHash, opts, newTop.Body, newTopHash); err != nil {
			return chainopts.MainBlockBody{}, err
		}
		if err := verification.VerifyEndorsedQuorumNode(st, prevMain, opts, newTop); err != nil {
			return chainopts.MainBlockBody{}, err
		}
	}

	return chainopts.MainBlockBody{
		Prev:        &prevMainHash,
		Version:     prevMain.Version + 1,
		TimestampMs: timestampMs,
		Tree:        newTopHash.Bytes(),
		Options:     prevMain.Options,
	}, nil
}
