// Package queries implements spec.md §3's "Account state (view)" plus the
// read-only projections over committed chain state a client or dashboard
// needs: the full account field mapping, a field's inclusion proof, and the
// quorum tree root's aggregated stats.
package queries

import (
	"mercatoria.dev/core/accounttree"
	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

var (
	pathBalance   = hexpath.BytesToPath([]byte("balance"))
	pathStake     = hexpath.BytesToPath([]byte("stake"))
	pathPublicKey = hexpath.BytesToPath([]byte("public_key"))
)

// AccountState is the spec.md §3 account-state view: the full HexPath →
// bytes mapping derived by in-order traversal of the account's data tree,
// plus the commonly-used typed fields pulled out for convenience.
type AccountState struct {
	Account      [32]byte
	Fields       map[string][]byte
	Balance      u128.U128
	Stake        u128.U128
	PublicKey    []byte
	HasPublicKey bool
}

// AccountView assembles the account state (view) for account as observed at
// lastMain. It returns a ledgererr.CodeNotFound error if account has no
// leaf, or no data tree, in lastMain's quorum tree.
func AccountView(st store.Store, lastMain chainopts.MainBlockBody, account [32]byte) (AccountState, error) {
	qops := quorumtree.Ops(st)
	top := ledgercrypto.HashFromBytes[quorumtree.Body](lastMain.Tree)

	leaf, ok, err := quorumtree.LookupAccount(qops, top, account)
	if err != nil {
		return AccountState{}, err
	}
	if !ok || leaf.DataTree == nil {
		return AccountState{}, ledgererr.New(ledgererr.CodeNotFound, "queries: account has no data tree")
	}

	fields := make(map[string][]byte)
	aops := accounttree.Ops(st)
	if err := walkDataTree(aops, *leaf.DataTree, hexpath.Path{}, fields); err != nil {
		return AccountState{}, err
	}

	view := AccountState{Account: account, Fields: fields}
	if b, ok := fields[pathBalance.String()]; ok {
		view.Balance = u128FromFieldBytes(b)
	}
	if b, ok := fields[pathStake.String()]; ok {
		view.Stake = u128FromFieldBytes(b)
	}
	if b, ok := fields[pathPublicKey.String()]; ok {
		view.PublicKey = b
		view.HasPublicKey = true
	}
	return view, nil
}

func u128FromFieldBytes(b []byte) u128.U128 {
	var arr [16]byte
	copy(arr[:], b)
	return u128.FromBytes(arr)
}

// walkDataTree performs the in-order traversal spec.md §3 describes,
// recording every leaf field under its absolute path.
func walkDataTree(ops radix.Ops[accounttree.Node], root accounttree.Hash, prefix hexpath.Path, out map[string][]byte) error {
	n, err := ops.Get(root)
	if err != nil {
		return err
	}
	if n.HasField {
		out[prefix.String()] = n.Field
	}
	children := ops.Children(n)
	for nib, edge := range children {
		if edge == nil {
			continue
		}
		childPath := hexpath.Concat(prefix, hexpath.Nibble(nib), edge.Suffix)
		if err := walkDataTree(ops, edge.Child, childPath, out); err != nil {
			return err
		}
	}
	return nil
}

// FieldProof is the sequence of node hashes walked by follow (spec.md §4.D)
// from the quorum root down through the account's leaf and into its data
// tree down to path, letting a client independently re-derive the quorum
// root hash from a leaf value without trusting the server.
type FieldProof struct {
	Account          [32]byte
	Path             hexpath.Path
	QuorumNodeHashes []quorumtree.Hash
	DataTreeHashes   []accounttree.Hash
	Value            []byte
	Found            bool
}

// ProveField walks the quorum tree down to account's leaf, then that
// leaf's data tree down to path, recording every node hash visited.
// Found is false (with no error) if account has no leaf, no data tree, or
// no field at exactly path.
func ProveField(st store.Store, lastMain chainopts.MainBlockBody, account [32]byte, path hexpath.Path) (FieldProof, error) {
	qops := quorumtree.Ops(st)
	top := ledgercrypto.HashFromBytes[quorumtree.Body](lastMain.Tree)

	proof := FieldProof{Account: account, Path: hexpath.Clone(path)}

	qHashes, leaf, err := followHashes(qops, top, hexpath.BytesToPath(account[:]))
	if err != nil {
		return FieldProof{}, err
	}
	proof.QuorumNodeHashes = qHashes
	if leaf == nil || leaf.DataTree == nil {
		return proof, nil
	}

	aops := accounttree.Ops(st)
	dHashes, node, err := followHashes(aops, *leaf.DataTree, path)
	if err != nil {
		return FieldProof{}, err
	}
	proof.DataTreeHashes = dHashes
	if node != nil && node.HasField {
		proof.Value = node.Field
		proof.Found = true
	}
	return proof, nil
}

// followHashes descends root along path exactly as radix.Follow does, but
// additionally records every node hash visited along the way (including
// root), which radix.Follow's FollowResult does not expose. It returns the
// terminal node only on an exact hit (empty residual); any other outcome —
// a missing edge, a residual that overruns a stored edge, or a strictly
// divergent branch — returns a nil node with no error.
func followHashes[S any](ops radix.Ops[S], root ledgercrypto.Hash[S], path hexpath.Path) ([]ledgercrypto.Hash[S], *S, error) {
	h := root
	n, err := ops.Get(h)
	if err != nil {
		return nil, nil, err
	}
	hashes := []ledgercrypto.Hash[S]{h}
	for {
		if len(path) == 0 {
			return hashes, &n, nil
		}
		kids := ops.Children(n)
		edge := kids[path[0]]
		if edge == nil {
			return hashes, nil, nil
		}
		rest := path[1:]
		if hexpath.IsPrefix(edge.Suffix, rest) {
			h = edge.Child
			path = rest[len(edge.Suffix):]
			n, err = ops.Get(h)
			if err != nil {
				return nil, nil, err
			}
			hashes = append(hashes, h)
			continue
		}
		return hashes, nil, nil
	}
}

// TopStats surfaces the quorum tree root's aggregated stats (spec.md §3
// "stats = {fee, gas, new_nodes, prize, stake}") for dashboards; backs the
// Prometheus gauge the node package exports.
func TopStats(st store.Store, lastMain chainopts.MainBlockBody) (quorumtree.Stats, error) {
	qops := quorumtree.Ops(st)
	top := ledgercrypto.HashFromBytes[quorumtree.Body](lastMain.Tree)
	root, err := qops.Get(top)
	if err != nil {
		return quorumtree.Stats{}, err
	}
	return root.Stats, nil
}
