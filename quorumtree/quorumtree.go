// Package quorumtree instantiates radix as the global account tree
// (spec.md §4.G): leaves are accounts at depth 64, internal nodes carry
// aggregated stats recomputed on every replace_children.
package quorumtree

import (
	"mercatoria.dev/core/accounttree"
	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

// Stats are the aggregates rolled up at every quorum node (spec.md §3
// "Quorum node body"): fee/gas/new_nodes/prize are iteration-scoped (only
// folded in from a child produced in the same main-block iteration), stake
// is cumulative across all iterations.
type Stats struct {
	Fee      u128.U128
	Gas      uint64
	NewNodes uint64
	Prize    u128.U128
	Stake    u128.U128
}

// Body is a quorum node's content-addressed payload. LastMain is nil only
// for subtrees created at genesis (no prior main block exists yet).
// DataTree and NewAction are present only for a leaf (depth 64); Children
// is non-empty only for an internal node.
type Body struct {
	LastMain  *chainopts.MainBlockBodyHash
	Path      hexpath.Path
	Children  [16]*radix.Edge[Body]
	DataTree  *accounttree.Hash
	NewAction *chainopts.ActionHash
	Prize     u128.U128
	Stats     Stats
}

// Hash is the typed content hash of a quorum node body.
type Hash = ledgercrypto.Hash[Body]

// Node wraps a Body with the signatures endorsing it (spec.md §3 "A quorum
// node wraps a body with an optional list of signatures"). Signatures are
// never part of the content hash: content addressing is by Body alone, so
// verification can compare a recomputed Body to a proposed one byte-for-byte
// regardless of who has signed it.
type Node struct {
	Body       Body
	Signatures []ledgercrypto.Signature[Body]
}

func (b Body) EncodeCanonical(e *ledgercrypto.Encoder) {
	if b.LastMain == nil {
		e.WriteBool(false)
	} else {
		e.WriteBool(true)
		h := b.LastMain.Bytes()
		e.WriteFixed(h[:])
	}
	e.WritePath(b.Path)
	for _, c := range b.Children {
		if c == nil {
			e.WriteBool(false)
			continue
		}
		e.WriteBool(true)
		e.WritePath(c.Suffix)
		h := c.Child.Bytes()
		e.WriteFixed(h[:])
	}
	if b.DataTree == nil {
		e.WriteBool(false)
	} else {
		e.WriteBool(true)
		h := b.DataTree.Bytes()
		e.WriteFixed(h[:])
	}
	if b.NewAction == nil {
		e.WriteBool(false)
	} else {
		e.WriteBool(true)
		h := b.NewAction.Bytes()
		e.WriteFixed(h[:])
	}
	e.WriteU128(b.Prize)
	e.WriteU128(b.Stats.Fee)
	e.WriteU64(b.Stats.Gas)
	e.WriteU64(b.Stats.NewNodes)
	e.WriteU128(b.Stats.Prize)
	e.WriteU128(b.Stats.Stake)
}

// DecodeCanonical implements store.Decoder.
func (b *Body) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	hasLastMain, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: last_main presence", err)
	}
	if hasLastMain {
		h, err := ledgercrypto.ReadHash[chainopts.MainBlockBody](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: last_main", err)
		}
		b.LastMain = &h
	} else {
		b.LastMain = nil
	}
	path, err := d.ReadPath()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: path", err)
	}
	b.Path = path
	for i := 0; i < 16; i++ {
		present, err := d.ReadBool()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: edge presence", err)
		}
		if !present {
			continue
		}
		suffix, err := d.ReadPath()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: edge suffix", err)
		}
		child, err := ledgercrypto.ReadHash[Body](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: edge child", err)
		}
		b.Children[i] = &radix.Edge[Body]{Suffix: suffix, Child: child}
	}
	hasDataTree, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: data_tree presence", err)
	}
	if hasDataTree {
		h, err := ledgercrypto.ReadHash[accounttree.Node](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: data_tree", err)
		}
		b.DataTree = &h
	} else {
		b.DataTree = nil
	}
	hasNewAction, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: new_action presence", err)
	}
	if hasNewAction {
		h, err := ledgercrypto.ReadHash[chainopts.Action](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: new_action", err)
		}
		b.NewAction = &h
	} else {
		b.NewAction = nil
	}
	if b.Prize, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: prize", err)
	}
	if b.Stats.Fee, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: stats.fee", err)
	}
	if b.Stats.Gas, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: stats.gas", err)
	}
	if b.Stats.NewNodes, err = d.ReadU64(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: stats.new_nodes", err)
	}
	if b.Stats.Prize, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: stats.prize", err)
	}
	if b.Stats.Stake, err = d.ReadU128(); err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "quorumtree: stats.stake", err)
	}
	return nil
}

func lastMainEqual(a, b *chainopts.MainBlockBodyHash) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Ops builds the radix.Ops capability set for the quorum tree backed by st.
func Ops(st store.Store) radix.Ops[Body] {
	get := func(h Hash) (Body, error) {
		bs, err := st.LookupBytes(h.Bytes())
		if err != nil {
			return Body{}, err
		}
		var b Body
		if err := b.DecodeCanonical(bs); err != nil {
			return Body{}, err
		}
		return b, nil
	}
	put := func(b Body) (Hash, error) {
		e := ledgercrypto.NewEncoder()
		b.EncodeCanonical(e)
		code, err := st.PutBytes(e.Bytes())
		if err != nil {
			return Hash{}, err
		}
		return ledgercrypto.HashFromBytes[Body](code), nil
	}
	return radix.Ops[Body]{
		Get:      get,
		Put:      put,
		Children: func(b Body) [16]*radix.Edge[Body] { return b.Children },
		ReplaceChildren: func(n Body, kids [16]*radix.Edge[Body]) (Body, error) {
			stats := Stats{NewNodes: 1, Prize: n.Prize}
			for i, edge := range kids {
				if edge == nil {
					continue
				}
				child, err := get(edge.Child)
				if err != nil {
					return Body{}, err
				}
				wantPath := hexpath.Concat(n.Path, hexpath.Nibble(i), edge.Suffix)
				if !hexpath.Equal(child.Path, wantPath) {
					return Body{}, ledgererr.Newf(ledgererr.CodeMalformed, "quorumtree: child path %s does not extend parent path %s via edge %d/%s", child.Path, n.Path, i, edge.Suffix)
				}
				stats.Stake = stats.Stake.Add(child.Stats.Stake)
				if lastMainEqual(n.LastMain, child.LastMain) {
					stats.Fee = stats.Fee.Add(child.Stats.Fee)
					stats.Gas += child.Stats.Gas
					stats.Prize = stats.Prize.Add(child.Stats.Prize)
					stats.NewNodes += child.Stats.NewNodes
				}
			}
			return Body{
				LastMain:  n.LastMain,
				Path:      n.Path,
				Children:  kids,
				DataTree:  nil,
				NewAction: nil,
				Prize:     n.Prize,
				Stats:     stats,
			}, nil
		},
		FromSingleChild: func(edge hexpath.Path, child Hash) (Body, error) {
			if len(edge) == 0 {
				return Body{}, ledgererr.New(ledgererr.CodeInvariantViolated, "quorumtree: empty suffix in from_single_child")
			}
			c, err := get(child)
			if err != nil {
				return Body{}, err
			}
			if !hexpath.IsPostfix(edge, c.Path) {
				return Body{}, ledgererr.New(ledgererr.CodeInvariantViolated, "quorumtree: from_single_child suffix is not a postfix of the child's path")
			}
			parentPath := hexpath.Clone(c.Path[:len(c.Path)-len(edge)])
			stats := c.Stats
			stats.NewNodes++
			var kids [16]*radix.Edge[Body]
			kids[edge[0]] = &radix.Edge[Body]{Suffix: hexpath.Clone(edge[1:]), Child: child}
			return Body{
				LastMain: c.LastMain,
				Path:     parentPath,
				Children: kids,
				Stats:    stats,
			}, nil
		},
	}
}

// Follow descends root along path (spec.md §4.D "follow").
func Follow(ops radix.Ops[Body], root Hash, path hexpath.Path) (*radix.FollowResult[Body], error) {
	return radix.Follow(ops, root, path)
}

// LookupAccount resolves account (a 64-nibble path) to its quorum leaf
// body, or ok=false if no leaf exists for it yet (spec.md §4.F "resolve via
// §4.G's lookup_account").
func LookupAccount(ops radix.Ops[Body], root Hash, account [32]byte) (Body, bool, error) {
	path := hexpath.BytesToPath(account[:])
	res, err := Follow(ops, root, path)
	if err != nil {
		return Body{}, false, err
	}
	if res == nil || len(res.Residual) != 0 {
		return Body{}, false, nil
	}
	return res.Node, true, nil
}
