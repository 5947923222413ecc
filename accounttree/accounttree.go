// Package accounttree instantiates radix as the per-account field tree
// (spec.md §4.E): leaves hold an optional typed field, replace_children is
// the identity over children plus field, and from_single_child yields an
// empty-field parent around one edge.
package accounttree

import (
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/store"
)

// Node is the account data tree's node schema: an optional leaf field plus
// the standard 16-slot children array. Well-formed iff children.count ≤ 1
// implies field is present (spec.md §3, "Data node").
type Node struct {
	Field    []byte
	HasField bool
	Children [16]*radix.Edge[Node]
}

// EncodeCanonical renders n deterministically: a presence tag plus field
// bytes, then one presence tag plus suffix/hash per child slot.
func (n Node) EncodeCanonical(e *ledgercrypto.Encoder) {
	e.WriteBool(n.HasField)
	if n.HasField {
		e.WriteBytes(n.Field)
	}
	for _, c := range n.Children {
		if c == nil {
			e.WriteBool(false)
			continue
		}
		e.WriteBool(true)
		e.WritePath(c.Suffix)
		h := c.Child.Bytes()
		e.WriteFixed(h[:])
	}
}

// Hash is the typed content hash of an account data tree node.
type Hash = ledgercrypto.Hash[Node]

// Ops builds the radix.Ops capability set for the account data tree backed
// by st. Get/Put round-trip through st's canonical encoding; ReplaceChildren
// is the identity over the field plus the new children array;
// FromSingleChild builds a fieldless parent around one edge.
func Ops(st store.Store) radix.Ops[Node] {
	return radix.Ops[Node]{
		Get: func(h Hash) (Node, error) {
			bs, err := st.LookupBytes(h.Bytes())
			if err != nil {
				return Node{}, err
			}
			return Decode(bs)
		},
		Put: func(n Node) (Hash, error) {
			e := ledgercrypto.NewEncoder()
			n.EncodeCanonical(e)
			code, err := st.PutBytes(e.Bytes())
			if err != nil {
				return Hash{}, err
			}
			return ledgercrypto.HashFromBytes[Node](code), nil
		},
		Children: func(n Node) [16]*radix.Edge[Node] { return n.Children },
		ReplaceChildren: func(n Node, kids [16]*radix.Edge[Node]) (Node, error) {
			return Node{Field: n.Field, HasField: n.HasField, Children: kids}, nil
		},
		FromSingleChild: func(edge hexpath.Path, child Hash) (Node, error) {
			if len(edge) == 0 {
				return Node{}, ledgererr.New(ledgererr.CodeInvariantViolated, "accounttree: empty suffix in from_single_child")
			}
			var kids [16]*radix.Edge[Node]
			kids[edge[0]] = &radix.Edge[Node]{Suffix: hexpath.Clone(edge[1:]), Child: child}
			return Node{Children: kids}, nil
		},
	}
}

// EmptyNode is the canonical empty node: no field, no children.
func EmptyNode() Node {
	return Node{}
}

// Follow descends root along path, returning the terminal node and residual
// path (spec.md §4.D "follow").
func Follow(ops radix.Ops[Node], root Hash, path hexpath.Path) (*radix.FollowResult[Node], error) {
	return radix.Follow(ops, root, path)
}

// Insert writes the field computed by f at path, returning the new root
// hash. newNodes, if non-nil, is incremented for every node newly stored
// (used to derive a quorum leaf's stats.new_nodes at genesis/initialize,
// spec.md §4.H).
func Insert(ops radix.Ops[Node], root Hash, path hexpath.Path, f func(old []byte, hasOld bool) ([]byte, error), newNodes *int) (Hash, error) {
	transform := func(old *Node) (Node, error) {
		var oldField []byte
		var hasOld bool
		var children [16]*radix.Edge[Node]
		if old != nil {
			oldField, hasOld, children = old.Field, old.HasField, old.Children
		}
		newField, err := f(oldField, hasOld)
		if err != nil {
			return Node{}, err
		}
		return Node{Field: newField, HasField: true, Children: children}, nil
	}
	return radix.Insert(ops, root, path, transform, newNodes)
}

// GetFieldBytes returns the bytes stored at path, or ok=false if no leaf
// with a field exists exactly at path.
func GetFieldBytes(ops radix.Ops[Node], root Hash, path hexpath.Path) ([]byte, bool, error) {
	res, err := Follow(ops, root, path)
	if err != nil {
		return nil, false, err
	}
	if res == nil || len(res.Residual) != 0 || !res.Node.HasField {
		return nil, false, nil
	}
	return res.Node.Field, true, nil
}

// Decode parses the canonical encoding produced by Node.EncodeCanonical.
func Decode(bs []byte) (Node, error) {
	var n Node
	if err := n.DecodeCanonical(bs); err != nil {
		return Node{}, err
	}
	return n, nil
}

// DecodeCanonical implements store.Decoder.
func (n *Node) DecodeCanonical(bs []byte) error {
	d := ledgercrypto.NewDecoder(bs)
	hasField, err := d.ReadBool()
	if err != nil {
		return ledgererr.Wrap(ledgererr.CodeDecode, "accounttree: field presence", err)
	}
	n.HasField = hasField
	if hasField {
		field, err := d.ReadBytes()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "accounttree: field bytes", err)
		}
		n.Field = field
	}
	for i := 0; i < 16; i++ {
		present, err := d.ReadBool()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "accounttree: edge presence", err)
		}
		if !present {
			continue
		}
		suffix, err := d.ReadPath()
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "accounttree: edge suffix", err)
		}
		child, err := ledgercrypto.ReadHash[Node](d)
		if err != nil {
			return ledgererr.Wrap(ledgererr.CodeDecode, "accounttree: edge child hash", err)
		}
		n.Children[i] = &radix.Edge[Node]{Suffix: suffix, Child: child}
	}
	return nil
}
