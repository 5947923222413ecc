package construction

import (
	"math/big"
	"testing"

	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

func putLeaf(t *testing.T, st store.Store, path hexpath.Path, stake uint64) quorumtree.Hash {
	t.Helper()
	qops := quorumtree.Ops(st)
	h, err := qops.Put(quorumtree.Body{Path: hexpath.Clone(path), Stats: quorumtree.Stats{Stake: u128.FromUint64(stake)}})
	if err != nil {
		t.Fatalf("put leaf: %v", err)
	}
	return h
}

func pathToAccount(p hexpath.Path) ([32]byte, error) {
	return ledgercrypto.PathToHashCode(p)
}

// TestBestSuperNodeFoldsSiblingLeaves covers folding two leaves that share
// every nibble but the last: they must end up grouped under one immediate
// parent, and that parent's stake must be the sum of both.
func TestBestSuperNodeFoldsSiblingLeaves(t *testing.T) {
	st := store.NewMemStore()
	qops := quorumtree.Ops(st)
	opts := testOptions()

	topHash, err := qops.Put(quorumtree.Body{})
	if err != nil {
		t.Fatalf("put empty top: %v", err)
	}

	base := hexpath.Path{}
	for i := 0; i < 63; i++ {
		base = append(base, hexpath.Nibble(3))
	}
	pathA := append(hexpath.Clone(base), hexpath.Nibble(0))
	pathB := append(hexpath.Clone(base), hexpath.Nibble(1))

	leafA := putLeaf(t, st, pathA, 10)
	leafB := putLeaf(t, st, pathB, 20)

	members := []ScoredChild{
		{Hash: leafA, Score: big.NewInt(10)},
		{Hash: leafB, Score: big.NewInt(20)},
	}

	resultHash, err := BestSuperNode(st, nil, topHash, opts, hexpath.Path{}, members)
	if err != nil {
		t.Fatalf("BestSuperNode: %v", err)
	}

	acctA, err := pathToAccount(pathA)
	if err != nil {
		t.Fatalf("path to account A: %v", err)
	}
	acctB, err := pathToAccount(pathB)
	if err != nil {
		t.Fatalf("path to account B: %v", err)
	}

	if _, ok, err := quorumtree.LookupAccount(qops, resultHash, acctA); err != nil || !ok {
		t.Fatalf("expected leaf A reachable from result, ok=%v err=%v", ok, err)
	}
	if _, ok, err := quorumtree.LookupAccount(qops, resultHash, acctB); err != nil || !ok {
		t.Fatalf("expected leaf B reachable from result, ok=%v err=%v", ok, err)
	}

	top, err := qops.Get(resultHash)
	if err != nil {
		t.Fatalf("fetch folded top: %v", err)
	}
	if top.Stats.Stake.Cmp(u128.FromUint64(30)) != 0 {
		t.Fatalf("folded stake = %s, want 30", top.Stats.Stake)
	}
}

// TestBestSuperNodeDeterministic covers that the fold does not depend on
// input order: two calls with the same members shuffled must produce the
// same resulting hash.
func TestBestSuperNodeDeterministic(t *testing.T) {
	st := store.NewMemStore()
	qops := quorumtree.Ops(st)
	opts := testOptions()

	topHash, err := qops.Put(quorumtree.Body{})
	if err != nil {
		t.Fatalf("put empty top: %v", err)
	}

	var pathA, pathB, pathC hexpath.Path
	for i := 0; i < 64; i++ {
		pathA = append(pathA, hexpath.Nibble(1))
		pathB = append(pathB, hexpath.Nibble(2))
		pathC = append(pathC, hexpath.Nibble(3))
	}
	leafA := putLeaf(t, st, pathA, 1)
	leafB := putLeaf(t, st, pathB, 2)
	leafC := putLeaf(t, st, pathC, 3)

	forward := []ScoredChild{
		{Hash: leafA, Score: big.NewInt(1)},
		{Hash: leafB, Score: big.NewInt(2)},
		{Hash: leafC, Score: big.NewInt(3)},
	}
	reversed := []ScoredChild{
		{Hash: leafC, Score: big.NewInt(3)},
		{Hash: leafB, Score: big.NewInt(2)},
		{Hash: leafA, Score: big.NewInt(1)},
	}

	hash1, err := BestSuperNode(st, nil, topHash, opts, hexpath.Path{}, forward)
	if err != nil {
		t.Fatalf("BestSuperNode(forward): %v", err)
	}
	hash2, err := BestSuperNode(st, nil, topHash, opts, hexpath.Path{}, reversed)
	if err != nil {
		t.Fatalf("BestSuperNode(reversed): %v", err)
	}
	if !hash1.Equal(hash2) {
		t.Fatalf("BestSuperNode is order-dependent: %s != %s", hash1, hash2)
	}
}

// TestBestSuperNodeScoreMonotonicity covers that when two candidates occupy
// the exact same path, only the strictly-higher-scoring one survives into
// the fold.
func TestBestSuperNodeScoreMonotonicity(t *testing.T) {
	st := store.NewMemStore()
	qops := quorumtree.Ops(st)
	opts := testOptions()

	topHash, err := qops.Put(quorumtree.Body{})
	if err != nil {
		t.Fatalf("put empty top: %v", err)
	}

	var path hexpath.Path
	for i := 0; i < 64; i++ {
		path = append(path, hexpath.Nibble(7))
	}
	low := putLeaf(t, st, path, 5)
	high := putLeaf(t, st, path, 500)

	members := []ScoredChild{
		{Hash: low, Score: big.NewInt(1)},
		{Hash: high, Score: big.NewInt(100)},
	}

	resultHash, err := BestSuperNode(st, nil, topHash, opts, hexpath.Path{}, members)
	if err != nil {
		t.Fatalf("BestSuperNode: %v", err)
	}
	acct, err := pathToAccount(path)
	if err != nil {
		t.Fatalf("path to account: %v", err)
	}
	leaf, ok, err := quorumtree.LookupAccount(qops, resultHash, acct)
	if err != nil || !ok {
		t.Fatalf("expected leaf reachable from result, ok=%v err=%v", ok, err)
	}
	if leaf.Stats.Stake.Cmp(u128.FromUint64(500)) != 0 {
		t.Fatalf("winning leaf stake = %s, want 500 (the higher-scored candidate)", leaf.Stats.Stake)
	}
}
