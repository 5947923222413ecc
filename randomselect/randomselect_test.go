package randomselect

import (
	"testing"

	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/radix"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

func testOptions() chainopts.MainOptions {
	return chainopts.MainOptions{
		GasCost:                     1,
		GasLimit:                    1000,
		TimestampPeriodMs:           1000,
		MainBlockSigners:            3,
		MainBlockSignaturesRequired: 2,
		RandomSeedPeriod:            4,
		QuorumPeriod:                8,
		MaxQuorumDepth:              64,
		QuorumSizesThresholds: []chainopts.QuorumSizeThreshold{
			{Size: 3, Threshold: 2},
		},
	}
}

// putChain commits a chain of n+1 main block bodies (versions 0..n), each
// referencing the same quorum tree top, and returns them version-indexed.
func putChain(t *testing.T, st store.Store, top quorumtree.Hash, n int, optsHash chainopts.OptionsHash) ([]chainopts.MainBlockBody, []chainopts.MainBlockBodyHash) {
	t.Helper()
	bodies := make([]chainopts.MainBlockBody, n+1)
	hashes := make([]chainopts.MainBlockBodyHash, n+1)

	var prev *chainopts.MainBlockBodyHash
	for v := 0; v <= n; v++ {
		b := chainopts.MainBlockBody{
			Prev:        prev,
			Version:     uint64(v),
			TimestampMs: uint64(1000 * (v + 1)),
			Tree:        top.Bytes(),
			Options:     optsHash,
		}
		h, err := store.Put[chainopts.MainBlockBody](st, b)
		if err != nil {
			t.Fatalf("put main block body v%d: %v", v, err)
		}
		bodies[v] = b
		hashes[v] = h
		prevCopy := h
		prev = &prevCopy
	}
	return bodies, hashes
}

// twoLeafTree builds a quorum tree with two leaves at distinct paths and
// the given stakes, returning the top hash and each leaf's account id.
func twoLeafTree(t *testing.T, st store.Store, stakeA, stakeB uint64) (quorumtree.Hash, [32]byte, [32]byte) {
	t.Helper()
	qops := quorumtree.Ops(st)

	var acctA, acctB [32]byte
	acctA[0] = 0x10
	acctB[0] = 0x20
	pathA := hexpath.BytesToPath(acctA[:])
	pathB := hexpath.BytesToPath(acctB[:])

	leafA, err := qops.Put(quorumtree.Body{Path: hexpath.Clone(pathA), Stats: quorumtree.Stats{Stake: u128.FromUint64(stakeA)}})
	if err != nil {
		t.Fatalf("put leaf A: %v", err)
	}
	leafB, err := qops.Put(quorumtree.Body{Path: hexpath.Clone(pathB), Stats: quorumtree.Stats{Stake: u128.FromUint64(stakeB)}})
	if err != nil {
		t.Fatalf("put leaf B: %v", err)
	}

	top, err := qops.Put(quorumtree.Body{})
	if err != nil {
		t.Fatalf("put empty top: %v", err)
	}
	top, err = radix.Insert(qops, top, pathA, func(*quorumtree.Body) (quorumtree.Body, error) {
		b, err := qops.Get(leafA)
		return b, err
	}, nil)
	if err != nil {
		t.Fatalf("insert leaf A: %v", err)
	}
	top, err = radix.Insert(qops, top, pathB, func(*quorumtree.Body) (quorumtree.Body, error) {
		b, err := qops.Get(leafB)
		return b, err
	}, nil)
	if err != nil {
		t.Fatalf("insert leaf B: %v", err)
	}
	return top, acctA, acctB
}

func TestRandomSeedOfBlockWalksBackToPeriodBoundary(t *testing.T) {
	st := store.NewMemStore()
	opts := testOptions()
	optsHash, err := store.Put[chainopts.MainOptions](st, opts)
	if err != nil {
		t.Fatalf("put opts: %v", err)
	}
	top, _, _ := twoLeafTree(t, st, 10, 20)
	bodies, _ := putChain(t, st, top, 6, optsHash)

	seed, err := RandomSeedOfBlock(st, bodies[5], opts)
	if err != nil {
		t.Fatalf("RandomSeedOfBlock: %v", err)
	}
	want := ledgercrypto.HashOf(bodies[4]).Bytes()
	if seed != want {
		t.Fatalf("seed = %x, want hash of version 4 (%x)", seed, want)
	}
}

func TestSnapshotVersionAtLeastOnePeriodOld(t *testing.T) {
	cases := []struct{ v, p, want uint64 }{
		{v: 10, p: 4, want: 4},
		{v: 8, p: 4, want: 4},
		{v: 3, p: 4, want: 0},
		{v: 0, p: 4, want: 0},
	}
	for _, c := range cases {
		got := snapshotVersion(c.v, c.p)
		if got != c.want {
			t.Errorf("snapshotVersion(%d, %d) = %d, want %d", c.v, c.p, got, c.want)
		}
	}
}

func TestStakeIndexedAccountSelectsByInterval(t *testing.T) {
	st := store.NewMemStore()
	top, acctA, acctB := twoLeafTree(t, st, 10, 20)
	qops := quorumtree.Ops(st)
	root, err := qops.Get(top)
	if err != nil {
		t.Fatalf("fetch top: %v", err)
	}

	got, err := StakeIndexedAccount(st, root, u128.FromUint64(5))
	if err != nil {
		t.Fatalf("StakeIndexedAccount(5): %v", err)
	}
	if got != acctA {
		t.Fatalf("StakeIndexedAccount(5) = %x, want acctA (%x)", got, acctA)
	}

	got, err = StakeIndexedAccount(st, root, u128.FromUint64(15))
	if err != nil {
		t.Fatalf("StakeIndexedAccount(15): %v", err)
	}
	if got != acctB {
		t.Fatalf("StakeIndexedAccount(15) = %x, want acctB (%x)", got, acctB)
	}

	if _, err := StakeIndexedAccount(st, root, u128.FromUint64(30)); err == nil {
		t.Fatalf("expected error for k >= total stake")
	}
}

func TestRandomAccountDeterministic(t *testing.T) {
	st := store.NewMemStore()
	opts := testOptions()
	optsHash, err := store.Put[chainopts.MainOptions](st, opts)
	if err != nil {
		t.Fatalf("put opts: %v", err)
	}
	top, acctA, acctB := twoLeafTree(t, st, 10, 20)
	bodies, _ := putChain(t, st, top, 8, optsHash)

	seed, err := RandomSeedOfBlock(st, bodies[8], opts)
	if err != nil {
		t.Fatalf("RandomSeedOfBlock: %v", err)
	}

	a1, err := RandomAccount(st, bodies[8], opts.RandomSeedPeriod, seed, "miner")
	if err != nil {
		t.Fatalf("RandomAccount: %v", err)
	}
	a2, err := RandomAccount(st, bodies[8], opts.RandomSeedPeriod, seed, "miner")
	if err != nil {
		t.Fatalf("RandomAccount (again): %v", err)
	}
	if a1 != a2 {
		t.Fatalf("RandomAccount is not deterministic: %x != %x", a1, a2)
	}
	if a1 != acctA && a1 != acctB {
		t.Fatalf("RandomAccount returned an account outside the snapshot tree: %x", a1)
	}
}

func TestMinerAndSignersByPrevBlockDistinctIDs(t *testing.T) {
	st := store.NewMemStore()
	opts := testOptions()
	optsHash, err := store.Put[chainopts.MainOptions](st, opts)
	if err != nil {
		t.Fatalf("put opts: %v", err)
	}
	top, _, _ := twoLeafTree(t, st, 10, 20)
	bodies, _ := putChain(t, st, top, 8, optsHash)

	mas, err := MinerAndSignersByPrevBlock(st, bodies[8], opts)
	if err != nil {
		t.Fatalf("MinerAndSignersByPrevBlock: %v", err)
	}
	if uint32(len(mas.Signers)) != opts.MainBlockSigners {
		t.Fatalf("len(Signers) = %d, want %d", len(mas.Signers), opts.MainBlockSigners)
	}
}

func TestQuorumsByPrevBlockShapePerOptions(t *testing.T) {
	st := store.NewMemStore()
	opts := testOptions()
	optsHash, err := store.Put[chainopts.MainOptions](st, opts)
	if err != nil {
		t.Fatalf("put opts: %v", err)
	}
	top, _, _ := twoLeafTree(t, st, 10, 20)
	bodies, _ := putChain(t, st, top, 8, optsHash)

	quorums, err := QuorumsByPrevBlock(st, bodies[8], opts, hexpath.Path{})
	if err != nil {
		t.Fatalf("QuorumsByPrevBlock: %v", err)
	}
	if len(quorums) != len(opts.QuorumSizesThresholds) {
		t.Fatalf("len(quorums) = %d, want %d", len(quorums), len(opts.QuorumSizesThresholds))
	}
	for i, q := range quorums {
		if uint32(len(q.Members)) != opts.QuorumSizesThresholds[i].Size {
			t.Fatalf("quorum %d has %d members, want %d", i, len(q.Members), opts.QuorumSizesThresholds[i].Size)
		}
		if q.Threshold != opts.QuorumSizesThresholds[i].Threshold {
			t.Fatalf("quorum %d threshold = %d, want %d", i, q.Threshold, opts.QuorumSizesThresholds[i].Threshold)
		}
	}
}
