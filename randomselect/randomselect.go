// Package randomselect implements spec.md §4.J: deriving the miner, main
// block signers, and account-topology quorums from committed stake history,
// with no input besides already-finalized main block content.
//
// The derivation is content-deterministic, not unpredictable against an
// adversary who can choose block contents ahead of time: there is no VRF or
// other commit-reveal step here (spec.md §1 excludes consensus-liveness
// properties from this core; a VRF-backed selection can be layered on top of
// RandomAccount's interface without changing this package's shape).
package randomselect

import (
	"fmt"
	"math/big"

	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

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

// walkBackToVersion follows from.Prev until it reaches the ancestor at
// exactly version target, returning that ancestor's body and hash.
func walkBackToVersion(st store.Lookup, from chainopts.MainBlockBody, target uint64) (chainopts.MainBlockBody, chainopts.MainBlockBodyHash, error) {
	cur := from
	curHash := ledgercrypto.HashOf(from)
	for cur.Version > target {
		if cur.Prev == nil {
			return chainopts.MainBlockBody{}, chainopts.MainBlockBodyHash{}, ledgererr.New(ledgererr.CodeNotFound, "randomselect: walked past genesis before reaching target version")
		}
		bs, err := st.LookupBytes(cur.Prev.Bytes())
		if err != nil {
			return chainopts.MainBlockBody{}, chainopts.MainBlockBodyHash{}, err
		}
		var prev chainopts.MainBlockBody
		if err := prev.DecodeCanonical(bs); err != nil {
			return chainopts.MainBlockBody{}, chainopts.MainBlockBodyHash{}, err
		}
		curHash = *cur.Prev
		cur = prev
	}
	if cur.Version != target {
		return chainopts.MainBlockBody{}, chainopts.MainBlockBodyHash{}, ledgererr.Newf(ledgererr.CodeInvariantViolated, "randomselect: no ancestor found at version %d", target)
	}
	return cur, curHash, nil
}

// RandomSeedOfBlock returns hash(body) for the ancestor of main whose
// version is main.version − (main.version mod opts.random_seed_period).
func RandomSeedOfBlock(st store.Lookup, main chainopts.MainBlockBody, opts chainopts.MainOptions) ([32]byte, error) {
	if opts.RandomSeedPeriod == 0 {
		return [32]byte{}, ledgererr.New(ledgererr.CodeMalformed, "randomselect: random_seed_period must be > 0")
	}
	target := main.Version - (main.Version % opts.RandomSeedPeriod)
	body, _, err := walkBackToVersion(st, main, target)
	if err != nil {
		return [32]byte{}, err
	}
	return ledgercrypto.HashOf(body).Bytes(), nil
}

// snapshotVersion rounds v down to a multiple of p, then subtracts p if the
// result is positive, so the stake snapshot used for selection is always at
// least one full period old.
func snapshotVersion(v, p uint64) uint64 {
	rounded := v - (v % p)
	if rounded > 0 {
		rounded -= p
	}
	return rounded
}

func modU128(a, m u128.U128) u128.U128 {
	mbig := new(big.Int).SetBytes(func() []byte { b := m.Bytes(); return b[:] }())
	if mbig.Sign() == 0 {
		return u128.Zero
	}
	abig := new(big.Int).SetBytes(func() []byte { b := a.Bytes(); return b[:] }())
	rbig := new(big.Int).Mod(abig, mbig)
	var out [16]byte
	rbig.FillBytes(out[:])
	return u128.FromBytes(out)
}

// StakeIndexedAccount walks root's quorum subtree, picking the single
// account whose half-open stake interval contains k (spec.md §4.J
// "stake_indexed_account", the fenwick-on-tree walk). Precondition: k <
// root.stats.stake.
func StakeIndexedAccount(st store.Lookup, root quorumtree.Body, k u128.U128) ([32]byte, error) {
	if k.Cmp(root.Stats.Stake) >= 0 {
		return [32]byte{}, ledgererr.New(ledgererr.CodeInvariantViolated, "randomselect: k must be < root.stats.stake")
	}
	node := root
	for {
		if len(node.Path) == 64 {
			return ledgercrypto.PathToHashCode(node.Path)
		}
		found := false
		for i := 0; i < 16; i++ {
			edge := node.Children[i]
			if edge == nil {
				continue
			}
			child, err := fetchBody(st, edge.Child)
			if err != nil {
				return [32]byte{}, err
			}
			if k.Cmp(child.Stats.Stake) < 0 {
				node = child
				found = true
				break
			}
			k = k.Sub(child.Stats.Stake)
		}
		if !found {
			return [32]byte{}, ledgererr.New(ledgererr.CodeInvariantViolated, "randomselect: stake_indexed_account fell through all children without finding k")
		}
	}
}

// RandomAccount derives a single pseudo-random account from a stake
// snapshot rounded-down at least one period behind main, under the given
// seed and rand_id (spec.md §4.J "random_account"). Two calls with the same
// (main, seed, rand_id, period) against the same committed history always
// return the same account. Different rand_ids are hashed into distinct
// preimages before reducing mod total stake, so they give independent draws;
// two draws can still land on the same account.
func RandomAccount(st store.Lookup, main chainopts.MainBlockBody, period uint64, seed [32]byte, randID string) ([32]byte, error) {
	if period == 0 {
		return [32]byte{}, ledgererr.New(ledgererr.CodeMalformed, "randomselect: period must be > 0")
	}
	target := snapshotVersion(main.Version, period)
	snapshot, _, err := walkBackToVersion(st, main, target)
	if err != nil {
		return [32]byte{}, err
	}
	topHash := ledgercrypto.HashFromBytes[quorumtree.Body](snapshot.Tree)
	top, err := fetchBody(st, topHash)
	if err != nil {
		return [32]byte{}, err
	}
	if top.Stats.Stake.Cmp(u128.Zero) <= 0 {
		return [32]byte{}, ledgererr.New(ledgererr.CodeInsufficient, "randomselect: stake snapshot has zero total stake")
	}

	preimage := fmt.Sprintf("random_account %x %d %s", seed, main.Version, randID)
	digest := ledgercrypto.HashBytes([]byte(preimage))
	var arr [16]byte
	copy(arr[:], digest[:16])
	r := u128.FromBytes(arr)
	k := modU128(r, top.Stats.Stake)
	return StakeIndexedAccount(st, top, k)
}

// MinerAndSigners is the outcome of miner_and_signers_by_prev_block.
type MinerAndSigners struct {
	Miner   [32]byte
	Signers [][32]byte
}

// MinerAndSignersByPrevBlock derives the miner and the main_block_signers
// signer accounts for the block that will follow prevMain (spec.md §4.J
// "miner_and_signers_by_prev_block").
func MinerAndSignersByPrevBlock(st store.Lookup, prevMain chainopts.MainBlockBody, opts chainopts.MainOptions) (MinerAndSigners, error) {
	seed, err := RandomSeedOfBlock(st, prevMain, opts)
	if err != nil {
		return MinerAndSigners{}, err
	}
	miner, err := RandomAccount(st, prevMain, opts.RandomSeedPeriod, seed, "miner")
	if err != nil {
		return MinerAndSigners{}, err
	}
	signers := make([][32]byte, 0, opts.MainBlockSigners)
	for i := uint32(0); i < opts.MainBlockSigners; i++ {
		s, err := RandomAccount(st, prevMain, opts.RandomSeedPeriod, seed, fmt.Sprintf("signer %d", i))
		if err != nil {
			return MinerAndSigners{}, err
		}
		signers = append(signers, s)
	}
	return MinerAndSigners{Miner: miner, Signers: signers}, nil
}

// Quorum is one (threshold, members) pair produced for a quorum-tree path.
type Quorum struct {
	Threshold uint32
	Members   [][32]byte
}

// QuorumsByPrevBlock derives every configured quorum (per
// opts.QuorumSizesThresholds) for path, following prevMain (spec.md §4.J
// "quorums_by_prev_block"). It uses opts.QuorumPeriod, not
// RandomSeedPeriod, to pick the stake snapshot, since quorum membership is
// meant to turn over on a slower cadence than the miner/signer rotation.
func QuorumsByPrevBlock(st store.Lookup, prevMain chainopts.MainBlockBody, opts chainopts.MainOptions, path hexpath.Path) ([]Quorum, error) {
	seed, err := RandomSeedOfBlock(st, prevMain, opts)
	if err != nil {
		return nil, err
	}
	quorums := make([]Quorum, 0, len(opts.QuorumSizesThresholds))
	for i, qst := range opts.QuorumSizesThresholds {
		members := make([][32]byte, 0, qst.Size)
		for j := uint32(0); j < qst.Size; j++ {
			id := fmt.Sprintf("quorum %s %d %d", path.String(), i, j)
			m, err := RandomAccount(st, prevMain, opts.QuorumPeriod, seed, id)
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		quorums = append(quorums, Quorum{Threshold: qst.Threshold, Members: members})
	}
	return quorums, nil
}
