package queries

import (
	"testing"

	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/construction"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
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

// singleAccountGenesis builds a genesis block body funding one account, and
// returns the body plus that account's id and public key.
func singleAccountGenesis(t *testing.T, st store.Store) (chainopts.MainBlockBody, [32]byte, []byte) {
	t.Helper()
	pub, _, err := ledgercrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	inits := []construction.AccountInit{
		{PublicKey: pub, Balance: u128.FromUint64(1000), Stake: u128.FromUint64(50)},
	}
	body, err := construction.GenesisBlockBody(st, inits, testOptions(), 1000)
	if err != nil {
		t.Fatalf("GenesisBlockBody: %v", err)
	}
	acct := ledgercrypto.HashBytes(pub)
	return body, acct, []byte(pub)
}

func TestAccountViewReadsTypedFields(t *testing.T) {
	st := store.NewMemStore()
	body, acct, pub := singleAccountGenesis(t, st)

	view, err := AccountView(st, body, acct)
	if err != nil {
		t.Fatalf("AccountView: %v", err)
	}
	if view.Balance.Cmp(u128.FromUint64(1000)) != 0 {
		t.Fatalf("balance = %s, want 1000", view.Balance)
	}
	if view.Stake.Cmp(u128.FromUint64(50)) != 0 {
		t.Fatalf("stake = %s, want 50", view.Stake)
	}
	if !view.HasPublicKey {
		t.Fatalf("expected a public key field")
	}
	if string(view.PublicKey) != string(pub) {
		t.Fatalf("public key mismatch")
	}

	balancePath := hexpath.BytesToPath([]byte("balance")).String()
	if _, ok := view.Fields[balancePath]; !ok {
		t.Fatalf("expected %q present in the full field mapping", balancePath)
	}
}

func TestAccountViewUnknownAccountNotFound(t *testing.T) {
	st := store.NewMemStore()
	body, _, _ := singleAccountGenesis(t, st)

	var other [32]byte
	other[0] = 0xFF
	if _, err := AccountView(st, body, other); err == nil {
		t.Fatalf("expected an error for an unfunded account")
	}
}

func TestProveFieldFindsBalance(t *testing.T) {
	st := store.NewMemStore()
	body, acct, _ := singleAccountGenesis(t, st)

	proof, err := ProveField(st, body, acct, hexpath.BytesToPath([]byte("balance")))
	if err != nil {
		t.Fatalf("ProveField: %v", err)
	}
	if !proof.Found {
		t.Fatalf("expected balance field to be found")
	}
	bal := u128FromFieldBytes(proof.Value)
	if bal.Cmp(u128.FromUint64(1000)) != 0 {
		t.Fatalf("proved balance = %s, want 1000", bal)
	}
	if len(proof.QuorumNodeHashes) == 0 {
		t.Fatalf("expected at least one quorum node hash in the proof")
	}
	if len(proof.DataTreeHashes) == 0 {
		t.Fatalf("expected at least one data tree node hash in the proof")
	}
}

func TestProveFieldMissingFieldNotFound(t *testing.T) {
	st := store.NewMemStore()
	body, acct, _ := singleAccountGenesis(t, st)

	proof, err := ProveField(st, body, acct, hexpath.BytesToPath([]byte("no_such_field")))
	if err != nil {
		t.Fatalf("ProveField: %v", err)
	}
	if proof.Found {
		t.Fatalf("expected field not found")
	}
}

func TestProveFieldUnknownAccountStopsAtQuorumTree(t *testing.T) {
	st := store.NewMemStore()
	body, _, _ := singleAccountGenesis(t, st)

	var other [32]byte
	other[0] = 0xFF
	proof, err := ProveField(st, body, other, hexpath.BytesToPath([]byte("balance")))
	if err != nil {
		t.Fatalf("ProveField: %v", err)
	}
	if proof.Found {
		t.Fatalf("expected no field for an unknown account")
	}
	if len(proof.DataTreeHashes) != 0 {
		t.Fatalf("expected no data tree walk for an unknown account")
	}
}

func TestTopStatsReflectsFundedStake(t *testing.T) {
	st := store.NewMemStore()
	body, _, _ := singleAccountGenesis(t, st)

	stats, err := TopStats(st, body)
	if err != nil {
		t.Fatalf("TopStats: %v", err)
	}
	if stats.Stake.Cmp(u128.FromUint64(50)) != 0 {
		t.Fatalf("top stake = %s, want 50", stats.Stake)
	}
}
