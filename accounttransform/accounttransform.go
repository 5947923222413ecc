// Package accounttransform implements the account transform of spec.md
// §4.F: a staging context over one account's fields, and the send/receive
// action interpreter that mutates it.
package accounttransform

import (
	"bytes"
	"sort"

	"mercatoria.dev/core/accounttree"
	"mercatoria.dev/core/chainopts"
	"mercatoria.dev/core/hexpath"
	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
	"mercatoria.dev/core/quorumtree"
	"mercatoria.dev/core/store"
	"mercatoria.dev/core/u128"
)

var (
	pathBalance    = hexpath.BytesToPath([]byte("balance"))
	pathStake      = hexpath.BytesToPath([]byte("stake"))
	pathPublicKey  = hexpath.BytesToPath([]byte("public_key"))
	prefixSend     = hexpath.BytesToPath([]byte("send"))
	prefixReceived = hexpath.BytesToPath([]byte("received"))
)

func sendFieldPath(sendHash [32]byte) hexpath.Path {
	return hexpath.Concat(prefixSend[:len(prefixSend)-1], prefixSend[len(prefixSend)-1], hexpath.BytesToPath(sendHash[:]))
}

func receivedFieldPath(sendHash [32]byte) hexpath.Path {
	return hexpath.Concat(prefixReceived[:len(prefixReceived)-1], prefixReceived[len(prefixReceived)-1], hexpath.BytesToPath(sendHash[:]))
}

// Transform is the staging context of spec.md §4.F: a snapshot of the base
// chain view plus an overlay of field writes accumulated so far. Writes
// never touch the base store; a failed RunAction call simply discards its
// Transform.
type Transform struct {
	store          store.Store
	lastMain       chainopts.MainBlockBodyHash
	quorumRoot     quorumtree.Hash
	thisAccount    [32]byte
	isInitializing bool
	dataTreeRoot   accounttree.Hash
	overlay        map[string][]byte
}

// New opens a transform over thisAccount as observed at lastMain/quorumRoot.
// IsInitializing is true iff the account has no prior leaf in the quorum
// tree.
func New(st store.Store, lastMain chainopts.MainBlockBodyHash, quorumRoot quorumtree.Hash, thisAccount [32]byte) (*Transform, error) {
	qops := quorumtree.Ops(st)
	leaf, ok, err := quorumtree.LookupAccount(qops, quorumRoot, thisAccount)
	if err != nil {
		return nil, err
	}
	t := &Transform{
		store:          st,
		lastMain:       lastMain,
		quorumRoot:     quorumRoot,
		thisAccount:    thisAccount,
		isInitializing: !ok,
		overlay:        make(map[string][]byte),
	}
	if ok && leaf.DataTree != nil {
		t.dataTreeRoot = *leaf.DataTree
	} else {
		// A fresh account's data tree starts from the canonical empty node,
		// put eagerly so Finish can always Insert against an existing root
		// regardless of whether this account ends up writing anything.
		root, err := store.Put[accounttree.Node](st, accounttree.EmptyNode())
		if err != nil {
			return nil, err
		}
		t.dataTreeRoot = root
	}
	return t, nil
}

// IsInitializing reports whether this account had no prior leaf.
func (t *Transform) IsInitializing() bool { return t.isInitializing }

// ThisAccount returns the 32-byte account id this transform is staging
// writes for.
func (t *Transform) ThisAccount() [32]byte { return t.thisAccount }

// GetDataFieldBytes reads a field, consulting the overlay first (spec.md
// §4.F "get_data_field_bytes").
func (t *Transform) GetDataFieldBytes(acct [32]byte, path hexpath.Path) ([]byte, bool, error) {
	if acct == t.thisAccount {
		if v, ok := t.overlay[path.String()]; ok {
			return v, true, nil
		}
	}
	qops := quorumtree.Ops(t.store)
	leaf, ok, err := quorumtree.LookupAccount(qops, t.quorumRoot, acct)
	if err != nil {
		return nil, false, err
	}
	if !ok || leaf.DataTree == nil {
		return nil, false, nil
	}
	aops := accounttree.Ops(t.store)
	return accounttree.GetFieldBytes(aops, *leaf.DataTree, path)
}

func (t *Transform) setOverlay(path hexpath.Path, v []byte) {
	t.overlay[path.String()] = v
}

// --- typed field helpers (spec.md §6 "Fields on-chain") ---

// ErrFieldNotFound is returned by typed getters when the underlying bytes are
// absent.
var ErrFieldNotFound = ledgererr.New(ledgererr.CodeDecode, "accounttransform: field not found")

// BalanceField reads/writes the "balance" u128 field.
func (t *Transform) BalanceField() (u128.U128, error) {
	bs, ok, err := t.GetDataFieldBytes(t.thisAccount, pathBalance)
	if err != nil {
		return u128.Zero, err
	}
	if !ok {
		if t.isInitializing {
			return u128.Zero, nil
		}
		return u128.Zero, ErrFieldNotFound
	}
	var arr [16]byte
	copy(arr[:], bs)
	return u128.FromBytes(arr), nil
}

func (t *Transform) setBalance(v u128.U128) {
	b := v.Bytes()
	t.setOverlay(pathBalance, b[:])
}

// StakeField reads/writes the "stake" field — at the corrected path
// distinct from "balance" (spec.md §9 open question 1: the observed source
// collided the two paths; this implementation ships the fix).
func (t *Transform) StakeField() (u128.U128, error) {
	bs, ok, err := t.GetDataFieldBytes(t.thisAccount, pathStake)
	if err != nil {
		return u128.Zero, err
	}
	if !ok {
		if t.isInitializing {
			return u128.Zero, nil
		}
		return u128.Zero, ErrFieldNotFound
	}
	var arr [16]byte
	copy(arr[:], bs)
	return u128.FromBytes(arr), nil
}

func (t *Transform) setStake(v u128.U128) {
	b := v.Bytes()
	t.setOverlay(pathStake, b[:])
}

// PublicKeyField reads the raw public key bytes.
func (t *Transform) PublicKeyField() ([]byte, bool, error) {
	return t.GetDataFieldBytes(t.thisAccount, pathPublicKey)
}

func (t *Transform) setPublicKey(pk []byte) {
	t.setOverlay(pathPublicKey, pk)
}

// SendField reads a sender-side SendInfo by its hash.
func (t *Transform) SendField(sendHash [32]byte) (chainopts.SendInfo, bool, error) {
	bs, ok, err := t.GetDataFieldBytes(t.thisAccount, sendFieldPath(sendHash))
	if err != nil || !ok {
		return chainopts.SendInfo{}, ok, err
	}
	var si chainopts.SendInfo
	if err := si.DecodeCanonical(bs); err != nil {
		return chainopts.SendInfo{}, false, err
	}
	return si, true, nil
}

func (t *Transform) setSendField(sendHash [32]byte, si chainopts.SendInfo) {
	e := ledgercrypto.NewEncoder()
	si.EncodeCanonical(e)
	t.setOverlay(sendFieldPath(sendHash), e.Bytes())
}

// ReceivedField reads whether a receive for sendHash has already been
// recorded.
func (t *Transform) ReceivedField(sendHash [32]byte) (bool, error) {
	bs, ok, err := t.GetDataFieldBytes(t.thisAccount, receivedFieldPath(sendHash))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return len(bs) == 1 && bs[0] == 1, nil
}

func (t *Transform) setReceivedField(sendHash [32]byte) {
	t.setOverlay(receivedFieldPath(sendHash), []byte{1})
}

func (t *Transform) payFee(fee u128.U128) error {
	balance, err := t.BalanceField()
	if err != nil {
		return err
	}
	if balance.Cmp(fee) < 0 {
		return ledgererr.New(ledgererr.CodeInsufficient, "accounttransform: balance below fee")
	}
	t.setBalance(balance.Sub(fee))
	return nil
}

// RunAction interprets action against t, mutating only the overlay
// (spec.md §4.F "run_action"). A failure can leave partial writes in the
// overlay: "send" pays its fee before checking the send amount, and an
// initializing "receive" writes its starting fields before checking the
// sender's record. A Transform whose RunAction failed is discarded, not
// reused.
func RunAction(t *Transform, action chainopts.Action) error {
	if !action.LastMain.Equal(t.lastMain) {
		return ledgererr.New(ledgererr.CodeStale, "accounttransform: action.last_main does not match transform context")
	}
	switch string(action.Command) {
	case "send":
		return runSend(t, action)
	case "receive":
		return runReceive(t, action)
	default:
		return ledgererr.Newf(ledgererr.CodeUnknownCommand, "accounttransform: unknown command %q", action.Command)
	}
}

func verifySelfExcludingSignature(action chainopts.Action, sigIdx int, account [32]byte) error {
	if sigIdx < 0 || sigIdx >= len(action.Args) {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: missing signature argument")
	}
	sig := ledgercrypto.Signature[chainopts.Action]{}
	// The signature argument carries a canonically-encoded Signature[Action];
	// for simplicity and bit-identical framing with construction/verification,
	// it is stored as pubkey||sig with a fixed 32-byte public key prefix.
	raw := action.Args[sigIdx]
	if len(raw) < 32 {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: malformed signature argument")
	}
	sig.PublicKey = raw[:32]
	sig.Sig = raw[32:]

	signer := ledgercrypto.SignerAccount(sig)
	if signer != account {
		return ledgererr.New(ledgererr.CodeInvalidSignature, "accounttransform: signature is not from the required account")
	}
	clone := action.WithZeroedArg(sigIdx)
	if !ledgercrypto.Verify(sig, clone) {
		return ledgererr.New(ledgererr.CodeInvalidSignature, "accounttransform: signature does not verify")
	}
	return nil
}

func runSend(t *Transform, action chainopts.Action) error {
	if t.isInitializing {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: an initializing account must not send")
	}
	if len(action.Args) < 5 {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: send requires 5 args")
	}
	var recipient [32]byte
	copy(recipient[:], action.Args[0])
	var sendAmountArr [16]byte
	copy(sendAmountArr[:], action.Args[1])
	sendAmount := u128.FromBytes(sendAmountArr)
	var initSpec *[32]byte
	if len(action.Args[2]) == 32 {
		var arr [32]byte
		copy(arr[:], action.Args[2])
		initSpec = &arr
	}
	message := action.Args[3]

	if err := verifySelfExcludingSignature(action, 4, t.thisAccount); err != nil {
		return err
	}

	if err := t.payFee(action.Fee); err != nil {
		return err
	}

	balance, err := t.BalanceField()
	if err != nil {
		return err
	}
	if balance.Cmp(sendAmount) < 0 {
		return ledgererr.New(ledgererr.CodeInsufficient, "accounttransform: balance below send_amount")
	}

	info := chainopts.SendInfo{
		LastMain:       t.lastMain,
		Sender:         t.thisAccount,
		Recipient:      recipient,
		SendAmount:     sendAmount,
		InitializeSpec: initSpec,
		Message:        message,
	}
	sendHash := ledgercrypto.HashOf(info).Bytes()
	if _, exists, err := t.SendField(sendHash); err != nil {
		return err
	} else if exists {
		return ledgererr.New(ledgererr.CodeDuplicateSend, "accounttransform: send already recorded")
	}

	t.setBalance(balance.Sub(sendAmount))
	t.setSendField(sendHash, info)
	return nil
}

func runReceive(t *Transform, action chainopts.Action) error {
	if len(action.Args) < 3 {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: receive requires 3 args")
	}
	var sender [32]byte
	copy(sender[:], action.Args[0])
	var sendHash [32]byte
	copy(sendHash[:], action.Args[1])

	if err := verifySelfExcludingSignature(action, 2, t.thisAccount); err != nil {
		return err
	}

	if t.isInitializing {
		sig := ledgercrypto.Signature[chainopts.Action]{}
		raw := action.Args[2]
		sig.PublicKey = raw[:32]
		t.setBalance(u128.Zero)
		t.setStake(u128.Zero)
		t.setPublicKey(sig.PublicKey)
	}

	senderInfo, ok, err := t.senderSendField(sender, sendHash)
	if err != nil {
		return err
	}
	if !ok {
		return ledgererr.New(ledgererr.CodeNotFound, "accounttransform: sender's send record not found")
	}
	if !bytes.Equal(ledgercrypto.HashOf(senderInfo).Bytes()[:], sendHash[:]) {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: sender's send record does not hash to send_hash")
	}
	if senderInfo.Recipient != t.thisAccount {
		return ledgererr.New(ledgererr.CodeMalformed, "accounttransform: send record recipient mismatch")
	}

	received, err := t.ReceivedField(sendHash)
	if err != nil {
		return err
	}
	if received {
		return ledgererr.New(ledgererr.CodeDuplicateReceive, "accounttransform: receive already recorded")
	}

	balance, err := t.BalanceField()
	if err != nil {
		return err
	}
	t.setBalance(balance.Add(senderInfo.SendAmount))
	t.setReceivedField(sendHash)

	return t.payFee(action.Fee)
}

// senderSendField reads a send field from a foreign account (the sender),
// not this transform's own account.
func (t *Transform) senderSendField(sender [32]byte, sendHash [32]byte) (chainopts.SendInfo, bool, error) {
	bs, ok, err := t.GetDataFieldBytes(sender, sendFieldPath(sendHash))
	if err != nil || !ok {
		return chainopts.SendInfo{}, ok, err
	}
	var si chainopts.SendInfo
	if err := si.DecodeCanonical(bs); err != nil {
		return chainopts.SendInfo{}, false, err
	}
	return si, true, nil
}

// Finish flushes the overlay, in sorted path order, into a fresh account data
// tree rooted at the transform's snapshot, returning the new data tree root
// and the number of newly-stored data-tree nodes (spec.md §4.H
// "insert_into_data_tree with a counted fresh counter").
func Finish(t *Transform) (accounttree.Hash, int, error) {
	ops := accounttree.Ops(t.store)
	root := t.dataTreeRoot
	var newNodes int
	keys := make([]string, 0, len(t.overlay))
	for pathStr := range t.overlay {
		keys = append(keys, pathStr)
	}
	sort.Strings(keys)
	for _, pathStr := range keys {
		v := t.overlay[pathStr]
		path, err := decodePathString(pathStr)
		if err != nil {
			return accounttree.Hash{}, 0, err
		}
		value := v
		var putErr error
		root, putErr = accounttree.Insert(ops, root, path, func([]byte, bool) ([]byte, error) { return value, nil }, &newNodes)
		if putErr != nil {
			return accounttree.Hash{}, 0, putErr
		}
	}
	return root, newNodes, nil
}

// RunActionAndBuildLeaf runs action against a fresh transform over account
// (as observed at lastMain/quorumRoot) and packages the result as the
// quorum leaf both block construction and block verification need: the
// resulting data tree root, and a stats record whose gas/new_nodes are
// counted straight off Finish's fresh-node counter (spec.md §4.H
// "add_action_to_account"). Construction calls this once per action to
// produce a leaf; verification calls it again against an overlay store to
// recompute the same leaf and compare hashes, so the two never drift.
func RunActionAndBuildLeaf(st store.Store, lastMain chainopts.MainBlockBodyHash, quorumRoot quorumtree.Hash, account [32]byte, action chainopts.Action, actionHash chainopts.ActionHash) (quorumtree.Body, error) {
	tr, err := New(st, lastMain, quorumRoot, account)
	if err != nil {
		return quorumtree.Body{}, err
	}
	if err := RunAction(tr, action); err != nil {
		return quorumtree.Body{}, err
	}
	dataRoot, newNodes, err := Finish(tr)
	if err != nil {
		return quorumtree.Body{}, err
	}
	stake, err := tr.StakeField()
	if err != nil {
		return quorumtree.Body{}, err
	}

	lm := lastMain
	ah := actionHash
	return quorumtree.Body{
		LastMain:  &lm,
		Path:      hexpath.Clone(hexpath.BytesToPath(account[:])),
		DataTree:  &dataRoot,
		NewAction: &ah,
		Stats: quorumtree.Stats{
			Fee:      action.Fee,
			Gas:      uint64(newNodes),
			NewNodes: uint64(newNodes) + 1,
			Stake:    stake,
		},
	}, nil
}

func decodePathString(s string) (hexpath.Path, error) {
	p := make(hexpath.Path, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		var v hexpath.Nibble
		switch {
		case c >= '0' && c <= '9':
			v = hexpath.Nibble(c - '0')
		case c >= 'A' && c <= 'F':
			v = hexpath.Nibble(c-'A') + 10
		default:
			return nil, ledgererr.Newf(ledgererr.CodeInvariantViolated, "accounttransform: malformed overlay path key %q", s)
		}
		p[i] = v
	}
	return p, nil
}
