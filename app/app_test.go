package app

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/calehh/authchain/state"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainID = "auth-test"

var product = crypto.Keccak256Hash([]byte("sku-1"))

type testChain struct {
	t      *testing.T
	app    *AuthApp
	height int64
	now    time.Time

	admin, brand, verifier *ecdsa.PrivateKey
	nonces                 map[common.Address]uint64
}

func key(t *testing.T, seed string) *ecdsa.PrivateKey {
	k, err := crypto.ToECDSA(crypto.Keccak256([]byte(seed)))
	require.NoError(t, err)
	return k
}

func addr(k *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(k.PublicKey)
}

func newTestChain(t *testing.T) *testChain {
	c := &testChain{
		t:        t,
		now:      time.Unix(1_000, 0),
		admin:    key(t, "admin"),
		brand:    key(t, "brand"),
		verifier: key(t, "verifier"),
		nonces:   make(map[common.Address]uint64),
	}
	db, err := state.NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)
	c.app = NewAuthAppWithDB(db, cmtlog.NewNopLogger())

	as := DefaultAppState(addr(c.admin))
	as.Balances = []GenesisBalance{
		{Address: addr(c.brand), Amount: 1_000},
		{Address: addr(c.verifier), Amount: 2_000},
	}
	as.Products = []GenesisProduct{{ID: product, Brand: addr(c.brand)}}
	dat, err := json.Marshal(as)
	require.NoError(t, err)
	res, err := c.app.InitChain(context.Background(), &abcitypes.RequestInitChain{
		Time:          c.now,
		ChainId:       chainID,
		InitialHeight: 1,
		AppStateBytes: dat,
	})
	require.NoError(t, err)
	require.Len(t, res.AppHash, common.HashLength)
	return c
}

func (c *testChain) signedWithNonce(k *ecdsa.PrivateKey, nonce uint64, tp tx.AuthTxType, payload any) []byte {
	btx := &tx.AuthTx{Type: tp, Nonce: nonce, Tx: payload}
	require.NoError(c.t, btx.Sign(k, chainID))
	dat, err := tx.MarshalAuthTx(btx)
	require.NoError(c.t, err)
	return dat
}

// signed uses and advances the locally tracked nonce of k.
func (c *testChain) signed(k *ecdsa.PrivateKey, tp tx.AuthTxType, payload any) []byte {
	a := addr(k)
	dat := c.signedWithNonce(k, c.nonces[a], tp, payload)
	c.nonces[a]++
	return dat
}

func (c *testChain) block(txs ...[]byte) *abcitypes.ResponseFinalizeBlock {
	c.height++
	c.now = c.now.Add(10 * time.Second)
	res, err := c.app.FinalizeBlock(context.Background(), &abcitypes.RequestFinalizeBlock{
		Height: c.height,
		Time:   c.now,
		Txs:    txs,
	})
	require.NoError(c.t, err)
	_, err = c.app.Commit(context.Background(), &abcitypes.RequestCommit{})
	require.NoError(c.t, err)
	return res
}

func (c *testChain) query(path string, data []byte, v any) *abcitypes.ResponseQuery {
	res, err := c.app.Query(context.Background(), &abcitypes.RequestQuery{Path: path, Data: data})
	require.NoError(c.t, err)
	if res.Code == 0 && v != nil {
		require.NoError(c.t, json.Unmarshal(res.Value, v))
	}
	return res
}

func (c *testChain) requestVerification() common.Hash {
	res := c.block(
		c.signed(c.verifier, tx.AuthTxTypeApprove, &tx.ApproveTx{Spender: types.CustodyAddress, Amount: 2_000}),
		c.signed(c.verifier, tx.AuthTxTypeRegisterVerifier, &tx.RegisterVerifierTx{Stake: 1_000}),
		c.signed(c.brand, tx.AuthTxTypeApprove, &tx.ApproveTx{Spender: types.CustodyAddress, Amount: 1_000}),
		c.signed(c.brand, tx.AuthTxTypeRequestVerification, &tx.RequestVerificationTx{Product: product, Value: 40}),
	)
	for i, r := range res.TxResults {
		require.Equal(c.t, uint32(0), r.Code, "tx %d: %s", i, r.Log)
	}
	return common.BytesToHash(res.TxResults[3].Data)
}

func TestGenesisRequiresAdmin(t *testing.T) {
	_, err := ParseAppState([]byte(`{}`))
	require.ErrorIs(t, err, ErrGenesisNoAdmin)
}

func TestInitChainLoadsAppState(t *testing.T) {
	c := newTestChain(t)

	var acct AccountView
	res := c.query("/accounts", addr(c.admin).Bytes(), &acct)
	require.Equal(t, uint32(0), res.Code, res.Log)
	assert.Contains(t, acct.Capabilities, "admin")

	res = c.query("/accounts/", addr(c.brand).Bytes(), &acct)
	require.Equal(t, uint32(0), res.Code, res.Log)
	assert.Equal(t, uint64(1_000), acct.Balance)

	var p verification.Params
	res = c.query("/params/", []byte("verification"), &p)
	require.Equal(t, uint32(0), res.Code, res.Log)
	assert.Equal(t, verification.DefaultParams(), p)

	res = c.query("/params/", []byte("nope"), nil)
	assert.Equal(t, uint32(1), res.Code)
	res = c.query("/unknown/", nil, nil)
	assert.Equal(t, uint32(404), res.Code)
}

func TestVerificationLifecycleThroughBlocks(t *testing.T) {
	c := newTestChain(t)
	id := c.requestVerification()

	var v verification.Verifier
	res := c.query("/verifiers/", addr(c.verifier).Bytes(), &v)
	require.Equal(t, uint32(0), res.Code, res.Log)
	assert.True(t, v.IsActive)
	assert.Equal(t, uint64(1_000), v.StakedAmount)

	var rv RequestView
	c.query("/requests/", id.Bytes(), &rv)
	assert.Equal(t, verification.StatusRequested, rv.Status)

	blk := c.block(
		c.signed(c.admin, tx.AuthTxTypeAssignVerifier, &tx.AssignVerifierTx{Request: id, Verifier: addr(c.verifier)}),
		c.signed(c.verifier, tx.AuthTxTypeCompleteVerification, &tx.CompleteVerificationTx{Request: id, Result: true, EvidenceURI: "ipfs://report"}),
	)
	for _, r := range blk.TxResults {
		require.Equal(t, uint32(0), r.Code, r.Log)
	}
	assert.NotEmpty(t, blk.TxResults[1].Events)

	c.query("/requests/", id.Bytes(), &rv)
	assert.Equal(t, verification.StatusCompleted, rv.Status)
	assert.True(t, rv.Result)
	assert.Equal(t, crypto.Keccak256Hash([]byte("ipfs://report")), rv.EvidenceHash)
}

func TestFailedTxAdvancesNonceOnly(t *testing.T) {
	c := newTestChain(t)
	brand := addr(c.brand)

	blk := c.block(
		c.signed(c.brand, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 5_000}),
		c.signedWithNonce(c.brand, 7, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 1}),
	)
	require.Len(t, blk.TxResults, 2)
	assert.Equal(t, uint32(1), blk.TxResults[0].Code)
	assert.Empty(t, blk.TxResults[0].Events)
	assert.Equal(t, uint32(1), blk.TxResults[1].Code)
	assert.Contains(t, blk.TxResults[1].Log, state.ErrTxNonceInvalid.Error())

	var acct AccountView
	c.query("/accounts/", brand.Bytes(), &acct)
	assert.Equal(t, uint64(1), acct.Nonce)
	assert.Equal(t, uint64(1_000), acct.Balance)
}

func TestCheckTx(t *testing.T) {
	c := newTestChain(t)
	ctx := context.Background()

	good := c.signedWithNonce(c.brand, 3, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 1})
	res, err := c.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: good})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code, "future nonce is admitted")

	forged := &tx.AuthTx{Type: tx.AuthTxTypeTransfer, Tx: &tx.TransferTx{To: addr(c.admin), Amount: 1}}
	require.NoError(t, forged.Sign(c.brand, chainID))
	forged.Sender = addr(c.verifier)
	dat, err := tx.MarshalAuthTx(forged)
	require.NoError(t, err)
	res, err = c.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: dat})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Code)

	other := &tx.AuthTx{Type: tx.AuthTxTypeTransfer, Tx: &tx.TransferTx{To: addr(c.admin), Amount: 1}}
	require.NoError(t, other.Sign(c.brand, "other-chain"))
	dat, err = tx.MarshalAuthTx(other)
	require.NoError(t, err)
	res, err = c.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: dat})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Code, "signature is bound to the chain id")

	assign := c.signedWithNonce(c.brand, 0, tx.AuthTxTypeSetTimeout, &tx.SetTimeoutTx{Seconds: 5})
	res, err = c.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: assign})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Code, "admin capability is checked in the mempool")

	res, err = c.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: []byte(`{"type":999}`)})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.Code)
}

func TestPrepareProposalDropsFailingTxs(t *testing.T) {
	c := newTestChain(t)
	ok := c.signedWithNonce(c.brand, 0, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 10})
	tooMuch := c.signedWithNonce(c.brand, 1, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 5_000})
	next := c.signedWithNonce(c.brand, 1, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 10})

	res, err := c.app.PrepareProposal(context.Background(), &abcitypes.RequestPrepareProposal{
		Height: 1,
		Time:   c.now.Add(time.Second),
		Txs:    [][]byte{ok, tooMuch, next},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{ok, next}, res.Txs)

	var acct AccountView
	c.query("/accounts/", addr(c.brand).Bytes(), &acct)
	assert.Equal(t, uint64(0), acct.Nonce, "proposal building leaves state untouched")

	pres, err := c.app.ProcessProposal(context.Background(), &abcitypes.RequestProcessProposal{Height: 1, Txs: res.Txs})
	require.NoError(t, err)
	assert.Equal(t, abcitypes.ResponseProcessProposal_ACCEPT, pres.Status)

	pres, err = c.app.ProcessProposal(context.Background(), &abcitypes.RequestProcessProposal{Height: 1, Txs: [][]byte{[]byte("junk")}})
	require.NoError(t, err)
	assert.Equal(t, abcitypes.ResponseProcessProposal_REJECT, pres.Status)
}

func TestAppHashDeterministic(t *testing.T) {
	run := func() []byte {
		c := newTestChain(t)
		c.requestVerification()
		res := c.block(c.signed(c.brand, tx.AuthTxTypeTransfer, &tx.TransferTx{To: addr(c.admin), Amount: 3}))
		return res.AppHash
	}
	first := run()
	assert.Equal(t, first, run())

	info, err := newTestChain(t).app.Info(context.Background(), &abcitypes.RequestInfo{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.LastBlockHeight)
}

func TestDisputeQueryKey(t *testing.T) {
	c := newTestChain(t)
	res := c.query("/disputes/", DisputeQueryKey(1), nil)
	assert.Equal(t, uint32(1), res.Code)
	res = c.query("/disputes/", nil, nil)
	assert.Equal(t, uint32(1), res.Code)
}
