package state

import (
	"testing"
	"time"

	"github.com/calehh/authchain/tx"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T, nonce uint64, chainID string) (*tx.AuthTx, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	btx := &tx.AuthTx{
		Version: tx.AuthTxVersion1,
		Type:    tx.AuthTxTypeTransfer,
		Nonce:   nonce,
		Tx:      &tx.TransferTx{To: common.HexToAddress("0x01"), Amount: 1},
	}
	require.NoError(t, btx.Sign(key, chainID))
	return btx, btx.Sender
}

func TestVerify(t *testing.T) {
	db, err := NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)
	kv := db.NewState().KVStore()

	btx, sender := signedTx(t, 0, "c1")
	assert.NoError(t, Verify(kv, "c1", btx, false))
	assert.ErrorIs(t, Verify(kv, "c2", btx, false), ErrTxSigInvalid)
	assert.NoError(t, VerifySignature("c1", btx))

	require.NoError(t, IncrementNonce(kv, sender, 3))
	assert.ErrorIs(t, Verify(kv, "c1", btx, false), ErrTxNonceInvalid)

	acnt, err := GetAccount(kv, sender)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acnt.Nonce)
	assert.Equal(t, uint64(3), acnt.LastTx)

	future, _ := signedTx(t, 5, "c1")
	assert.ErrorIs(t, Verify(kv, "c1", future, false), ErrTxNonceInvalid)
	assert.NoError(t, Verify(kv, "c1", future, true))

	btx.Sig[0] ^= 0xff
	assert.Error(t, VerifySignature("c1", btx))
}

func TestCommitAndQuery(t *testing.T) {
	db, err := NewMemStateDB(cmtlog.NewNopLogger())
	require.NoError(t, err)

	kv, _, err := db.QueryStore()
	require.NoError(t, err)
	v, err := kv.Get([]byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)

	st := db.NewState()
	st.SetChainID("c1")
	require.NoError(t, st.SetBlock(0, time.Unix(100, 0)))
	require.NoError(t, st.KVStore().Set([]byte("k"), []byte("v1")))
	h1, err := st.Update()
	require.NoError(t, err)
	saved, err := db.SetState(st)
	require.NoError(t, err)
	assert.Equal(t, h1, saved)

	next := db.NewState()
	assert.Equal(t, uint64(1), next.Header().Height)
	assert.ErrorIs(t, next.SetBlock(5, time.Unix(110, 0)), ErrStateHeightUnmatched)
	require.NoError(t, next.SetBlock(1, time.Unix(110, 0)))
	require.NoError(t, next.KVStore().Set([]byte("k"), []byte("v2")))
	h2, err := next.Update()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	// uncommitted writes stay invisible to queries
	kv, height, err := db.QueryStore()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)
	v, err = kv.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	_, err = db.SetState(next)
	require.NoError(t, err)
	kv, height, err = db.QueryStore()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)
	v, err = kv.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
	assert.Equal(t, "c1", db.Header().ChainID)
}
