package tx

import (
	"testing"

	"github.com/calehh/authchain/oracle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedEnvelopeSurvivesRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	btx := &AuthTx{
		Version: AuthTxVersion1,
		Type:    AuthTxTypeSubmitAttestation,
		Nonce:   4,
		Tx: &SubmitAttestationTx{
			Attestation: oracle.Attestation{RequestID: common.HexToHash("0x01"), Verdict: true, Deadline: 99},
			Signature:   make([]byte, crypto.SignatureLength),
		},
	}
	require.NoError(t, btx.Sign(key, "authchain-test"))

	dat, err := MarshalAuthTx(btx)
	require.NoError(t, err)
	decoded, err := UnmarshalAuthTx(dat)
	require.NoError(t, err)

	payload, ok := decoded.Tx.(*SubmitAttestationTx)
	require.True(t, ok)
	assert.Equal(t, uint64(99), payload.Attestation.Deadline)
	assert.Equal(t, btx.Sender, decoded.Sender)
	require.NoError(t, decoded.ValidateBasic())

	want, err := btx.SigData([]byte("authchain-test"))
	require.NoError(t, err)
	got, err := decoded.SigData([]byte("authchain-test"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	pub, err := crypto.SigToPub(crypto.Keccak256(got), decoded.Sig)
	require.NoError(t, err)
	assert.Equal(t, btx.Sender, crypto.PubkeyToAddress(*pub))
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalAuthTx([]byte(`{"type":200}`))
	assert.ErrorIs(t, err, ErrUnsupportedTxType)
	_, err = UnmarshalAuthTx([]byte(`not json`))
	assert.ErrorIs(t, err, ErrUnsupportedTxType)
}

func TestValidateBasic(t *testing.T) {
	btx := &AuthTx{Type: AuthTxTypeTransfer, Sender: common.HexToAddress("0x01"), Tx: &TransferTx{To: common.HexToAddress("0x02")}}
	assert.ErrorIs(t, btx.ValidateBasic(), ErrZeroAmount)

	btx.Tx = &TransferTx{To: common.HexToAddress("0x02"), Amount: 1}
	assert.NoError(t, btx.ValidateBasic())

	btx.Sender = common.Address{}
	assert.ErrorIs(t, btx.ValidateBasic(), ErrZeroAddress)

	btx = &AuthTx{Sender: common.HexToAddress("0x01"), Tx: &SubmitAttestationTx{Attestation: oracle.Attestation{RequestID: common.HexToHash("0x01")}}}
	assert.ErrorIs(t, btx.ValidateBasic(), ErrInvalidTx)
}

func TestTypeNames(t *testing.T) {
	for _, name := range TxTypeNames() {
		tp := ParseAuthTxType(name)
		require.NotEqual(t, AuthTxTypeUnknown, tp, name)
		assert.Equal(t, name, tp.String())
		_, err := NewPayload(tp)
		assert.NoError(t, err, name)
	}
	assert.Equal(t, AuthTxTypeUnknown, ParseAuthTxType("nope"))
}
