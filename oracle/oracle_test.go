package oracle

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const now = 1_700_000_000

var (
	admin   = common.HexToAddress("0xa1")
	relayer = common.HexToAddress("0xf0")
	request = crypto.Keccak256Hash([]byte("req-1"))
	product = crypto.Keccak256Hash([]byte("sku-1"))
)

type fixture struct {
	kv     store.KVStore
	access *access.Keeper
	keeper *Keeper
}

func newFixture(t *testing.T) *fixture {
	logger := cmtlog.NewNopLogger()
	acc := access.NewKeeper(logger)
	f := &fixture{kv: store.NewMemStore(), access: acc, keeper: NewKeeper(acc, logger)}
	require.NoError(t, acc.Grant(f.ctx(), access.CapAdmin, admin))
	return f
}

func (f *fixture) ctx() *types.Context {
	return types.NewContext(context.Background(), f.kv, types.Header{ChainID: "test", Height: 1, Time: time.Unix(now, 0)}, nil)
}

func (f *fixture) source(t *testing.T, weight uint64) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, f.keeper.RegisterSource(f.ctx().WithSender(admin), crypto.PubkeyToAddress(key.PublicKey), SourceSensor, weight))
	return key
}

func attestation(verdict bool, nonce uint64) Attestation {
	return Attestation{
		RequestID:    request,
		ProductID:    product,
		Verdict:      verdict,
		EvidenceURI:  "ipfs://evidence",
		ReadingCode:  7,
		ReadingValue: -12,
		Timestamp:    now - 10,
		Deadline:     now + 60,
		Nonce:        nonce,
	}
}

func (f *fixture) submit(t *testing.T, key *ecdsa.PrivateKey, att Attestation) error {
	sig, err := SignAttestation(key, DefaultParams().ChainID, &att)
	require.NoError(t, err)
	return f.keeper.SubmitAttestation(f.ctx().WithSender(relayer), att, sig)
}

func TestTwoSourcesReachQuorum(t *testing.T) {
	f := newFixture(t)
	a := f.source(t, 100)
	b := f.source(t, 150)

	require.NoError(t, f.submit(t, a, attestation(true, 0)))
	require.NoError(t, f.submit(t, b, attestation(true, 0)))

	agg, err := f.keeper.GetAggregate(f.ctx(), request)
	require.NoError(t, err)
	assert.True(t, agg.QuorumReached)
	assert.True(t, agg.Passed)
	assert.Equal(t, uint64(250), agg.TotalWeight)
	assert.Equal(t, uint64(250), agg.PassWeight)
	assert.Equal(t, uint64(2), agg.Count)
}

func TestPassThreshold(t *testing.T) {
	f := newFixture(t)
	a := f.source(t, 100)
	b := f.source(t, 150)
	require.NoError(t, f.submit(t, a, attestation(false, 0)))
	require.NoError(t, f.submit(t, b, attestation(true, 0)))

	agg, err := f.keeper.GetAggregate(f.ctx(), request)
	require.NoError(t, err)
	// 150*10000 >= 6000*250
	assert.True(t, agg.Passed)

	require.NoError(t, f.keeper.SetParams(f.ctx(), Params{QuorumWeight: 300, PassBpsThreshold: 6001, ChainID: 1}))
	agg, err = f.keeper.GetAggregate(f.ctx(), request)
	require.NoError(t, err)
	assert.False(t, agg.Passed)
	assert.False(t, agg.QuorumReached)
}

func TestNonceAdvancesByOne(t *testing.T) {
	f := newFixture(t)
	key := f.source(t, 100)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	require.NoError(t, f.submit(t, key, attestation(true, 0)))
	n, err := f.keeper.Nonce(f.ctx(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	other := attestation(true, 0)
	other.RequestID = crypto.Keccak256Hash([]byte("req-2"))
	assert.ErrorIs(t, f.submit(t, key, other), ErrBadNonce)
	other.Nonce = 5
	assert.ErrorIs(t, f.submit(t, key, other), ErrBadNonce)

	other.Nonce = 1
	require.NoError(t, f.submit(t, key, other))
	n, _ = f.keeper.Nonce(f.ctx(), addr)
	assert.Equal(t, uint64(2), n)
}

func TestDuplicateSourceRejected(t *testing.T) {
	f := newFixture(t)
	key := f.source(t, 100)
	require.NoError(t, f.submit(t, key, attestation(true, 0)))
	assert.ErrorIs(t, f.submit(t, key, attestation(false, 1)), ErrAlreadyAttested)

	agg, err := f.keeper.GetAggregate(f.ctx(), request)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), agg.TotalWeight)
	assert.Equal(t, uint64(1), agg.Count)
}

func TestRejectsUnknownSignerAndStaleDeadline(t *testing.T) {
	f := newFixture(t)
	stranger, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.ErrorIs(t, f.submit(t, stranger, attestation(true, 0)), ErrSourceNotFound)

	key := f.source(t, 100)
	stale := attestation(true, 0)
	stale.Deadline = now - 1
	assert.ErrorIs(t, f.submit(t, key, stale), ErrDeadlineElapsed)

	att := attestation(true, 0)
	sig, err := SignAttestation(key, DefaultParams().ChainID, &att)
	require.NoError(t, err)
	att.Verdict = false
	err = f.keeper.SubmitAttestation(f.ctx(), att, sig)
	assert.Error(t, err, "tampered payload recovers a different signer")
}

func TestRevokedSourceCannotAttest(t *testing.T) {
	f := newFixture(t)
	key := f.source(t, 100)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, f.keeper.RevokeSource(f.ctx().WithSender(admin), addr))

	s, err := f.keeper.GetSource(f.ctx(), addr)
	require.NoError(t, err)
	assert.False(t, s.Active)
	assert.Zero(t, s.Weight)
	assert.ErrorIs(t, f.submit(t, key, attestation(true, 0)), ErrSourceInactive)

	require.NoError(t, f.keeper.UpdateSource(f.ctx().WithSender(admin), addr, SourceHuman, 40))
	require.NoError(t, f.submit(t, key, attestation(true, 0)))
}

func TestSourceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx().WithSender(admin)
	assert.ErrorIs(t, f.keeper.RegisterSource(ctx, common.Address{}, SourceSensor, 1), ErrZeroAddress)
	assert.ErrorIs(t, f.keeper.RegisterSource(ctx, relayer, SourceSensor, 0), ErrZeroWeight)
	assert.ErrorIs(t, f.keeper.RegisterSource(ctx, relayer, SourceKind(9), 1), ErrUnknownKind)
	assert.ErrorIs(t, f.keeper.RegisterSource(f.ctx().WithSender(relayer), relayer, SourceSensor, 1), access.ErrUnauthorized)
}

func TestTrustedPath(t *testing.T) {
	f := newFixture(t)
	key := f.source(t, 100)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	assert.ErrorIs(t, f.keeper.SubmitAttestationTrusted(f.ctx().WithSender(relayer), attestation(true, 42), addr), access.ErrUnauthorized)

	require.NoError(t, f.access.AdminGrant(f.ctx().WithSender(admin), access.CapTrustedSubmitter, relayer))
	require.NoError(t, f.keeper.SubmitAttestationTrusted(f.ctx().WithSender(relayer), attestation(true, 42), addr))
	assert.ErrorIs(t, f.keeper.SubmitAttestationTrusted(f.ctx().WithSender(relayer), attestation(true, 43), addr), ErrAlreadyAttested)

	n, err := f.keeper.Nonce(f.ctx(), addr)
	require.NoError(t, err)
	assert.Zero(t, n, "delegated path leaves the nonce alone")
}

func TestFinalizeBlocksLateAttestations(t *testing.T) {
	f := newFixture(t)
	a := f.source(t, 100)
	b := f.source(t, 150)

	_, err := f.keeper.Finalize(f.ctx().WithSender(admin), request)
	assert.ErrorIs(t, err, ErrNothingToFinalize)

	require.NoError(t, f.submit(t, a, attestation(true, 0)))
	agg, err := f.keeper.Finalize(f.ctx().WithSender(admin), request)
	require.NoError(t, err)
	assert.True(t, agg.Finalized)
	assert.False(t, agg.QuorumReached)

	assert.ErrorIs(t, f.submit(t, b, attestation(true, 0)), ErrFinalized)
	_, err = f.keeper.Finalize(f.ctx().WithSender(admin), request)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestSignatureRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	att := attestation(true, 3)
	sig, err := SignAttestation(key, 7, &att)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sig[crypto.RecoveryIDOffset], byte(27))

	signer, err := RecoverAttester(7, &att, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	other, err := RecoverAttester(8, &att, sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer, other, "domain binds the chain id")

	_, err = RecoverAttester(7, &att, sig[:10])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
