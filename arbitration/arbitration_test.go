package arbitration

import (
	"context"
	"testing"
	"time"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/registry"
	"github.com/calehh/authchain/reputation"
	"github.com/calehh/authchain/revenue"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const start = 1_700_000_000

var (
	admin    = common.HexToAddress("0xa1")
	assigned = common.HexToAddress("0xe0")
	voters   = []common.Address{
		common.HexToAddress("0xe1"),
		common.HexToAddress("0xe2"),
		common.HexToAddress("0xe3"),
		common.HexToAddress("0xe4"),
	}
	retailer = common.HexToAddress("0xc3")
	brand    = common.HexToAddress("0xb4")
	product  = crypto.Keccak256Hash([]byte("sku-1"))
)

type fixture struct {
	kv           store.KVStore
	ledger       *ledger.Keeper
	reputation   *reputation.Keeper
	verification *verification.Keeper
	keeper       *Keeper
	request      common.Hash
}

func newFixture(t *testing.T) *fixture {
	logger := cmtlog.NewNopLogger()
	acc := access.NewKeeper(logger)
	l := ledger.NewKeeper(logger)
	products := registry.NewKeeper(logger)
	rep := reputation.NewKeeper(acc, products, logger)
	ver := verification.NewKeeper(acc, l, products, revenue.NewKeeper(l, logger), rep, oracle.NewKeeper(acc, logger), logger)
	f := &fixture{
		kv:           store.NewMemStore(),
		ledger:       l,
		reputation:   rep,
		verification: ver,
		keeper:       NewKeeper(l, ver, rep, logger),
	}
	ctx := f.at(0)
	require.NoError(t, acc.Grant(ctx, access.CapAdmin, admin))
	require.NoError(t, acc.Grant(ctx, access.CapResultProcessor, types.VerificationAddress))
	require.NoError(t, acc.Grant(ctx, access.CapResultProcessor, types.ArbitrationAddress))
	require.NoError(t, products.RegisterProduct(ctx, product, brand))
	require.NoError(t, rep.RegisterRetailer(ctx.WithSender(admin), retailer, "corner shop"))
	for _, a := range append([]common.Address{assigned, retailer}, voters...) {
		require.NoError(t, l.Credit(ctx, a, 10_000))
		require.NoError(t, l.Approve(ctx, a, types.CustodyAddress, 10_000))
		if a != retailer {
			require.NoError(t, ver.RegisterVerifier(ctx.WithSender(a), 1000))
		}
	}
	id, err := ver.RequestVerification(ctx.WithSender(retailer), product, 10)
	require.NoError(t, err)
	require.NoError(t, ver.AssignVerifier(ctx.WithSender(admin), id, assigned))
	require.NoError(t, ver.CompleteVerification(ctx.WithSender(assigned), id, false, "ipfs://report"))
	f.request = id
	return f
}

func (f *fixture) at(sec int64) *types.Context {
	return types.NewContext(context.Background(), f.kv, types.Header{ChainID: "test", Height: 3, Time: time.Unix(start+sec, 0)}, nil)
}

func (f *fixture) balance(t *testing.T, a common.Address) uint64 {
	b, err := f.ledger.BalanceOf(f.at(0), a)
	require.NoError(t, err)
	return b
}

func (f *fixture) dispute(t *testing.T) uint64 {
	id, err := f.keeper.CreateDispute(f.at(100).WithSender(retailer), product, f.request, "counterfeit label", "ipfs://photos")
	require.NoError(t, err)
	return id
}

func TestCreateDisputeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := f.at(100).WithSender(retailer)
	_, err := f.keeper.CreateDispute(ctx, crypto.Keccak256Hash([]byte("other")), f.request, "", "")
	assert.ErrorIs(t, err, ErrProductMismatch)

	pending, err := f.verification.RequestVerification(ctx, product, 10)
	require.NoError(t, err)
	_, err = f.keeper.CreateDispute(ctx, product, pending, "", "")
	assert.ErrorIs(t, err, ErrNotCompleted)

	before := f.balance(t, retailer)
	id := f.dispute(t)
	assert.Equal(t, uint64(1), id)
	p := DefaultParams()
	assert.Equal(t, before-p.DisputeFee-p.Bond, f.balance(t, retailer))

	_, err = f.keeper.CreateDispute(ctx, product, f.request, "again", "")
	assert.ErrorIs(t, err, ErrDisputeOpen)
}

func TestThirdVoteResolves(t *testing.T) {
	f := newFixture(t)
	id := f.dispute(t)
	p := DefaultParams()
	initiatorBefore := f.balance(t, retailer)

	require.NoError(t, f.keeper.VoteOnDispute(f.at(200).WithSender(voters[0]), id, true))
	d, err := f.keeper.GetDispute(f.at(0), id)
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReview, d.Status)

	require.NoError(t, f.keeper.VoteOnDispute(f.at(201).WithSender(voters[1]), id, true))
	require.NoError(t, f.keeper.VoteOnDispute(f.at(202).WithSender(voters[2]), id, true))

	d, err = f.keeper.GetDispute(f.at(0), id)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, d.Status)
	assert.True(t, d.InFavor)
	assert.Equal(t, uint64(3), d.VotesFor)

	err = f.keeper.VoteOnDispute(f.at(203).WithSender(voters[3]), id, true)
	assert.ErrorIs(t, err, ErrDisputeClosed)
	d, _ = f.keeper.GetDispute(f.at(0), id)
	assert.Equal(t, StatusResolved, d.Status)
	assert.Equal(t, uint64(3), d.VotesFor)

	assert.Equal(t, initiatorBefore+p.Bond, f.balance(t, retailer))
	assert.Equal(t, uint64(10_000-1000+p.VoterReward), f.balance(t, voters[0]))

	// the original failure is overturned without adding a verification
	r, err := f.reputation.GetRetailer(f.at(0), retailer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.TotalVerifications)
	assert.Zero(t, r.FailedVerifications)

	_, open, err := f.keeper.OpenDispute(f.at(0), f.request)
	require.NoError(t, err)
	assert.False(t, open)
}

func TestRejectedForfeitsBond(t *testing.T) {
	f := newFixture(t)
	id := f.dispute(t)
	treasuryBefore := f.balance(t, types.TreasuryAddress)
	p := DefaultParams()
	for _, v := range voters[:3] {
		require.NoError(t, f.keeper.VoteOnDispute(f.at(200).WithSender(v), id, false))
	}
	d, err := f.keeper.GetDispute(f.at(0), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, d.Status)
	assert.False(t, d.InFavor)
	assert.Equal(t, treasuryBefore+p.Bond+p.DisputeFee-3*p.VoterReward, f.balance(t, types.TreasuryAddress))

	r, err := f.reputation.GetRetailer(f.at(0), retailer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.FailedVerifications)
}

func TestVoterGuards(t *testing.T) {
	f := newFixture(t)
	id := f.dispute(t)
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(200).WithSender(retailer), id, true), ErrNotVoter)
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(200).WithSender(assigned), id, true), ErrConflictedVoter)
	require.NoError(t, f.keeper.VoteOnDispute(f.at(200).WithSender(voters[0]), id, true))
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(201).WithSender(voters[0]), id, false), ErrAlreadyVoted)
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(201).WithSender(voters[1]), 99, false), ErrDisputeNotFound)
}

func TestExpiry(t *testing.T) {
	f := newFixture(t)
	id := f.dispute(t)
	p := DefaultParams()
	require.NoError(t, f.keeper.VoteOnDispute(f.at(200).WithSender(voters[0]), id, true))

	deadline := 100 + p.VotingPeriodSec
	assert.ErrorIs(t, f.keeper.ExpireDispute(f.at(deadline-1), id), ErrVotingPeriodRunning)

	d, err := f.keeper.GetDispute(f.at(0), id)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, d.EffectiveStatus(start+deadline))
	assert.Equal(t, StatusUnderReview, d.EffectiveStatus(start+deadline-1))
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(deadline).WithSender(voters[1]), id, true), ErrVotingPeriodOver)

	before := f.balance(t, retailer)
	require.NoError(t, f.keeper.ExpireDispute(f.at(deadline), id))
	assert.Equal(t, before+p.Bond, f.balance(t, retailer))

	d, _ = f.keeper.GetDispute(f.at(0), id)
	assert.Equal(t, StatusExpired, d.Status)
	assert.ErrorIs(t, f.keeper.ExpireDispute(f.at(deadline+1), id), ErrDisputeClosed)
	assert.ErrorIs(t, f.keeper.VoteOnDispute(f.at(deadline+1).WithSender(voters[1]), id, true), ErrDisputeClosed)

	again, err := f.keeper.CreateDispute(f.at(deadline+2).WithSender(retailer), product, f.request, "", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), again)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	p := DefaultParams()
	p.VoterReward = 11
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
	p = DefaultParams()
	p.RequiredVotes = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
}
