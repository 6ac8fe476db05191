package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/registry"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = common.HexToAddress("0xa1")
	retailer = common.HexToAddress("0xc3")
	brand    = common.HexToAddress("0xb4")
	product  = crypto.Keccak256Hash([]byte("sku-1"))
)

type fixture struct {
	kv       store.KVStore
	keeper   *Keeper
	products *registry.Keeper
}

func newFixture(t *testing.T) *fixture {
	logger := cmtlog.NewNopLogger()
	acc := access.NewKeeper(logger)
	products := registry.NewKeeper(logger)
	f := &fixture{kv: store.NewMemStore(), keeper: NewKeeper(acc, products, logger), products: products}
	ctx := f.at(0)
	require.NoError(t, acc.Grant(ctx, access.CapAdmin, admin))
	require.NoError(t, acc.Grant(ctx, access.CapResultProcessor, types.VerificationAddress))
	require.NoError(t, acc.Grant(ctx, access.CapResultProcessor, types.ArbitrationAddress))
	require.NoError(t, f.keeper.RegisterRetailer(ctx.WithSender(admin), retailer, "corner shop"))
	return f
}

func (f *fixture) at(sec int64) *types.Context {
	return types.NewContext(context.Background(), f.kv, types.Header{Height: 1, Time: time.Unix(1_000_000+sec, 0)}, nil)
}

func (f *fixture) report(t *testing.T, sec int64, id string, success bool) bool {
	applied, err := f.keeper.ProcessVerificationResult(f.at(sec), types.VerificationAddress, Result{
		Verification: crypto.Keccak256Hash([]byte(id)),
		Product:      product,
		Retailer:     retailer,
		Success:      success,
	})
	require.NoError(t, err)
	return applied
}

func (f *fixture) retailer(t *testing.T) *Retailer {
	r, err := f.keeper.GetRetailer(f.at(0), retailer)
	require.NoError(t, err)
	return r
}

func TestRegisterRetailer(t *testing.T) {
	f := newFixture(t)
	r := f.retailer(t)
	assert.Equal(t, uint64(InitialScore), r.ReputationScore)
	assert.Equal(t, "corner shop", r.Name)
	assert.False(t, r.IsAuthorized)

	ctx := f.at(0).WithSender(admin)
	assert.ErrorIs(t, f.keeper.RegisterRetailer(ctx, retailer, "again"), ErrRetailerExists)
	assert.ErrorIs(t, f.keeper.RegisterRetailer(ctx, common.HexToAddress("0xd5"), ""), ErrEmptyName)
	assert.ErrorIs(t, f.keeper.RegisterRetailer(f.at(0).WithSender(retailer), common.HexToAddress("0xd5"), "x"), access.ErrUnauthorized)
}

func TestBrandAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := f.at(0).WithSender(admin)
	require.NoError(t, f.keeper.AuthorizeRetailerForBrand(ctx, brand, retailer))
	require.NoError(t, f.keeper.AuthorizeRetailerForBrand(ctx, brand, retailer))

	ok, err := f.keeper.IsAuthorizedForBrand(ctx, brand, retailer)
	require.NoError(t, err)
	assert.True(t, ok)
	r := f.retailer(t)
	assert.True(t, r.IsAuthorized)
	assert.Equal(t, uint64(1), r.AuthorizedBrands)

	require.NoError(t, f.keeper.DeauthorizeRetailerForBrand(ctx, brand, retailer))
	ok, _ = f.keeper.IsAuthorizedForBrand(ctx, brand, retailer)
	assert.False(t, ok)
	assert.False(t, f.retailer(t).IsAuthorized)

	assert.ErrorIs(t, f.keeper.AuthorizeRetailerForBrand(ctx, brand, common.HexToAddress("0xee")), ErrRetailerNotRegistered)
}

func TestProcessRequiresCapability(t *testing.T) {
	f := newFixture(t)
	_, err := f.keeper.ProcessVerificationResult(f.at(0), admin, Result{Retailer: retailer, Success: true})
	assert.ErrorIs(t, err, access.ErrUnauthorized)

	_, err = f.keeper.ProcessVerificationResult(f.at(0), types.VerificationAddress, Result{Retailer: common.HexToAddress("0xee")})
	assert.ErrorIs(t, err, ErrRetailerNotRegistered)
}

func TestCooldownSkipsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.report(t, 0, "v1", true))
	before := f.retailer(t)

	assert.False(t, f.report(t, 30, "v2", false))
	assert.Equal(t, before, f.retailer(t))

	assert.True(t, f.report(t, 60, "v3", false))
	r := f.retailer(t)
	assert.Equal(t, uint64(2), r.TotalVerifications)
	assert.Equal(t, uint64(1), r.FailedVerifications)
	assert.Zero(t, r.ConsecutiveSuccesses)
}

func TestDuplicateVerificationIgnored(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.report(t, 0, "v1", true))
	assert.False(t, f.report(t, 120, "v1", true))
	assert.Equal(t, uint64(1), f.retailer(t).TotalVerifications)
}

func TestStreakNeverLowersScore(t *testing.T) {
	f := newFixture(t)
	f.report(t, 0, "f1", false)
	prev := f.retailer(t).ReputationScore
	for i := 1; i <= 40; i++ {
		f.report(t, int64(i)*3600, "s"+string(rune('a'+i)), true)
		score := f.retailer(t).ReputationScore
		assert.GreaterOrEqual(t, score, prev)
		assert.LessOrEqual(t, score, uint64(MaxScore))
		prev = score
	}
}

func TestSupersedeCorrectsCounters(t *testing.T) {
	f := newFixture(t)
	f.report(t, 0, "v1", false)
	r := f.retailer(t)
	require.Equal(t, uint64(1), r.FailedVerifications)

	// arbitration overturns the failure inside the cooldown window
	applied, err := f.keeper.ProcessVerificationResult(f.at(5), types.ArbitrationAddress, Result{
		Verification: crypto.Keccak256Hash([]byte("v1")),
		Product:      product,
		Retailer:     retailer,
		Success:      true,
		Supersede:    true,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	r = f.retailer(t)
	assert.Equal(t, uint64(1), r.TotalVerifications)
	assert.Zero(t, r.FailedVerifications)
	assert.Greater(t, r.ReputationScore, uint64(0))
}

func TestRequireProductLink(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.keeper.SetRequireProductLink(f.at(0).WithSender(admin), true))
	assert.False(t, f.report(t, 0, "v1", true))

	require.NoError(t, f.products.RegisterProduct(f.at(0), product, brand))
	assert.True(t, f.report(t, 0, "v2", true))
}

func TestSetVolumeTierThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := f.at(0).WithSender(admin)
	assert.ErrorIs(t, f.keeper.SetVolumeTierThreshold(ctx, 0), ErrInvalidThreshold)
	require.NoError(t, f.keeper.SetVolumeTierThreshold(ctx, 10))
	p, err := f.keeper.GetParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), p.VolumeTierThreshold)
}

func TestScoreBounds(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, uint64(InitialScore), Score(&Retailer{}, p, 0))

	best := &Retailer{TotalVerifications: 1000, ConsecutiveSuccesses: 1000}
	assert.Equal(t, uint64(MaxScore), Score(best, p, 400*24*3600))

	worst := &Retailer{TotalVerifications: 100, FailedVerifications: 100}
	assert.Equal(t, uint64(volumeBonus), Score(worst, p, 0))

	inconsistent := &Retailer{TotalVerifications: 1, FailedVerifications: 5}
	assert.LessOrEqual(t, Score(inconsistent, p, 0), uint64(MaxScore))
}
