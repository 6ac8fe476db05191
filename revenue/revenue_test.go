package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributeRevenue(t *testing.T) {
	l := ledger.NewKeeper(cmtlog.NewNopLogger())
	k := NewKeeper(l, cmtlog.NewNopLogger())
	ctx := types.NewContext(context.Background(), store.NewMemStore(), types.Header{Time: time.Unix(1, 0)}, nil)
	require.NoError(t, l.Credit(ctx, types.CustodyAddress, 1000))

	verifier := common.HexToAddress("0x01")
	brand := common.HexToAddress("0x02")
	require.NoError(t, k.DistributeRevenue(ctx, verifier, brand, 1000))

	v, _ := l.BalanceOf(ctx, verifier)
	b, _ := l.BalanceOf(ctx, brand)
	tr, _ := l.BalanceOf(ctx, types.TreasuryAddress)
	c, _ := l.BalanceOf(ctx, types.CustodyAddress)
	assert.Equal(t, uint64(700), v)
	assert.Equal(t, uint64(200), b)
	assert.Equal(t, uint64(100), tr)
	assert.Zero(t, c)
}

func TestDistributeRevenueShortfall(t *testing.T) {
	l := ledger.NewKeeper(cmtlog.NewNopLogger())
	k := NewKeeper(l, cmtlog.NewNopLogger())
	ctx := types.NewContext(context.Background(), store.NewMemStore(), types.Header{}, nil)
	err := k.DistributeRevenue(ctx, common.HexToAddress("0x01"), common.HexToAddress("0x02"), 10)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.ErrorIs(t, Params{VerifierShareBps: 9000, BrandShareBps: 2000}.Validate(), ErrInvalidSplit)
}
