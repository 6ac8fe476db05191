package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x0a")
	bob   = common.HexToAddress("0x0b")
)

func setup(t *testing.T) (*Keeper, *types.Context) {
	k := NewKeeper(cmtlog.NewNopLogger())
	ctx := types.NewContext(context.Background(), store.NewMemStore(), types.Header{Time: time.Unix(1, 0)}, nil)
	require.NoError(t, k.Credit(ctx, alice, 100))
	return k, ctx
}

func TestTransfer(t *testing.T) {
	k, ctx := setup(t)
	require.NoError(t, k.Transfer(ctx, alice, bob, 40))

	a, _ := k.BalanceOf(ctx, alice)
	b, _ := k.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(60), a)
	assert.Equal(t, uint64(40), b)

	assert.ErrorIs(t, k.Transfer(ctx, alice, bob, 61), ErrInsufficientBalance)
	assert.ErrorIs(t, k.Transfer(ctx, alice, common.Address{}, 1), ErrZeroAddress)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	k, ctx := setup(t)
	assert.ErrorIs(t, k.TransferFrom(ctx, bob, alice, bob, 10), ErrInsufficientAllowance)

	require.NoError(t, k.Approve(ctx, alice, bob, 30))
	require.NoError(t, k.TransferFrom(ctx, bob, alice, bob, 10))
	left, _ := k.Allowance(ctx, alice, bob)
	assert.Equal(t, uint64(20), left)
	assert.ErrorIs(t, k.TransferFrom(ctx, bob, alice, bob, 21), ErrInsufficientAllowance)
}

func TestPullAndPay(t *testing.T) {
	k, ctx := setup(t)
	sctx := ctx.WithSender(alice)
	require.NoError(t, k.Approve(sctx, alice, types.CustodyAddress, 50))
	require.NoError(t, Pull(sctx, k, 50))

	c, _ := k.BalanceOf(ctx, types.CustodyAddress)
	assert.Equal(t, uint64(50), c)

	require.NoError(t, Pay(ctx, k, bob, 20))
	b, _ := k.BalanceOf(ctx, bob)
	assert.Equal(t, uint64(20), b)
	assert.NotEmpty(t, ctx.Events())
}
