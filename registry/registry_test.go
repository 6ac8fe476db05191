package registry

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

func TestRegisterAndRecord(t *testing.T) {
	k := NewKeeper(cmtlog.NewNopLogger())
	ctx := types.NewContext(context.Background(), store.NewMemStore(), types.Header{Time: time.Unix(50, 0)}, nil)
	id := common.HexToHash("0x01")
	brand := common.HexToAddress("0xbb")

	ok, err := k.IsRegistered(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, k.RegisterProduct(ctx, id, brand))
	assert.ErrorIs(t, k.RegisterProduct(ctx, id, brand), ErrProductExists)
	assert.ErrorIs(t, k.RegisterProduct(ctx, common.Hash{}, brand), ErrEmptyProduct)

	owner, err := k.GetBrandOwner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, brand, owner)

	ev := common.HexToHash("0xee")
	require.NoError(t, k.RecordVerification(ctx, id, ev))
	p, err := k.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Verifications)
	assert.Equal(t, ev, p.LastEvidence)

	assert.ErrorIs(t, k.RecordVerification(ctx, common.HexToHash("0x02"), ev), ErrProductNotFound)
}
