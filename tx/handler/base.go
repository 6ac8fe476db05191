package handler

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// BaseTxHandler covers the collaborator surface: balances, products and
// capability grants.
type BaseTxHandler struct {
	logger cmtlog.Logger
	k      *Keepers
}

func NewBaseTxHandler(k *Keepers, logger cmtlog.Logger) (h *BaseTxHandler) {
	logger = logger.With("module", "baseTx")
	h = &BaseTxHandler{
		logger: logger,
		k:      k,
	}
	return
}

func (h *BaseTxHandler) Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error) {
	switch btx.Type {
	case tx.AuthTxTypeGrantCapability, tx.AuthTxTypeRevokeCapability:
		return checkCapability(h.logger, h.k, ctx, access.CapAdmin)
	}
	return checkOK(), nil
}

func (h *BaseTxHandler) Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{}
	switch t := btx.Tx.(type) {
	case *tx.TransferTx:
		err = h.k.Ledger.Transfer(ctx, ctx.Sender(), t.To, t.Amount)
	case *tx.ApproveTx:
		err = h.k.Ledger.Approve(ctx, ctx.Sender(), t.Spender, t.Amount)
	case *tx.RegisterProductTx:
		err = h.k.Registry.RegisterProduct(ctx, t.Product, ctx.Sender())
	case *tx.CapabilityTx:
		if btx.Type == tx.AuthTxTypeGrantCapability {
			err = h.k.Access.AdminGrant(ctx, access.Capability(t.Capability), t.Identity)
		} else {
			err = h.k.Access.AdminRevoke(ctx, access.Capability(t.Capability), t.Identity)
		}
	default:
		err = tx.ErrUnmatchedTxType
	}
	return
}
