package handler

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// ReputationTxHandler carries only admin entry points; results reach the
// engine from verification and arbitration, never from a transaction.
type ReputationTxHandler struct {
	logger cmtlog.Logger
	k      *Keepers
}

func NewReputationTxHandler(k *Keepers, logger cmtlog.Logger) (h *ReputationTxHandler) {
	logger = logger.With("module", "reputationTx")
	h = &ReputationTxHandler{
		logger: logger,
		k:      k,
	}
	return
}

func (h *ReputationTxHandler) Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error) {
	return checkCapability(h.logger, h.k, ctx, access.CapAdmin)
}

func (h *ReputationTxHandler) Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{}
	rep := h.k.Reputation
	switch t := btx.Tx.(type) {
	case *tx.RegisterRetailerTx:
		err = rep.RegisterRetailer(ctx, t.Retailer, t.Name)
	case *tx.RetailerAuthorizationTx:
		if btx.Type == tx.AuthTxTypeAuthorizeRetailer {
			err = rep.AuthorizeRetailerForBrand(ctx, t.Brand, t.Retailer)
		} else {
			err = rep.DeauthorizeRetailerForBrand(ctx, t.Brand, t.Retailer)
		}
	case *tx.SetVolumeTierThresholdTx:
		err = rep.SetVolumeTierThreshold(ctx, t.Threshold)
	case *tx.SetRequireProductLinkTx:
		err = rep.SetRequireProductLink(ctx, t.Required)
	default:
		err = tx.ErrUnmatchedTxType
	}
	return
}
