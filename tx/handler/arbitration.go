package handler

import (
	"strconv"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

type ArbitrationTxHandler struct {
	logger cmtlog.Logger
	k      *Keepers
}

func NewArbitrationTxHandler(k *Keepers, logger cmtlog.Logger) (h *ArbitrationTxHandler) {
	logger = logger.With("module", "arbitrationTx")
	h = &ArbitrationTxHandler{
		logger: logger,
		k:      k,
	}
	return
}

func (h *ArbitrationTxHandler) Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error) {
	if btx.Type == tx.AuthTxTypeVoteDispute {
		return checkCapability(h.logger, h.k, ctx, access.CapVerifier)
	}
	return checkOK(), nil
}

func (h *ArbitrationTxHandler) Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{}
	arb := h.k.Arbitration
	switch t := btx.Tx.(type) {
	case *tx.CreateDisputeTx:
		id, err1 := arb.CreateDispute(ctx, t.Product, t.Request, t.Description, t.EvidenceURI)
		if err1 != nil {
			return nil, err1
		}
		res.Data = []byte(strconv.FormatUint(id, 10))
	case *tx.VoteDisputeTx:
		err = arb.VoteOnDispute(ctx, t.Dispute, t.InFavor)
	case *tx.ExpireDisputeTx:
		err = arb.ExpireDispute(ctx, t.Dispute)
	default:
		err = tx.ErrUnmatchedTxType
	}
	return
}
