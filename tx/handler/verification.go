package handler

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

type VerificationTxHandler struct {
	logger cmtlog.Logger
	k      *Keepers
}

func NewVerificationTxHandler(k *Keepers, logger cmtlog.Logger) (h *VerificationTxHandler) {
	logger = logger.With("module", "verificationTx")
	h = &VerificationTxHandler{
		logger: logger,
		k:      k,
	}
	return
}

func (h *VerificationTxHandler) Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error) {
	switch btx.Type {
	case tx.AuthTxTypeAssignVerifier, tx.AuthTxTypeSetFeeBounds, tx.AuthTxTypeSetMinStake, tx.AuthTxTypeSetTimeout:
		return checkCapability(h.logger, h.k, ctx, access.CapAdmin)
	case tx.AuthTxTypeCompleteVerification:
		return checkCapability(h.logger, h.k, ctx, access.CapVerifier)
	}
	return checkOK(), nil
}

func (h *VerificationTxHandler) Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{}
	ver := h.k.Verification
	switch t := btx.Tx.(type) {
	case *tx.RegisterVerifierTx:
		err = ver.RegisterVerifier(ctx, t.Stake)
	case *tx.WithdrawStakeTx:
		err = ver.WithdrawStake(ctx)
	case *tx.RequestVerificationTx:
		id, err1 := ver.RequestVerification(ctx, t.Product, t.Value)
		if err1 != nil {
			return nil, err1
		}
		res.Data = id.Bytes()
	case *tx.AssignVerifierTx:
		err = ver.AssignVerifier(ctx, t.Request, t.Verifier)
	case *tx.CompleteVerificationTx:
		err = ver.CompleteVerification(ctx, t.Request, t.Result, t.EvidenceURI)
	case *tx.RequestTx:
		if btx.Type != tx.AuthTxTypeHandleTimeout {
			return nil, tx.ErrUnmatchedTxType
		}
		_, err = ver.HandleTimeout(ctx, t.Request)
	case *tx.SetFeeBoundsTx:
		err = ver.SetFeeBounds(ctx, t.MinFee, t.MaxFee)
	case *tx.SetMinStakeTx:
		err = ver.SetMinStake(ctx, t.MinStake)
	case *tx.SetTimeoutTx:
		err = ver.SetTimeout(ctx, t.Seconds)
	default:
		err = tx.ErrUnmatchedTxType
	}
	return
}
