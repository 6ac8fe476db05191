package handler

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

type OracleTxHandler struct {
	logger cmtlog.Logger
	k      *Keepers
}

func NewOracleTxHandler(k *Keepers, logger cmtlog.Logger) (h *OracleTxHandler) {
	logger = logger.With("module", "oracleTx")
	h = &OracleTxHandler{
		logger: logger,
		k:      k,
	}
	return
}

func (h *OracleTxHandler) Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error) {
	switch btx.Type {
	case tx.AuthTxTypeRegisterSource, tx.AuthTxTypeUpdateSource, tx.AuthTxTypeRevokeSource, tx.AuthTxTypeFinalizeAttestations:
		return checkCapability(h.logger, h.k, ctx, access.CapAdmin)
	case tx.AuthTxTypeSubmitAttestationTrusted:
		return checkCapability(h.logger, h.k, ctx, access.CapTrustedSubmitter)
	}
	return checkOK(), nil
}

func (h *OracleTxHandler) Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	res = &abcitypes.ExecTxResult{}
	orc := h.k.Oracle
	switch t := btx.Tx.(type) {
	case *tx.SourceTx:
		switch btx.Type {
		case tx.AuthTxTypeRegisterSource:
			err = orc.RegisterSource(ctx, t.Source, oracle.SourceKind(t.Kind), t.Weight)
		case tx.AuthTxTypeUpdateSource:
			err = orc.UpdateSource(ctx, t.Source, oracle.SourceKind(t.Kind), t.Weight)
		default:
			err = orc.RevokeSource(ctx, t.Source)
		}
	case *tx.SubmitAttestationTx:
		err = orc.SubmitAttestation(ctx, t.Attestation, t.Signature)
	case *tx.SubmitAttestationTrustedTx:
		err = orc.SubmitAttestationTrusted(ctx, t.Attestation, t.Source)
	case *tx.RequestTx:
		if btx.Type != tx.AuthTxTypeFinalizeAttestations {
			return nil, tx.ErrUnmatchedTxType
		}
		_, err = orc.Finalize(ctx, t.Request)
	default:
		err = tx.ErrUnmatchedTxType
	}
	return
}
