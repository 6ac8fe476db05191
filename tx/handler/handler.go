package handler

import (
	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/arbitration"
	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/registry"
	"github.com/calehh/authchain/reputation"
	"github.com/calehh/authchain/revenue"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// TxHandler executes one family of transactions. Check runs against the
// mempool view and must not write; Process runs inside a per-tx branch that
// the caller discards on error.
type TxHandler interface {
	Check(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ResponseCheckTx, err error)
	Process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error)
}

type Keepers struct {
	Access       *access.Keeper
	Ledger       *ledger.Keeper
	Registry     *registry.Keeper
	Revenue      *revenue.Keeper
	Reputation   *reputation.Keeper
	Oracle       *oracle.Keeper
	Verification *verification.Keeper
	Arbitration  *arbitration.Keeper
}

func NewKeepers(logger cmtlog.Logger) *Keepers {
	acc := access.NewKeeper(logger)
	l := ledger.NewKeeper(logger)
	products := registry.NewKeeper(logger)
	rev := revenue.NewKeeper(l, logger)
	rep := reputation.NewKeeper(acc, products, logger)
	orc := oracle.NewKeeper(acc, logger)
	ver := verification.NewKeeper(acc, l, products, rev, rep, orc, logger)
	return &Keepers{
		Access:       acc,
		Ledger:       l,
		Registry:     products,
		Revenue:      rev,
		Reputation:   rep,
		Oracle:       orc,
		Verification: ver,
		Arbitration:  arbitration.NewKeeper(l, ver, rep, logger),
	}
}

// NewRouter maps every transaction type to its handler.
func NewRouter(k *Keepers, logger cmtlog.Logger) map[tx.AuthTxType]TxHandler {
	base := NewBaseTxHandler(k, logger)
	ver := NewVerificationTxHandler(k, logger)
	orc := NewOracleTxHandler(k, logger)
	rep := NewReputationTxHandler(k, logger)
	arb := NewArbitrationTxHandler(k, logger)
	return map[tx.AuthTxType]TxHandler{
		tx.AuthTxTypeTransfer:         base,
		tx.AuthTxTypeApprove:          base,
		tx.AuthTxTypeRegisterProduct:  base,
		tx.AuthTxTypeGrantCapability:  base,
		tx.AuthTxTypeRevokeCapability: base,

		tx.AuthTxTypeRegisterVerifier:     ver,
		tx.AuthTxTypeWithdrawStake:        ver,
		tx.AuthTxTypeRequestVerification:  ver,
		tx.AuthTxTypeAssignVerifier:       ver,
		tx.AuthTxTypeCompleteVerification: ver,
		tx.AuthTxTypeHandleTimeout:        ver,
		tx.AuthTxTypeSetFeeBounds:         ver,
		tx.AuthTxTypeSetMinStake:          ver,
		tx.AuthTxTypeSetTimeout:           ver,

		tx.AuthTxTypeRegisterSource:           orc,
		tx.AuthTxTypeUpdateSource:             orc,
		tx.AuthTxTypeRevokeSource:             orc,
		tx.AuthTxTypeSubmitAttestation:        orc,
		tx.AuthTxTypeSubmitAttestationTrusted: orc,
		tx.AuthTxTypeFinalizeAttestations:     orc,

		tx.AuthTxTypeRegisterRetailer:       rep,
		tx.AuthTxTypeAuthorizeRetailer:      rep,
		tx.AuthTxTypeDeauthorizeRetailer:    rep,
		tx.AuthTxTypeSetVolumeTierThreshold: rep,
		tx.AuthTxTypeSetRequireProductLink:  rep,

		tx.AuthTxTypeCreateDispute: arb,
		tx.AuthTxTypeVoteDispute:   arb,
		tx.AuthTxTypeExpireDispute: arb,
	}
}

func checkOK() *abcitypes.ResponseCheckTx {
	return &abcitypes.ResponseCheckTx{Code: 0}
}

// checkCapability rejects a privileged transaction in the mempool when the
// sender does not hold c. Execution repeats the check.
func checkCapability(logger cmtlog.Logger, k *Keepers, ctx *types.Context, c access.Capability) (*abcitypes.ResponseCheckTx, error) {
	res := checkOK()
	if err := k.Access.Require(ctx, c, ctx.Sender()); err != nil {
		logger.Info("CheckTx capability fail", "sender", ctx.Sender().Hex(), "err", err)
		res.Code = 1
		res.Log = err.Error()
	}
	return res, nil
}
