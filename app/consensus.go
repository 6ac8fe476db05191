package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/calehh/authchain/state"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
)

var (
	ErrUnsupportedTx   = errors.New("unsupported tx")
	ErrNoPendingState  = errors.New("commit without finalized block")
	ErrUnexpectedPanic = errors.New("tx handler panicked")
)

func (app *AuthApp) getState() (st *state.State) {
	st = app.db.NewState()
	app.st = st
	return
}

func (app *AuthApp) parseTx(txDat []byte) (btx *tx.AuthTx, err error) {
	btx, err = tx.UnmarshalAuthTx(txDat)
	if err != nil {
		return nil, err
	}
	if err = btx.ValidateBasic(); err != nil {
		return nil, err
	}
	if _, ok := app.txHdlrs[btx.Type]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTx, btx.Type)
	}
	return btx, nil
}

func failCheck(err error) *abcitypes.ResponseCheckTx {
	return &abcitypes.ResponseCheckTx{Code: 1, Log: err.Error()}
}

// CheckTx admits a transaction to the mempool. It runs against the last
// committed version, so a future nonce is tolerated.
func (app *AuthApp) CheckTx(ctx context.Context, check *abcitypes.RequestCheckTx) (res *abcitypes.ResponseCheckTx, err error) {
	btx, err := app.parseTx(check.Tx)
	if err != nil {
		app.logger.Info("check tx parse fail", "err", err)
		return failCheck(err), nil
	}
	kv, _, err := app.db.QueryStore()
	if err != nil {
		return nil, err
	}
	header := app.db.Header()
	if err = state.Verify(kv, header.ChainID, btx, true); err != nil {
		app.logger.Info("check tx verify fail", "type", btx.Type, "sender", btx.Sender.Hex(), "err", err)
		return failCheck(err), nil
	}
	cctx := types.NewContext(ctx, kv, app.queryHeader(), app.logger).WithSender(btx.Sender)
	res, err = app.txHdlrs[btx.Type].Check(cctx, btx)
	if err != nil {
		app.logger.Info("check tx fail", "type", btx.Type, "err", err)
		return failCheck(err), nil
	}
	return res, nil
}

// deliverTx executes one transaction on kv. The handler runs in its own
// branch that is written back only on success. Once the envelope is
// authenticated the sender nonce advances whatever the outcome.
func (app *AuthApp) deliverTx(ctx context.Context, kv store.KVStore, header types.Header, raw []byte) (*abcitypes.ExecTxResult, string) {
	btx, err := app.parseTx(raw)
	if err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}, "unknown"
	}
	typ := btx.Type.String()
	if err = state.Verify(kv, header.ChainID, btx, false); err != nil {
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}, typ
	}

	branch := store.NewCacheStore(kv)
	tctx := types.NewContext(ctx, branch, header, app.logger).WithSender(btx.Sender)
	res, err := app.process(tctx, btx)
	if err == nil && res.Code == 0 {
		err = branch.Write()
	}
	if nerr := state.IncrementNonce(kv, btx.Sender, header.Height); nerr != nil {
		app.logger.Error("increment nonce fail", "sender", btx.Sender.Hex(), "err", nerr)
		return &abcitypes.ExecTxResult{Code: 1, Log: nerr.Error()}, typ
	}
	if err != nil || res.Code != 0 {
		if err == nil {
			err = errors.New(res.Log)
		}
		app.logger.Info("tx failed", "type", btx.Type, "sender", btx.Sender.Hex(), "nonce", btx.Nonce, "err", err)
		return &abcitypes.ExecTxResult{Code: 1, Log: err.Error()}, typ
	}
	res.Events = tctx.Events()
	return res, typ
}

func (app *AuthApp) process(ctx *types.Context, btx *tx.AuthTx) (res *abcitypes.ExecTxResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			app.logger.Error("tx handler panic", "type", btx.Type, "panic", r)
			res, err = nil, fmt.Errorf("%w: %v", ErrUnexpectedPanic, r)
		}
	}()
	res, err = app.txHdlrs[btx.Type].Process(ctx, btx)
	if err == nil && res == nil {
		res = &abcitypes.ExecTxResult{}
	}
	return
}

// PrepareProposal keeps the transactions that would execute successfully,
// in mempool order.
func (app *AuthApp) PrepareProposal(ctx context.Context, proposal *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	st := app.db.NewState()
	if err := st.SetBlock(uint64(proposal.Height), proposal.Time); err != nil {
		app.logger.Error("PrepareProposal state fail", "height", proposal.Height, "err", err)
		return &abcitypes.ResponsePrepareProposal{}, nil
	}
	header := st.BlockHeader()
	work := store.NewCacheStore(st.KVStore())
	txs := make([][]byte, 0, len(proposal.Txs))
	var size int64
	for _, stx := range proposal.Txs {
		if proposal.MaxTxBytes > 0 && size+int64(len(stx)) > proposal.MaxTxBytes {
			break
		}
		branch := store.NewCacheStore(work)
		result, _ := app.deliverTx(ctx, branch, header, stx)
		if result.Code != 0 {
			app.logger.Info("PrepareProposal drop tx", "log", result.Log)
			continue
		}
		if err := branch.Write(); err != nil {
			app.logger.Error("PrepareProposal branch write fail", "err", err)
			continue
		}
		size += int64(len(stx))
		txs = append(txs, stx)
	}
	return &abcitypes.ResponsePrepareProposal{Txs: txs}, nil
}

// ProcessProposal accepts a block whose transactions all decode and carry a
// valid signature. Execution failures are recorded per transaction at
// finalization.
func (app *AuthApp) ProcessProposal(ctx context.Context, proposal *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	res := &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}
	chainID := app.db.Header().ChainID
	for _, stx := range proposal.Txs {
		btx, err := app.parseTx(stx)
		if err != nil {
			app.logger.Error("ProcessProposal parse fail", "height", proposal.Height, "err", err)
			return res, nil
		}
		if err = state.VerifySignature(chainID, btx); err != nil {
			app.logger.Error("ProcessProposal signature fail", "height", proposal.Height, "sender", btx.Sender.Hex(), "err", err)
			return res, nil
		}
	}
	res.Status = abcitypes.ResponseProcessProposal_ACCEPT
	return res, nil
}

func (app *AuthApp) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	app.logger.Info("FinalizeBlock", "height", req.Height, "txs", len(req.Txs))
	app.lastBlk.Set(req)
	st := app.getState()
	if err := st.SetBlock(uint64(req.Height), req.Time); err != nil {
		app.logger.Error("FinalizeBlock state fail", "err", err)
		return nil, err
	}
	header := st.BlockHeader()
	res := make([]*abcitypes.ExecTxResult, len(req.Txs))
	for i, stx := range req.Txs {
		var typ string
		res[i], typ = app.deliverTx(ctx, st.KVStore(), header, stx)
		recordTx(typ, res[i].Code == 0)
		if res[i].Code == 0 {
			recordEvents(res[i].Events)
		}
	}
	h, err := st.Update()
	if err != nil {
		app.logger.Error("state update hash fail", "err", err)
		return nil, err
	}
	blockHeight.Set(float64(req.Height))
	return &abcitypes.ResponseFinalizeBlock{
		TxResults: res,
		AppHash:   h.Bytes(),
	}, nil
}

func (app *AuthApp) Commit(ctx context.Context, commit *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	if app.st == nil {
		return nil, ErrNoPendingState
	}
	h, err := app.db.SetState(app.st)
	if err != nil {
		return nil, err
	}
	app.st = nil
	app.logger.Info("Commit", "height", app.lastBlk.Height, "hash", h.Hex())
	return &abcitypes.ResponseCommit{}, nil
}
