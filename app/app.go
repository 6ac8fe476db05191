package app

import (
	"context"

	"github.com/calehh/authchain/config"
	"github.com/calehh/authchain/state"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/tx/handler"
	"github.com/calehh/authchain/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/store"
	"github.com/ethereum/go-ethereum/common"
)

type finalizeBlock struct {
	Height uint64
	Hash   common.Hash
}

func (b *finalizeBlock) Set(blk *abcitypes.RequestFinalizeBlock) {
	b.Height = uint64(blk.Height)
	b.Hash = common.BytesToHash(blk.Hash)
}

var _ abcitypes.Application = &AuthApp{}

type AuthApp struct {
	cfg    *config.AppConfig
	logger cmtlog.Logger

	db       *state.StateDB
	lastBlk  finalizeBlock
	keepers  *handler.Keepers
	txHdlrs  map[tx.AuthTxType]handler.TxHandler
	queriers map[string]Querier

	st *state.State
}

func NewAuthApp(cfg *config.AppConfig, logger cmtlog.Logger) (app *AuthApp, err error) {
	db, err := state.NewStateDB(cfg.DataDir(), logger)
	if err != nil {
		return nil, err
	}
	app = NewAuthAppWithDB(db, logger)
	app.cfg = cfg
	return
}

// NewAuthAppWithDB runs the application over an already opened state.
func NewAuthAppWithDB(db *state.StateDB, logger cmtlog.Logger) *AuthApp {
	logger = logger.With("module", "app")
	app := &AuthApp{
		logger:   logger,
		db:       db,
		keepers:  handler.NewKeepers(logger),
		queriers: make(map[string]Querier),
	}
	app.txHdlrs = handler.NewRouter(app.keepers, logger)
	app.registerQuerier()
	return app
}

func (app *AuthApp) Start(bs *store.BlockStore) {
	height := app.db.Header().Height
	if height > 0 {
		blk := bs.LoadBlock(int64(height))
		if blk == nil {
			panic("unexpected BlockStore")
		}
		app.lastBlk.Height = height
		app.lastBlk.Hash = common.BytesToHash(blk.Hash())
	}
}

func (app *AuthApp) Stop() {
	err := app.db.Close()
	if err != nil {
		app.logger.Error("close db fail", "err", err)
	}
	app.logger.Info("auth app stopped")
}

func (app *AuthApp) registerQuerier() {
	app.queriers = map[string]Querier{
		"/params/":     NewParamsQuerier(app.db, app.keepers),
		"/accounts/":   NewAccountQuerier(app.db, app.keepers),
		"/verifiers/":  NewVerifierQuerier(app.db, app.keepers),
		"/requests/":   NewRequestQuerier(app.db, app.keepers),
		"/sources/":    NewSourceQuerier(app.db, app.keepers),
		"/aggregates/": NewAggregateQuerier(app.db, app.keepers),
		"/retailers/":  NewRetailerQuerier(app.db, app.keepers),
		"/brands/":     NewBrandQuerier(app.db, app.keepers),
		"/disputes/":   NewDisputeQuerier(app.db, app.keepers),
		"/nonces/":     NewNonceQuerier(app.db, app.keepers),
	}
}

func (app *AuthApp) InitChain(ctx context.Context, chain *abcitypes.RequestInitChain) (res *abcitypes.ResponseInitChain, err error) {
	if h := app.db.Header(); h.Hash != (common.Hash{}) {
		app.logger.Info("InitChain on initialized state", "height", h.Height)
		return &abcitypes.ResponseInitChain{AppHash: h.Hash.Bytes()}, nil
	}
	as, err := ParseAppState(chain.AppStateBytes)
	if err != nil {
		app.logger.Error("InitChain parse app_state fail", "err", err)
		return nil, err
	}
	st := app.db.NewState()
	st.SetChainID(chain.ChainId)
	height := uint64(0)
	if chain.InitialHeight > 1 {
		height = uint64(chain.InitialHeight - 1)
	}
	if err = st.SetBlock(height, chain.Time); err != nil {
		return nil, err
	}
	gctx := types.NewContext(ctx, st.KVStore(), st.BlockHeader(), app.logger)
	if err = as.Apply(gctx, app.keepers); err != nil {
		app.logger.Error("InitChain apply app_state fail", "err", err)
		return nil, err
	}
	if _, err = st.Update(); err != nil {
		app.logger.Error("InitChain update state fail", "err", err)
		return nil, err
	}
	h, err := app.db.SetState(st)
	if err != nil {
		app.logger.Error("InitChain apply state fail", "err", err)
		return nil, err
	}
	app.logger.Info("InitChain", "chainId", chain.ChainId, "admin", as.Admin.Hex(), "hash", h.Hex())
	return &abcitypes.ResponseInitChain{
		AppHash: h.Bytes(),
	}, nil
}

func (app *AuthApp) Info(ctx context.Context, info *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	header := app.db.Header()
	res := &abcitypes.ResponseInfo{
		Data:            "authchain",
		LastBlockHeight: int64(header.Height),
	}
	if header.Hash != (common.Hash{}) {
		res.LastBlockAppHash = header.Hash.Bytes()
	}
	return res, nil
}

func (app *AuthApp) ExtendVote(_ context.Context, extend *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *AuthApp) VerifyVoteExtension(_ context.Context, verify *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (app *AuthApp) ApplySnapshotChunk(context.Context, *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{}, nil
}

func (app *AuthApp) ListSnapshots(context.Context, *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (app *AuthApp) LoadSnapshotChunk(context.Context, *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (app *AuthApp) OfferSnapshot(context.Context, *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{}, nil
}
