package state

import (
	"sync"

	"github.com/calehh/authchain/store"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	dbm "github.com/cosmos/iavl/db"
	"github.com/ethereum/go-ethereum/common"
)

type StateDB struct {
	mtx sync.RWMutex

	dir    string
	logger cmtlog.Logger
	db     *iavl.MutableTree

	state *State
}

func NewStateDB(dir string, logger cmtlog.Logger) (db *StateDB, err error) {
	logger = logger.With("module", "authdb")
	ldb, err := dbm.NewDB("authchain", "goleveldb", dir)
	if err != nil {
		return nil, err
	}
	return newStateDB(ldb, dir, logger)
}

// NewMemStateDB keeps the tree in memory. Used by tests.
func NewMemStateDB(logger cmtlog.Logger) (*StateDB, error) {
	return newStateDB(dbm.NewMemDB(), "", logger.With("module", "authdb"))
}

func newStateDB(ldb dbm.DB, dir string, logger cmtlog.Logger) (*StateDB, error) {
	tdb := iavl.NewMutableTree(ldb, 128, true, Cometbft2CosmosLogger(logger))
	version, err := tdb.Load()
	if err != nil {
		return nil, err
	}
	logger.Info("load db success", "version", version)
	st := newState(tdb, logger)
	if err = st.load(version); err != nil {
		logger.Error("from authdb load fail", "err", err)
		return nil, err
	}
	return &StateDB{
		dir:    dir,
		logger: logger,
		db:     tdb,
		state:  st,
	}, nil
}

func (db *StateDB) Close() (err error) {
	err = db.db.Close()
	return
}

func (db *StateDB) Header() (header StateHeader) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return *db.state.Header()
}

func (db *StateDB) State() *State {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	return db.state
}

func (db *StateDB) NewState() (st *State) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	st = db.state.nextState()
	return
}

func (db *StateDB) SetState(st *State) (hash common.Hash, err error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	hash, err = st.save()
	if err != nil {
		return
	}
	db.state = st
	return
}

// QueryStore is a read-only view of the last committed version. Before the
// first commit it is empty.
func (db *StateDB) QueryStore() (kv store.KVStore, height uint64, err error) {
	db.mtx.RLock()
	defer db.mtx.RUnlock()
	height = db.state.header.Height
	if db.state.dbVer == 0 {
		return store.ReadOnly{Getter: store.NewMemStore()}, height, nil
	}
	tree, err := db.db.GetImmutable(db.state.dbVer)
	if err != nil {
		return nil, 0, err
	}
	return store.ReadOnly{Getter: immutableGetter{tree: tree}}, height, nil
}
