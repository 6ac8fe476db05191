package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/tx"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cosmos/iavl"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	KeyState   = "s"
	KeyAccount = "acct/%x"
)

var (
	ErrTxNonceInvalid       = errors.New("nonce invalid")
	ErrTxSigInvalid         = errors.New("signature invalid")
	ErrStateHeightUnmatched = errors.New("state height unmatched")
)

type StateHeader struct {
	ChainID  string      `json:"chainId"`
	Height   uint64      `json:"height"`
	Time     int64       `json:"time"`
	RootHash []byte      `json:"rootHash"`
	Hash     common.Hash `json:"hash"`
}

// State is one block's view of the tree. Writes land in a cache branch that
// Update flushes into the working tree in sorted key order.
type State struct {
	logger cmtlog.Logger
	db     *iavl.MutableTree
	dbVer  int64

	header *StateHeader
	cache  *store.CacheStore
}

func newState(db *iavl.MutableTree, logger cmtlog.Logger) *State {
	return &State{
		logger: logger,
		db:     db,
		header: new(StateHeader),
		cache:  store.NewCacheStore(treeStore{tree: db}),
	}
}

func (s *State) nextState() *State {
	h := *s.header
	if s.header.Hash != (common.Hash{}) {
		h.Height = s.header.Height + 1
	}
	return &State{
		logger: s.logger,
		db:     s.db,
		dbVer:  s.dbVer,
		header: &h,
		cache:  store.NewCacheStore(treeStore{tree: s.db}),
	}
}

func (s *State) load(version int64) (err error) {
	s.dbVer = version
	val, err := s.db.Get([]byte(KeyState))
	if err != nil || val == nil {
		return err
	}
	if err = json.Unmarshal(val, s.header); err != nil {
		return
	}
	if h := s.db.Hash(); h != nil {
		s.calcHash(h, true)
	}
	return
}

func (s *State) calcHash(rootHash []byte, update bool) (h common.Hash) {
	h = crypto.Keccak256Hash(rootHash)
	if update {
		s.header.RootHash = common.CopyBytes(rootHash)
		s.header.Hash = h
	}
	return
}

// Update writes the block branch and the header into the working tree and
// returns the app hash the block commits to.
func (s *State) Update() (h common.Hash, err error) {
	var hash []byte
	defer func() {
		if hash == nil {
			s.db.Rollback()
		}
	}()
	val, err := json.Marshal(s.header)
	if err != nil {
		return
	}
	if err = s.cache.Set([]byte(KeyState), val); err != nil {
		return
	}
	n := s.cache.Dirty()
	if err = s.cache.Write(); err != nil {
		return
	}
	hash = s.db.WorkingHash()
	h = s.calcHash(hash, false)
	s.logger.Debug("state updated", "height", s.header.Height, "keys", n, "hash", h.Hex())
	return
}

func (s *State) save() (h common.Hash, err error) {
	hash, ver, err := s.db.SaveVersion()
	if err != nil {
		return h, err
	}
	s.dbVer = ver
	h = s.calcHash(hash, true)
	return
}

func (s *State) KVStore() store.KVStore {
	return s.cache
}

func (s *State) Header() *StateHeader {
	return s.header
}

func (s *State) Hash() common.Hash {
	return s.header.Hash
}

func (s *State) Version() int64 {
	return s.dbVer
}

func (s *State) SetChainID(chainID string) {
	s.header.ChainID = chainID
}

// SetBlock pins the height and time the block executes at.
func (s *State) SetBlock(height uint64, t time.Time) error {
	if s.header.Hash != (common.Hash{}) && height != s.header.Height {
		return fmt.Errorf("%w: state %d, block %d", ErrStateHeightUnmatched, s.header.Height, height)
	}
	s.header.Height = height
	s.header.Time = t.Unix()
	return nil
}

func (s *State) BlockHeader() types.Header {
	return types.Header{
		ChainID: s.header.ChainID,
		Height:  s.header.Height,
		Time:    time.Unix(s.header.Time, 0),
	}
}

func accountKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeyAccount, a.Bytes()))
}

// GetAccount reads through kv so callers see their own branch's writes.
func GetAccount(kv store.KVStore, a common.Address) (*Account, error) {
	acnt := &Account{Address: a}
	if _, err := store.GetJSON(kv, accountKey(a), acnt); err != nil {
		return nil, err
	}
	return acnt, nil
}

func SetAccount(kv store.KVStore, acnt *Account) error {
	return store.SetJSON(kv, accountKey(acnt.Address), acnt)
}

// IncrementNonce consumes one nonce for the sender regardless of whether the
// transaction it belongs to succeeded.
func IncrementNonce(kv store.KVStore, a common.Address, height uint64) error {
	acnt, err := GetAccount(kv, a)
	if err != nil {
		return err
	}
	acnt.Nonce += 1
	acnt.LastTx = height
	return SetAccount(kv, acnt)
}

// Verify checks the envelope signature and nonce against kv. With
// allowNonceGap a future nonce is accepted, as in the mempool.
func Verify(kv store.KVStore, chainID string, t *tx.AuthTx, allowNonceGap bool) (err error) {
	a, err := GetAccount(kv, t.Sender)
	if err != nil {
		return err
	}
	if !(a.Nonce == t.Nonce || (allowNonceGap && a.Nonce < t.Nonce)) {
		return fmt.Errorf("%w: account %d, tx %d", ErrTxNonceInvalid, a.Nonce, t.Nonce)
	}
	return verifySig(a, chainID, t)
}

// VerifySignature checks only that Sig was produced by Sender on chainID.
func VerifySignature(chainID string, t *tx.AuthTx) error {
	return verifySig(&Account{Address: t.Sender}, chainID, t)
}

func verifySig(a *Account, chainID string, t *tx.AuthTx) error {
	dat, err := t.SigData([]byte(chainID))
	if err != nil {
		return err
	}
	if !a.Verify(dat, t.Sig) {
		return ErrTxSigInvalid
	}
	return nil
}
