package app

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/arbitration"
	"github.com/calehh/authchain/state"
	"github.com/calehh/authchain/tx/handler"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrQueryKey    = errors.New("malformed query key")
	ErrQueryModule = errors.New("unknown params module")
)

type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error)
}

func (app *AuthApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	path := req.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q, ok := app.queriers[path]
	if !ok {
		res = &abcitypes.ResponseQuery{}
		res.Code = 404
		res.Log = "unknown query path " + req.Path
		return
	}
	res, err = q.Query(ctx, req)
	return
}

func committedHeader(db *state.StateDB) types.Header {
	h := db.Header()
	return types.Header{
		ChainID: h.ChainID,
		Height:  h.Height,
		Time:    time.Unix(h.Time, 0),
	}
}

func (app *AuthApp) queryHeader() types.Header {
	return committedHeader(app.db)
}

type queryFunc func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error)

// StoreQuerier answers a read from the last committed version and returns
// the result as JSON.
type StoreQuerier struct {
	db *state.StateDB
	k  *handler.Keepers
	fn queryFunc
}

func (q *StoreQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{Key: req.Data}
	kv, height, err := q.db.QueryStore()
	if err != nil {
		res.Code = 1
		res.Log = err.Error()
		return res, nil
	}
	qctx := types.NewContext(ctx, kv, committedHeader(q.db), nil)
	v, err := q.fn(qctx, q.k, req.Data)
	if err == nil {
		res.Value, err = json.Marshal(v)
	}
	if err != nil {
		res.Code = 1
		res.Log = err.Error()
		return res, nil
	}
	res.Height = int64(height)
	return res, nil
}

func addressKey(key []byte) (common.Address, error) {
	if len(key) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: want %d byte address, got %d", ErrQueryKey, common.AddressLength, len(key))
	}
	return common.BytesToAddress(key), nil
}

func hashKey(key []byte) (common.Hash, error) {
	if len(key) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: want %d byte id, got %d", ErrQueryKey, common.HashLength, len(key))
	}
	return common.BytesToHash(key), nil
}

// DisputeQueryKey encodes a dispute id for the /disputes/ path.
func DisputeQueryKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func NewParamsQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		switch string(key) {
		case "revenue":
			return k.Revenue.GetParams(ctx)
		case "reputation":
			return k.Reputation.GetParams(ctx)
		case "oracle":
			return k.Oracle.GetParams(ctx)
		case "verification":
			return k.Verification.GetParams(ctx)
		case "arbitration":
			return k.Arbitration.GetParams(ctx)
		}
		return nil, fmt.Errorf("%w: %q", ErrQueryModule, key)
	}}
}

type AccountView struct {
	Address      common.Address `json:"address"`
	Nonce        uint64         `json:"nonce"`
	LastTx       uint64         `json:"lastTx"`
	Balance      uint64         `json:"balance"`
	Capabilities []string       `json:"capabilities"`
}

func NewAccountQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		a, err := addressKey(key)
		if err != nil {
			return nil, err
		}
		acnt, err := state.GetAccount(ctx.KVStore(), a)
		if err != nil {
			return nil, err
		}
		view := &AccountView{Address: a, Nonce: acnt.Nonce, LastTx: acnt.LastTx, Capabilities: []string{}}
		if view.Balance, err = k.Ledger.BalanceOf(ctx, a); err != nil {
			return nil, err
		}
		for _, c := range []access.Capability{access.CapAdmin, access.CapVerifier, access.CapTrustedSubmitter, access.CapResultProcessor} {
			ok, err := k.Access.Has(ctx, c, a)
			if err != nil {
				return nil, err
			}
			if ok {
				view.Capabilities = append(view.Capabilities, string(c))
			}
		}
		return view, nil
	}}
}

func NewVerifierQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		a, err := addressKey(key)
		if err != nil {
			return nil, err
		}
		v, _, err := k.Verification.GetVerifier(ctx, a)
		return v, err
	}}
}

// RequestView adds the status evaluated at the committed block time.
type RequestView struct {
	*verification.Request
	Status verification.Status `json:"status"`
}

func NewRequestQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		id, err := hashKey(key)
		if err != nil {
			return nil, err
		}
		r, err := k.Verification.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		p, err := k.Verification.GetParams(ctx)
		if err != nil {
			return nil, err
		}
		return &RequestView{Request: r, Status: r.Status(p.TimeoutSec, ctx.Now())}, nil
	}}
}

func NewSourceQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		a, err := addressKey(key)
		if err != nil {
			return nil, err
		}
		return k.Oracle.GetSource(ctx, a)
	}}
}

func NewAggregateQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		id, err := hashKey(key)
		if err != nil {
			return nil, err
		}
		return k.Oracle.GetAggregate(ctx, id)
	}}
}

func NewNonceQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		a, err := addressKey(key)
		if err != nil {
			return nil, err
		}
		return k.Oracle.Nonce(ctx, a)
	}}
}

func NewRetailerQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		a, err := addressKey(key)
		if err != nil {
			return nil, err
		}
		return k.Reputation.GetRetailer(ctx, a)
	}}
}

type BrandAuthorization struct {
	Brand      common.Address `json:"brand"`
	Retailer   common.Address `json:"retailer"`
	Authorized bool           `json:"authorized"`
}

// NewBrandQuerier answers brand authorization lookups keyed by the brand
// address followed by the retailer address.
func NewBrandQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		if len(key) != 2*common.AddressLength {
			return nil, fmt.Errorf("%w: want brand and retailer addresses", ErrQueryKey)
		}
		brand := common.BytesToAddress(key[:common.AddressLength])
		retailer := common.BytesToAddress(key[common.AddressLength:])
		ok, err := k.Reputation.IsAuthorizedForBrand(ctx, brand, retailer)
		if err != nil {
			return nil, err
		}
		return &BrandAuthorization{Brand: brand, Retailer: retailer, Authorized: ok}, nil
	}}
}

// DisputeView adds the status evaluated at the committed block time.
type DisputeView struct {
	*arbitration.Dispute
	Status arbitration.Status `json:"status"`
}

func NewDisputeQuerier(db *state.StateDB, k *handler.Keepers) *StoreQuerier {
	return &StoreQuerier{db: db, k: k, fn: func(ctx *types.Context, k *handler.Keepers, key []byte) (any, error) {
		if len(key) == 0 || len(key) > 8 {
			return nil, fmt.Errorf("%w: dispute id", ErrQueryKey)
		}
		var id uint64
		for _, v := range key {
			id <<= 8
			id |= uint64(v)
		}
		d, err := k.Arbitration.GetDispute(ctx, id)
		if err != nil {
			return nil, err
		}
		return &DisputeView{Dispute: d, Status: d.EffectiveStatus(ctx.Now())}, nil
	}}
}
