// Package registry holds the minimal product registry the verification
// lifecycle consults: which product ids exist, who owns the brand, and the
// evidence trail of successful verifications.
package registry

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProductExists   = errors.New("product already registered")
	ErrProductNotFound = errors.New("product not registered")
	ErrEmptyProduct    = errors.New("empty product id")
)

const KeyProduct = "prod/%x"

type ProductRegistry interface {
	IsRegistered(ctx *types.Context, product common.Hash) (bool, error)
	GetBrandOwner(ctx *types.Context, product common.Hash) (common.Address, error)
	RecordVerification(ctx *types.Context, product common.Hash, evidence common.Hash) error
}

type Product struct {
	ID            common.Hash    `json:"id"`
	Brand         common.Address `json:"brand"`
	RegisteredAt  int64          `json:"registeredAt"`
	Verifications uint64         `json:"verifications"`
	LastEvidence  common.Hash    `json:"lastEvidence"`
}

var _ ProductRegistry = &Keeper{}

type Keeper struct {
	logger cmtlog.Logger
}

func NewKeeper(logger cmtlog.Logger) *Keeper {
	return &Keeper{logger: logger.With("module", "registry")}
}

func productKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf(KeyProduct, id.Bytes()))
}

func (k *Keeper) GetProduct(ctx *types.Context, id common.Hash) (*Product, error) {
	var p Product
	found, err := store.GetJSON(ctx.KVStore(), productKey(id), &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

// RegisterProduct makes brand the owner of id.
func (k *Keeper) RegisterProduct(ctx *types.Context, id common.Hash, brand common.Address) error {
	if id == (common.Hash{}) {
		return ErrEmptyProduct
	}
	ok, err := k.IsRegistered(ctx, id)
	if err != nil {
		return err
	}
	if ok {
		return ErrProductExists
	}
	p := Product{ID: id, Brand: brand, RegisteredAt: ctx.Now()}
	if err = store.SetJSON(ctx.KVStore(), productKey(id), &p); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventProductRegistered(&types.EventProduct{Product: id, Brand: brand}))
	return nil
}

func (k *Keeper) IsRegistered(ctx *types.Context, id common.Hash) (bool, error) {
	return store.Has(ctx.KVStore(), productKey(id))
}

func (k *Keeper) GetBrandOwner(ctx *types.Context, id common.Hash) (common.Address, error) {
	p, err := k.GetProduct(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	return p.Brand, nil
}

func (k *Keeper) RecordVerification(ctx *types.Context, id common.Hash, evidence common.Hash) error {
	p, err := k.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	p.Verifications += 1
	p.LastEvidence = evidence
	if err = store.SetJSON(ctx.KVStore(), productKey(id), p); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventProductVerified(&types.EventProduct{Product: id, Brand: p.Brand, Evidence: evidence, Count: p.Verifications}))
	return nil
}
