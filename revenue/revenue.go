// Package revenue splits verification fees held in custody between the
// verifier, the product's brand owner and the protocol treasury.
package revenue

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/ledger"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidSplit = errors.New("revenue shares exceed 100%")

const KeyParams = "params/revenue"

type Distributor interface {
	DistributeRevenue(ctx *types.Context, verifier, brand common.Address, amount uint64) error
}

type Params struct {
	VerifierShareBps uint64 `json:"verifierShareBps"`
	BrandShareBps    uint64 `json:"brandShareBps"`
}

func DefaultParams() Params {
	return Params{VerifierShareBps: 7000, BrandShareBps: 2000}
}

func (p Params) Validate() error {
	if p.VerifierShareBps+p.BrandShareBps > types.BpsDenominator {
		return fmt.Errorf("%w: verifier %d + brand %d", ErrInvalidSplit, p.VerifierShareBps, p.BrandShareBps)
	}
	return nil
}

var _ Distributor = &Keeper{}

type Keeper struct {
	logger cmtlog.Logger
	ledger ledger.Ledger
}

func NewKeeper(l ledger.Ledger, logger cmtlog.Logger) *Keeper {
	return &Keeper{
		logger: logger.With("module", "revenue"),
		ledger: l,
	}
}

func (k *Keeper) GetParams(ctx *types.Context) (Params, error) {
	p := DefaultParams()
	_, err := store.GetJSON(ctx.KVStore(), []byte(KeyParams), &p)
	return p, err
}

func (k *Keeper) SetParams(ctx *types.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return store.SetJSON(ctx.KVStore(), []byte(KeyParams), &p)
}

// DistributeRevenue pays amount out of custody. The brand share goes to the
// treasury when the product has no brand owner on record.
func (k *Keeper) DistributeRevenue(ctx *types.Context, verifier, brand common.Address, amount uint64) error {
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	vAmt := types.MulBps(amount, p.VerifierShareBps)
	bAmt := types.MulBps(amount, p.BrandShareBps)
	if brand == (common.Address{}) {
		bAmt = 0
	}
	tAmt := amount - vAmt - bAmt
	if err = ledger.Pay(ctx, k.ledger, verifier, vAmt); err != nil {
		return err
	}
	if err = ledger.Pay(ctx, k.ledger, brand, bAmt); err != nil {
		return err
	}
	if err = ledger.Pay(ctx, k.ledger, types.TreasuryAddress, tAmt); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventRevenueDistributed(&types.EventRevenueDistributed{
		Verifier:       verifier,
		Brand:          brand,
		VerifierAmount: vAmt,
		BrandAmount:    bAmt,
		TreasuryAmount: tAmt,
	}))
	return nil
}
