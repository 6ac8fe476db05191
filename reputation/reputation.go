// Package reputation keeps the per-retailer trust record and recomputes its
// bounded composite score from stored counters whenever a verification
// outcome is reported.
package reputation

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/registry"
	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

const (
	InitialScore = 500
	MaxScore     = 1000
)

const (
	ReasonSuccess     = "verification_success"
	ReasonFailure     = "verification_failure"
	ReasonOverturned  = "arbitration_overturned"
	ReasonUpheld      = "arbitration_upheld"
	ReasonCooldown    = "cooldown"
	ReasonUnlinked    = "unlinked_product"
	ReasonDuplicateID = "duplicate_verification"
)

var (
	ErrRetailerExists        = errors.New("retailer already registered")
	ErrRetailerNotRegistered = errors.New("retailer not registered")
	ErrEmptyName             = errors.New("retailer name is empty")
	ErrInvalidThreshold      = errors.New("volume tier threshold must be positive")
	ErrZeroAddress           = errors.New("zero address")
)

var (
	KeyParams    = "params/reputation"
	KeyRetailer  = "rep/r/%x"
	KeyBrandAuth = "rep/a/%x/%x"
	KeyOutcome   = "rep/o/%x"
)

type Params struct {
	CooldownSeconds     int64  `json:"cooldownSeconds"`
	VolumeTierThreshold uint64 `json:"volumeTierThreshold"`
	RequireProductLink  bool   `json:"requireProductLink"`
}

func DefaultParams() Params {
	return Params{
		CooldownSeconds:     60,
		VolumeTierThreshold: 100,
		RequireProductLink:  false,
	}
}

func (p Params) Validate() error {
	if p.CooldownSeconds < 0 {
		return errors.New("cooldown cannot be negative")
	}
	if p.VolumeTierThreshold == 0 {
		return ErrInvalidThreshold
	}
	return nil
}

type Retailer struct {
	Address              common.Address `json:"address"`
	Name                 string         `json:"name"`
	IsAuthorized         bool           `json:"isAuthorized"`
	AuthorizedBrands     uint64         `json:"authorizedBrands"`
	ReputationScore      uint64         `json:"reputationScore"`
	TotalVerifications   uint64         `json:"totalVerifications"`
	FailedVerifications  uint64         `json:"failedVerifications"`
	ConsecutiveSuccesses uint64         `json:"consecutiveSuccesses"`
	RegisteredAt         int64          `json:"registeredAt"`
	LastUpdateAt         int64          `json:"lastUpdateAt"`
}

// Result is one verification outcome reported for a retailer. Supersede
// marks an arbitration verdict that replaces whatever was recorded for the
// same verification id.
type Result struct {
	Verification common.Hash
	Product      common.Hash
	Retailer     common.Address
	Success      bool
	Supersede    bool
}

type outcome struct {
	Retailer common.Address `json:"retailer"`
	Success  bool           `json:"success"`
}

type Keeper struct {
	logger   cmtlog.Logger
	access   *access.Keeper
	products registry.ProductRegistry
}

func NewKeeper(acc *access.Keeper, products registry.ProductRegistry, logger cmtlog.Logger) *Keeper {
	return &Keeper{
		logger:   logger.With("module", "reputation"),
		access:   acc,
		products: products,
	}
}

func retailerKey(a common.Address) []byte {
	return []byte(fmt.Sprintf(KeyRetailer, a.Bytes()))
}

func brandAuthKey(brand, retailer common.Address) []byte {
	return []byte(fmt.Sprintf(KeyBrandAuth, brand.Bytes(), retailer.Bytes()))
}

func outcomeKey(id common.Hash) []byte {
	return []byte(fmt.Sprintf(KeyOutcome, id.Bytes()))
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

func (k *Keeper) GetRetailer(ctx *types.Context, a common.Address) (*Retailer, error) {
	var r Retailer
	found, err := store.GetJSON(ctx.KVStore(), retailerKey(a), &r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrRetailerNotRegistered
	}
	return &r, nil
}

func (k *Keeper) IsRegistered(ctx *types.Context, a common.Address) (bool, error) {
	return store.Has(ctx.KVStore(), retailerKey(a))
}

func (k *Keeper) setRetailer(ctx *types.Context, r *Retailer) error {
	return store.SetJSON(ctx.KVStore(), retailerKey(r.Address), r)
}

func (k *Keeper) RegisterRetailer(ctx *types.Context, a common.Address, name string) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if a == (common.Address{}) {
		return ErrZeroAddress
	}
	if name == "" {
		return ErrEmptyName
	}
	ok, err := k.IsRegistered(ctx, a)
	if err != nil {
		return err
	}
	if ok {
		return ErrRetailerExists
	}
	r := &Retailer{
		Address:         a,
		Name:            name,
		ReputationScore: InitialScore,
		RegisteredAt:    ctx.Now(),
	}
	if err = k.setRetailer(ctx, r); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventRetailerRegistered(&types.EventRetailerRegistered{Retailer: a, Name: name}))
	return nil
}

func (k *Keeper) IsAuthorizedForBrand(ctx *types.Context, brand, retailer common.Address) (bool, error) {
	return store.Has(ctx.KVStore(), brandAuthKey(brand, retailer))
}

func (k *Keeper) AuthorizeRetailerForBrand(ctx *types.Context, brand, retailer common.Address) error {
	return k.setBrandAuthorization(ctx, brand, retailer, true)
}

func (k *Keeper) DeauthorizeRetailerForBrand(ctx *types.Context, brand, retailer common.Address) error {
	return k.setBrandAuthorization(ctx, brand, retailer, false)
}

func (k *Keeper) setBrandAuthorization(ctx *types.Context, brand, retailer common.Address, authorized bool) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if brand == (common.Address{}) {
		return ErrZeroAddress
	}
	r, err := k.GetRetailer(ctx, retailer)
	if err != nil {
		return err
	}
	current, err := k.IsAuthorizedForBrand(ctx, brand, retailer)
	if err != nil {
		return err
	}
	if current != authorized {
		if authorized {
			err = ctx.KVStore().Set(brandAuthKey(brand, retailer), []byte{1})
			r.AuthorizedBrands += 1
		} else {
			err = ctx.KVStore().Delete(brandAuthKey(brand, retailer))
			r.AuthorizedBrands -= 1
		}
		if err != nil {
			return err
		}
		r.IsAuthorized = r.AuthorizedBrands > 0
		if err = k.setRetailer(ctx, r); err != nil {
			return err
		}
	}
	ctx.EmitEvent(types.EncodeEventRetailerAuthorization(&types.EventRetailerAuthorization{
		Brand:      brand,
		Retailer:   retailer,
		Authorized: authorized,
	}))
	return nil
}

func (k *Keeper) SetVolumeTierThreshold(ctx *types.Context, threshold uint64) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	p.VolumeTierThreshold = threshold
	if err = k.SetParams(ctx, p); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventParamsChanged(&types.EventParamsChanged{
		Module: "reputation",
		Key:    "volumeTierThreshold",
		Value:  strconv.FormatUint(threshold, 10),
	}))
	return nil
}

func (k *Keeper) SetRequireProductLink(ctx *types.Context, required bool) error {
	if err := k.access.Require(ctx, access.CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return err
	}
	p.RequireProductLink = required
	if err = k.SetParams(ctx, p); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventParamsChanged(&types.EventParamsChanged{
		Module: "reputation",
		Key:    "requireProductLink",
		Value:  strconv.FormatBool(required),
	}))
	return nil
}

func (k *Keeper) skip(ctx *types.Context, r *Retailer, res Result, reason string) (bool, error) {
	k.logger.Debug("reputation update skipped", "retailer", r.Address.Hex(), "reason", reason)
	ctx.EmitEvent(types.EncodeEventReputationSkipped(&types.EventReputation{
		Retailer:     r.Address,
		Verification: res.Verification,
		Score:        r.ReputationScore,
		Reason:       reason,
	}))
	return false, nil
}

// ProcessVerificationResult applies one outcome to the retailer record.
// caller must hold the result-processor capability. It reports whether the
// record changed; cooldown hits and unlinked products are no-ops.
func (k *Keeper) ProcessVerificationResult(ctx *types.Context, caller common.Address, res Result) (applied bool, err error) {
	if err = k.access.Require(ctx, access.CapResultProcessor, caller); err != nil {
		return false, err
	}
	r, err := k.GetRetailer(ctx, res.Retailer)
	if err != nil {
		return false, err
	}
	p, err := k.GetParams(ctx)
	if err != nil {
		return false, err
	}
	if p.RequireProductLink {
		linked, err := k.products.IsRegistered(ctx, res.Product)
		if err != nil {
			return false, err
		}
		if !linked {
			return k.skip(ctx, r, res, ReasonUnlinked)
		}
	}

	var prev outcome
	seen, err := store.GetJSON(ctx.KVStore(), outcomeKey(res.Verification), &prev)
	if err != nil {
		return false, err
	}
	now := ctx.Now()
	var reason string
	switch {
	case res.Supersede && seen:
		if prev.Success == res.Success {
			reason = ReasonUpheld
			break
		}
		reason = ReasonOverturned
		if res.Success {
			if r.FailedVerifications > 0 {
				r.FailedVerifications -= 1
			}
		} else {
			r.FailedVerifications += 1
			r.ConsecutiveSuccesses = 0
		}
	case seen:
		return k.skip(ctx, r, res, ReasonDuplicateID)
	default:
		if !res.Supersede && r.LastUpdateAt != 0 && now < r.LastUpdateAt+p.CooldownSeconds {
			return k.skip(ctx, r, res, ReasonCooldown)
		}
		r.TotalVerifications += 1
		if res.Success {
			r.ConsecutiveSuccesses += 1
			reason = ReasonSuccess
		} else {
			r.FailedVerifications += 1
			r.ConsecutiveSuccesses = 0
			reason = ReasonFailure
		}
	}

	r.LastUpdateAt = now
	r.ReputationScore = Score(r, p, now)
	if err = k.setRetailer(ctx, r); err != nil {
		return false, err
	}
	if err = store.SetJSON(ctx.KVStore(), outcomeKey(res.Verification), &outcome{Retailer: r.Address, Success: res.Success}); err != nil {
		return false, err
	}
	ctx.EmitEvent(types.EncodeEventReputationUpdated(&types.EventReputation{
		Retailer:     r.Address,
		Verification: res.Verification,
		Score:        r.ReputationScore,
		Reason:       reason,
	}))
	return true, nil
}
