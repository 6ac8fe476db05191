package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calehh/authchain/access"
	"github.com/calehh/authchain/arbitration"
	"github.com/calehh/authchain/oracle"
	"github.com/calehh/authchain/reputation"
	"github.com/calehh/authchain/revenue"
	"github.com/calehh/authchain/tx/handler"
	"github.com/calehh/authchain/types"
	"github.com/calehh/authchain/verification"
	"github.com/ethereum/go-ethereum/common"
)

var ErrGenesisNoAdmin = errors.New("genesis app_state must name an admin")

type GenesisBalance struct {
	Address common.Address `json:"address"`
	Amount  uint64         `json:"amount"`
}

type GenesisGrant struct {
	Capability access.Capability `json:"capability"`
	Identity   common.Address    `json:"identity"`
}

type GenesisProduct struct {
	ID    common.Hash    `json:"id"`
	Brand common.Address `json:"brand"`
}

// AppState is the app_state section of genesis.json. Protocol parameters
// live here so every node starts from the same values.
type AppState struct {
	Admin        common.Address   `json:"admin"`
	Balances     []GenesisBalance `json:"balances"`
	Capabilities []GenesisGrant   `json:"capabilities"`
	Products     []GenesisProduct `json:"products"`

	Revenue      revenue.Params      `json:"revenue"`
	Reputation   reputation.Params   `json:"reputation"`
	Oracle       oracle.Params       `json:"oracle"`
	Verification verification.Params `json:"verification"`
	Arbitration  arbitration.Params  `json:"arbitration"`
}

func DefaultAppState(admin common.Address) *AppState {
	return &AppState{
		Admin:        admin,
		Revenue:      revenue.DefaultParams(),
		Reputation:   reputation.DefaultParams(),
		Oracle:       oracle.DefaultParams(),
		Verification: verification.DefaultParams(),
		Arbitration:  arbitration.DefaultParams(),
	}
}

func ParseAppState(dat []byte) (*AppState, error) {
	as := DefaultAppState(common.Address{})
	if len(dat) != 0 {
		if err := json.Unmarshal(dat, as); err != nil {
			return nil, fmt.Errorf("decode app_state: %w", err)
		}
	}
	if as.Admin == (common.Address{}) {
		return nil, ErrGenesisNoAdmin
	}
	return as, nil
}

// Apply writes the genesis allocation into ctx's store. The verification and
// arbitration module identities always receive the result processor grant.
func (as *AppState) Apply(ctx *types.Context, k *handler.Keepers) error {
	if err := k.Access.Grant(ctx, access.CapAdmin, as.Admin); err != nil {
		return err
	}
	for _, id := range []common.Address{types.VerificationAddress, types.ArbitrationAddress} {
		if err := k.Access.Grant(ctx, access.CapResultProcessor, id); err != nil {
			return err
		}
	}
	for _, g := range as.Capabilities {
		if err := k.Access.Grant(ctx, g.Capability, g.Identity); err != nil {
			return fmt.Errorf("grant %s to %s: %w", g.Capability, g.Identity.Hex(), err)
		}
	}
	for _, b := range as.Balances {
		if err := k.Ledger.Credit(ctx, b.Address, b.Amount); err != nil {
			return fmt.Errorf("credit %s: %w", b.Address.Hex(), err)
		}
	}
	for _, p := range as.Products {
		if err := k.Registry.RegisterProduct(ctx, p.ID, p.Brand); err != nil {
			return fmt.Errorf("product %s: %w", p.ID.Hex(), err)
		}
	}
	if err := k.Revenue.SetParams(ctx, as.Revenue); err != nil {
		return err
	}
	if err := k.Reputation.SetParams(ctx, as.Reputation); err != nil {
		return err
	}
	if err := k.Oracle.SetParams(ctx, as.Oracle); err != nil {
		return err
	}
	if err := k.Verification.SetParams(ctx, as.Verification); err != nil {
		return err
	}
	return k.Arbitration.SetParams(ctx, as.Arbitration)
}
