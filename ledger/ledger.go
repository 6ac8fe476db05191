// Package ledger is the in-chain balance ledger the protocol moves custody
// funds through. Balances are created only at genesis; afterwards tokens are
// only moved, never minted or burned.
package ledger

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
)

var (
	KeyBalance   = "bal/%x"
	KeyAllowance = "allow/%x/%x"
)

// Ledger is the balance surface the core consumes.
type Ledger interface {
	BalanceOf(ctx *types.Context, owner common.Address) (uint64, error)
	Transfer(ctx *types.Context, from, to common.Address, amount uint64) error
	TransferFrom(ctx *types.Context, spender, from, to common.Address, amount uint64) error
	Approve(ctx *types.Context, owner, spender common.Address, amount uint64) error
}

var _ Ledger = &Keeper{}

type Keeper struct {
	logger cmtlog.Logger
}

func NewKeeper(logger cmtlog.Logger) *Keeper {
	return &Keeper{logger: logger.With("module", "ledger")}
}

func balanceKey(owner common.Address) []byte {
	return []byte(fmt.Sprintf(KeyBalance, owner.Bytes()))
}

func allowanceKey(owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf(KeyAllowance, owner.Bytes(), spender.Bytes()))
}

func (k *Keeper) BalanceOf(ctx *types.Context, owner common.Address) (uint64, error) {
	return store.GetUint64(ctx.KVStore(), balanceKey(owner))
}

func (k *Keeper) Allowance(ctx *types.Context, owner, spender common.Address) (uint64, error) {
	return store.GetUint64(ctx.KVStore(), allowanceKey(owner, spender))
}

// Credit seeds a genesis balance.
func (k *Keeper) Credit(ctx *types.Context, owner common.Address, amount uint64) error {
	bal, err := k.BalanceOf(ctx, owner)
	if err != nil {
		return err
	}
	bal, err = types.SafeAdd(bal, amount)
	if err != nil {
		return err
	}
	return store.SetUint64(ctx.KVStore(), balanceKey(owner), bal)
}

func (k *Keeper) Transfer(ctx *types.Context, from, to common.Address, amount uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal, err := k.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, from.Hex(), fromBal, amount)
	}
	if err = store.SetUint64(ctx.KVStore(), balanceKey(from), fromBal-amount); err != nil {
		return err
	}
	toBal, err := k.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	toBal, err = types.SafeAdd(toBal, amount)
	if err != nil {
		return err
	}
	if err = store.SetUint64(ctx.KVStore(), balanceKey(to), toBal); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventTransfer(&types.EventTransfer{From: from, To: to, Amount: amount}))
	return nil
}

func (k *Keeper) TransferFrom(ctx *types.Context, spender, from, to common.Address, amount uint64) error {
	allowed, err := k.Allowance(ctx, from, spender)
	if err != nil {
		return err
	}
	if allowed < amount {
		return fmt.Errorf("%w: %s approved %d for %s, needs %d", ErrInsufficientAllowance, from.Hex(), allowed, spender.Hex(), amount)
	}
	if err = store.SetUint64(ctx.KVStore(), allowanceKey(from, spender), allowed-amount); err != nil {
		return err
	}
	return k.Transfer(ctx, from, to, amount)
}

func (k *Keeper) Approve(ctx *types.Context, owner, spender common.Address, amount uint64) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := store.SetUint64(ctx.KVStore(), allowanceKey(owner, spender), amount); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventApproval(&types.EventApproval{Owner: owner, Spender: spender, Amount: amount}))
	return nil
}

// Pull moves amount from the transaction sender into custody using the
// allowance the sender granted to the custody account.
func Pull(ctx *types.Context, l Ledger, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return l.TransferFrom(ctx, types.CustodyAddress, ctx.Sender(), types.CustodyAddress, amount)
}

// Pay moves amount out of custody.
func Pay(ctx *types.Context, l Ledger, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return l.Transfer(ctx, types.CustodyAddress, to, amount)
}
