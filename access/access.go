// Package access keeps the explicit (capability, identity) grant table that
// every privileged entry point checks before it mutates anything.
package access

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/store"
	"github.com/calehh/authchain/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

type Capability string

const (
	CapAdmin            Capability = "admin"
	CapVerifier         Capability = "verifier"
	CapTrustedSubmitter Capability = "trusted_submitter"
	CapResultProcessor  Capability = "result_processor"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnknownCapability = errors.New("unknown capability")
	ErrZeroAddress       = errors.New("zero address")
)

const KeyGrant = "cap/%s/%x"

func (c Capability) Valid() bool {
	switch c {
	case CapAdmin, CapVerifier, CapTrustedSubmitter, CapResultProcessor:
		return true
	}
	return false
}

type Keeper struct {
	logger cmtlog.Logger
}

func NewKeeper(logger cmtlog.Logger) *Keeper {
	return &Keeper{logger: logger.With("module", "access")}
}

func grantKey(c Capability, id common.Address) []byte {
	return []byte(fmt.Sprintf(KeyGrant, c, id.Bytes()))
}

func (k *Keeper) Has(ctx *types.Context, c Capability, id common.Address) (bool, error) {
	return store.Has(ctx.KVStore(), grantKey(c, id))
}

// Require is the guard clause at the top of every gated entry point.
func (k *Keeper) Require(ctx *types.Context, c Capability, id common.Address) error {
	ok, err := k.Has(ctx, c, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, id.Hex(), c)
	}
	return nil
}

// Grant records a capability without an authority check. Callers are either
// genesis or an entry point that already ran its own guard.
func (k *Keeper) Grant(ctx *types.Context, c Capability, id common.Address) error {
	if !c.Valid() {
		return ErrUnknownCapability
	}
	if id == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := ctx.KVStore().Set(grantKey(c, id), []byte{1}); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventCapability(&types.EventCapability{Capability: string(c), Identity: id, Granted: true}))
	return nil
}

func (k *Keeper) Revoke(ctx *types.Context, c Capability, id common.Address) error {
	if !c.Valid() {
		return ErrUnknownCapability
	}
	if err := ctx.KVStore().Delete(grantKey(c, id)); err != nil {
		return err
	}
	ctx.EmitEvent(types.EncodeEventCapability(&types.EventCapability{Capability: string(c), Identity: id, Granted: false}))
	return nil
}

// AdminGrant and AdminRevoke are the transaction entry points; the verifier
// capability is owned by the verification lifecycle and cannot be granted
// by hand.
func (k *Keeper) AdminGrant(ctx *types.Context, c Capability, id common.Address) error {
	if err := k.Require(ctx, CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if c == CapVerifier {
		return fmt.Errorf("%w: %s is managed by stake registration", ErrUnauthorized, c)
	}
	return k.Grant(ctx, c, id)
}

func (k *Keeper) AdminRevoke(ctx *types.Context, c Capability, id common.Address) error {
	if err := k.Require(ctx, CapAdmin, ctx.Sender()); err != nil {
		return err
	}
	if c == CapVerifier {
		return fmt.Errorf("%w: %s is managed by stake registration", ErrUnauthorized, c)
	}
	if c == CapAdmin && id == ctx.Sender() {
		return fmt.Errorf("%w: admin cannot revoke itself", ErrUnauthorized)
	}
	return k.Revoke(ctx, c, id)
}
