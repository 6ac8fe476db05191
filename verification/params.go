package verification

import (
	"errors"
	"fmt"

	"github.com/calehh/authchain/types"
)

var ErrInvalidParams = errors.New("invalid verification params")

type Params struct {
	MinStake   uint64 `json:"minStake"`
	MinFee     uint64 `json:"minFee"`
	MaxFee     uint64 `json:"maxFee"`
	FeeBps     uint64 `json:"feeBps"`
	TimeoutSec int64  `json:"timeoutSec"`
	// SlashBps is the share of the assigned verifier's stake forfeited when a
	// request times out.
	SlashBps                   uint64 `json:"slashBps"`
	RequireOracleCorroboration bool   `json:"requireOracleCorroboration"`
}

func DefaultParams() Params {
	return Params{
		MinStake:   1000,
		MinFee:     1,
		MaxFee:     100,
		FeeBps:     250,
		TimeoutSec: 24 * 60 * 60,
		SlashBps:   1000,
	}
}

func (p Params) Validate() error {
	if p.MinStake == 0 {
		return fmt.Errorf("%w: min stake must be positive", ErrInvalidParams)
	}
	if p.MinFee > p.MaxFee {
		return fmt.Errorf("%w: min fee %d above max fee %d", ErrInvalidParams, p.MinFee, p.MaxFee)
	}
	if p.FeeBps > types.BpsDenominator {
		return fmt.Errorf("%w: fee bps %d out of range", ErrInvalidParams, p.FeeBps)
	}
	if p.TimeoutSec <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidParams)
	}
	if p.SlashBps == 0 || p.SlashBps > types.BpsDenominator {
		return fmt.Errorf("%w: slash bps %d out of range", ErrInvalidParams, p.SlashBps)
	}
	return nil
}

// CalculateFee clamps the basis-point fee of value into [MinFee, MaxFee].
// It is monotonic in value because MulBps is.
func CalculateFee(p Params, value uint64) uint64 {
	fee := types.MulBps(value, p.FeeBps)
	if fee < p.MinFee {
		return p.MinFee
	}
	if fee > p.MaxFee {
		return p.MaxFee
	}
	return fee
}

// SlashAmount is at least one unit for any stake above reserve and never
// cuts into reserve. reserve is one unit per other open assignment, so every
// pending timeout still has stake to take.
func SlashAmount(p Params, stake, reserve uint64) uint64 {
	if stake <= reserve {
		return 0
	}
	avail := stake - reserve
	amt := types.MulBps(stake, p.SlashBps)
	if amt == 0 {
		amt = 1
	}
	if amt > avail {
		amt = avail
	}
	return amt
}
