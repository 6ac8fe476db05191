package types

import (
	"errors"

	"github.com/holiman/uint256"
)

const BpsDenominator = 10000

var ErrOverflow = errors.New("arithmetic overflow")

// MulBps returns amount*bps/10000 computed in 256 bits, so the product never
// wraps before the division.
func MulBps(amount, bps uint64) uint64 {
	x := uint256.NewInt(amount)
	x.Mul(x, uint256.NewInt(bps))
	x.Div(x, uint256.NewInt(BpsDenominator))
	if !x.IsUint64() {
		return ^uint64(0)
	}
	return x.Uint64()
}

func SafeAdd(a, b uint64) (uint64, error) {
	s, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !s.IsUint64() {
		return 0, ErrOverflow
	}
	return s.Uint64(), nil
}

// Mul returns the exact 128 bit product of a and b.
func Mul(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
}
