// Package u128 implements the fixed-width 128-bit unsigned integer used for
// account balance and stake fields, in the explicit, checked-arithmetic
// style the teacher uses for its own 256-bit proof-of-work targets
// (consensus/pow.go's big.Int-based RetargetV1).
package u128

import "math/big"

// U128 is an unsigned 128-bit integer, stored as two big-endian halves.
type U128 struct {
	Hi uint64
	Lo uint64
}

// Zero is the additive identity.
var Zero = U128{}

// FromUint64 widens v to a U128.
func FromUint64(v uint64) U128 {
	return U128{Lo: v}
}

// FromBytes interprets b as a big-endian 128-bit integer.
func FromBytes(b [16]byte) U128 {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(b[i])
	}
	return U128{Hi: hi, Lo: lo}
}

// Bytes renders a as a big-endian 16-byte array.
func (a U128) Bytes() [16]byte {
	var out [16]byte
	for i := 0; i < 8; i++ {
		out[7-i] = byte(a.Hi >> (8 * i))
	}
	for i := 0; i < 8; i++ {
		out[15-i] = byte(a.Lo >> (8 * i))
	}
	return out
}

// big returns a as a *big.Int, used only for the handful of operations
// where carrying bits by hand would obscure the arithmetic.
func (a U128) big() *big.Int {
	hi := new(big.Int).SetUint64(a.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(a.Lo)
	return hi.Or(hi, lo)
}

func fromBig(v *big.Int) U128 {
	var b [16]byte
	v.FillBytes(b[:])
	return FromBytes(b)
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a U128) Cmp(b U128) int {
	if a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	if a.Lo != b.Lo {
		if a.Lo < b.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// Add returns a+b. Overflow beyond 128 bits wraps, matching fixed-width
// unsigned arithmetic; callers that must reject overflow should check
// Cmp against the operands first (as PayFee/Send do via balance checks).
func (a U128) Add(b U128) U128 {
	lo := a.Lo + b.Lo
	carry := uint64(0)
	if lo < a.Lo {
		carry = 1
	}
	return U128{Hi: a.Hi + b.Hi + carry, Lo: lo}
}

// Sub returns a-b. The caller must ensure a >= b (checked via Cmp); this
// design never subtracts below zero on the ledger's hot paths.
func (a U128) Sub(b U128) U128 {
	return fromBig(new(big.Int).Sub(a.big(), b.big()))
}

// String renders a in base 10.
func (a U128) String() string {
	return a.big().String()
}
