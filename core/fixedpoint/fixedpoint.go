// Package fixedpoint implements the checked 256-bit arithmetic used by the
// ledger. Amounts are unsigned integers scaled by one of three precisions:
// wad (1e18), ray (1e27) and rad (1e45). Signed adjustments are carried by
// Delta, which covers the int256 range.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow      = errors.New("fixedpoint: overflow")
	ErrUnderflow     = errors.New("fixedpoint: underflow")
	ErrSignMismatch  = errors.New("fixedpoint: negative value not permitted")
	ErrInvalidAmount = errors.New("fixedpoint: invalid amount")
)

const (
	WadDecimals = 18
	RayDecimals = 27
	RadDecimals = 45
)

var (
	wad = pow10(WadDecimals)
	ray = pow10(RayDecimals)
	rad = pow10(RadDecimals)

	// int256 bounds expressed as magnitudes.
	maxPositive = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 255), uint256.NewInt(1))
	maxNegative = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
)

func pow10(exp uint64) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(exp))
}

// WAD returns a fresh copy of 1e18.
func WAD() *uint256.Int { return wad.Clone() }

// RAY returns a fresh copy of 1e27.
func RAY() *uint256.Int { return ray.Clone() }

// RAD returns a fresh copy of 1e45.
func RAD() *uint256.Int { return rad.Clone() }

// Wad scales n by 1e18.
func Wad(n uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(n), wad) }

// Ray scales n by 1e27.
func Ray(n uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(n), ray) }

// Rad scales n by 1e45.
func Rad(n uint64) *uint256.Int { return new(uint256.Int).Mul(uint256.NewInt(n), rad) }

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Add returns a + b. Nil operands are treated as zero.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns a - b or ErrUnderflow when b exceeds a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(orZero(a), orZero(b))
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Mul returns a * b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Apply adds a signed delta to an unsigned base.
func Apply(base *uint256.Int, delta Delta) (*uint256.Int, error) {
	if delta.neg {
		return Sub(base, &delta.mag)
	}
	return Add(base, &delta.mag)
}

// MulDelta multiplies an unsigned factor by a signed delta. The product must
// fit in the int256 range.
func MulDelta(u *uint256.Int, delta Delta) (Delta, error) {
	product, err := Mul(u, &delta.mag)
	if err != nil {
		return Delta{}, err
	}
	return NewDelta(delta.neg, product)
}

// Diff returns a - b as a signed delta.
func Diff(a, b *uint256.Int) (Delta, error) {
	a, b = orZero(a), orZero(b)
	if a.Cmp(b) >= 0 {
		return NewDelta(false, new(uint256.Int).Sub(a, b))
	}
	return NewDelta(true, new(uint256.Int).Sub(b, a))
}

// RMul returns x * y / RAY, rounding down.
func RMul(x, y *uint256.Int) (*uint256.Int, error) {
	product, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return product.Div(product, ray), nil
}

// RPow raises x to the n-th power in fixed point with the given base,
// rounding half up after every multiplication.
func RPow(x *uint256.Int, n uint64, base *uint256.Int) (*uint256.Int, error) {
	x = orZero(x).Clone()
	base = orZero(base)
	if base.IsZero() {
		return nil, ErrInvalidAmount
	}
	if x.IsZero() {
		if n == 0 {
			return base.Clone(), nil
		}
		return new(uint256.Int), nil
	}
	var z *uint256.Int
	if n%2 == 0 {
		z = base.Clone()
	} else {
		z = x.Clone()
	}
	half := new(uint256.Int).Rsh(base, 1)
	for n /= 2; n > 0; n /= 2 {
		xx, overflow := new(uint256.Int).MulOverflow(x, x)
		if overflow {
			return nil, ErrOverflow
		}
		xxRound, overflow := new(uint256.Int).AddOverflow(xx, half)
		if overflow {
			return nil, ErrOverflow
		}
		x = xxRound.Div(xxRound, base)
		if n%2 == 1 {
			zx, overflow := new(uint256.Int).MulOverflow(z, x)
			if overflow {
				return nil, ErrOverflow
			}
			zxRound, overflow := new(uint256.Int).AddOverflow(zx, half)
			if overflow {
				return nil, ErrOverflow
			}
			z = zxRound.Div(zxRound, base)
		}
	}
	return z, nil
}
