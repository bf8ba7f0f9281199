package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Delta is a signed adjustment in the int256 range, stored as a sign and a
// magnitude. The zero value is a zero delta.
type Delta struct {
	neg bool
	mag uint256.Int
}

// NewDelta builds a delta from a sign and magnitude, rejecting values outside
// the int256 range.
func NewDelta(neg bool, mag *uint256.Int) (Delta, error) {
	mag = orZero(mag)
	if mag.IsZero() {
		return Delta{}, nil
	}
	limit := maxPositive
	if neg {
		limit = maxNegative
	}
	if mag.Cmp(limit) > 0 {
		return Delta{}, ErrOverflow
	}
	return Delta{neg: neg, mag: *mag}, nil
}

// Pos returns +v. Values beyond the int256 range are clamped by panicking;
// use NewDelta for untrusted input.
func Pos(v *uint256.Int) Delta {
	d, err := NewDelta(false, v)
	if err != nil {
		panic(err)
	}
	return d
}

// Neg returns -v. See Pos.
func Neg(v *uint256.Int) Delta {
	d, err := NewDelta(true, v)
	if err != nil {
		panic(err)
	}
	return d
}

// Sign returns -1, 0 or 1.
func (d Delta) Sign() int {
	switch {
	case d.mag.IsZero():
		return 0
	case d.neg:
		return -1
	default:
		return 1
	}
}

func (d Delta) IsZero() bool { return d.mag.IsZero() }

// IsNeg reports whether the delta is strictly negative.
func (d Delta) IsNeg() bool { return d.neg && !d.mag.IsZero() }

// IsPos reports whether the delta is strictly positive.
func (d Delta) IsPos() bool { return !d.neg && !d.mag.IsZero() }

// Abs returns a copy of the magnitude.
func (d Delta) Abs() *uint256.Int { return d.mag.Clone() }

// Negate flips the sign. The most negative value cannot be negated.
func (d Delta) Negate() (Delta, error) {
	return NewDelta(!d.neg, &d.mag)
}

// Big converts the delta into a math/big integer.
func (d Delta) Big() *big.Int {
	out := d.mag.ToBig()
	if d.neg {
		out.Neg(out)
	}
	return out
}

func (d Delta) String() string {
	if d.IsNeg() {
		return "-" + d.mag.Dec()
	}
	return d.mag.Dec()
}

// Equal reports whether two deltas carry the same value.
func (d Delta) Equal(other Delta) bool {
	return d.Sign() == other.Sign() && d.mag.Eq(&other.mag)
}

// MarshalText renders the decimal form.
func (d Delta) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a signed base-unit integer.
func (d *Delta) UnmarshalText(text []byte) error {
	parsed, err := ParseDelta(string(text), 0)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
