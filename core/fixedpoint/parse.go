package fixedpoint

import (
	"strings"

	"github.com/holiman/uint256"
)

var limbLimit = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

// ParseUnits parses a non-negative decimal string such as "1.05" and scales it
// by 10^decimals. Fractions finer than the precision are rejected.
func ParseUnits(value string, decimals int) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "-") {
		return nil, ErrSignMismatch
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	trimmed = strings.ReplaceAll(trimmed, "_", "")
	if trimmed == "" || decimals < 0 {
		return nil, ErrInvalidAmount
	}
	whole, frac, hasDot := strings.Cut(trimmed, ".")
	if hasDot && frac == "" && whole == "" {
		return nil, ErrInvalidAmount
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return nil, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, ErrInvalidAmount
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	// digits are validated above, so the only remaining failure is range.
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, ErrOverflow
	}
	return out, nil
}

// ParseDelta parses a signed decimal string scaled by 10^decimals.
func ParseDelta(value string, decimals int) (Delta, error) {
	trimmed := strings.TrimSpace(value)
	neg := strings.HasPrefix(trimmed, "-")
	if neg {
		trimmed = trimmed[1:]
	}
	mag, err := ParseUnits(trimmed, decimals)
	if err != nil {
		return Delta{}, err
	}
	return NewDelta(neg, mag)
}

// FormatUnits renders v scaled down by 10^decimals, trimming trailing zeros.
func FormatUnits(v *uint256.Int, decimals int) string {
	digits := orZero(v).Dec()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// FromSplit joins two 128-bit limbs into a 256-bit value.
func FromSplit(low, high *uint256.Int) (*uint256.Int, error) {
	low, high = orZero(low), orZero(high)
	if low.Cmp(limbLimit) >= 0 || high.Cmp(limbLimit) >= 0 {
		return nil, ErrInvalidAmount
	}
	out := new(uint256.Int).Lsh(high, 128)
	return out.Or(out, low), nil
}

// ToSplit separates v into its low and high 128-bit limbs.
func ToSplit(v *uint256.Int) (low, high *uint256.Int) {
	v = orZero(v)
	mask := new(uint256.Int).Sub(limbLimit, uint256.NewInt(1))
	low = new(uint256.Int).And(v, mask)
	high = new(uint256.Int).Rsh(v, 128)
	return low, high
}

// DeltaFromSplit interprets two limbs as a two's complement int256.
func DeltaFromSplit(low, high *uint256.Int) (Delta, error) {
	raw, err := FromSplit(low, high)
	if err != nil {
		return Delta{}, err
	}
	if raw.Cmp(maxNegative) < 0 {
		return NewDelta(false, raw)
	}
	return NewDelta(true, new(uint256.Int).Neg(raw))
}

// SplitDelta encodes d as two's complement limbs.
func SplitDelta(d Delta) (low, high *uint256.Int) {
	raw := d.mag.Clone()
	if d.IsNeg() {
		raw.Neg(raw)
	}
	return ToSplit(raw)
}
