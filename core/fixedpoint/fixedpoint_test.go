package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func mustDec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

func maxUint() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

func TestCheckedArithmetic(t *testing.T) {
	sum, err := Add(Wad(1), Wad(2))
	require.NoError(t, err)
	require.Equal(t, Wad(3), sum)

	_, err = Add(maxUint(), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = Mul(maxUint(), uint256.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)

	product, err := Mul(nil, maxUint())
	require.NoError(t, err)
	require.True(t, product.IsZero())
}

func TestApply(t *testing.T) {
	out, err := Apply(Wad(10), Neg(Wad(4)))
	require.NoError(t, err)
	require.Equal(t, Wad(6), out)

	out, err = Apply(Wad(10), Pos(Wad(4)))
	require.NoError(t, err)
	require.Equal(t, Wad(14), out)

	_, err = Apply(Wad(1), Neg(Wad(2)))
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = Apply(maxUint(), Pos(uint256.NewInt(1)))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMulDeltaRange(t *testing.T) {
	d, err := MulDelta(Ray(2), Neg(Wad(3)))
	require.NoError(t, err)
	require.True(t, d.IsNeg())
	require.Equal(t, new(uint256.Int).Mul(Ray(2), Wad(3)), d.Abs())

	// 2^254 * 2 = 2^255 fits only as a negative value.
	half := new(uint256.Int).Lsh(uint256.NewInt(1), 254)
	_, err = MulDelta(half, Pos(uint256.NewInt(2)))
	require.ErrorIs(t, err, ErrOverflow)
	d, err = MulDelta(half, Neg(uint256.NewInt(2)))
	require.NoError(t, err)
	require.True(t, d.IsNeg())
}

func TestDiff(t *testing.T) {
	d, err := Diff(Ray(1), Ray(2))
	require.NoError(t, err)
	require.Equal(t, -1, d.Sign())
	require.Equal(t, Ray(1), d.Abs())

	d, err = Diff(Ray(2), Ray(2))
	require.NoError(t, err)
	require.True(t, d.IsZero())
}

func TestRMulRPow(t *testing.T) {
	out, err := RMul(Ray(3), Wad(2))
	require.NoError(t, err)
	require.Equal(t, Wad(6), out)

	pow, err := RPow(Ray(2), 10, RAY())
	require.NoError(t, err)
	require.Equal(t, Ray(1024), pow)

	pow, err = RPow(new(uint256.Int), 0, RAY())
	require.NoError(t, err)
	require.Equal(t, RAY(), pow)

	pow, err = RPow(new(uint256.Int), 3, RAY())
	require.NoError(t, err)
	require.True(t, pow.IsZero())

	// five percent over one day at the per-second rate.
	duty := mustDec(t, "1000000564701133626865910626")
	pow, err = RPow(duty, 86400, RAY())
	require.NoError(t, err)
	require.Equal(t, mustDec(t, "1050000000000000000000016038"), pow)

	_, err = RPow(maxUint(), 2, RAY())
	require.ErrorIs(t, err, ErrOverflow)
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     *uint256.Int
	}{
		{"1", WadDecimals, Wad(1)},
		{"1.5", 1, uint256.NewInt(15)},
		{"0.000000000000000001", WadDecimals, uint256.NewInt(1)},
		{"1_000", 0, uint256.NewInt(1000)},
		{"1.050", RayDecimals, mustDec(t, "1050000000000000000000000000")},
		{".5", 1, uint256.NewInt(5)},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseUnits("-1", WadDecimals)
	require.ErrorIs(t, err, ErrSignMismatch)
	_, err = ParseUnits("1.0000000000000000001", WadDecimals)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("abc", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("1e80", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseUnits("1", 80)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestParseDeltaAndFormat(t *testing.T) {
	d, err := ParseDelta("-2.5", WadDecimals)
	require.NoError(t, err)
	require.True(t, d.IsNeg())
	require.Equal(t, "-2500000000000000000", d.String())

	require.Equal(t, "2.5", FormatUnits(d.Abs(), WadDecimals))
	require.Equal(t, "0.001", FormatUnits(uint256.NewInt(1), 3))
	require.Equal(t, "42", FormatUnits(Rad(42), RadDecimals))
}

func TestSplitRoundTrip(t *testing.T) {
	value := mustDec(t, "340282366920938463463374607431768211457") // 2^128 + 1
	low, high := ToSplit(value)
	require.Equal(t, uint256.NewInt(1), low)
	require.Equal(t, uint256.NewInt(1), high)

	joined, err := FromSplit(low, high)
	require.NoError(t, err)
	require.Equal(t, value, joined)

	_, err = FromSplit(limbLimit, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDeltaSplitTwosComplement(t *testing.T) {
	neg := Neg(uint256.NewInt(1))
	low, high := SplitDelta(neg)
	mask := new(uint256.Int).Sub(limbLimit, uint256.NewInt(1))
	require.Equal(t, mask, low)
	require.Equal(t, mask, high)

	back, err := DeltaFromSplit(low, high)
	require.NoError(t, err)
	require.True(t, back.Equal(neg))

	pos, err := DeltaFromSplit(uint256.NewInt(7), nil)
	require.NoError(t, err)
	require.Equal(t, 1, pos.Sign())

	minLow, minHigh := ToSplit(maxNegative)
	most, err := DeltaFromSplit(minLow, minHigh)
	require.NoError(t, err)
	require.True(t, most.IsNeg())
	_, err = most.Negate()
	require.ErrorIs(t, err, ErrOverflow)
}
