package vat

import (
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"vatchain/crypto"
)

// MaxIlkLength bounds collateral identifiers.
const MaxIlkLength = 32

// Ilk holds the per-collateral-type parameters and aggregate debt.
//
// Art is the total normalised debt (wad), Rate the accumulated rate (ray),
// Spot the price with safety margin (ray), Line the debt ceiling (rad) and
// Dust the minimum position debt (rad).
type Ilk struct {
	Art  *uint256.Int `json:"art"`
	Rate *uint256.Int `json:"rate"`
	Spot *uint256.Int `json:"spot"`
	Line *uint256.Int `json:"line"`
	Dust *uint256.Int `json:"dust"`
}

// Initialized reports whether the collateral type has been registered.
func (i *Ilk) Initialized() bool {
	return i != nil && i.Rate != nil && !i.Rate.IsZero()
}

// Clone returns a deep copy with nil fields replaced by zero.
func (i *Ilk) Clone() *Ilk {
	if i == nil {
		return &Ilk{Art: zero(), Rate: zero(), Spot: zero(), Line: zero(), Dust: zero()}
	}
	return &Ilk{
		Art:  cloneOrZero(i.Art),
		Rate: cloneOrZero(i.Rate),
		Spot: cloneOrZero(i.Spot),
		Line: cloneOrZero(i.Line),
		Dust: cloneOrZero(i.Dust),
	}
}

// Urn is a single position: locked collateral (wad) and normalised debt (wad).
type Urn struct {
	Ink *uint256.Int `json:"ink"`
	Art *uint256.Int `json:"art"`
}

func (u *Urn) Clone() *Urn {
	if u == nil {
		return &Urn{Ink: zero(), Art: zero()}
	}
	return &Urn{Ink: cloneOrZero(u.Ink), Art: cloneOrZero(u.Art)}
}

// IsZero reports whether the position holds neither collateral nor debt.
func (u *Urn) IsZero() bool {
	return u == nil || (isZero(u.Ink) && isZero(u.Art))
}

// Globals captures the system-wide totals and switches. Debt, Vice and Line
// are rad amounts.
type Globals struct {
	Debt     *uint256.Int `json:"debt"`
	Vice     *uint256.Int `json:"vice"`
	Line     *uint256.Int `json:"Line"`
	Live     bool         `json:"live"`
	Deployed bool         `json:"deployed"`
}

func (g *Globals) Clone() *Globals {
	if g == nil {
		return &Globals{Debt: zero(), Vice: zero(), Line: zero(), Live: true}
	}
	return &Globals{
		Debt:     cloneOrZero(g.Debt),
		Vice:     cloneOrZero(g.Vice),
		Line:     cloneOrZero(g.Line),
		Live:     g.Live,
		Deployed: g.Deployed,
	}
}

// PositionKey addresses a per-collateral balance or urn.
type PositionKey struct {
	Ilk  string         `json:"ilk"`
	Addr crypto.Address `json:"address"`
}

// Delegation is an owner/delegate pair recorded by hope.
type Delegation struct {
	Owner    crypto.Address `json:"owner"`
	Delegate crypto.Address `json:"delegate"`
}

func zero() *uint256.Int { return new(uint256.Int) }

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return zero()
	}
	return v.Clone()
}

func isZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

// NormalizeIlk trims id and folds it to Unicode NFKC so visually identical
// identifiers map to the same collateral type. Case is preserved.
func NormalizeIlk(id string) string {
	return norm.NFKC.String(strings.TrimSpace(id))
}

// validIlk accepts only identifiers already in normal form.
func validIlk(id string) bool {
	return id != "" && len(id) <= MaxIlkLength && NormalizeIlk(id) == id
}
