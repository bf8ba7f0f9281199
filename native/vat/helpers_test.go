package vat

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

func makeAddress(b byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = b
	}
	return addr
}

var (
	me  = makeAddress(0x01)
	ali = makeAddress(0xA1)
	bob = makeAddress(0xB0)
	che = makeAddress(0xC4)
)

func wad(n uint64) *uint256.Int { return fixedpoint.Wad(n) }
func ray(n uint64) *uint256.Int { return fixedpoint.Ray(n) }
func rad(n uint64) *uint256.Int { return fixedpoint.Rad(n) }

func pos(v *uint256.Int) fixedpoint.Delta { return fixedpoint.Pos(v) }
func neg(v *uint256.Int) fixedpoint.Delta { return fixedpoint.Neg(v) }

// dec parses a decimal amount at the given precision, e.g. dec(t, "0.5", 18).
func dec(t *testing.T, value string, decimals int) *uint256.Int {
	t.Helper()
	out, err := fixedpoint.ParseUnits(value, decimals)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return out
}

type fixture struct {
	t      *testing.T
	state  *MemState
	engine *Engine
}

// newFixture deploys a ledger owned by me with a "gold" collateral type priced
// at spot 1, ceilings of 1000 and 1000 gold credited to me.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := NewMemState()
	engine := NewEngine(state)
	f := &fixture{t: t, state: state, engine: engine}
	f.must(engine.Deploy(me))
	f.must(engine.Init(me, "gold"))
	f.must(engine.FileIlk(me, "gold", ParamSpot, ray(1)))
	f.must(engine.FileIlk(me, "gold", ParamLine, rad(1000)))
	f.must(engine.File(me, ParamGlobalLine, rad(1000)))
	f.must(engine.Slip(me, "gold", me, pos(wad(1000))))
	return f
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected error: %v", err)
	}
}

func (f *fixture) expectErr(err, target error) {
	f.t.Helper()
	if !errors.Is(err, target) {
		f.t.Fatalf("expected %v, got %v", target, err)
	}
}

// frob adjusts usr's own position using its own balances.
func (f *fixture) frob(usr crypto.Address, dink, dart fixedpoint.Delta) error {
	return f.engine.Frob(usr, "gold", usr, usr, usr, dink, dart)
}

func (f *fixture) urn(addr crypto.Address) *Urn {
	f.t.Helper()
	u, err := f.engine.Urn("gold", addr)
	f.must(err)
	return u
}

func (f *fixture) gem(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	v, err := f.engine.Gem("gold", addr)
	f.must(err)
	return v
}

func (f *fixture) dai(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	v, err := f.engine.Dai(addr)
	f.must(err)
	return v
}

func (f *fixture) sin(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	v, err := f.engine.Sin(addr)
	f.must(err)
	return v
}

func (f *fixture) globals() *Globals {
	f.t.Helper()
	g, err := f.engine.Globals()
	f.must(err)
	return g
}

func (f *fixture) ilk() *Ilk {
	f.t.Helper()
	i, err := f.engine.Ilk("gold")
	f.must(err)
	return i
}

func (f *fixture) tab(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	v, err := f.engine.Tab("gold", addr)
	f.must(err)
	return v
}

func (f *fixture) root() string {
	f.t.Helper()
	root, err := f.engine.Root()
	f.must(err)
	return root.Hex()
}

func expectAmount(t *testing.T, label string, got, want *uint256.Int) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s: expected %s, got %s", label, want.Dec(), got.Dec())
	}
}
