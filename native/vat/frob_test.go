package vat

import (
	"testing"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	nativecommon "vatchain/native/common"
)

func TestFrobLockAndFree(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(6)), fixedpoint.Delta{}))
	expectAmount(t, "ink", f.urn(me).Ink, wad(6))
	expectAmount(t, "gem", f.gem(me), wad(994))

	f.must(f.frob(me, neg(wad(6)), fixedpoint.Delta{}))
	expectAmount(t, "ink", f.urn(me).Ink, wad(0))
	expectAmount(t, "gem", f.gem(me), wad(1000))
}

func TestFrobMintAndRepay(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	expectAmount(t, "dai", f.dai(me), rad(5))
	expectAmount(t, "debt", f.globals().Debt, rad(5))
	expectAmount(t, "Art", f.ilk().Art, wad(5))

	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(5))))
	expectAmount(t, "dai", f.dai(me), rad(0))
	expectAmount(t, "debt", f.globals().Debt, rad(0))
	expectAmount(t, "art", f.urn(me).Art, wad(0))
}

// Ceilings bound debt growth.
func TestFrobCalm(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.FileIlk(me, "gold", ParamLine, rad(10)))
	f.must(f.frob(me, pos(wad(10)), pos(wad(9))))
	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(2))), ErrCeilingExceeded)

	g := newFixture(t)
	g.must(g.engine.File(me, ParamGlobalLine, rad(10)))
	g.must(g.frob(me, pos(wad(10)), pos(wad(9))))
	g.expectErr(g.frob(me, fixedpoint.Delta{}, pos(wad(2))), ErrCeilingExceeded)
}

func TestFrobCoolRepayAboveCeiling(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.FileIlk(me, "gold", ParamLine, rad(10)))
	f.must(f.frob(me, pos(wad(10)), pos(wad(10))))
	f.must(f.engine.FileIlk(me, "gold", ParamLine, rad(5)))
	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(1))))
	expectAmount(t, "art", f.urn(me).Art, wad(9))
}

func TestFrobSafe(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(6))), ErrNotSafe)
	f.expectErr(f.frob(me, neg(wad(6)), fixedpoint.Delta{}), ErrNotSafe)
}

func TestFrobNiceWhenUnsafe(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(10))))
	// price drop leaves the position unsafe
	f.must(f.engine.FileIlk(me, "gold", ParamSpot, dec(t, "0.5", fixedpoint.RayDecimals)))

	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(1))), ErrNotSafe)
	f.expectErr(f.frob(me, neg(wad(1)), fixedpoint.Delta{}), ErrNotSafe)
	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(1))))
	f.must(f.frob(me, pos(wad(1)), fixedpoint.Delta{}))
	// a riskier change in the same call is still rejected
	f.expectErr(f.frob(me, pos(wad(1)), pos(wad(1))), ErrNotSafe)
}

func TestFrobAltCallers(t *testing.T) {
	f := newFixture(t)
	for _, addr := range []crypto.Address{ali, bob, che} {
		f.must(f.engine.Slip(me, "gold", addr, pos(wad(20))))
	}
	f.must(f.engine.Frob(ali, "gold", ali, ali, ali, pos(wad(10)), pos(wad(5))))

	// anyone can lock collateral into a position from their own balance
	f.must(f.engine.Frob(ali, "gold", ali, ali, ali, pos(wad(1)), fixedpoint.Delta{}))
	f.must(f.engine.Frob(bob, "gold", ali, bob, bob, pos(wad(1)), fixedpoint.Delta{}))
	f.must(f.engine.Frob(che, "gold", ali, che, che, pos(wad(1)), fixedpoint.Delta{}))
	// but not from someone else's balance
	f.expectErr(f.engine.Frob(bob, "gold", ali, ali, bob, pos(wad(1)), fixedpoint.Delta{}), ErrNotAuthorized)
	f.expectErr(f.engine.Frob(bob, "gold", ali, che, bob, pos(wad(1)), fixedpoint.Delta{}), ErrNotAuthorized)

	// only the owner can free collateral, to any destination
	f.must(f.engine.Frob(ali, "gold", ali, bob, bob, neg(wad(1)), fixedpoint.Delta{}))
	f.expectErr(f.engine.Frob(bob, "gold", ali, bob, bob, neg(wad(1)), fixedpoint.Delta{}), ErrNotAuthorized)
	f.expectErr(f.engine.Frob(che, "gold", ali, che, che, neg(wad(1)), fixedpoint.Delta{}), ErrNotAuthorized)

	// only the owner can draw, to any destination
	f.must(f.engine.Frob(ali, "gold", ali, ali, bob, fixedpoint.Delta{}, pos(wad(1))))
	f.must(f.engine.Frob(ali, "gold", ali, ali, che, fixedpoint.Delta{}, pos(wad(1))))
	f.expectErr(f.engine.Frob(bob, "gold", ali, bob, bob, fixedpoint.Delta{}, pos(wad(1))), ErrNotAuthorized)
	f.expectErr(f.engine.Frob(che, "gold", ali, che, che, fixedpoint.Delta{}, pos(wad(1))), ErrNotAuthorized)

	// anyone can repay using their own stablecoin
	f.must(f.engine.Frob(bob, "gold", ali, bob, bob, fixedpoint.Delta{}, neg(wad(1))))
	f.must(f.engine.Frob(che, "gold", ali, che, che, fixedpoint.Delta{}, neg(wad(1))))
	// but not someone else's
	f.expectErr(f.engine.Frob(bob, "gold", ali, ali, ali, fixedpoint.Delta{}, neg(wad(1))), ErrNotAuthorized)
	f.expectErr(f.engine.Frob(che, "gold", ali, ali, bob, fixedpoint.Delta{}, neg(wad(1))), ErrNotAuthorized)
}

// A delegate may draw against the owner's position once hoped.
func TestFrobHope(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.Slip(me, "gold", ali, pos(wad(20))))
	f.must(f.engine.Frob(ali, "gold", ali, ali, ali, pos(wad(10)), pos(wad(5))))

	draw := func() error {
		return f.engine.Frob(bob, "gold", ali, ali, bob, fixedpoint.Delta{}, pos(wad(1)))
	}
	f.expectErr(draw(), ErrNotAuthorized)

	f.must(f.engine.Hope(ali, bob))
	f.must(draw())
	expectAmount(t, "bob dai", f.dai(bob), rad(1))
	expectAmount(t, "ali art", f.urn(ali).Art, wad(6))

	f.must(f.engine.Nope(ali, bob))
	f.expectErr(draw(), ErrNotAuthorized)
}

func TestFrobDust(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.FileIlk(me, "gold", ParamDust, rad(1)))
	f.must(f.frob(me, pos(wad(9)), pos(wad(1))))
	f.must(f.engine.FileIlk(me, "gold", ParamDust, rad(5)))
	f.expectErr(f.frob(me, pos(wad(5)), pos(wad(2))), ErrBelowDust)
	f.must(f.frob(me, fixedpoint.Delta{}, pos(wad(5))))
	f.expectErr(f.frob(me, fixedpoint.Delta{}, neg(wad(5))), ErrBelowDust)
	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(6))))
	expectAmount(t, "art", f.urn(me).Art, wad(0))
}

func TestFrobNonUnitRate(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(1))))
	f.must(f.engine.Fold(me, "gold", ali, pos(dec(t, "0.5", fixedpoint.RayDecimals))))
	f.must(f.frob(me, fixedpoint.Delta{}, pos(wad(2))))
	// 1 from the first draw, 2 * 1.5 from the second
	expectAmount(t, "dai", f.dai(me), rad(4))
	expectAmount(t, "tab", f.tab(me), dec(t, "4.5", fixedpoint.RadDecimals))
	expectAmount(t, "debt", f.globals().Debt, dec(t, "4.5", fixedpoint.RadDecimals))
}

func TestFrobUnknownIlk(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Frob(me, "silver", me, me, me, pos(wad(1)), fixedpoint.Delta{}), ErrUnknownIlk)
}

func TestFrobUnderflowAndBalances(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.frob(me, neg(wad(1)), fixedpoint.Delta{}), ErrUnderflow)
	f.expectErr(f.frob(me, pos(wad(1001)), fixedpoint.Delta{}), ErrInsufficientBalance)

	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.must(f.engine.Move(me, me, ali, rad(5)))
	f.expectErr(f.frob(me, fixedpoint.Delta{}, neg(wad(1))), ErrInsufficientBalance)
}

func TestFrobAtomicOnFailure(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	before := f.root()
	f.expectErr(f.frob(me, pos(wad(1)), pos(wad(10))), ErrNotSafe)
	f.expectErr(f.frob(me, pos(wad(2000)), fixedpoint.Delta{}), ErrInsufficientBalance)
	if after := f.root(); after != before {
		t.Fatalf("failed frob mutated state: %s != %s", after, before)
	}
}

func TestFrobAfterCage(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.must(f.engine.Cage(me))

	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(1))), ErrSystemCaged)
	f.expectErr(f.frob(me, neg(wad(1)), fixedpoint.Delta{}), ErrSystemCaged)
	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(1))))
	f.must(f.frob(me, pos(wad(1)), fixedpoint.Delta{}))
}

func TestFrobPaused(t *testing.T) {
	f := newFixture(t)
	pauses := nativecommon.NewPauseSet(ModuleName)
	f.engine.SetPauses(pauses)
	f.expectErr(f.frob(me, pos(wad(1)), fixedpoint.Delta{}), ErrModulePaused)
	pauses.Resume(ModuleName)
	f.must(f.frob(me, pos(wad(1)), fixedpoint.Delta{}))
}

func TestFrobEmitsEvent(t *testing.T) {
	f := newFixture(t)
	buf := &events.Buffer{}
	f.engine.SetEmitter(buf)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(100))), ErrNotSafe)

	emitted := buf.Drain()
	if len(emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(emitted))
	}
	frob, ok := emitted[0].(events.VatFrob)
	if !ok {
		t.Fatalf("unexpected event type %T", emitted[0])
	}
	expectAmount(t, "event ink", frob.Ink, wad(10))
	expectAmount(t, "event art", frob.Art, wad(5))
}
