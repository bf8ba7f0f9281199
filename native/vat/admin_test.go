package vat

import (
	"testing"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
)

func TestDeployOnce(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Deploy(ali), ErrAlreadyDeployed)
	if ok, _ := f.engine.Wards(ali); ok {
		t.Fatalf("second deploy must not grant rights")
	}
	if ok, _ := f.engine.Wards(me); !ok {
		t.Fatalf("deployer should be a ward")
	}
	if live, _ := f.engine.Live(); !live {
		t.Fatalf("fresh ledger should be live")
	}
}

func TestRelyDeny(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Rely(ali, ali), ErrNotAuthorized)
	f.expectErr(f.engine.Init(ali, "silver"), ErrNotAuthorized)

	f.must(f.engine.Rely(me, ali))
	f.must(f.engine.Init(ali, "silver"))
	f.must(f.engine.Deny(ali, me))
	f.expectErr(f.engine.Init(me, "bronze"), ErrNotAuthorized)
	// a former ward can no longer cage
	f.expectErr(f.engine.Cage(me), ErrNotAuthorized)
	f.must(f.engine.Cage(ali))
}

func TestInitAndFile(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Init(me, "gold"), ErrAlreadyInitialized)
	f.expectErr(f.engine.Init(me, ""), ErrInvalidIlk)
	f.expectErr(f.engine.Init(me, "this-identifier-is-longer-than-32-bytes"), ErrInvalidIlk)
	f.expectErr(f.engine.Init(me, " gold"), ErrInvalidIlk)
	f.expectErr(f.engine.Init(me, "\uff27OLD"), ErrInvalidIlk)
	if got := NormalizeIlk(" \uff27OLD "); got != "GOLD" {
		t.Fatalf("normalized %q", got)
	}

	f.expectErr(f.engine.File(me, "line", rad(1)), ErrUnrecognizedParam)
	f.expectErr(f.engine.FileIlk(me, "gold", "Line", rad(1)), ErrUnrecognizedParam)
	f.expectErr(f.engine.FileIlk(me, "silver", ParamSpot, ray(1)), ErrUnknownIlk)
	f.expectErr(f.engine.FileIlk(ali, "gold", ParamSpot, ray(1)), ErrNotAuthorized)

	f.must(f.engine.FileIlk(me, "gold", ParamDust, rad(3)))
	ilk := f.ilk()
	expectAmount(t, "rate", ilk.Rate, ray(1))
	expectAmount(t, "spot", ilk.Spot, ray(1))
	expectAmount(t, "line", ilk.Line, rad(1000))
	expectAmount(t, "dust", ilk.Dust, rad(3))

	ids, err := f.engine.Ilks()
	f.must(err)
	if len(ids) != 1 || ids[0] != "gold" {
		t.Fatalf("unexpected ilks %v", ids)
	}
	unknown, err := f.engine.Ilk("silver")
	f.must(err)
	if unknown.Initialized() {
		t.Fatalf("unregistered ilk should read as uninitialised")
	}
}

func TestCageBlocksAdministration(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.Cage(me))
	if live, _ := f.engine.Live(); live {
		t.Fatalf("expected caged ledger")
	}
	f.expectErr(f.engine.Rely(me, ali), ErrSystemCaged)
	f.expectErr(f.engine.Deny(me, me), ErrSystemCaged)
	f.expectErr(f.engine.File(me, ParamGlobalLine, rad(1)), ErrSystemCaged)
	f.expectErr(f.engine.FileIlk(me, "gold", ParamSpot, ray(2)), ErrSystemCaged)
	f.expectErr(f.engine.Fold(me, "gold", me, pos(ray(1))), ErrSystemCaged)
	// cage stays one-way
	f.must(f.engine.Cage(me))
	if live, _ := f.engine.Live(); live {
		t.Fatalf("cage must be irreversible")
	}
}

func TestHopeNope(t *testing.T) {
	f := newFixture(t)
	if ok, _ := f.engine.CanModify(ali, ali); !ok {
		t.Fatalf("owner can always modify")
	}
	if ok, _ := f.engine.CanModify(ali, bob); ok {
		t.Fatalf("delegation should default to false")
	}
	f.must(f.engine.Hope(ali, bob))
	if ok, _ := f.engine.Can(ali, bob); !ok {
		t.Fatalf("expected delegation after hope")
	}
	if ok, _ := f.engine.Can(bob, ali); ok {
		t.Fatalf("delegation must be directional")
	}
	f.must(f.engine.Nope(ali, bob))
	if ok, _ := f.engine.CanModify(ali, bob); ok {
		t.Fatalf("expected delegation cleared after nope")
	}
}

func TestSlip(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Slip(ali, "gold", ali, pos(wad(1))), ErrNotAuthorized)
	f.must(f.engine.Slip(me, "gold", ali, pos(wad(3))))
	f.must(f.engine.Slip(me, "gold", ali, neg(wad(1))))
	expectAmount(t, "gem", f.gem(ali), wad(2))
	f.expectErr(f.engine.Slip(me, "gold", ali, neg(wad(3))), ErrInsufficientBalance)
}

func TestFluxAndMove(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.Flux(me, "gold", me, ali, wad(10)))
	expectAmount(t, "ali gem", f.gem(ali), wad(10))
	expectAmount(t, "me gem", f.gem(me), wad(990))
	f.expectErr(f.engine.Flux(ali, "gold", me, ali, wad(1)), ErrNotAuthorized)
	f.expectErr(f.engine.Flux(ali, "gold", ali, bob, wad(11)), ErrInsufficientBalance)

	f.must(f.engine.Hope(me, ali))
	f.must(f.engine.Flux(ali, "gold", me, bob, wad(5)))
	expectAmount(t, "bob gem", f.gem(bob), wad(5))

	// self transfer leaves the balance unchanged
	f.must(f.engine.Flux(bob, "gold", bob, bob, wad(5)))
	expectAmount(t, "bob gem", f.gem(bob), wad(5))

	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.must(f.engine.Move(me, me, bob, rad(2)))
	expectAmount(t, "bob dai", f.dai(bob), rad(2))
	f.expectErr(f.engine.Move(bob, bob, che, rad(3)), ErrInsufficientBalance)
	f.expectErr(f.engine.Move(che, bob, che, rad(1)), ErrNotAuthorized)
}

func TestBalanceMovesAllowedAfterCage(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.must(f.engine.Cage(me))
	f.must(f.engine.Flux(me, "gold", me, ali, wad(1)))
	f.must(f.engine.Move(me, me, ali, rad(1)))
}

func TestGrab(t *testing.T) {
	f := newFixture(t)
	vow := makeAddress(0x70)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))

	f.expectErr(f.engine.Grab(ali, "gold", me, ali, vow, neg(wad(10)), neg(wad(5))), ErrNotAuthorized)

	f.must(f.engine.Grab(me, "gold", me, ali, vow, neg(wad(4)), neg(wad(2))))
	expectAmount(t, "ink", f.urn(me).Ink, wad(6))
	expectAmount(t, "art", f.urn(me).Art, wad(3))
	expectAmount(t, "ali gem", f.gem(ali), wad(4))
	expectAmount(t, "vow sin", f.sin(vow), rad(2))
	expectAmount(t, "vice", f.globals().Vice, rad(2))
	expectAmount(t, "Art", f.ilk().Art, wad(3))
	expectAmount(t, "debt unchanged", f.globals().Debt, rad(5))

	// grab ignores safety: seize the rest with the price at zero
	f.must(f.engine.FileIlk(me, "gold", ParamSpot, new(uint256.Int)))
	f.must(f.engine.Grab(me, "gold", me, ali, vow, neg(wad(6)), neg(wad(3))))
	expectAmount(t, "ink", f.urn(me).Ink, wad(0))
	expectAmount(t, "vow sin", f.sin(vow), rad(5))

	f.expectErr(f.engine.Grab(me, "gold", me, ali, vow, neg(wad(1)), fixedpoint.Delta{}), ErrUnderflow)
	f.expectErr(f.engine.Grab(me, "silver", me, ali, vow, neg(wad(1)), fixedpoint.Delta{}), ErrUnknownIlk)
}

func TestGrabAfterCage(t *testing.T) {
	f := newFixture(t)
	vow := makeAddress(0x70)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	f.must(f.engine.Cage(me))
	f.must(f.engine.Grab(me, "gold", me, vow, vow, neg(wad(10)), neg(wad(5))))
	expectAmount(t, "vice", f.globals().Vice, rad(5))
}

func TestSuckAndHeal(t *testing.T) {
	f := newFixture(t)
	f.expectErr(f.engine.Suck(ali, ali, ali, rad(1)), ErrNotAuthorized)

	f.must(f.engine.Suck(me, me, ali, rad(10)))
	expectAmount(t, "sin", f.sin(me), rad(10))
	expectAmount(t, "ali dai", f.dai(ali), rad(10))
	expectAmount(t, "vice", f.globals().Vice, rad(10))
	expectAmount(t, "debt", f.globals().Debt, rad(10))

	f.must(f.engine.Move(ali, ali, me, rad(10)))
	f.must(f.engine.Heal(me, rad(4)))
	expectAmount(t, "sin", f.sin(me), rad(6))
	expectAmount(t, "dai", f.dai(me), rad(6))
	expectAmount(t, "vice", f.globals().Vice, rad(6))
	expectAmount(t, "debt", f.globals().Debt, rad(6))

	f.expectErr(f.engine.Heal(me, rad(7)), ErrInsufficientBalance)
	f.expectErr(f.engine.Heal(ali, rad(1)), ErrNotAuthorized)
}

// Fold rescales the debt of every urn and credits the difference to the
// beneficiary.
func TestFold(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(1)), pos(wad(1))))
	expectAmount(t, "tab", f.tab(me), rad(1))

	fee := dec(t, "0.05", fixedpoint.RayDecimals)
	f.must(f.engine.Fold(me, "gold", ali, pos(fee)))
	expectAmount(t, "tab", f.tab(me), dec(t, "1.05", fixedpoint.RadDecimals))
	expectAmount(t, "ali dai", f.dai(ali), dec(t, "0.05", fixedpoint.RadDecimals))
	expectAmount(t, "debt", f.globals().Debt, dec(t, "1.05", fixedpoint.RadDecimals))

	f.must(f.engine.Fold(me, "gold", ali, neg(fee)))
	expectAmount(t, "tab", f.tab(me), rad(1))
	expectAmount(t, "ali dai", f.dai(ali), rad(0))

	f.expectErr(f.engine.Fold(me, "gold", ali, neg(fee)), ErrInsufficientBalance)
	f.expectErr(f.engine.Fold(me, "gold", ali, neg(ray(1))), ErrUnderflow)
	f.expectErr(f.engine.Fold(ali, "gold", ali, pos(fee)), ErrNotAuthorized)
	f.expectErr(f.engine.Fold(me, "silver", ali, pos(fee)), ErrUnknownIlk)
}

// Fold accrues fees past the debt ceilings; only new draws are capped.
func TestFoldIgnoresCeilings(t *testing.T) {
	f := newFixture(t)
	f.must(f.engine.FileIlk(me, "gold", ParamLine, rad(10)))
	f.must(f.engine.File(me, ParamGlobalLine, rad(10)))
	f.must(f.frob(me, pos(wad(20)), pos(wad(10))))

	f.must(f.engine.Fold(me, "gold", ali, pos(dec(t, "0.5", fixedpoint.RayDecimals))))
	expectAmount(t, "tab", f.tab(me), rad(15))
	expectAmount(t, "debt", f.globals().Debt, rad(15))

	f.expectErr(f.frob(me, fixedpoint.Delta{}, pos(wad(1))), ErrCeilingExceeded)
	f.must(f.frob(me, fixedpoint.Delta{}, neg(wad(1))))
}

func TestReadsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	f.must(f.frob(me, pos(wad(10)), pos(wad(5))))
	first := f.urn(me)
	first.Ink.SetUint64(0)
	second := f.urn(me)
	expectAmount(t, "ink", second.Ink, wad(10))
	if f.root() != f.root() {
		t.Fatalf("root should be stable without writes")
	}
}
