package vat

import (
	"fmt"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

// subDelta returns balance - delta.
func subDelta(balance *uint256.Int, delta fixedpoint.Delta) (*uint256.Int, error) {
	if delta.IsNeg() {
		return fixedpoint.Add(balance, delta.Abs())
	}
	return fixedpoint.Sub(balance, delta.Abs())
}

// subBalance is subDelta with underflow reported as ErrInsufficientBalance.
func subBalance(balance *uint256.Int, delta fixedpoint.Delta) (*uint256.Int, error) {
	out, err := subDelta(balance, delta)
	if err == fixedpoint.ErrUnderflow {
		return nil, ErrInsufficientBalance
	}
	return out, err
}

// positionUpdate is the staged result of applying deltas to one urn.
type positionUpdate struct {
	key  PositionKey
	ilk  *Ilk
	urn  *Urn
	dtab fixedpoint.Delta
}

func stagePosition(tx *overlay, ilk string, owner crypto.Address, dink, dart fixedpoint.Delta) (*positionUpdate, error) {
	i, err := requireIlk(tx, ilk)
	if err != nil {
		return nil, err
	}
	key := PositionKey{Ilk: ilk, Addr: owner}
	urn, err := tx.urn(key)
	if err != nil {
		return nil, err
	}
	if urn.Ink, err = fixedpoint.Apply(urn.Ink, dink); err != nil {
		return nil, err
	}
	if urn.Art, err = fixedpoint.Apply(urn.Art, dart); err != nil {
		return nil, err
	}
	if i.Art, err = fixedpoint.Apply(i.Art, dart); err != nil {
		return nil, err
	}
	dtab, err := fixedpoint.MulDelta(i.Rate, dart)
	if err != nil {
		return nil, err
	}
	return &positionUpdate{key: key, ilk: i, urn: urn, dtab: dtab}, nil
}

// safe reports whether the urn's debt is covered by its collateral value.
func safe(ilk *Ilk, urn *Urn) (bool, error) {
	tab, err := fixedpoint.Mul(urn.Art, ilk.Rate)
	if err != nil {
		return false, err
	}
	capacity, err := fixedpoint.Mul(urn.Ink, ilk.Spot)
	if err != nil {
		return false, err
	}
	return tab.Cmp(capacity) <= 0, nil
}

// dusty reports whether the urn carries debt below the collateral minimum.
func dusty(ilk *Ilk, urn *Urn) (bool, error) {
	if urn.Art.IsZero() {
		return false, nil
	}
	tab, err := fixedpoint.Mul(urn.Art, ilk.Rate)
	if err != nil {
		return false, err
	}
	return tab.Cmp(ilk.Dust) < 0, nil
}

func requireConsent(tx *overlay, owner, actor crypto.Address) error {
	ok, err := wish(tx, owner, actor)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// Frob adjusts the position of u: dink collateral is taken from v's free
// balance and dart debt is drawn to (or repaid from) w's stablecoin balance.
func (e *Engine) Frob(caller crypto.Address, ilk string, u, v, w crypto.Address, dink, dart fixedpoint.Delta) error {
	return e.apply("frob", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		riskier := dart.IsPos() || dink.IsNeg()
		if !g.Live && riskier {
			return nil, ErrSystemCaged
		}
		pos, err := stagePosition(tx, ilk, u, dink, dart)
		if err != nil {
			return nil, err
		}
		if g.Debt, err = fixedpoint.Apply(g.Debt, pos.dtab); err != nil {
			return nil, err
		}

		if dart.IsPos() {
			total, err := fixedpoint.Mul(pos.ilk.Art, pos.ilk.Rate)
			if err != nil {
				return nil, err
			}
			if total.Cmp(pos.ilk.Line) > 0 {
				return nil, fmt.Errorf("%w: %s line", ErrCeilingExceeded, ilk)
			}
			if g.Debt.Cmp(g.Line) > 0 {
				return nil, fmt.Errorf("%w: global Line", ErrCeilingExceeded)
			}
		}
		if riskier {
			ok, err := safe(pos.ilk, pos.urn)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrNotSafe
			}
			if err := requireConsent(tx, u, caller); err != nil {
				return nil, err
			}
		}
		if dink.IsPos() {
			if err := requireConsent(tx, v, caller); err != nil {
				return nil, err
			}
		}
		if dart.IsNeg() {
			if err := requireConsent(tx, w, caller); err != nil {
				return nil, err
			}
		}
		if small, err := dusty(pos.ilk, pos.urn); err != nil {
			return nil, err
		} else if small {
			return nil, ErrBelowDust
		}

		gemKey := PositionKey{Ilk: ilk, Addr: v}
		gem, err := tx.gem(gemKey)
		if err != nil {
			return nil, err
		}
		if gem, err = subBalance(gem, dink); err != nil {
			return nil, err
		}
		dai, err := tx.dai(w)
		if err != nil {
			return nil, err
		}
		if dai, err = applyBalance(dai, pos.dtab); err != nil {
			return nil, err
		}

		tx.setUrn(pos.key, pos.urn)
		tx.setIlk(ilk, pos.ilk)
		tx.setGem(gemKey, gem)
		tx.setDai(w, dai)
		tx.setGlobals(g)
		return []events.Event{events.VatFrob{
			Ilk: ilk, U: u, V: v, W: w,
			Dink: dink, Dart: dart,
			Ink: pos.urn.Ink, Art: pos.urn.Art,
		}}, nil
	})
}

// Grab seizes a position for liquidation. Collateral moves to v's free balance
// and the debt is charged to w as unbacked debt. No safety, ceiling, consent or
// shutdown checks apply.
func (e *Engine) Grab(caller crypto.Address, ilk string, u, v, w crypto.Address, dink, dart fixedpoint.Delta) error {
	return e.apply("grab", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		pos, err := stagePosition(tx, ilk, u, dink, dart)
		if err != nil {
			return nil, err
		}
		gemKey := PositionKey{Ilk: ilk, Addr: v}
		gem, err := tx.gem(gemKey)
		if err != nil {
			return nil, err
		}
		if gem, err = subBalance(gem, dink); err != nil {
			return nil, err
		}
		sin, err := tx.sin(w)
		if err != nil {
			return nil, err
		}
		if sin, err = subDelta(sin, pos.dtab); err != nil {
			return nil, err
		}
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		if g.Vice, err = subDelta(g.Vice, pos.dtab); err != nil {
			return nil, err
		}

		tx.setUrn(pos.key, pos.urn)
		tx.setIlk(ilk, pos.ilk)
		tx.setGem(gemKey, gem)
		tx.setSin(w, sin)
		tx.setGlobals(g)
		e.log().Info("vat position grabbed", "ilk", ilk, "urn", u.String(), "dink", dink.String(), "dart", dart.String())
		return []events.Event{events.VatFrob{
			Ilk: ilk, U: u, V: v, W: w,
			Dink: dink, Dart: dart,
			Ink: pos.urn.Ink, Art: pos.urn.Art,
			Seized: true,
		}}, nil
	})
}

// Fork moves dink collateral and dart debt from src's position to dst's.
// Both owners must consent and both resulting positions must be safe and
// above dust. Ilk and system totals are unchanged.
func (e *Engine) Fork(caller crypto.Address, ilk string, src, dst crypto.Address, dink, dart fixedpoint.Delta) error {
	return e.apply("fork", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if _, err := requireLive(tx); err != nil {
			return nil, err
		}
		i, err := requireIlk(tx, ilk)
		if err != nil {
			return nil, err
		}
		srcKey := PositionKey{Ilk: ilk, Addr: src}
		dstKey := PositionKey{Ilk: ilk, Addr: dst}

		u, err := tx.urn(srcKey)
		if err != nil {
			return nil, err
		}
		if u.Ink, err = subDelta(u.Ink, dink); err != nil {
			return nil, err
		}
		if u.Art, err = subDelta(u.Art, dart); err != nil {
			return nil, err
		}
		tx.setUrn(srcKey, u)

		// Read dst after staging src so a self-fork sees its own debit.
		v, err := tx.urn(dstKey)
		if err != nil {
			return nil, err
		}
		if v.Ink, err = fixedpoint.Apply(v.Ink, dink); err != nil {
			return nil, err
		}
		if v.Art, err = fixedpoint.Apply(v.Art, dart); err != nil {
			return nil, err
		}
		tx.setUrn(dstKey, v)
		if u, err = tx.urn(srcKey); err != nil {
			return nil, err
		}

		if err := requireConsent(tx, src, caller); err != nil {
			return nil, err
		}
		if err := requireConsent(tx, dst, caller); err != nil {
			return nil, err
		}
		for _, side := range []struct {
			name string
			urn  *Urn
		}{{"src", u}, {"dst", v}} {
			ok, err := safe(i, side.urn)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrNotSafe, side.name)
			}
		}
		for _, side := range []struct {
			name string
			urn  *Urn
		}{{"src", u}, {"dst", v}} {
			small, err := dusty(i, side.urn)
			if err != nil {
				return nil, err
			}
			if small {
				return nil, fmt.Errorf("%w: %s", ErrBelowDust, side.name)
			}
		}
		return []events.Event{events.VatFork{Ilk: ilk, Src: src, Dst: dst, Dink: dink, Dart: dart}}, nil
	})
}
