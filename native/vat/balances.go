package vat

import (
	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

// Slip adjusts a free collateral balance. It is reserved for wards such as
// collateral adapters.
func (e *Engine) Slip(caller crypto.Address, ilk string, usr crypto.Address, wad fixedpoint.Delta) error {
	return e.apply("slip", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		key := PositionKey{Ilk: ilk, Addr: usr}
		balance, err := tx.gem(key)
		if err != nil {
			return nil, err
		}
		next, err := applyBalance(balance, wad)
		if err != nil {
			return nil, err
		}
		tx.setGem(key, next)
		return []events.Event{events.VatSlip{Ilk: ilk, Usr: usr, Wad: wad}}, nil
	})
}

// Flux moves free collateral from src to dst.
func (e *Engine) Flux(caller crypto.Address, ilk string, src, dst crypto.Address, wad *uint256.Int) error {
	return e.apply("flux", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		ok, err := wish(tx, src, caller)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotAuthorized
		}
		srcKey := PositionKey{Ilk: ilk, Addr: src}
		dstKey := PositionKey{Ilk: ilk, Addr: dst}
		balance, err := tx.gem(srcKey)
		if err != nil {
			return nil, err
		}
		remaining, err := debit(balance, wad)
		if err != nil {
			return nil, err
		}
		tx.setGem(srcKey, remaining)
		received, err := tx.gem(dstKey)
		if err != nil {
			return nil, err
		}
		received, err = fixedpoint.Add(received, wad)
		if err != nil {
			return nil, err
		}
		tx.setGem(dstKey, received)
		return []events.Event{events.VatFlux{Ilk: ilk, Src: src, Dst: dst, Wad: cloneOrZero(wad)}}, nil
	})
}

// Move transfers stablecoin from src to dst.
func (e *Engine) Move(caller, src, dst crypto.Address, rad *uint256.Int) error {
	return e.apply("move", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		ok, err := wish(tx, src, caller)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotAuthorized
		}
		balance, err := tx.dai(src)
		if err != nil {
			return nil, err
		}
		remaining, err := debit(balance, rad)
		if err != nil {
			return nil, err
		}
		tx.setDai(src, remaining)
		received, err := tx.dai(dst)
		if err != nil {
			return nil, err
		}
		received, err = fixedpoint.Add(received, rad)
		if err != nil {
			return nil, err
		}
		tx.setDai(dst, received)
		return []events.Event{events.VatMove{Src: src, Dst: dst, Rad: cloneOrZero(rad)}}, nil
	})
}

// Heal cancels the caller's unbacked debt against its stablecoin balance,
// reducing both system totals.
func (e *Engine) Heal(caller crypto.Address, rad *uint256.Int) error {
	return e.apply("heal", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		sin, err := tx.sin(caller)
		if err != nil {
			return nil, err
		}
		if sin, err = debit(sin, rad); err != nil {
			return nil, err
		}
		dai, err := tx.dai(caller)
		if err != nil {
			return nil, err
		}
		if dai, err = debit(dai, rad); err != nil {
			return nil, err
		}
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		if g.Vice, err = fixedpoint.Sub(g.Vice, rad); err != nil {
			return nil, err
		}
		if g.Debt, err = fixedpoint.Sub(g.Debt, rad); err != nil {
			return nil, err
		}
		tx.setSin(caller, sin)
		tx.setDai(caller, dai)
		tx.setGlobals(g)
		return []events.Event{events.VatHeal{Caller: caller, Rad: cloneOrZero(rad)}}, nil
	})
}

// Suck mints unbacked stablecoin to v, charging the matching debt to u.
func (e *Engine) Suck(caller, u, v crypto.Address, rad *uint256.Int) error {
	return e.apply("suck", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		sin, err := tx.sin(u)
		if err != nil {
			return nil, err
		}
		if sin, err = fixedpoint.Add(sin, rad); err != nil {
			return nil, err
		}
		tx.setSin(u, sin)
		dai, err := tx.dai(v)
		if err != nil {
			return nil, err
		}
		if dai, err = fixedpoint.Add(dai, rad); err != nil {
			return nil, err
		}
		tx.setDai(v, dai)
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		if g.Vice, err = fixedpoint.Add(g.Vice, rad); err != nil {
			return nil, err
		}
		if g.Debt, err = fixedpoint.Add(g.Debt, rad); err != nil {
			return nil, err
		}
		tx.setGlobals(g)
		return []events.Event{events.VatSuck{U: u, V: v, Rad: cloneOrZero(rad)}}, nil
	})
}
