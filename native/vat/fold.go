package vat

import (
	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

// Fold changes the accumulated rate of ilk by rate and credits the resulting
// change in outstanding debt, Art * rate, to u. Every position's tab moves
// with the rate without touching individual urns.
func (e *Engine) Fold(caller crypto.Address, ilk string, u crypto.Address, rate fixedpoint.Delta) error {
	return e.apply("fold", func(tx *overlay) ([]events.Event, error) {
		if err := e.guard(); err != nil {
			return nil, err
		}
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		g, err := requireLive(tx)
		if err != nil {
			return nil, err
		}
		i, err := requireIlk(tx, ilk)
		if err != nil {
			return nil, err
		}
		if i.Rate, err = fixedpoint.Apply(i.Rate, rate); err != nil {
			return nil, err
		}
		if i.Rate.IsZero() {
			return nil, fixedpoint.ErrUnderflow
		}
		rad, err := fixedpoint.MulDelta(i.Art, rate)
		if err != nil {
			return nil, err
		}
		dai, err := tx.dai(u)
		if err != nil {
			return nil, err
		}
		if dai, err = applyBalance(dai, rad); err != nil {
			return nil, err
		}
		if g.Debt, err = fixedpoint.Apply(g.Debt, rad); err != nil {
			return nil, err
		}
		tx.setIlk(ilk, i)
		tx.setDai(u, dai)
		tx.setGlobals(g)
		e.log().Info("vat rate folded", "ilk", ilk, "rate", i.Rate.Dec(), "rad", rad.String())
		return []events.Event{events.VatFold{Ilk: ilk, U: u, Rate: rate, Rad: rad}}, nil
	})
}

// Cage shuts the ledger down. It cannot be undone.
func (e *Engine) Cage(caller crypto.Address) error {
	return e.apply("cage", func(tx *overlay) ([]events.Event, error) {
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		g.Live = false
		tx.setGlobals(g)
		e.log().Info("vat caged", "caller", caller.String())
		return []events.Event{events.VatCage{Caller: caller}}, nil
	})
}
