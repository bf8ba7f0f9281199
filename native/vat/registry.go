package vat

import (
	"fmt"

	"github.com/holiman/uint256"

	"vatchain/core/events"
	"vatchain/core/fixedpoint"
	"vatchain/crypto"
)

// Governance parameter names accepted by File and FileIlk.
const (
	ParamGlobalLine = "Line"
	ParamSpot       = "spot"
	ParamLine       = "line"
	ParamDust       = "dust"
)

// Init registers a collateral type with a unit accumulated rate.
func (e *Engine) Init(caller crypto.Address, ilk string) error {
	return e.apply("init", func(tx *overlay) ([]events.Event, error) {
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		if !validIlk(ilk) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidIlk, ilk)
		}
		current, err := tx.ilk(ilk)
		if err != nil {
			return nil, err
		}
		if current.Initialized() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, ilk)
		}
		current.Rate = fixedpoint.RAY()
		tx.setIlk(ilk, current)
		e.log().Info("vat collateral initialised", "ilk", ilk)
		return []events.Event{events.VatInit{Ilk: ilk}}, nil
	})
}

// File sets a global parameter. Only "Line" is recognised.
func (e *Engine) File(caller crypto.Address, what string, data *uint256.Int) error {
	return e.apply("file", func(tx *overlay) ([]events.Event, error) {
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		g, err := requireLive(tx)
		if err != nil {
			return nil, err
		}
		if what != ParamGlobalLine {
			return nil, fmt.Errorf("%w: %q", ErrUnrecognizedParam, what)
		}
		g.Line = cloneOrZero(data)
		tx.setGlobals(g)
		e.log().Info("vat parameter updated", "what", what, "data", g.Line.Dec())
		return []events.Event{events.VatFile{What: what, Data: g.Line}}, nil
	})
}

// FileIlk sets a per-collateral parameter: spot, line or dust.
func (e *Engine) FileIlk(caller crypto.Address, ilk, what string, data *uint256.Int) error {
	return e.apply("file_ilk", func(tx *overlay) ([]events.Event, error) {
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		if _, err := requireLive(tx); err != nil {
			return nil, err
		}
		current, err := requireIlk(tx, ilk)
		if err != nil {
			return nil, err
		}
		value := cloneOrZero(data)
		switch what {
		case ParamSpot:
			current.Spot = value
		case ParamLine:
			current.Line = value
		case ParamDust:
			current.Dust = value
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnrecognizedParam, what)
		}
		tx.setIlk(ilk, current)
		e.log().Info("vat collateral parameter updated", "ilk", ilk, "what", what, "data", value.Dec())
		return []events.Event{events.VatFile{Ilk: ilk, What: what, Data: value}}, nil
	})
}
