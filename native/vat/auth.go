package vat

import (
	"vatchain/core/events"
	"vatchain/crypto"
)

// Deploy grants the deployer administrative rights on a fresh ledger. It can
// only succeed once per store.
func (e *Engine) Deploy(deployer crypto.Address) error {
	return e.apply("deploy", func(tx *overlay) ([]events.Event, error) {
		g, err := tx.globals()
		if err != nil {
			return nil, err
		}
		if g.Deployed {
			return nil, ErrAlreadyDeployed
		}
		g.Deployed = true
		g.Live = true
		tx.setGlobals(g)
		tx.setWard(deployer, true)
		e.log().Info("vat deployed", "deployer", deployer.String())
		return []events.Event{events.VatAuth{Action: events.AuthRely, Caller: deployer, Target: deployer}}, nil
	})
}

// Rely grants administrative rights to usr.
func (e *Engine) Rely(caller, usr crypto.Address) error {
	return e.setWard(events.AuthRely, caller, usr, true)
}

// Deny revokes administrative rights from usr.
func (e *Engine) Deny(caller, usr crypto.Address) error {
	return e.setWard(events.AuthDeny, caller, usr, false)
}

func (e *Engine) setWard(action string, caller, usr crypto.Address, value bool) error {
	return e.apply(action, func(tx *overlay) ([]events.Event, error) {
		if err := requireWard(tx, caller); err != nil {
			return nil, err
		}
		if _, err := requireLive(tx); err != nil {
			return nil, err
		}
		tx.setWard(usr, value)
		e.log().Info("vat ward updated", "action", action, "caller", caller.String(), "usr", usr.String())
		return []events.Event{events.VatAuth{Action: action, Caller: caller, Target: usr}}, nil
	})
}

// Hope lets usr act on the caller's balances and positions.
func (e *Engine) Hope(caller, usr crypto.Address) error {
	return e.setCan(events.AuthHope, caller, usr, true)
}

// Nope withdraws a delegation granted by Hope.
func (e *Engine) Nope(caller, usr crypto.Address) error {
	return e.setCan(events.AuthNope, caller, usr, false)
}

func (e *Engine) setCan(action string, caller, usr crypto.Address, value bool) error {
	return e.apply(action, func(tx *overlay) ([]events.Event, error) {
		tx.setCan(Delegation{Owner: caller, Delegate: usr}, value)
		return []events.Event{events.VatAuth{Action: action, Caller: caller, Target: usr}}, nil
	})
}
