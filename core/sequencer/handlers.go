package sequencer

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/crypto"
	"vatchain/native/join"
	"vatchain/native/jug"
	"vatchain/native/token"
)

// handler applies one operation and returns an optional result string.
type handler func(l *Ledger, caller crypto.Address, tx *Tx) (string, error)

// addrs resolves the named address fields of tx in order.
func addrs(tx *Tx, caller crypto.Address, fields ...string) ([]crypto.Address, error) {
	out := make([]crypto.Address, len(fields))
	for i, field := range fields {
		var value string
		switch field {
		case "usr":
			value = tx.Usr
		case "u":
			value = tx.U
		case "v":
			value = tx.V
		case "w":
			value = tx.W
		case "src":
			value = tx.Src
		case "dst":
			value = tx.Dst
		default:
			return nil, fmt.Errorf("%w: unknown address field %s", ErrInvalidTx, field)
		}
		addr, err := tx.address(field, value, caller)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func amountErr(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidTx, field, err)
}

var handlers = map[string]handler{
	// ledger administration
	"rely": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		return "", l.Vat.Rely(caller, a[0])
	},
	"deny": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		return "", l.Vat.Deny(caller, a[0])
	},
	"hope": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		return "", l.Vat.Hope(caller, a[0])
	},
	"nope": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		return "", l.Vat.Nope(caller, a[0])
	},
	"init": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		_, err := l.InitCollateral(caller, tx.Ilk)
		return "", err
	},
	"file": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		data, err := tx.Data.Uint()
		if err != nil {
			return "", amountErr("data", err)
		}
		return "", l.Vat.File(caller, tx.What, data)
	},
	"file_ilk": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		data, err := tx.Data.Uint()
		if err != nil {
			return "", amountErr("data", err)
		}
		return "", l.Vat.FileIlk(caller, tx.Ilk, tx.What, data)
	},
	"cage": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return "", l.Vat.Cage(caller)
	},

	// balances
	"slip": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		wad, err := tx.Wad.Delta()
		if err != nil {
			return "", amountErr("wad", err)
		}
		return "", l.Vat.Slip(caller, tx.Ilk, a[0], wad)
	},
	"flux": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "src", "dst")
		if err != nil {
			return "", err
		}
		wad, err := tx.Wad.Uint()
		if err != nil {
			return "", amountErr("wad", err)
		}
		return "", l.Vat.Flux(caller, tx.Ilk, a[0], a[1], wad)
	},
	"move": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "src", "dst")
		if err != nil {
			return "", err
		}
		rad, err := tx.Rad.Uint()
		if err != nil {
			return "", amountErr("rad", err)
		}
		return "", l.Vat.Move(caller, a[0], a[1], rad)
	},
	"suck": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "u", "v")
		if err != nil {
			return "", err
		}
		rad, err := tx.Rad.Uint()
		if err != nil {
			return "", amountErr("rad", err)
		}
		return "", l.Vat.Suck(caller, a[0], a[1], rad)
	},
	"heal": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		rad, err := tx.Rad.Uint()
		if err != nil {
			return "", amountErr("rad", err)
		}
		return "", l.Vat.Heal(caller, rad)
	},

	// positions
	"frob": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "u", "v", "w")
		if err != nil {
			return "", err
		}
		dink, dart, err := deltas(tx)
		if err != nil {
			return "", err
		}
		return "", l.Vat.Frob(caller, tx.Ilk, a[0], a[1], a[2], dink, dart)
	},
	"grab": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "u", "v", "w")
		if err != nil {
			return "", err
		}
		dink, dart, err := deltas(tx)
		if err != nil {
			return "", err
		}
		return "", l.Vat.Grab(caller, tx.Ilk, a[0], a[1], a[2], dink, dart)
	},
	"fork": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "src", "dst")
		if err != nil {
			return "", err
		}
		dink, dart, err := deltas(tx)
		if err != nil {
			return "", err
		}
		return "", l.Vat.Fork(caller, tx.Ilk, a[0], a[1], dink, dart)
	},
	"fold": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "u")
		if err != nil {
			return "", err
		}
		rate, err := tx.Rate.Delta()
		if err != nil {
			return "", amountErr("rate", err)
		}
		return "", l.Vat.Fold(caller, tx.Ilk, a[0], rate)
	},

	// adapters
	"gem_join": gemTransfer((*join.GemJoin).Join),
	"gem_exit": gemTransfer((*join.GemJoin).Exit),
	"dai_join": daiTransfer((*join.DaiJoin).Join),
	"dai_exit": daiTransfer((*join.DaiJoin).Exit),
	"join_cage": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		if tx.Ilk == "" {
			return "", l.DaiJoin.Cage(caller)
		}
		c, ok := l.Collateral(tx.Ilk)
		if !ok {
			return "", fmt.Errorf("%w: no adapter for %q", ErrInvalidTx, tx.Ilk)
		}
		return "", c.Join.Cage(caller)
	},

	// fees
	"jug_init": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return "", l.Jug.Init(caller, tx.Ilk)
	},
	"jug_file": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		switch tx.What {
		case jug.ParamVow:
			a, err := addrs(tx, caller, "usr")
			if err != nil {
				return "", err
			}
			return "", l.Jug.FileVow(caller, tx.What, a[0])
		case jug.ParamDuty:
			data, err := tx.Data.Uint()
			if err != nil {
				return "", amountErr("data", err)
			}
			return "", l.FileDuty(caller, tx.Ilk, data)
		default:
			data, err := tx.Data.Uint()
			if err != nil {
				return "", amountErr("data", err)
			}
			return "", l.Jug.FileBase(caller, tx.What, data)
		}
	},
	"drip": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		rate, err := l.Jug.Drip(tx.Ilk)
		if err != nil {
			return "", err
		}
		return rate.Dec(), nil
	},

	// tokens
	"approve": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return tokenCall(l, caller, tx, "usr", func(t *token.Token, a crypto.Address, wad *uint256.Int) error {
			return t.Approve(caller, a, wad)
		})
	},
	"transfer": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return tokenCall(l, caller, tx, "dst", func(t *token.Token, a crypto.Address, wad *uint256.Int) error {
			return t.Transfer(caller, a, wad)
		})
	},
	"transfer_from": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		src, err := addrs(tx, caller, "src")
		if err != nil {
			return "", err
		}
		return tokenCall(l, caller, tx, "dst", func(t *token.Token, a crypto.Address, wad *uint256.Int) error {
			return t.TransferFrom(caller, src[0], a, wad)
		})
	},
	"mint": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return tokenCall(l, caller, tx, "usr", func(t *token.Token, a crypto.Address, wad *uint256.Int) error {
			return t.Mint(caller, a, wad)
		})
	},
	"burn": func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		return tokenCall(l, caller, tx, "usr", func(t *token.Token, a crypto.Address, wad *uint256.Int) error {
			return t.Burn(caller, a, wad)
		})
	},
}

// Ops lists the supported operation names.
func Ops() []string {
	out := make([]string, 0, len(handlers))
	for op := range handlers {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func deltas(tx *Tx) (dink, dart fixedpoint.Delta, err error) {
	if dink, err = tx.Dink.Delta(); err != nil {
		return dink, dart, amountErr("dink", err)
	}
	if dart, err = tx.Dart.Delta(); err != nil {
		return dink, dart, amountErr("dart", err)
	}
	return dink, dart, nil
}

func gemTransfer(fn func(*join.GemJoin, crypto.Address, crypto.Address, *uint256.Int) error) handler {
	return func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		c, ok := l.Collateral(tx.Ilk)
		if !ok {
			return "", fmt.Errorf("%w: no adapter for %q", ErrInvalidTx, tx.Ilk)
		}
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		wad, err := tx.Wad.Uint()
		if err != nil {
			return "", amountErr("wad", err)
		}
		return "", fn(c.Join, caller, a[0], wad)
	}
}

func daiTransfer(fn func(*join.DaiJoin, crypto.Address, crypto.Address, *uint256.Int) error) handler {
	return func(l *Ledger, caller crypto.Address, tx *Tx) (string, error) {
		a, err := addrs(tx, caller, "usr")
		if err != nil {
			return "", err
		}
		wad, err := tx.Wad.Uint()
		if err != nil {
			return "", amountErr("wad", err)
		}
		return "", fn(l.DaiJoin, caller, a[0], wad)
	}
}

func tokenCall(l *Ledger, caller crypto.Address, tx *Tx, field string, fn func(*token.Token, crypto.Address, *uint256.Int) error) (string, error) {
	t, err := l.Token(tx.Token)
	if err != nil {
		return "", err
	}
	a, err := addrs(tx, caller, field)
	if err != nil {
		return "", err
	}
	wad, err := tx.Wad.Uint()
	if err != nil {
		return "", amountErr("wad", err)
	}
	return "", fn(t, a[0], wad)
}
