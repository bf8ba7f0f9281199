package events

import (
	"strings"

	"github.com/holiman/uint256"

	"vatchain/core/fixedpoint"
	"vatchain/core/types"
	"vatchain/crypto"
)

const (
	TypeVatInit    = "vat.init"
	TypeVatFile    = "vat.file"
	TypeVatFileIlk = "vat.file_ilk"
	TypeVatSlip    = "vat.slip"
	TypeVatFlux    = "vat.flux"
	TypeVatMove    = "vat.move"
	TypeVatFrob    = "vat.frob"
	TypeVatGrab    = "vat.grab"
	TypeVatFork    = "vat.fork"
	TypeVatHeal    = "vat.heal"
	TypeVatSuck    = "vat.suck"
	TypeVatFold    = "vat.fold"
	TypeVatCage    = "vat.cage"
)

// Authorization actions carried by VatAuth.
const (
	AuthRely = "rely"
	AuthDeny = "deny"
	AuthHope = "hope"
	AuthNope = "nope"
)

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// VatInit announces a newly registered collateral type.
type VatInit struct {
	Ilk string
}

func (VatInit) EventType() string { return TypeVatInit }

func (e VatInit) Event() *types.Event {
	return &types.Event{Type: TypeVatInit, Attributes: map[string]string{"ilk": e.Ilk}}
}

// VatFile records a governance parameter change. Ilk is empty for global
// parameters.
type VatFile struct {
	Ilk  string
	What string
	Data *uint256.Int
}

func (e VatFile) EventType() string {
	if e.Ilk != "" {
		return TypeVatFileIlk
	}
	return TypeVatFile
}

func (e VatFile) Event() *types.Event {
	attrs := map[string]string{
		"what": e.What,
		"data": amountString(e.Data),
	}
	if e.Ilk != "" {
		attrs["ilk"] = e.Ilk
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// VatAuth captures ward and delegation changes.
type VatAuth struct {
	Action string
	Caller crypto.Address
	Target crypto.Address
}

func (e VatAuth) EventType() string {
	return "vat." + strings.ToLower(strings.TrimSpace(e.Action))
}

func (e VatAuth) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"caller": e.Caller.String(),
		"target": e.Target.String(),
	}}
}

// VatSlip records a privileged collateral balance adjustment.
type VatSlip struct {
	Ilk string
	Usr crypto.Address
	Wad fixedpoint.Delta
}

func (VatSlip) EventType() string { return TypeVatSlip }

func (e VatSlip) Event() *types.Event {
	return &types.Event{Type: TypeVatSlip, Attributes: map[string]string{
		"ilk": e.Ilk,
		"usr": e.Usr.String(),
		"wad": e.Wad.String(),
	}}
}

// VatFlux records a collateral transfer.
type VatFlux struct {
	Ilk string
	Src crypto.Address
	Dst crypto.Address
	Wad *uint256.Int
}

func (VatFlux) EventType() string { return TypeVatFlux }

func (e VatFlux) Event() *types.Event {
	return &types.Event{Type: TypeVatFlux, Attributes: map[string]string{
		"ilk": e.Ilk,
		"src": e.Src.String(),
		"dst": e.Dst.String(),
		"wad": amountString(e.Wad),
	}}
}

// VatMove records a stablecoin transfer.
type VatMove struct {
	Src crypto.Address
	Dst crypto.Address
	Rad *uint256.Int
}

func (VatMove) EventType() string { return TypeVatMove }

func (e VatMove) Event() *types.Event {
	return &types.Event{Type: TypeVatMove, Attributes: map[string]string{
		"src": e.Src.String(),
		"dst": e.Dst.String(),
		"rad": amountString(e.Rad),
	}}
}

// VatFrob records a position adjustment. Seized marks adjustments performed
// through grab, in which case W names the address charged with the debt.
type VatFrob struct {
	Ilk    string
	U      crypto.Address
	V      crypto.Address
	W      crypto.Address
	Dink   fixedpoint.Delta
	Dart   fixedpoint.Delta
	Ink    *uint256.Int
	Art    *uint256.Int
	Seized bool
}

func (e VatFrob) EventType() string {
	if e.Seized {
		return TypeVatGrab
	}
	return TypeVatFrob
}

func (e VatFrob) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"ilk":  e.Ilk,
		"u":    e.U.String(),
		"v":    e.V.String(),
		"w":    e.W.String(),
		"dink": e.Dink.String(),
		"dart": e.Dart.String(),
		"ink":  amountString(e.Ink),
		"art":  amountString(e.Art),
	}}
}

// VatFork records a position split or merge.
type VatFork struct {
	Ilk  string
	Src  crypto.Address
	Dst  crypto.Address
	Dink fixedpoint.Delta
	Dart fixedpoint.Delta
}

func (VatFork) EventType() string { return TypeVatFork }

func (e VatFork) Event() *types.Event {
	return &types.Event{Type: TypeVatFork, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"src":  e.Src.String(),
		"dst":  e.Dst.String(),
		"dink": e.Dink.String(),
		"dart": e.Dart.String(),
	}}
}

// VatHeal records cancellation of unbacked debt against stablecoin.
type VatHeal struct {
	Caller crypto.Address
	Rad    *uint256.Int
}

func (VatHeal) EventType() string { return TypeVatHeal }

func (e VatHeal) Event() *types.Event {
	return &types.Event{Type: TypeVatHeal, Attributes: map[string]string{
		"caller": e.Caller.String(),
		"rad":    amountString(e.Rad),
	}}
}

// VatSuck records the creation of unbacked stablecoin.
type VatSuck struct {
	U   crypto.Address
	V   crypto.Address
	Rad *uint256.Int
}

func (VatSuck) EventType() string { return TypeVatSuck }

func (e VatSuck) Event() *types.Event {
	return &types.Event{Type: TypeVatSuck, Attributes: map[string]string{
		"u":   e.U.String(),
		"v":   e.V.String(),
		"rad": amountString(e.Rad),
	}}
}

// VatFold records an accumulated rate change and the resulting stablecoin
// credited to the beneficiary.
type VatFold struct {
	Ilk  string
	U    crypto.Address
	Rate fixedpoint.Delta
	Rad  fixedpoint.Delta
}

func (VatFold) EventType() string { return TypeVatFold }

func (e VatFold) Event() *types.Event {
	return &types.Event{Type: TypeVatFold, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"u":    e.U.String(),
		"rate": e.Rate.String(),
		"rad":  e.Rad.String(),
	}}
}

// VatCage announces the one-way shutdown.
type VatCage struct {
	Caller crypto.Address
}

func (VatCage) EventType() string { return TypeVatCage }

func (e VatCage) Event() *types.Event {
	return &types.Event{Type: TypeVatCage, Attributes: map[string]string{"caller": e.Caller.String()}}
}
