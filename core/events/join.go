package events

import (
	"github.com/holiman/uint256"

	"vatchain/core/types"
	"vatchain/crypto"
)

const (
	TypeJoinGem = "join.gem"
	TypeJoinDai = "join.dai"
	TypeJugDrip = "jug.drip"

	JoinDirectionIn  = "join"
	JoinDirectionOut = "exit"
)

// AdapterTransfer records tokens crossing an adapter boundary. Ilk is empty for
// the stablecoin adapter.
type AdapterTransfer struct {
	Ilk       string
	Direction string
	Usr       crypto.Address
	Wad       *uint256.Int
}

func (e AdapterTransfer) EventType() string {
	if e.Ilk == "" {
		return TypeJoinDai
	}
	return TypeJoinGem
}

func (e AdapterTransfer) Event() *types.Event {
	attrs := map[string]string{
		"direction": e.Direction,
		"usr":       e.Usr.String(),
		"wad":       amountString(e.Wad),
	}
	if e.Ilk != "" {
		attrs["ilk"] = e.Ilk
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// JugDrip records a stability fee collection.
type JugDrip struct {
	Ilk  string
	Rate *uint256.Int
	Rho  int64
}

func (JugDrip) EventType() string { return TypeJugDrip }

func (e JugDrip) Event() *types.Event {
	return &types.Event{Type: TypeJugDrip, Attributes: map[string]string{
		"ilk":  e.Ilk,
		"rate": amountString(e.Rate),
		"rho":  formatInt(e.Rho),
	}}
}
