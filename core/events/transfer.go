package events

import (
	"github.com/holiman/uint256"

	"vatchain/core/types"
	"vatchain/crypto"
)

const (
	// TypeTokenTransfer is emitted for every token balance movement between
	// holders.
	TypeTokenTransfer = "token.transfer"
)

type TokenTransfer struct {
	Token string
	From  crypto.Address
	To    crypto.Address
	Wad   *uint256.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"from": e.From.String(),
		"to":   e.To.String(),
		"wad":  amountString(e.Wad),
	}
	if token := normalizeAsset(e.Token); token != "" {
		attrs["token"] = token
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}
