package events

import (
	"github.com/holiman/uint256"

	"vatchain/core/types"
	"vatchain/crypto"
)

const (
	TypeTokenSupply = "token.supply"

	SupplyReasonMint = "mint"
	SupplyReasonBurn = "burn"
)

// TokenSupply records a mint to or burn from Usr. Dai adapters emit it on
// exit and join, gem tokens when a ward mints collateral.
type TokenSupply struct {
	Token  string
	Usr    crypto.Address
	Total  *uint256.Int
	Delta  *uint256.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

func (e TokenSupply) Event() *types.Event {
	token := normalizeAsset(e.Token)
	if token == "" {
		token = "UNKNOWN"
	}
	attrs := map[string]string{
		"token": token,
		"usr":   e.Usr.String(),
		"total": amountString(e.Total),
		"delta": amountString(e.Delta),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
