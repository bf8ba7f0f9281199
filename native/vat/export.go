package vat

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"vatchain/crypto"
)

// UrnEntry is a non-empty position in a Snapshot.
type UrnEntry struct {
	PositionKey
	Urn
}

// BalanceEntry is a non-zero per-collateral balance in a Snapshot.
type BalanceEntry struct {
	PositionKey
	Amount *uint256.Int `json:"amount"`
}

// AccountEntry is a non-zero per-address balance in a Snapshot.
type AccountEntry struct {
	Addr   crypto.Address `json:"address"`
	Amount *uint256.Int   `json:"amount"`
}

// Snapshot is a full, deterministic dump of the ledger. Zero balances and
// empty positions are omitted.
type Snapshot struct {
	Globals     *Globals         `json:"globals"`
	Ilks        map[string]*Ilk  `json:"ilks"`
	Urns        []UrnEntry       `json:"urns"`
	Gems        []BalanceEntry   `json:"gems"`
	Dai         []AccountEntry   `json:"dai"`
	Sin         []AccountEntry   `json:"sin"`
	Wards       []crypto.Address `json:"wards"`
	Delegations []Delegation     `json:"delegations"`
}

// Export walks the indexes of s and returns every record.
func Export(s State) (*Snapshot, error) {
	globals, err := s.Globals()
	if err != nil {
		return nil, err
	}
	ids, err := s.IlkIDs()
	if err != nil {
		return nil, err
	}
	accounts, err := s.Accounts()
	if err != nil {
		return nil, err
	}
	delegations, err := s.Delegations()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Globals:     globals,
		Ilks:        make(map[string]*Ilk, len(ids)),
		Delegations: delegations,
	}
	for _, id := range ids {
		ilk, err := s.Ilk(id)
		if err != nil {
			return nil, err
		}
		snap.Ilks[id] = ilk
	}
	for _, addr := range accounts {
		for _, id := range ids {
			key := PositionKey{Ilk: id, Addr: addr}
			urn, err := s.Urn(key)
			if err != nil {
				return nil, err
			}
			if !urn.IsZero() {
				snap.Urns = append(snap.Urns, UrnEntry{PositionKey: key, Urn: *urn})
			}
			gem, err := s.Gem(key)
			if err != nil {
				return nil, err
			}
			if !gem.IsZero() {
				snap.Gems = append(snap.Gems, BalanceEntry{PositionKey: key, Amount: gem})
			}
		}
		dai, err := s.Dai(addr)
		if err != nil {
			return nil, err
		}
		if !dai.IsZero() {
			snap.Dai = append(snap.Dai, AccountEntry{Addr: addr, Amount: dai})
		}
		sin, err := s.Sin(addr)
		if err != nil {
			return nil, err
		}
		if !sin.IsZero() {
			snap.Sin = append(snap.Sin, AccountEntry{Addr: addr, Amount: sin})
		}
		ward, err := s.Ward(addr)
		if err != nil {
			return nil, err
		}
		if ward {
			snap.Wards = append(snap.Wards, addr)
		}
	}
	return snap, nil
}

type rootEntry struct {
	key   []byte
	value []byte
}

// Root commits to the snapshot with a Merkle-Patricia trie over the same
// hashed keys and RLP records used by KVState, so any two stores holding the
// same ledger produce the same root.
func (snap *Snapshot) Root() (common.Hash, error) {
	var entries []rootEntry
	add := func(key []byte, value interface{}) error {
		encoded, err := rlp.EncodeToBytes(value)
		if err != nil {
			return fmt.Errorf("vat: encode root entry: %w", err)
		}
		entries = append(entries, rootEntry{key: key, value: encoded})
		return nil
	}

	g := snap.Globals.Clone()
	if err := add(globalsKey, &globalsRecord{Debt: g.Debt, Vice: g.Vice, Line: g.Line, Caged: !g.Live, Deployed: g.Deployed}); err != nil {
		return common.Hash{}, err
	}
	for id, ilk := range snap.Ilks {
		ilk = ilk.Clone()
		if err := add(ilkKey(id), &ilkRecord{Art: ilk.Art, Rate: ilk.Rate, Spot: ilk.Spot, Line: ilk.Line, Dust: ilk.Dust}); err != nil {
			return common.Hash{}, err
		}
	}
	for _, entry := range snap.Urns {
		urn := entry.Urn.Clone()
		if err := add(urnKey(entry.PositionKey), &urnRecord{Ink: urn.Ink, Art: urn.Art}); err != nil {
			return common.Hash{}, err
		}
	}
	for _, entry := range snap.Gems {
		if err := add(gemKey(entry.PositionKey), cloneOrZero(entry.Amount)); err != nil {
			return common.Hash{}, err
		}
	}
	for _, entry := range snap.Dai {
		if err := add(daiKey(entry.Addr), cloneOrZero(entry.Amount)); err != nil {
			return common.Hash{}, err
		}
	}
	for _, entry := range snap.Sin {
		if err := add(sinKey(entry.Addr), cloneOrZero(entry.Amount)); err != nil {
			return common.Hash{}, err
		}
	}
	for _, addr := range snap.Wards {
		if err := add(wardKey(addr), true); err != nil {
			return common.Hash{}, err
		}
	}
	for _, d := range snap.Delegations {
		if err := add(canKey(d), true); err != nil {
			return common.Hash{}, err
		}
	}

	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })
	st := trie.NewStackTrie(nil)
	for _, entry := range entries {
		if err := st.Update(entry.key, entry.value); err != nil {
			return common.Hash{}, fmt.Errorf("vat: build state root: %w", err)
		}
	}
	return st.Hash(), nil
}

func sortedStrings(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
