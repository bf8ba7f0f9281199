package vat

import (
	"bytes"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"vatchain/crypto"
)

// State is the persistence contract used by the engine. Getters never return
// nil: absent records read as zero values, and returned values are copies the
// caller may mutate. Commit applies a change set atomically.
type State interface {
	Globals() (*Globals, error)
	Ilk(id string) (*Ilk, error)
	Urn(key PositionKey) (*Urn, error)
	Gem(key PositionKey) (*uint256.Int, error)
	Dai(addr crypto.Address) (*uint256.Int, error)
	Sin(addr crypto.Address) (*uint256.Int, error)
	Ward(addr crypto.Address) (bool, error)
	Can(d Delegation) (bool, error)
	IlkIDs() ([]string, error)
	Accounts() ([]crypto.Address, error)
	Delegations() ([]Delegation, error)
	Commit(cs *ChangeSet) error
}

// ChangeSet is the set of writes staged by a single operation.
type ChangeSet struct {
	Globals *Globals
	Ilks    map[string]*Ilk
	Urns    map[PositionKey]*Urn
	Gems    map[PositionKey]*uint256.Int
	Dai     map[crypto.Address]*uint256.Int
	Sin     map[crypto.Address]*uint256.Int
	Wards   map[crypto.Address]bool
	Can     map[Delegation]bool
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Ilks:  make(map[string]*Ilk),
		Urns:  make(map[PositionKey]*Urn),
		Gems:  make(map[PositionKey]*uint256.Int),
		Dai:   make(map[crypto.Address]*uint256.Int),
		Sin:   make(map[crypto.Address]*uint256.Int),
		Wards: make(map[crypto.Address]bool),
		Can:   make(map[Delegation]bool),
	}
}

// Empty reports whether the change set carries no writes.
func (cs *ChangeSet) Empty() bool {
	if cs == nil {
		return true
	}
	return cs.Globals == nil && len(cs.Ilks) == 0 && len(cs.Urns) == 0 && len(cs.Gems) == 0 &&
		len(cs.Dai) == 0 && len(cs.Sin) == 0 && len(cs.Wards) == 0 && len(cs.Can) == 0
}

// touchedAccounts lists every address written by the change set.
func (cs *ChangeSet) touchedAccounts() []crypto.Address {
	seen := make(map[crypto.Address]struct{})
	for key := range cs.Urns {
		seen[key.Addr] = struct{}{}
	}
	for key := range cs.Gems {
		seen[key.Addr] = struct{}{}
	}
	for addr := range cs.Dai {
		seen[addr] = struct{}{}
	}
	for addr := range cs.Sin {
		seen[addr] = struct{}{}
	}
	for addr := range cs.Wards {
		seen[addr] = struct{}{}
	}
	for d := range cs.Can {
		seen[d.Owner] = struct{}{}
		seen[d.Delegate] = struct{}{}
	}
	return sortAddresses(seen)
}

func sortAddresses(set map[crypto.Address]struct{}) []crypto.Address {
	out := make([]crypto.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func sortDelegations(list []Delegation) {
	sort.Slice(list, func(i, j int) bool {
		if c := bytes.Compare(list[i].Owner[:], list[j].Owner[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(list[i].Delegate[:], list[j].Delegate[:]) < 0
	})
}

// MemState is an in-memory State used by tests and ephemeral nodes.
type MemState struct {
	mu       sync.RWMutex
	globals  *Globals
	ilks     map[string]*Ilk
	urns     map[PositionKey]*Urn
	gems     map[PositionKey]*uint256.Int
	dai      map[crypto.Address]*uint256.Int
	sin      map[crypto.Address]*uint256.Int
	wards    map[crypto.Address]bool
	can      map[Delegation]bool
	accounts map[crypto.Address]struct{}
}

func NewMemState() *MemState {
	return &MemState{
		globals:  (*Globals)(nil).Clone(),
		ilks:     make(map[string]*Ilk),
		urns:     make(map[PositionKey]*Urn),
		gems:     make(map[PositionKey]*uint256.Int),
		dai:      make(map[crypto.Address]*uint256.Int),
		sin:      make(map[crypto.Address]*uint256.Int),
		wards:    make(map[crypto.Address]bool),
		can:      make(map[Delegation]bool),
		accounts: make(map[crypto.Address]struct{}),
	}
}

func (m *MemState) Globals() (*Globals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globals.Clone(), nil
}

func (m *MemState) Ilk(id string) (*Ilk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ilks[id].Clone(), nil
}

func (m *MemState) Urn(key PositionKey) (*Urn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.urns[key].Clone(), nil
}

func (m *MemState) Gem(key PositionKey) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneOrZero(m.gems[key]), nil
}

func (m *MemState) Dai(addr crypto.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneOrZero(m.dai[addr]), nil
}

func (m *MemState) Sin(addr crypto.Address) (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneOrZero(m.sin[addr]), nil
}

func (m *MemState) Ward(addr crypto.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wards[addr], nil
}

func (m *MemState) Can(d Delegation) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.can[d], nil
}

func (m *MemState) IlkIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.ilks))
	for id := range m.ilks {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemState) Accounts() ([]crypto.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortAddresses(m.accounts), nil
}

func (m *MemState) Delegations() ([]Delegation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Delegation, 0, len(m.can))
	for d, ok := range m.can {
		if ok {
			out = append(out, d)
		}
	}
	sortDelegations(out)
	return out, nil
}

func (m *MemState) Commit(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.Globals != nil {
		m.globals = cs.Globals.Clone()
	}
	for id, ilk := range cs.Ilks {
		m.ilks[id] = ilk.Clone()
	}
	for key, urn := range cs.Urns {
		m.urns[key] = urn.Clone()
	}
	for key, amount := range cs.Gems {
		m.gems[key] = cloneOrZero(amount)
	}
	for addr, amount := range cs.Dai {
		m.dai[addr] = cloneOrZero(amount)
	}
	for addr, amount := range cs.Sin {
		m.sin[addr] = cloneOrZero(amount)
	}
	for addr, ok := range cs.Wards {
		m.wards[addr] = ok
	}
	for d, ok := range cs.Can {
		if ok {
			m.can[d] = true
		} else {
			delete(m.can, d)
		}
	}
	for _, addr := range cs.touchedAccounts() {
		m.accounts[addr] = struct{}{}
	}
	return nil
}

// overlay stages writes on top of a base State. Reads fall through to the
// base for keys the operation has not written yet.
type overlay struct {
	base State
	cs   *ChangeSet
}

func newOverlay(base State) *overlay {
	return &overlay{base: base, cs: NewChangeSet()}
}

func (o *overlay) globals() (*Globals, error) {
	if o.cs.Globals != nil {
		return o.cs.Globals.Clone(), nil
	}
	return o.base.Globals()
}

func (o *overlay) setGlobals(g *Globals) { o.cs.Globals = g.Clone() }

func (o *overlay) ilk(id string) (*Ilk, error) {
	if ilk, ok := o.cs.Ilks[id]; ok {
		return ilk.Clone(), nil
	}
	return o.base.Ilk(id)
}

func (o *overlay) setIlk(id string, ilk *Ilk) { o.cs.Ilks[id] = ilk.Clone() }

func (o *overlay) urn(key PositionKey) (*Urn, error) {
	if urn, ok := o.cs.Urns[key]; ok {
		return urn.Clone(), nil
	}
	return o.base.Urn(key)
}

func (o *overlay) setUrn(key PositionKey, urn *Urn) { o.cs.Urns[key] = urn.Clone() }

func (o *overlay) gem(key PositionKey) (*uint256.Int, error) {
	if v, ok := o.cs.Gems[key]; ok {
		return v.Clone(), nil
	}
	return o.base.Gem(key)
}

func (o *overlay) setGem(key PositionKey, v *uint256.Int) { o.cs.Gems[key] = cloneOrZero(v) }

func (o *overlay) dai(addr crypto.Address) (*uint256.Int, error) {
	if v, ok := o.cs.Dai[addr]; ok {
		return v.Clone(), nil
	}
	return o.base.Dai(addr)
}

func (o *overlay) setDai(addr crypto.Address, v *uint256.Int) { o.cs.Dai[addr] = cloneOrZero(v) }

func (o *overlay) sin(addr crypto.Address) (*uint256.Int, error) {
	if v, ok := o.cs.Sin[addr]; ok {
		return v.Clone(), nil
	}
	return o.base.Sin(addr)
}

func (o *overlay) setSin(addr crypto.Address, v *uint256.Int) { o.cs.Sin[addr] = cloneOrZero(v) }

func (o *overlay) ward(addr crypto.Address) (bool, error) {
	if v, ok := o.cs.Wards[addr]; ok {
		return v, nil
	}
	return o.base.Ward(addr)
}

func (o *overlay) setWard(addr crypto.Address, v bool) { o.cs.Wards[addr] = v }

func (o *overlay) can(d Delegation) (bool, error) {
	if v, ok := o.cs.Can[d]; ok {
		return v, nil
	}
	return o.base.Can(d)
}

func (o *overlay) setCan(d Delegation, v bool) { o.cs.Can[d] = v }
