package vat

import (
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"vatchain/crypto"
	"vatchain/storage"
)

var (
	globalsKey        = ethcrypto.Keccak256([]byte("vat/globals"))
	ilkListKey        = ethcrypto.Keccak256([]byte("vat/ilk-list"))
	accountListKey    = ethcrypto.Keccak256([]byte("vat/account-list"))
	delegationListKey = ethcrypto.Keccak256([]byte("vat/delegation-list"))
)

type globalsRecord struct {
	Debt     *uint256.Int
	Vice     *uint256.Int
	Line     *uint256.Int
	Caged    bool
	Deployed bool
}

type ilkRecord struct {
	Art  *uint256.Int
	Rate *uint256.Int
	Spot *uint256.Int
	Line *uint256.Int
	Dust *uint256.Int
}

type urnRecord struct {
	Ink *uint256.Int
	Art *uint256.Int
}

func ilkKey(id string) []byte {
	return ethcrypto.Keccak256([]byte("vat/ilk/" + id))
}

func positionStoreKey(prefix string, key PositionKey) []byte {
	buf := make([]byte, 0, len(prefix)+len(key.Ilk)+1+crypto.AddressLength)
	buf = append(buf, prefix...)
	buf = append(buf, key.Ilk...)
	buf = append(buf, 0)
	buf = append(buf, key.Addr[:]...)
	return ethcrypto.Keccak256(buf)
}

func urnKey(key PositionKey) []byte { return positionStoreKey("vat/urn/", key) }

func gemKey(key PositionKey) []byte { return positionStoreKey("vat/gem/", key) }

func accountStoreKey(prefix string, addr crypto.Address) []byte {
	buf := make([]byte, 0, len(prefix)+crypto.AddressLength)
	buf = append(buf, prefix...)
	buf = append(buf, addr[:]...)
	return ethcrypto.Keccak256(buf)
}

func daiKey(addr crypto.Address) []byte { return accountStoreKey("vat/dai/", addr) }

func sinKey(addr crypto.Address) []byte { return accountStoreKey("vat/sin/", addr) }

func wardKey(addr crypto.Address) []byte { return accountStoreKey("vat/ward/", addr) }

func canKey(d Delegation) []byte {
	buf := make([]byte, 0, 8+2*crypto.AddressLength)
	buf = append(buf, "vat/can/"...)
	buf = append(buf, d.Owner[:]...)
	buf = append(buf, d.Delegate[:]...)
	return ethcrypto.Keccak256(buf)
}

// KVState persists the ledger in a key-value store. Records are RLP encoded
// under Keccak256-hashed keys; ilk, account and delegation indexes allow the
// full ledger to be enumerated.
type KVState struct {
	mu sync.RWMutex
	db storage.Database
}

func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func (s *KVState) load(key []byte, out interface{}) (bool, error) {
	return storage.LoadRLP(s.db, key, out)
}

func (s *KVState) Globals() (*Globals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := new(globalsRecord)
	ok, err := s.load(globalsKey, rec)
	if err != nil || !ok {
		return (*Globals)(nil).Clone(), err
	}
	return (&Globals{
		Debt:     rec.Debt,
		Vice:     rec.Vice,
		Line:     rec.Line,
		Live:     !rec.Caged,
		Deployed: rec.Deployed,
	}).Clone(), nil
}

func (s *KVState) Ilk(id string) (*Ilk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := new(ilkRecord)
	ok, err := s.load(ilkKey(id), rec)
	if err != nil || !ok {
		return (*Ilk)(nil).Clone(), err
	}
	return (&Ilk{Art: rec.Art, Rate: rec.Rate, Spot: rec.Spot, Line: rec.Line, Dust: rec.Dust}).Clone(), nil
}

func (s *KVState) Urn(key PositionKey) (*Urn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := new(urnRecord)
	ok, err := s.load(urnKey(key), rec)
	if err != nil || !ok {
		return (*Urn)(nil).Clone(), err
	}
	return (&Urn{Ink: rec.Ink, Art: rec.Art}).Clone(), nil
}

func (s *KVState) amount(key []byte) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := new(uint256.Int)
	if _, err := s.load(key, out); err != nil {
		return zero(), err
	}
	return out, nil
}

func (s *KVState) Gem(key PositionKey) (*uint256.Int, error) { return s.amount(gemKey(key)) }

func (s *KVState) Dai(addr crypto.Address) (*uint256.Int, error) { return s.amount(daiKey(addr)) }

func (s *KVState) Sin(addr crypto.Address) (*uint256.Int, error) { return s.amount(sinKey(addr)) }

func (s *KVState) flag(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out bool
	if _, err := s.load(key, &out); err != nil {
		return false, err
	}
	return out, nil
}

func (s *KVState) Ward(addr crypto.Address) (bool, error) { return s.flag(wardKey(addr)) }

func (s *KVState) Can(d Delegation) (bool, error) { return s.flag(canKey(d)) }

func (s *KVState) IlkIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ilkList()
}

func (s *KVState) ilkList() ([]string, error) {
	var list []string
	if _, err := s.load(ilkListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *KVState) Accounts() ([]crypto.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountList()
}

func (s *KVState) accountList() ([]crypto.Address, error) {
	var list []crypto.Address
	if _, err := s.load(accountListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *KVState) Delegations() ([]Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, err := s.delegationList()
	if err != nil {
		return nil, err
	}
	active := make([]Delegation, 0, len(list))
	for _, d := range list {
		var ok bool
		if _, err := s.load(canKey(d), &ok); err != nil {
			return nil, err
		}
		if ok {
			active = append(active, d)
		}
	}
	return active, nil
}

func (s *KVState) delegationList() ([]Delegation, error) {
	var list []Delegation
	if _, err := s.load(delegationListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Commit writes every staged record and index update in a single batch.
func (s *KVState) Commit(cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := storage.NewRLPBatch(s.db)
	if g := cs.Globals; g != nil {
		g = g.Clone()
		w.Put(globalsKey, &globalsRecord{Debt: g.Debt, Vice: g.Vice, Line: g.Line, Caged: !g.Live, Deployed: g.Deployed})
	}
	for id, ilk := range cs.Ilks {
		ilk = ilk.Clone()
		w.Put(ilkKey(id), &ilkRecord{Art: ilk.Art, Rate: ilk.Rate, Spot: ilk.Spot, Line: ilk.Line, Dust: ilk.Dust})
	}
	for key, urn := range cs.Urns {
		urn = urn.Clone()
		w.Put(urnKey(key), &urnRecord{Ink: urn.Ink, Art: urn.Art})
	}
	for key, amount := range cs.Gems {
		w.Put(gemKey(key), cloneOrZero(amount))
	}
	for addr, amount := range cs.Dai {
		w.Put(daiKey(addr), cloneOrZero(amount))
	}
	for addr, amount := range cs.Sin {
		w.Put(sinKey(addr), cloneOrZero(amount))
	}
	for addr, ok := range cs.Wards {
		w.Put(wardKey(addr), ok)
	}
	for d, ok := range cs.Can {
		w.Put(canKey(d), ok)
	}
	if err := s.stageIndexes(w, cs); err != nil {
		return err
	}
	return w.Write()
}

func (s *KVState) stageIndexes(w *storage.RLPBatch, cs *ChangeSet) error {
	if len(cs.Ilks) > 0 {
		list, err := s.ilkList()
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(list))
		for _, id := range list {
			known[id] = struct{}{}
		}
		grew := false
		for id := range cs.Ilks {
			if _, ok := known[id]; !ok {
				known[id] = struct{}{}
				list = append(list, id)
				grew = true
			}
		}
		if grew {
			w.Put(ilkListKey, sortedStrings(list))
		}
	}

	if touched := cs.touchedAccounts(); len(touched) > 0 {
		list, err := s.accountList()
		if err != nil {
			return err
		}
		known := make(map[crypto.Address]struct{}, len(list)+len(touched))
		for _, addr := range list {
			known[addr] = struct{}{}
		}
		before := len(known)
		for _, addr := range touched {
			known[addr] = struct{}{}
		}
		if len(known) != before {
			w.Put(accountListKey, sortAddresses(known))
		}
	}

	if len(cs.Can) > 0 {
		list, err := s.delegationList()
		if err != nil {
			return err
		}
		known := make(map[Delegation]struct{}, len(list))
		for _, d := range list {
			known[d] = struct{}{}
		}
		grew := false
		for d := range cs.Can {
			if _, ok := known[d]; !ok {
				known[d] = struct{}{}
				list = append(list, d)
				grew = true
			}
		}
		if grew {
			sortDelegations(list)
			w.Put(delegationListKey, list)
		}
	}
	return nil
}
