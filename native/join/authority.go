package join

import (
	"errors"
	"sync"

	"vatchain/crypto"
	"vatchain/storage"
)

var (
	ErrNotAuthorized = errors.New("join: not authorized")
	ErrNotLive       = errors.New("join: adapter caged")
	ErrOverflow      = errors.New("join: amount overflow")
)

type authorityRecord struct {
	Deployed bool
	Caged    bool
}

// authority persists an adapter's ward set and live flag.
type authority struct {
	mu   sync.Mutex
	name string
	db   storage.Database
}

func newAuthority(name string, db storage.Database) *authority {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &authority{name: name, db: db}
}

func (a *authority) recordKey() []byte {
	return storage.HashKey([]byte("join/" + a.name))
}

func (a *authority) wardKey(addr crypto.Address) []byte {
	return storage.HashKey([]byte("join/"+a.name+"/ward"), addr.Bytes())
}

func (a *authority) record() (*authorityRecord, error) {
	rec := new(authorityRecord)
	if _, err := storage.LoadRLP(a.db, a.recordKey(), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *authority) ward(addr crypto.Address) (bool, error) {
	var ok bool
	if _, err := storage.LoadRLP(a.db, a.wardKey(addr), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (a *authority) requireWard(addr crypto.Address) error {
	ok, err := a.ward(addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func (a *authority) requireLive() error {
	rec, err := a.record()
	if err != nil {
		return err
	}
	if rec.Caged {
		return ErrNotLive
	}
	return nil
}

func (a *authority) deploy(deployer crypto.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, err := a.record()
	if err != nil {
		return err
	}
	if rec.Deployed {
		return ErrNotAuthorized
	}
	rec.Deployed = true
	b := storage.NewRLPBatch(a.db)
	b.Put(a.recordKey(), rec)
	b.Put(a.wardKey(deployer), true)
	return b.Write()
}

func (a *authority) setWard(caller, usr crypto.Address, value bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireWard(caller); err != nil {
		return err
	}
	b := storage.NewRLPBatch(a.db)
	b.Put(a.wardKey(usr), value)
	return b.Write()
}

func (a *authority) cage(caller crypto.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireWard(caller); err != nil {
		return err
	}
	rec, err := a.record()
	if err != nil {
		return err
	}
	rec.Caged = true
	b := storage.NewRLPBatch(a.db)
	b.Put(a.recordKey(), rec)
	return b.Write()
}

func (a *authority) live() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, err := a.record()
	if err != nil {
		return false, err
	}
	return !rec.Caged, nil
}
