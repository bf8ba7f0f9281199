package storage

import "sync"

// Journal wraps a database so the writes of one transaction reach it in a
// single batch. Between Begin and Commit every Put, Delete and batch Write is
// staged in memory and reads see the staged values first. Outside a
// transaction the journal writes straight through.
type Journal struct {
	base Database

	mu      sync.RWMutex
	active  bool
	pending map[string]memOp
	order   []string
}

// NewJournal wraps base.
func NewJournal(base Database) *Journal {
	return &Journal{base: base}
}

// Base returns the wrapped database.
func (j *Journal) Base() Database { return j.base }

// Begin starts staging writes. Writes staged by an earlier transaction that
// was neither committed nor discarded are dropped.
func (j *Journal) Begin() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = true
	j.pending = make(map[string]memOp)
	j.order = nil
}

// Commit writes every staged operation to the base database in one batch
// and stops staging. On failure nothing is written and the staged operations
// are kept so the caller can Discard them.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return nil
	}
	batch := j.base.NewBatch()
	for _, key := range j.order {
		op := j.pending[key]
		if op.delete {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), op.value)
	}
	if batch.Len() > 0 {
		if err := batch.Write(); err != nil {
			return err
		}
	}
	j.reset()
	return nil
}

// Discard drops the staged operations and stops staging.
func (j *Journal) Discard() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reset()
}

func (j *Journal) reset() {
	j.active = false
	j.pending = nil
	j.order = nil
}

func (j *Journal) stage(op memOp) {
	if _, ok := j.pending[op.key]; !ok {
		j.order = append(j.order, op.key)
	}
	j.pending[op.key] = op
}

func (j *Journal) Put(key []byte, value []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return j.base.Put(key, value)
	}
	j.stage(memOp{key: string(key), value: append([]byte(nil), value...)})
	return nil
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	j.mu.RLock()
	if j.active {
		if op, ok := j.pending[string(key)]; ok {
			j.mu.RUnlock()
			if op.delete {
				return nil, ErrNotFound
			}
			return append([]byte(nil), op.value...), nil
		}
	}
	j.mu.RUnlock()
	return j.base.Get(key)
}

func (j *Journal) Has(key []byte) (bool, error) {
	j.mu.RLock()
	if j.active {
		if op, ok := j.pending[string(key)]; ok {
			j.mu.RUnlock()
			return !op.delete, nil
		}
	}
	j.mu.RUnlock()
	return j.base.Has(key)
}

func (j *Journal) Delete(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return j.base.Delete(key)
	}
	j.stage(memOp{key: string(key), delete: true})
	return nil
}

// NewBatch returns a batch whose Write stages into the open transaction, or
// writes to the base database when none is open.
func (j *Journal) NewBatch() Batch {
	return &journalBatch{journal: j}
}

// Close closes the base database.
func (j *Journal) Close() {
	j.base.Close()
}

type journalBatch struct {
	journal *Journal
	ops     []memOp
}

func (b *journalBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: append([]byte(nil), value...)})
}

func (b *journalBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *journalBatch) Len() int { return len(b.ops) }

func (b *journalBatch) Write() error {
	j := b.journal
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.active {
		for _, op := range b.ops {
			j.stage(op)
		}
		b.ops = nil
		return nil
	}
	batch := j.base.NewBatch()
	for _, op := range b.ops {
		if op.delete {
			batch.Delete([]byte(op.key))
			continue
		}
		batch.Put([]byte(op.key), op.value)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	b.ops = nil
	return nil
}
