package storage

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// HashKey derives a fixed-width store key from its parts.
func HashKey(parts ...[]byte) []byte {
	return ethcrypto.Keccak256(parts...)
}

// LoadRLP decodes the record stored under key into out. It reports false
// without error when the key is absent.
func LoadRLP(db Database, key []byte, out interface{}) (bool, error) {
	data, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("storage: decode record: %w", err)
	}
	return true, nil
}

// RLPBatch stages RLP encoded records and writes them in one step. The first
// encoding failure is kept and returned by Write.
type RLPBatch struct {
	batch Batch
	err   error
}

func NewRLPBatch(db Database) *RLPBatch {
	return &RLPBatch{batch: db.NewBatch()}
}

func (b *RLPBatch) Put(key []byte, value interface{}) {
	if b.err != nil {
		return
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		b.err = fmt.Errorf("storage: encode record: %w", err)
		return
	}
	b.batch.Put(key, encoded)
}

// PutRaw stages an already encoded value.
func (b *RLPBatch) PutRaw(key, value []byte) {
	if b.err != nil {
		return
	}
	b.batch.Put(key, value)
}

func (b *RLPBatch) Delete(key []byte) {
	if b.err != nil {
		return
	}
	b.batch.Delete(key)
}

func (b *RLPBatch) Write() error {
	if b.err != nil {
		return b.err
	}
	if b.batch.Len() == 0 {
		return nil
	}
	return b.batch.Write()
}
