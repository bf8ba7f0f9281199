package sequencer

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"vatchain/core/types"
	"vatchain/crypto"
	"vatchain/storage"
)

var (
	ErrReceiptNotFound = errors.New("sequencer: receipt not found")
	ErrDigestMismatch  = errors.New("sequencer: receipt digest mismatch")
)

var headKey = storage.HashKey([]byte("sequencer/head"))

func receiptKey(id uuid.UUID) []byte {
	return storage.HashKey([]byte("sequencer/receipt"), id[:])
}

func sequenceIndexKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return storage.HashKey([]byte("sequencer/index"), buf[:])
}

// Receipt records an applied transaction. Digest commits to the receipt and
// to Parent, the digest of the previous receipt, so the log forms a chain.
type Receipt struct {
	ID       uuid.UUID      `json:"id"`
	Sequence uint64         `json:"sequence"`
	Op       string         `json:"op"`
	Caller   crypto.Address `json:"caller"`
	Time     time.Time      `json:"time"`
	// Result carries an operation output such as the rate returned by drip.
	Result string        `json:"result,omitempty"`
	Events []types.Event `json:"events"`
	Parent string        `json:"parent"`
	Digest string        `json:"digest"`
}

// Head is the tip of the receipt chain.
type Head struct {
	Sequence uint64 `json:"sequence"`
	Digest   string `json:"digest"`
}

type headRecord struct {
	Sequence uint64
	Digest   []byte
}

// ReceiptLog stores receipts by id and by sequence number.
type ReceiptLog struct {
	db storage.Database
}

func NewReceiptLog(db storage.Database) *ReceiptLog {
	return &ReceiptLog{db: db}
}

// Head returns the last appended sequence and digest. An empty log has
// sequence zero and an all-zero digest.
func (l *ReceiptLog) Head() (Head, error) {
	rec := new(headRecord)
	if _, err := storage.LoadRLP(l.db, headKey, rec); err != nil {
		return Head{}, err
	}
	var digest [32]byte
	copy(digest[:], rec.Digest)
	return Head{Sequence: rec.Sequence, Digest: hex.EncodeToString(digest[:])}, nil
}

// seal fills in Parent and Digest from the current head.
func (l *ReceiptLog) seal(receipt *Receipt, head Head) error {
	receipt.Parent = head.Digest
	digest, err := ComputeDigest(receipt)
	if err != nil {
		return err
	}
	receipt.Digest = hex.EncodeToString(digest[:])
	return nil
}

// append writes receipt, its sequence index and the new head in one batch.
func (l *ReceiptLog) append(receipt *Receipt) error {
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(receipt.Digest)
	if err != nil {
		return fmt.Errorf("sequencer: receipt digest: %w", err)
	}
	w := storage.NewRLPBatch(l.db)
	w.PutRaw(receiptKey(receipt.ID), encoded)
	w.PutRaw(sequenceIndexKey(receipt.Sequence), receipt.ID[:])
	w.Put(headKey, &headRecord{Sequence: receipt.Sequence, Digest: digest})
	return w.Write()
}

// Get loads a stored receipt.
func (l *ReceiptLog) Get(id uuid.UUID) (*Receipt, error) {
	data, err := l.db.Get(receiptKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	receipt := new(Receipt)
	if err := json.Unmarshal(data, receipt); err != nil {
		return nil, fmt.Errorf("sequencer: decode receipt: %w", err)
	}
	return receipt, nil
}

// At loads the receipt of the transaction numbered seq.
func (l *ReceiptLog) At(seq uint64) (*Receipt, error) {
	data, err := l.db.Get(sequenceIndexKey(seq))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("sequencer: decode receipt index: %w", err)
	}
	return l.Get(id)
}

// Range calls fn for every receipt numbered from through to, inclusive. A to
// of zero means the head.
func (l *ReceiptLog) Range(from, to uint64, fn func(*Receipt) error) error {
	if from == 0 {
		from = 1
	}
	if to == 0 {
		head, err := l.Head()
		if err != nil {
			return err
		}
		to = head.Sequence
	}
	for seq := from; seq <= to; seq++ {
		receipt, err := l.At(seq)
		if err != nil {
			return err
		}
		if err := fn(receipt); err != nil {
			return err
		}
	}
	return nil
}

// Verify recomputes the chain from the first receipt to the head.
func (l *ReceiptLog) Verify() (Head, error) {
	head, err := l.Head()
	if err != nil {
		return Head{}, err
	}
	parent := hex.EncodeToString(make([]byte, 32))
	err = l.Range(1, head.Sequence, func(r *Receipt) error {
		if r.Parent != parent {
			return fmt.Errorf("%w: receipt %d parent %s, want %s", ErrDigestMismatch, r.Sequence, r.Parent, parent)
		}
		digest, err := ComputeDigest(r)
		if err != nil {
			return err
		}
		if got := hex.EncodeToString(digest[:]); got != r.Digest {
			return fmt.Errorf("%w: receipt %d", ErrDigestMismatch, r.Sequence)
		}
		parent = r.Digest
		return nil
	})
	if err != nil {
		return Head{}, err
	}
	if head.Sequence > 0 && parent != head.Digest {
		return Head{}, fmt.Errorf("%w: head", ErrDigestMismatch)
	}
	return head, nil
}

// ComputeDigest hashes the receipt fields and its parent digest with BLAKE3.
// Event attributes are hashed in key order.
func ComputeDigest(r *Receipt) ([32]byte, error) {
	var zero [32]byte
	parent, err := hex.DecodeString(r.Parent)
	if err != nil || len(parent) != len(zero) {
		return zero, fmt.Errorf("sequencer: invalid parent digest %q", r.Parent)
	}
	buf := new(bytes.Buffer)
	buf.Write(parent)
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], r.Sequence)
	buf.Write(num[:])
	buf.Write(r.ID[:])
	writeDelimited(buf, []byte(r.Op))
	buf.Write(r.Caller.Bytes())
	binary.BigEndian.PutUint64(num[:], uint64(r.Time.UnixNano()))
	buf.Write(num[:])
	writeDelimited(buf, []byte(r.Result))
	binary.BigEndian.PutUint64(num[:], uint64(len(r.Events)))
	buf.Write(num[:])
	for _, evt := range r.Events {
		writeDelimited(buf, []byte(evt.Type))
		keys := make([]string, 0, len(evt.Attributes))
		for k := range evt.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		binary.BigEndian.PutUint64(num[:], uint64(len(keys)))
		buf.Write(num[:])
		for _, k := range keys {
			writeDelimited(buf, []byte(k))
			writeDelimited(buf, []byte(evt.Attributes[k]))
		}
	}
	return blake3.Sum256(buf.Bytes()), nil
}

func writeDelimited(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}
