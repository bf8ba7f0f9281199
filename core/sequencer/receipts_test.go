package sequencer

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "vatchain/native/common"
	"vatchain/storage"
)

func TestReceiptsFormChain(t *testing.T) {
	f := newFixture(t, storage.NewMemDB(), nativecommon.Quota{})
	first := f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	second := f.must(bob, `{"op":"hope","usr":"`+ali.String()+`"}`)

	require.Equal(t, hex.EncodeToString(make([]byte, 32)), first.Parent)
	require.Equal(t, first.Digest, second.Parent)
	require.NotEqual(t, first.Digest, second.Digest)
	require.Equal(t, Head{Sequence: 2, Digest: second.Digest}, f.seq.Head())

	head, err := f.seq.Receipts().Verify()
	require.NoError(t, err)
	require.Equal(t, f.seq.Head(), head)

	digest, err := ComputeDigest(second)
	require.NoError(t, err)
	require.Equal(t, second.Digest, hex.EncodeToString(digest[:]))
}

func TestVerifyDetectsTampering(t *testing.T) {
	db := storage.NewMemDB()
	f := newFixture(t, db, nativecommon.Quota{})
	receipt := f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	f.must(ali, `{"op":"nope","usr":"`+bob.String()+`"}`)

	receipt.Op = "nope"
	encoded, err := json.Marshal(receipt)
	require.NoError(t, err)
	require.NoError(t, db.Put(receiptKey(receipt.ID), encoded))

	_, err = f.seq.Receipts().Verify()
	require.True(t, errors.Is(err, ErrDigestMismatch), "got %v", err)
}

func TestHeadSurvivesReopen(t *testing.T) {
	db := storage.NewMemDB()
	f := newFixture(t, db, nativecommon.Quota{})
	last := f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	f.open()
	require.Equal(t, Head{Sequence: 1, Digest: last.Digest}, f.seq.Head())
	next := f.must(ali, `{"op":"nope","usr":"`+bob.String()+`"}`)
	require.Equal(t, last.Digest, next.Parent)
}

func TestReceiptRange(t *testing.T) {
	f := newFixture(t, storage.NewMemDB(), nativecommon.Quota{})
	for i := 0; i < 3; i++ {
		f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	}
	var seen []uint64
	require.NoError(t, f.seq.Receipts().Range(2, 0, func(r *Receipt) error {
		seen = append(seen, r.Sequence)
		return nil
	}))
	require.Equal(t, []uint64{2, 3}, seen)
	err := f.seq.Receipts().Range(3, 4, func(*Receipt) error { return nil })
	require.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, storage.NewMemDB(), nativecommon.Quota{})
	updates, cancel := f.seq.Subscribe(4)
	receipt := f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	got := <-updates
	require.Equal(t, receipt.ID, got.ID)

	_, err := f.submit(ali, `{"op":"cage"}`)
	require.Error(t, err)
	select {
	case r := <-updates:
		t.Fatalf("rejected transaction published %v", r)
	default:
	}
	cancel()
	cancel()
	_, open := <-updates
	require.False(t, open)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	f := newFixture(t, storage.NewMemDB(), nativecommon.Quota{})
	updates, cancel := f.seq.Subscribe(1)
	defer cancel()
	f.must(ali, `{"op":"hope","usr":"`+bob.String()+`"}`)
	f.must(ali, `{"op":"nope","usr":"`+bob.String()+`"}`)
	<-updates
	_, open := <-updates
	require.False(t, open, "subscriber should be closed after overflowing")
}
