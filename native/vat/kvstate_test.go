package vat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vatchain/storage"
)

// script drives a representative sequence of operations against engine.
func script(t *testing.T, engine *Engine) {
	t.Helper()
	vow := makeAddress(0x70)
	steps := []func() error{
		func() error { return engine.Deploy(me) },
		func() error { return engine.Init(me, "gold") },
		func() error { return engine.Init(me, "silver") },
		func() error { return engine.FileIlk(me, "gold", ParamSpot, ray(2)) },
		func() error { return engine.FileIlk(me, "gold", ParamLine, rad(1000)) },
		func() error { return engine.File(me, ParamGlobalLine, rad(1000)) },
		func() error { return engine.Slip(me, "gold", ali, pos(wad(50))) },
		func() error { return engine.Frob(ali, "gold", ali, ali, ali, pos(wad(40)), pos(wad(20))) },
		func() error { return engine.Move(ali, ali, bob, rad(5)) },
		func() error { return engine.Hope(bob, ali) },
		func() error { return engine.Fork(ali, "gold", ali, bob, pos(wad(10)), pos(wad(5))) },
		func() error { return engine.Fold(me, "gold", vow, pos(ray(1))) },
		func() error { return engine.Grab(me, "gold", bob, vow, vow, neg(wad(10)), neg(wad(5))) },
		func() error { return engine.Suck(me, vow, che, rad(3)) },
		func() error { return engine.Rely(me, che) },
	}
	for i, step := range steps {
		require.NoErrorf(t, step(), "step %d", i)
	}
}

func TestKVStateMatchesMemState(t *testing.T) {
	mem := NewEngine(NewMemState())
	kv := NewEngine(NewKVState(storage.NewMemDB()))
	script(t, mem)
	script(t, kv)

	memSnap, err := mem.Export()
	require.NoError(t, err)
	kvSnap, err := kv.Export()
	require.NoError(t, err)
	require.Equal(t, memSnap, kvSnap)

	memRoot, err := mem.Root()
	require.NoError(t, err)
	kvRoot, err := kv.Root()
	require.NoError(t, err)
	require.Equal(t, memRoot, kvRoot)
}

func TestKVStateRejectedOperationLeavesNoWrites(t *testing.T) {
	db := storage.NewMemDB()
	engine := NewEngine(NewKVState(db))
	script(t, engine)
	before, err := engine.Root()
	require.NoError(t, err)

	err = engine.Frob(ali, "gold", ali, ali, ali, pos(wad(1)), pos(wad(1000)))
	require.ErrorIs(t, err, ErrCeilingExceeded)

	after, err := engine.Root()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestKVStatePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vat")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	engine := NewEngine(NewKVState(db))
	script(t, engine)
	want, err := engine.Root()
	require.NoError(t, err)
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	engine = NewEngine(NewKVState(reopened))
	got, err := engine.Root()
	require.NoError(t, err)
	require.Equal(t, want, got)

	urn, err := engine.Urn("gold", ali)
	require.NoError(t, err)
	require.Equal(t, wad(30).Dec(), urn.Ink.Dec())
	require.Equal(t, wad(15).Dec(), urn.Art.Dec())

	require.ErrorIs(t, engine.Deploy(ali), ErrAlreadyDeployed)
	ok, err := engine.Can(bob, ali)
	require.NoError(t, err)
	require.True(t, ok)
	ids, err := engine.Ilks()
	require.NoError(t, err)
	require.Equal(t, []string{"gold", "silver"}, ids)
}

func TestKVStateCagePersists(t *testing.T) {
	db := storage.NewMemDB()
	engine := NewEngine(NewKVState(db))
	require.NoError(t, engine.Deploy(me))
	require.NoError(t, engine.Cage(me))

	live, err := NewEngine(NewKVState(db)).Live()
	require.NoError(t, err)
	require.False(t, live)
}
