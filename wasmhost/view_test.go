// Copyright 2025 Sonic Labs
// This file is part of Weft Testing Infrastructure for WASM Ledgers
//
// Weft is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Weft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Weft. If not, see <http://www.gnu.org/licenses/>.

package wasmhost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0xsoniclabs/weft/store"
)

func testView(t *testing.T, allowed ...string) (*StorageView, *store.MemoryDB) {
	t.Helper()
	db := store.NewMemoryDB()
	return NewStorageView(db, NewGasMeter(1_000_000), allowed), db
}

func TestStorageView_ReadsFallThroughToDatabase(t *testing.T) {
	view, db := testView(t, "a/")
	db.Put("a/1", []byte("x"))

	value, ok, err := view.Get("a/1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("x"), value)

	_, ok, err = view.Get("a/2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageView_BufferedWritesShadowDatabase(t *testing.T) {
	view, db := testView(t, "a/")
	db.Put("a/1", []byte("old"))

	require.NoError(t, view.Put("a/1", []byte("new")))
	value, ok, err := view.Get("a/1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)

	// nothing hits the database before commit
	stored, _ := db.Get("a/1")
	require.Equal(t, []byte("old"), stored)
}

func TestStorageView_BufferedDeleteHidesDatabaseValue(t *testing.T) {
	view, db := testView(t, "a/")
	db.Put("a/1", []byte("x"))

	require.NoError(t, view.Delete("a/1"))
	_, ok, err := view.Get("a/1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageView_WritesOutsideCapabilityAreDenied(t *testing.T) {
	view, _ := testView(t, "a/")
	require.ErrorIs(t, view.Put("b/1", []byte("x")), ErrWriteDenied)
	require.ErrorIs(t, view.Delete("b/1"), ErrWriteDenied)
	// reads are unrestricted
	_, _, err := view.Get("b/1")
	require.NoError(t, err)
}

func TestStorageView_DeltasAreSortedByKey(t *testing.T) {
	view, _ := testView(t, "")
	require.NoError(t, view.Put("b", []byte("2")))
	require.NoError(t, view.Put("a", []byte("1")))
	require.NoError(t, view.Delete("c"))

	deltas := view.Deltas()
	require.Len(t, deltas, 3)
	require.Equal(t, "a", deltas[0].Key)
	require.Equal(t, "b", deltas[1].Key)
	require.Equal(t, "c", deltas[2].Key)
	require.Nil(t, deltas[2].Value)
}

func TestStorageView_CommitAppliesWritesAndDeletes(t *testing.T) {
	view, db := testView(t, "")
	db.Put("gone", []byte("x"))

	require.NoError(t, view.Put("kept", []byte("y")))
	require.NoError(t, view.Delete("gone"))
	require.NoError(t, view.Commit())

	value, ok := db.Get("kept")
	require.True(t, ok)
	require.Equal(t, []byte("y"), value)
	_, ok = db.Get("gone")
	require.False(t, ok)

	require.Empty(t, view.Deltas())
}

func TestStorageView_DiscardDropsAllWrites(t *testing.T) {
	view, db := testView(t, "")
	require.NoError(t, view.Put("a", []byte("1")))
	view.Discard()
	require.Empty(t, view.Deltas())
	require.NoError(t, view.Commit())
	_, ok := db.Get("a")
	require.False(t, ok)
}

func TestStorageView_AccessesAreMetered(t *testing.T) {
	db := store.NewMemoryDB()
	meter := NewGasMeter(readBaseGas) // one key byte too expensive
	view := NewStorageView(db, meter, []string{""})
	_, _, err := view.Get("k")
	require.ErrorIs(t, err, ErrOutOfGas)
	require.ErrorIs(t, view.Put("k", []byte("v")), ErrOutOfGas)
}
