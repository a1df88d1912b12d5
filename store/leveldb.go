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

package store

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent store for long runs whose working set exceeds
// memory. It satisfies the same two-phase write contract as MemoryDB.
type LevelDB struct {
	backend *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB store in the given directory.
func OpenLevelDB(directory string) (*LevelDB, error) {
	backend, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot open leveldb store in %s; %w", directory, err)
	}
	return &LevelDB{backend: backend}, nil
}

func (db *LevelDB) Get(key string) ([]byte, bool) {
	value, err := db.backend.Get([]byte(key), nil)
	if err != nil {
		return nil, false
	}
	return value, true
}

func (db *LevelDB) Put(key string, value []byte) {
	// write errors surface on Close at the latest
	_ = db.backend.Put([]byte(key), value, nil)
}

func (db *LevelDB) Delete(key string) {
	_ = db.backend.Delete([]byte(key), nil)
}

func (db *LevelDB) NewBatch() Batch {
	return &levelBatch{db: db, batch: new(leveldb.Batch)}
}

func (db *LevelDB) NewIterator(prefix string) Iterator {
	it := db.backend.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	return &levelIterator{backend: it}
}

func (db *LevelDB) Close() error {
	return db.backend.Close()
}

type levelBatch struct {
	db    *LevelDB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key string, value []byte) {
	b.batch.Put([]byte(key), value)
}

func (b *levelBatch) Delete(key string) {
	b.batch.Delete([]byte(key))
}

func (b *levelBatch) Len() int {
	return b.batch.Len()
}

func (b *levelBatch) Write() error {
	return b.db.backend.Write(b.batch, nil)
}

func (b *levelBatch) Reset() {
	b.batch.Reset()
}

type levelIterator struct {
	backend iterator.Iterator
}

func (it *levelIterator) Next() bool {
	return it.backend.Next()
}

func (it *levelIterator) Key() string {
	return string(it.backend.Key())
}

func (it *levelIterator) Value() []byte {
	value := it.backend.Value()
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

func (it *levelIterator) Release() {
	it.backend.Release()
}
