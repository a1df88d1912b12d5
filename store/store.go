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

// Package store provides the key-value stores backing ledger storage during
// test runs: an in-memory store for property tests and a LevelDB-backed store
// for persistent runs.
package store

import "fmt"

// Database is a key-value store with string keys, prefix iteration in
// ascending key order, and batched two-phase writes.
type Database interface {
	// Get returns the value stored under key, or false if absent.
	Get(key string) ([]byte, bool)
	// Put stores value under key, overwriting any previous value.
	Put(key string, value []byte)
	// Delete removes the value stored under key, if any.
	Delete(key string)
	// NewBatch creates an empty write batch.
	NewBatch() Batch
	// NewIterator iterates all keys with the given prefix in ascending order.
	NewIterator(prefix string) Iterator
	// Close releases all resources held by the store.
	Close() error
}

// Batch buffers writes until they are committed atomically with Write. A
// batch that is never written has no effect; this is the rollback primitive
// for two-phase execution.
type Batch interface {
	Put(key string, value []byte)
	Delete(key string)
	// Len returns the number of buffered writes.
	Len() int
	// Write commits all buffered writes to the store.
	Write() error
	// Reset drops all buffered writes.
	Reset()
}

// Iterator walks keys of a common prefix in ascending order. Next must be
// called before the first Key/Value access.
type Iterator interface {
	Next() bool
	Key() string
	Value() []byte
	Release()
}

// Open creates a store of the given implementation. The directory is only
// used by persistent implementations.
func Open(impl string, directory string) (Database, error) {
	switch impl {
	case "memory":
		return NewMemoryDB(), nil
	case "leveldb":
		return OpenLevelDB(directory)
	default:
		return nil, fmt.Errorf("unknown store implementation %q", impl)
	}
}
