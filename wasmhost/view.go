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
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/store"
)

// ErrWriteDenied indicates a write to a key outside the capability set
// declared for the executing operation.
var ErrWriteDenied = errors.New("write outside capability set")

// StorageView is a buffered, gas-metered window into the ledger storage for
// one execution. Reads fall through to the backing database, writes stay in
// the buffer until Commit. Writes are restricted to the capability prefixes
// declared for the operation; everything outside is denied.
//
// A nil buffered value marks a pending deletion.
type StorageView struct {
	db      store.Database
	meter   *GasMeter
	allowed []string
	writes  map[string][]byte
}

// NewStorageView creates a view over db restricted to the given write
// prefixes, charging all accesses against meter.
func NewStorageView(db store.Database, meter *GasMeter, allowed []string) *StorageView {
	return &StorageView{
		db:      db,
		meter:   meter,
		allowed: allowed,
		writes:  map[string][]byte{},
	}
}

// Get returns the current value of key, observing buffered writes first.
func (v *StorageView) Get(key string) ([]byte, bool, error) {
	if err := v.meter.Charge(readBaseGas + uint64(len(key))*readByteGas); err != nil {
		return nil, false, err
	}
	if value, ok := v.writes[key]; ok {
		if value == nil {
			return nil, false, nil
		}
		return slices.Clone(value), true, nil
	}
	value, ok := v.db.Get(key)
	if !ok {
		return nil, false, nil
	}
	if err := v.meter.Charge(uint64(len(value)) * readByteGas); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put buffers a write of key to value.
func (v *StorageView) Put(key string, value []byte) error {
	if !v.writable(key) {
		return errors.Wrapf(ErrWriteDenied, "key %q", key)
	}
	cost := writeBaseGas + uint64(len(key)+len(value))*writeByteGas
	if err := v.meter.Charge(cost); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	v.writes[key] = slices.Clone(value)
	return nil
}

// Delete buffers a deletion of key.
func (v *StorageView) Delete(key string) error {
	if !v.writable(key) {
		return errors.Wrapf(ErrWriteDenied, "key %q", key)
	}
	if err := v.meter.Charge(writeBaseGas + uint64(len(key))*writeByteGas); err != nil {
		return err
	}
	v.writes[key] = nil
	return nil
}

func (v *StorageView) writable(key string) bool {
	for _, prefix := range v.allowed {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Deltas returns the buffered writes in canonical key order.
func (v *StorageView) Deltas() []ledger.Delta {
	keys := maps.Keys(v.writes)
	slices.Sort(keys)
	deltas := make([]ledger.Delta, 0, len(keys))
	for _, key := range keys {
		deltas = append(deltas, ledger.Delta{Key: key, Value: v.writes[key]})
	}
	return deltas
}

// Commit applies all buffered writes to the backing database in one batch
// and resets the buffer.
func (v *StorageView) Commit() error {
	batch := v.db.NewBatch()
	for key, value := range v.writes {
		if value == nil {
			batch.Delete(key)
		} else {
			batch.Put(key, value)
		}
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "cannot commit storage view")
	}
	v.writes = map[string][]byte{}
	return nil
}

// Discard drops all buffered writes.
func (v *StorageView) Discard() {
	v.writes = map[string][]byte{}
}
