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

import "github.com/cockroachdb/errors"

// ErrOutOfGas is returned by a gas meter whose limit has been reached. The
// executor maps it to a rejection with an out-of-gas reason, never to a
// harness failure.
var ErrOutOfGas = errors.New("out of gas")

// Gas schedule of the execution host. Reads and writes pay a flat cost plus
// a per-byte cost, matching the asymmetry of the underlying storage.
const (
	baseExecutionGas = 1000
	inputByteGas     = 1
	readBaseGas      = 100
	readByteGas      = 1
	writeBaseGas     = 200
	writeByteGas     = 2
	predicateGas     = 500
)

// GasMeter tracks gas consumption of a single execution against a hard
// limit. Once the limit is hit every further charge fails; the meter reports
// the full limit as used so that partial work is not under-billed.
type GasMeter struct {
	limit uint64
	used  uint64
}

// NewGasMeter creates a meter with the given hard limit.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Charge consumes the given amount of gas. It returns ErrOutOfGas when the
// limit would be exceeded.
func (m *GasMeter) Charge(amount uint64) error {
	if m.used+amount < m.used || m.used+amount > m.limit {
		m.used = m.limit
		return ErrOutOfGas
	}
	m.used += amount
	return nil
}

// Used returns the gas consumed so far.
func (m *GasMeter) Used() uint64 {
	return m.used
}

// Remaining returns the gas left before the limit is reached.
func (m *GasMeter) Remaining() uint64 {
	return m.limit - m.used
}
