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
)

func TestGasMeter_ChargesUpToLimit(t *testing.T) {
	meter := NewGasMeter(100)
	require.NoError(t, meter.Charge(60))
	require.Equal(t, uint64(60), meter.Used())
	require.Equal(t, uint64(40), meter.Remaining())
	require.NoError(t, meter.Charge(40))
	require.Equal(t, uint64(0), meter.Remaining())
}

func TestGasMeter_ExceedingLimitReportsFullLimitAsUsed(t *testing.T) {
	meter := NewGasMeter(100)
	require.NoError(t, meter.Charge(99))
	require.ErrorIs(t, meter.Charge(2), ErrOutOfGas)
	require.Equal(t, uint64(100), meter.Used())
}

func TestGasMeter_ExhaustedMeterKeepsFailing(t *testing.T) {
	meter := NewGasMeter(10)
	require.ErrorIs(t, meter.Charge(11), ErrOutOfGas)
	require.ErrorIs(t, meter.Charge(1), ErrOutOfGas)
}

func TestGasMeter_OverflowingChargeFails(t *testing.T) {
	meter := NewGasMeter(^uint64(0))
	require.NoError(t, meter.Charge(1))
	require.ErrorIs(t, meter.Charge(^uint64(0)), ErrOutOfGas)
}
