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
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/0xsoniclabs/weft/ledger"
	"github.com/0xsoniclabs/weft/logger"
)

// statusModule assembles a minimal WASM module whose _apply_tx ignores its
// input and returns the given status code. The binary is hand-encoded:
// magic and version, a (i64,i64)->i64 function type, one function, one
// memory page, exports for _apply_tx and memory, and a body of a single
// i64.const. Status codes must fit a one-byte signed LEB128.
func statusModule(status byte) []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, // \0asm
		0x01, 0x00, 0x00, 0x00, // version 1
		// type section: (i64, i64) -> i64
		0x01, 0x07, 0x01, 0x60, 0x02, 0x7e, 0x7e, 0x01, 0x7e,
		// function section: one function of type 0
		0x03, 0x02, 0x01, 0x00,
		// memory section: min one page
		0x05, 0x03, 0x01, 0x00, 0x01,
		// export section: "_apply_tx" func 0, "memory" mem 0
		0x07, 0x16, 0x02,
		0x09, '_', 'a', 'p', 'p', 'l', 'y', '_', 't', 'x', 0x00, 0x00,
		0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
		// code section: no locals, i64.const status, end
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x42, status, 0x0b,
	}
}

func testRuntime(t *testing.T, code []byte) *Runtime {
	t.Helper()
	_, db := testGenesis(t)
	rt, err := NewRuntime(context.Background(), code, db, 1_000_000, logger.NewLogger("info", "Test"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, rt.Close())
	})
	return rt
}

func encodedTransfer(t *testing.T) []byte {
	t.Helper()
	input, err := ledger.EncodeOperation(ledger.Transfer{
		From:   ledger.AddressOf(1),
		Source: ledger.AddressOf(1),
		Target: ledger.AddressOf(2),
		Token:  ledger.NativeToken,
		Amount: uint256.NewInt(1),
	})
	require.NoError(t, err)
	return input
}

func TestRuntime_ZeroStatusIsAccepted(t *testing.T) {
	rt := testRuntime(t, statusModule(0))
	outcome, err := rt.Execute(context.Background(), encodedTransfer(t))
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.Empty(t, outcome.Deltas) // the module wrote nothing
	require.NotZero(t, outcome.GasUsed)
}

func TestRuntime_NonzeroStatusMapsToRejectionReason(t *testing.T) {
	rt := testRuntime(t, statusModule(byte(ledger.ReasonInsufficientBalance)))
	outcome, err := rt.Execute(context.Background(), encodedTransfer(t))
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.Equal(t, ledger.ReasonInsufficientBalance, outcome.Reason)
}

func TestRuntime_UnknownStatusCodeIsMalformed(t *testing.T) {
	rt := testRuntime(t, statusModule(0x3f))
	outcome, err := rt.Execute(context.Background(), encodedTransfer(t))
	require.NoError(t, err)
	require.False(t, outcome.Accepted)
	require.Equal(t, ledger.ReasonMalformed, outcome.Reason)
}

func TestRuntime_MalformedInputFailsFast(t *testing.T) {
	rt := testRuntime(t, statusModule(0))
	_, err := rt.Execute(context.Background(), []byte{0x01, 0x02})
	require.ErrorIs(t, err, ledger.ErrEncoding)
}

func TestRuntime_InvalidModuleCodeIsRefused(t *testing.T) {
	_, db := testGenesis(t)
	_, err := NewRuntime(context.Background(), []byte("not wasm"), db, 1_000_000, logger.NewLogger("info", "Test"))
	require.Error(t, err)
}

func TestRuntime_MissingEntryPointIsAnError(t *testing.T) {
	// same binary with the entry point exported under a different name
	code := statusModule(0)
	copy(code[30:], []byte("_zpply_tx"))
	rt := testRuntime(t, code)
	_, err := rt.Execute(context.Background(), encodedTransfer(t))
	require.Error(t, err)
}
