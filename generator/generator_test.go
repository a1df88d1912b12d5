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

package generator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0xsoniclabs/weft/ledger"
)

func testState() *ledger.State {
	return ledger.NewGenesisState(ledger.GenesisConfig{
		Accounts:     6,
		BalanceRange: 10_000,
		Channels:     2,
		Seed:         7,
	})
}

func TestGenerator_SameSeedYieldsSameSequence(t *testing.T) {
	a, _ := New(42, DefaultWeights()).Sequence(testState(), 200)
	b, _ := New(42, DefaultWeights()).Sequence(testState(), 200)
	require.Equal(t, a, b)
}

func TestGenerator_DifferentSeedsDiverge(t *testing.T) {
	a, _ := New(1, DefaultWeights()).Sequence(testState(), 50)
	b, _ := New(2, DefaultWeights()).Sequence(testState(), 50)
	require.NotEqual(t, a, b)
}

func TestGenerator_CoversAllOperationKinds(t *testing.T) {
	ops, _ := New(42, DefaultWeights()).Sequence(testState(), 1000)
	seen := map[ledger.OpKind]int{}
	for _, op := range ops {
		seen[op.Kind()]++
	}
	for kind := ledger.OpKind(0); kind < ledger.NumOpKinds; kind++ {
		require.NotZero(t, seen[kind], "kind %v never generated", kind)
	}
}

func TestGenerator_InvalidFractionIsRespected(t *testing.T) {
	weights := DefaultWeights()
	weights.InvalidFraction = 0.25
	ops, _ := New(3, weights).Sequence(testState(), 2000)
	invalid := 0
	for _, op := range ops {
		if op.Kind() == ledger.InvalidTransferID {
			invalid++
		}
	}
	// loose band around the expected 500
	require.Greater(t, invalid, 350)
	require.Less(t, invalid, 650)
}

func TestGenerator_ZeroInvalidFractionGeneratesNoFaults(t *testing.T) {
	weights := DefaultWeights()
	weights.InvalidFraction = 0
	ops, _ := New(5, weights).Sequence(testState(), 500)
	for _, op := range ops {
		require.NotEqual(t, ledger.InvalidTransferID, op.Kind())
	}
}

func TestGenerator_InvalidTransfersAreRejectedByTheModel(t *testing.T) {
	weights := DefaultWeights()
	weights.InvalidFraction = 1
	g := New(11, weights)
	state := testState()
	for i := 0; i < 200; i++ {
		op := g.Next(state)
		require.Equal(t, ledger.InvalidTransferID, op.Kind())
		next, outcome := ledger.Apply(state, op)
		require.False(t, outcome.Accepted, "faulty op %d accepted: %+v", i, op)
		state = next
	}
}

func TestGenerator_ValidOperationsAreMostlyAccepted(t *testing.T) {
	weights := DefaultWeights()
	weights.InvalidFraction = 0
	weights.UpdatePredicate = 0 // deny-all rebinds cause legitimate rejections
	g := New(13, weights)
	state := testState()
	accepted := 0
	for i := 0; i < 500; i++ {
		op := g.Next(state)
		next, outcome := ledger.Apply(state, op)
		if outcome.Accepted {
			accepted++
		}
		state = next
	}
	require.Greater(t, accepted, 450)
}

func TestGenerator_RecvOnlyGeneratedForPendingPackets(t *testing.T) {
	weights := Weights{PacketRecv: 1}
	g := New(17, weights)
	state := testState() // no packets in flight

	// with recv infeasible and all else zero weighted, the generator falls
	// back to faulty transfers instead of producing undeliverable receives
	for i := 0; i < 50; i++ {
		op := g.Next(state)
		require.NotEqual(t, ledger.IbcPacketRecvID, op.Kind())
	}
}

func TestGenerator_SequenceEvolvesState(t *testing.T) {
	genesis := testState()
	_, final := New(42, DefaultWeights()).Sequence(genesis, 300)
	require.Greater(t, final.Height, genesis.Height)
	require.NoError(t, ledger.CheckInvariants(genesis, final))
}
