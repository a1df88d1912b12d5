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

package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *State {
	t.Helper()
	return NewGenesisState(GenesisConfig{
		Accounts:     4,
		BalanceRange: 1000,
		Channels:     2,
		Seed:         42,
	})
}

func TestApply_TransferMovesFundsAndBumpsHeight(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)
	before1 := state.Balance(NativeToken, a1).Clone()
	before2 := state.Balance(NativeToken, a2).Clone()

	next, outcome := Apply(state, Transfer{
		From: a1, Source: a1, Target: a2,
		Token: NativeToken, Amount: uint256.NewInt(7),
	})
	require.True(t, outcome.Accepted)
	require.Equal(t, new(uint256.Int).SubUint64(before1, 7), next.Balance(NativeToken, a1))
	require.Equal(t, new(uint256.Int).AddUint64(before2, 7), next.Balance(NativeToken, a2))
	require.Equal(t, state.Height+1, next.Height)

	// the input state must stay untouched
	require.Equal(t, before1, state.Balance(NativeToken, a1))
	require.Equal(t, before2, state.Balance(NativeToken, a2))
	require.NoError(t, CheckInvariants(state, next))
}

func TestApply_TransferDeltasAreSortedAndComplete(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)

	next, outcome := Apply(state, Transfer{
		From: a1, Source: a1, Target: a2,
		Token: NativeToken, Amount: uint256.NewInt(1),
	})
	require.True(t, outcome.Accepted)
	require.Len(t, outcome.Deltas, 3)
	for i := 1; i < len(outcome.Deltas); i++ {
		require.Less(t, outcome.Deltas[i-1].Key, outcome.Deltas[i].Key)
	}
	keys := map[string][]byte{}
	for _, delta := range outcome.Deltas {
		keys[delta.Key] = delta.Value
	}
	require.Equal(t, EncodeBalance(next.Balance(NativeToken, a1)), keys[BalanceKey(NativeToken, a1)])
	require.Equal(t, EncodeBalance(next.Balance(NativeToken, a2)), keys[BalanceKey(NativeToken, a2)])
	require.Equal(t, EncodeHeight(next.Height), keys[HeightKey])
}

func TestApply_TransferRejectionReasons(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)
	unknown := AddressOf(99)

	tests := map[string]struct {
		op   Transfer
		want Reason
	}{
		"nil amount": {
			Transfer{From: a1, Source: a1, Target: a2, Token: NativeToken},
			ReasonMalformed,
		},
		"zero amount": {
			Transfer{From: a1, Source: a1, Target: a2, Token: NativeToken, Amount: uint256.NewInt(0)},
			ReasonMalformed,
		},
		"empty token": {
			Transfer{From: a1, Source: a1, Target: a2, Amount: uint256.NewInt(1)},
			ReasonMalformed,
		},
		"self transfer": {
			Transfer{From: a1, Source: a1, Target: a1, Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonMalformed,
		},
		"zero address": {
			Transfer{From: a1, Source: a1, Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonMalformed,
		},
		"wrong signer": {
			Transfer{From: a2, Source: a1, Target: a2, Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonUnauthorized,
		},
		"unknown source": {
			Transfer{From: unknown, Source: unknown, Target: a2, Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonUnknownAccount,
		},
		"unknown target": {
			Transfer{From: a1, Source: a1, Target: unknown, Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonUnknownAccount,
		},
		"excessive amount": {
			Transfer{From: a1, Source: a1, Target: a2, Token: NativeToken, Amount: uint256.NewInt(1 << 40)},
			ReasonInsufficientBalance,
		},
		"unknown token": {
			Transfer{From: a1, Source: a1, Target: a2, Token: "doge", Amount: uint256.NewInt(1)},
			ReasonInsufficientBalance,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			next, outcome := Apply(state, test.op)
			require.False(t, outcome.Accepted)
			require.Equal(t, test.want, outcome.Reason)
			require.Same(t, state, next)
			require.Empty(t, outcome.Deltas)
		})
	}
}

func TestApply_InvalidTransferSharesTransferRules(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)

	_, outcome := Apply(state, InvalidTransfer{
		Transfer: Transfer{From: a2, Source: a1, Target: a2, Token: NativeToken, Amount: uint256.NewInt(1)},
		Fault:    FaultWrongSigner,
	})
	require.False(t, outcome.Accepted)
	require.Equal(t, ReasonUnauthorized, outcome.Reason)
}

func TestApply_PredicateUpdateLocksAccount(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)

	// a1 rebinds itself to deny-all
	locked, outcome := Apply(state, UpdatePredicate{
		From: a1, Account: a1,
		Predicate: Predicate{Kind: PredicateDenyAll},
	})
	require.True(t, outcome.Accepted)
	require.Len(t, outcome.Deltas, 2)

	// debits from the locked account are now refused
	_, outcome = Apply(locked, Transfer{
		From: a1, Source: a1, Target: a2,
		Token: NativeToken, Amount: uint256.NewInt(1),
	})
	require.Equal(t, ReasonPredicateRejected, outcome.Reason)

	// and so are credits to it
	_, outcome = Apply(locked, Transfer{
		From: a2, Source: a2, Target: a1,
		Token: NativeToken, Amount: uint256.NewInt(1),
	})
	require.Equal(t, ReasonPredicateRejected, outcome.Reason)
}

func TestApply_DebitCapPredicateBoundsSingleDebits(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)

	capped, outcome := Apply(state, UpdatePredicate{
		From: a1, Account: a1,
		Predicate: Predicate{Kind: PredicateDebitCap, Cap: uint256.NewInt(10)},
	})
	require.True(t, outcome.Accepted)

	_, outcome = Apply(capped, Transfer{
		From: a1, Source: a1, Target: a2,
		Token: NativeToken, Amount: uint256.NewInt(10),
	})
	require.True(t, outcome.Accepted)

	_, outcome = Apply(capped, Transfer{
		From: a1, Source: a1, Target: a2,
		Token: NativeToken, Amount: uint256.NewInt(11),
	})
	require.Equal(t, ReasonPredicateRejected, outcome.Reason)
}

func TestApply_PredicateUpdateRequiresSelf(t *testing.T) {
	state := testState(t)
	a1, a2 := AddressOf(1), AddressOf(2)

	_, outcome := Apply(state, UpdatePredicate{
		From: a1, Account: a2,
		Predicate: Predicate{Kind: PredicateAllowAll},
	})
	require.Equal(t, ReasonUnauthorized, outcome.Reason)
}

func TestApply_PacketSendEscrowsFunds(t *testing.T) {
	state := testState(t)
	a1 := AddressOf(1)
	escrow := EscrowAddress("channel-0")
	before := state.Balance(NativeToken, a1).Clone()

	next, outcome := Apply(state, IbcPacketSend{
		From: a1, Channel: "channel-0",
		Token: NativeToken, Amount: uint256.NewInt(20),
		Receiver: AddressOf(2),
	})
	require.True(t, outcome.Accepted)
	require.Equal(t, new(uint256.Int).SubUint64(before, 20), next.Balance(NativeToken, a1))
	require.Equal(t, uint256.NewInt(20), next.Balance(NativeToken, escrow))

	channel := next.Channels["channel-0"]
	require.Equal(t, uint64(2), channel.NextSend)
	require.Len(t, channel.InFlight, 1)
	require.Equal(t, uint64(1), channel.InFlight[0].Sequence)
	require.NoError(t, CheckInvariants(state, next))
}

func TestApply_PacketRoundTripConservesSupply(t *testing.T) {
	state := testState(t)
	a1, a3 := AddressOf(1), AddressOf(3)
	before := state.Balance(NativeToken, a3).Clone()

	sent, outcome := Apply(state, IbcPacketSend{
		From: a1, Channel: "channel-1",
		Token: NativeToken, Amount: uint256.NewInt(5),
		Receiver: a3,
	})
	require.True(t, outcome.Accepted)

	received, outcome := Apply(sent, IbcPacketRecv{
		From: a1, Channel: "channel-1", Sequence: 1,
	})
	require.True(t, outcome.Accepted)
	require.Equal(t, new(uint256.Int).AddUint64(before, 5), received.Balance(NativeToken, a3))
	require.True(t, received.Balance(NativeToken, EscrowAddress("channel-1")).IsZero())
	require.Empty(t, received.Channels["channel-1"].InFlight)

	// the packet commitment is cleared on delivery
	var deletion *Delta
	for i, delta := range outcome.Deltas {
		if delta.Key == PacketKey("channel-1", 1) {
			deletion = &outcome.Deltas[i]
		}
	}
	require.NotNil(t, deletion)
	require.Nil(t, deletion.Value)
	require.NoError(t, CheckInvariants(state, received))
}

func TestApply_PacketRecvEnforcesOrdering(t *testing.T) {
	state := testState(t)
	a1 := AddressOf(1)

	// no packet in flight yet
	_, outcome := Apply(state, IbcPacketRecv{From: a1, Channel: "channel-0", Sequence: 1})
	require.Equal(t, ReasonBadSequence, outcome.Reason)

	sent, outcome := Apply(state, IbcPacketSend{
		From: a1, Channel: "channel-0",
		Token: NativeToken, Amount: uint256.NewInt(1),
		Receiver: AddressOf(2),
	})
	require.True(t, outcome.Accepted)

	// skipping ahead is refused
	_, outcome = Apply(sent, IbcPacketRecv{From: a1, Channel: "channel-0", Sequence: 2})
	require.Equal(t, ReasonBadSequence, outcome.Reason)

	// unknown channels are refused
	_, outcome = Apply(sent, IbcPacketRecv{From: a1, Channel: "channel-9", Sequence: 1})
	require.Equal(t, ReasonUnknownChannel, outcome.Reason)

	// delivery in order passes, replay of the same sequence fails
	delivered, outcome := Apply(sent, IbcPacketRecv{From: a1, Channel: "channel-0", Sequence: 1})
	require.True(t, outcome.Accepted)
	_, outcome = Apply(delivered, IbcPacketRecv{From: a1, Channel: "channel-0", Sequence: 1})
	require.Equal(t, ReasonBadSequence, outcome.Reason)
}

func TestApply_PacketSendValidation(t *testing.T) {
	state := testState(t)
	a1 := AddressOf(1)

	tests := map[string]struct {
		op   IbcPacketSend
		want Reason
	}{
		"empty channel": {
			IbcPacketSend{From: a1, Token: NativeToken, Amount: uint256.NewInt(1), Receiver: AddressOf(2)},
			ReasonMalformed,
		},
		"missing receiver": {
			IbcPacketSend{From: a1, Channel: "channel-0", Token: NativeToken, Amount: uint256.NewInt(1)},
			ReasonMalformed,
		},
		"unknown sender": {
			IbcPacketSend{From: AddressOf(99), Channel: "channel-0", Token: NativeToken, Amount: uint256.NewInt(1), Receiver: AddressOf(2)},
			ReasonUnknownAccount,
		},
		"excessive amount": {
			IbcPacketSend{From: a1, Channel: "channel-0", Token: NativeToken, Amount: uint256.NewInt(1 << 40), Receiver: AddressOf(2)},
			ReasonInsufficientBalance,
		},
		"unknown channel": {
			IbcPacketSend{From: a1, Channel: "channel-7", Token: NativeToken, Amount: uint256.NewInt(1), Receiver: AddressOf(2)},
			ReasonUnknownChannel,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, outcome := Apply(state, test.op)
			require.False(t, outcome.Accepted)
			require.Equal(t, test.want, outcome.Reason)
		})
	}
}

func TestCheckInvariants_DetectsSupplyViolation(t *testing.T) {
	genesis := testState(t)
	final := genesis.Clone()
	final.Accounts[AddressOf(1)].Balances[NativeToken].AddUint64(
		final.Accounts[AddressOf(1)].Balances[NativeToken], 1)

	err := CheckInvariants(genesis, final)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not conserved")
}

func TestCheckInvariants_DetectsForeignToken(t *testing.T) {
	genesis := testState(t)
	final := genesis.Clone()
	final.Accounts[AddressOf(1)].Balances["doge"] = uint256.NewInt(5)

	err := CheckInvariants(genesis, final)
	require.Error(t, err)
	require.Contains(t, err.Error(), "thin air")
}

func TestCheckInvariants_DetectsChannelCorruption(t *testing.T) {
	genesis := testState(t)
	final := genesis.Clone()
	final.Channels["channel-0"].ClientID = "07-tendermint-99"

	err := CheckInvariants(genesis, final)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown client")
}

func TestApply_UnknownOperationKindIsMalformed(t *testing.T) {
	state := testState(t)
	next, outcome := Apply(state, nil)
	require.Same(t, state, next)
	require.Equal(t, ReasonMalformed, outcome.Reason)
}

func TestGenesis_IsDeterministic(t *testing.T) {
	cfg := GenesisConfig{Accounts: 8, BalanceRange: 5000, Channels: 3, Seed: 7}
	a, b := NewGenesisState(cfg), NewGenesisState(cfg)
	require.Equal(t, a.Supply(), b.Supply())
	require.Equal(t, a.SortedAccounts(), b.SortedAccounts())
	require.Equal(t, a.SortedChannels(), b.SortedChannels())

	c := NewGenesisState(GenesisConfig{Accounts: 8, BalanceRange: 5000, Channels: 3, Seed: 8})
	require.NotEqual(t, a.Supply(), c.Supply())
}

func TestEscrowAddress_IsStablePerChannel(t *testing.T) {
	require.Equal(t, EscrowAddress("channel-0"), EscrowAddress("channel-0"))
	require.NotEqual(t, EscrowAddress("channel-0"), EscrowAddress("channel-1"))
	require.NotEqual(t, common.Address{}, EscrowAddress("channel-0"))
}
