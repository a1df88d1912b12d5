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
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestKeys_SchemaLayout(t *testing.T) {
	owner := AddressOf(1)
	require.True(t, strings.HasPrefix(BalanceKey(NativeToken, owner), BalancePrefix(NativeToken)))
	require.True(t, strings.HasPrefix(PredicateKey(owner), "vp/"))
	require.Equal(t, "ibc/clients/07-tendermint-0/height", ClientHeightKey("07-tendermint-0"))
	require.Equal(t, "ibc/channels/channel-0/client", ChannelClientKey("channel-0"))
	require.Equal(t, "ibc/channels/channel-0/nextSequenceSend", NextSendKey("channel-0"))
	require.Equal(t, "ibc/channels/channel-0/nextSequenceRecv", NextRecvKey("channel-0"))
	require.Equal(t, "height", HeightKey)
}

func TestKeys_AreDistinctPerOwnerAndToken(t *testing.T) {
	a1, a2 := AddressOf(1), AddressOf(2)
	require.NotEqual(t, BalanceKey(NativeToken, a1), BalanceKey(NativeToken, a2))
	require.NotEqual(t, BalanceKey(NativeToken, a1), BalanceKey(SecondToken, a1))
	require.NotEqual(t, PredicateKey(a1), PredicateKey(a2))
}

func TestKeys_PacketKeysSortBySequence(t *testing.T) {
	// zero-padded sequences keep lexicographic and numeric order aligned
	require.Less(t, PacketKey("channel-0", 2), PacketKey("channel-0", 10))
	require.Less(t, PacketKey("channel-0", 99), PacketKey("channel-0", 100))
	require.True(t, strings.HasPrefix(PacketKey("channel-0", 1), PacketPrefix("channel-0")))
	require.False(t, strings.HasPrefix(PacketKey("channel-1", 1), PacketPrefix("channel-0")))
}

func TestKeys_BalanceRoundTrip(t *testing.T) {
	values := []*uint256.Int{
		uint256.NewInt(0),
		uint256.NewInt(1),
		uint256.NewInt(1 << 40),
		new(uint256.Int).Not(uint256.NewInt(0)),
	}
	for _, value := range values {
		decoded, err := DecodeBalance(EncodeBalance(value))
		require.NoError(t, err)
		require.Equal(t, value, decoded)
	}
	_, err := DecodeBalance([]byte("short"))
	require.Error(t, err)
}

func TestKeys_PredicateRoundTrip(t *testing.T) {
	predicates := []Predicate{
		{Kind: PredicateAllowAll},
		{Kind: PredicateDenyAll},
		{Kind: PredicateDebitCap, Cap: uint256.NewInt(500)},
	}
	for _, predicate := range predicates {
		decoded, err := DecodePredicate(EncodePredicate(predicate))
		require.NoError(t, err)
		require.Equal(t, predicate, decoded)
	}
	_, err := DecodePredicate(nil)
	require.Error(t, err)
}

func TestKeys_SequenceAndHeightRoundTrip(t *testing.T) {
	seq, err := DecodeSequence(EncodeSequence(77))
	require.NoError(t, err)
	require.Equal(t, uint64(77), seq)

	height, err := DecodeHeight(EncodeHeight(12345))
	require.NoError(t, err)
	require.Equal(t, uint64(12345), height)

	_, err = DecodeSequence([]byte{1, 2})
	require.Error(t, err)
	_, err = DecodeHeight(nil)
	require.Error(t, err)
}
