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

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/0xsoniclabs/weft/store"
)

func TestWriteState_MaterializesFullSchema(t *testing.T) {
	state := testState(t)
	db := store.NewMemoryDB()
	require.NoError(t, WriteState(db, state))

	for _, addr := range state.SortedAccounts() {
		for _, token := range Tokens {
			data, found := db.Get(BalanceKey(token, addr))
			require.True(t, found)
			balance, err := DecodeBalance(data)
			require.NoError(t, err)
			require.Equal(t, state.Balance(token, addr), balance)
		}
		data, found := db.Get(PredicateKey(addr))
		require.True(t, found)
		predicate, err := DecodePredicate(data)
		require.NoError(t, err)
		require.Equal(t, state.Accounts[addr].Predicate, predicate)
	}

	for _, id := range state.SortedChannels() {
		channel := state.Channels[id]
		_, found := db.Get(ClientHeightKey(channel.ClientID))
		require.True(t, found)
		client, found := db.Get(ChannelClientKey(id))
		require.True(t, found)
		require.Equal(t, channel.ClientID, string(client))

		send, found := db.Get(NextSendKey(id))
		require.True(t, found)
		seq, err := DecodeSequence(send)
		require.NoError(t, err)
		require.Equal(t, channel.NextSend, seq)

		recv, found := db.Get(NextRecvKey(id))
		require.True(t, found)
		seq, err = DecodeSequence(recv)
		require.NoError(t, err)
		require.Equal(t, channel.NextRecv, seq)
	}

	data, found := db.Get(HeightKey)
	require.True(t, found)
	height, err := DecodeHeight(data)
	require.NoError(t, err)
	require.Equal(t, state.Height, height)
}

func TestWriteState_PersistsInFlightPackets(t *testing.T) {
	state := testState(t)
	sent, outcome := Apply(state, IbcPacketSend{
		From: AddressOf(1), Channel: "channel-0",
		Token: NativeToken, Amount: uint256.NewInt(5),
		Receiver: AddressOf(2),
	})
	require.True(t, outcome.Accepted)

	db := store.NewMemoryDB()
	require.NoError(t, WriteState(db, sent))

	data, found := db.Get(PacketKey("channel-0", 1))
	require.True(t, found)
	packet, err := DecodePacket(data)
	require.NoError(t, err)
	require.Equal(t, sent.Channels["channel-0"].InFlight[0], packet)
}
